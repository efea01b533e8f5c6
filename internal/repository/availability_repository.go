package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meridianpsych/practice-api/internal/models"
)

// AvailabilityRepository persists recurring slots and date-specific overrides.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListRecurringSlots returns all recurring slots ordered by weekday and time.
func (r *AvailabilityRepository) ListRecurringSlots(ctx context.Context) ([]models.RecurringSlot, error) {
	const query = `SELECT id, day_of_week, start_time, duration_minutes, session_type, is_active, created_at, updated_at FROM recurring_slots ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.RecurringSlot
	if err := r.db.SelectContext(ctx, &slots, query); err != nil {
		return nil, fmt.Errorf("list recurring slots: %w", err)
	}
	return slots, nil
}

// ListRecurringByWeekday returns active recurring slots for one weekday.
func (r *AvailabilityRepository) ListRecurringByWeekday(ctx context.Context, weekday int) ([]models.RecurringSlot, error) {
	const query = `SELECT id, day_of_week, start_time, duration_minutes, session_type, is_active, created_at, updated_at FROM recurring_slots WHERE day_of_week = $1 AND is_active = true ORDER BY start_time ASC`
	var slots []models.RecurringSlot
	if err := r.db.SelectContext(ctx, &slots, query, weekday); err != nil {
		return nil, fmt.Errorf("list recurring slots by weekday: %w", err)
	}
	return slots, nil
}

// ReplaceRecurringSlots removes every recurring slot for the given weekdays and
// inserts the replacement set within a single transaction. Weekdays outside the
// set are untouched.
func (r *AvailabilityRepository) ReplaceRecurringSlots(ctx context.Context, weekdays []int, slots []models.RecurringSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace recurring slots: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM recurring_slots WHERE day_of_week = ANY($1)`, pq.Array(weekdays)); err != nil {
		return fmt.Errorf("delete recurring slots: %w", err)
	}

	now := time.Now().UTC()
	for i := range slots {
		payload := slots[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		payload.UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO recurring_slots (id, day_of_week, start_time, duration_minutes, session_type, is_active, created_at, updated_at) VALUES (:id, :day_of_week, :start_time, :duration_minutes, :session_type, :is_active, :created_at, :updated_at)`, &payload); err != nil {
			return fmt.Errorf("insert recurring slot: %w", err)
		}
		slots[i] = payload
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace recurring slots: %w", err)
	}
	return nil
}

// ListOverrides returns overrides whose date falls inside the inclusive range.
func (r *AvailabilityRepository) ListOverrides(ctx context.Context, from, to time.Time) ([]models.SpecialOverride, error) {
	const query = `SELECT id, date, start_time, duration_minutes, session_type, is_available, reason, created_at FROM special_overrides WHERE date >= $1 AND date <= $2 ORDER BY date ASC, start_time ASC`
	var overrides []models.SpecialOverride
	if err := r.db.SelectContext(ctx, &overrides, query, from, to); err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return overrides, nil
}

// ListOverridesByDate returns every override stored for one exact date.
func (r *AvailabilityRepository) ListOverridesByDate(ctx context.Context, date time.Time) ([]models.SpecialOverride, error) {
	const query = `SELECT id, date, start_time, duration_minutes, session_type, is_available, reason, created_at FROM special_overrides WHERE date = $1 ORDER BY start_time ASC`
	var overrides []models.SpecialOverride
	if err := r.db.SelectContext(ctx, &overrides, query, date); err != nil {
		return nil, fmt.Errorf("list overrides by date: %w", err)
	}
	return overrides, nil
}

// ReplaceOverrides deletes all prior overrides for the date and inserts the new
// set in one transaction, so a failed save never leaves the day half-edited.
func (r *AvailabilityRepository) ReplaceOverrides(ctx context.Context, date time.Time, overrides []models.SpecialOverride) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace overrides: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM special_overrides WHERE date = $1`, date); err != nil {
		return fmt.Errorf("delete overrides: %w", err)
	}

	now := time.Now().UTC()
	for i := range overrides {
		payload := overrides[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.Date = date
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO special_overrides (id, date, start_time, duration_minutes, session_type, is_available, reason, created_at) VALUES (:id, :date, :start_time, :duration_minutes, :session_type, :is_available, :reason, :created_at)`, &payload); err != nil {
			return fmt.Errorf("insert override: %w", err)
		}
		overrides[i] = payload
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace overrides: %w", err)
	}
	return nil
}
