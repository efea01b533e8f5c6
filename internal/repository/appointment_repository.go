package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

const appointmentColumns = "id, client_name, client_email, client_phone, date, start_time, session_type, status, notes, created_at, updated_at"

// AppointmentRepository provides persistence for appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// List returns appointments with optional filtering and pagination.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	base := "FROM appointments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(statuses))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(client_name ILIKE $%d OR client_email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY date ASC, start_time ASC LIMIT %d OFFSET %d", appointmentColumns, base, size, offset)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appointments, total, nil
}

// FindByID loads an appointment by id.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE id = $1", appointmentColumns)
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}
	return &appt, nil
}

// ListByDate returns appointments for an exact date, optionally status-filtered.
func (r *AppointmentRepository) ListByDate(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error) {
	query := fmt.Sprintf("SELECT %s FROM appointments WHERE date = $1", appointmentColumns)
	args := []interface{}{date}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		query += " AND status = ANY($2)"
		args = append(args, pq.Array(values))
	}
	query += " ORDER BY start_time ASC"

	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	return appointments, nil
}

// Create stores a new appointment. The transaction takes an advisory lock on
// the (date, start_time) pair before checking for an occupying appointment, so
// two concurrent bookings of the same free slot serialize on the lock and the
// second one sees the first one's committed row.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create appointment: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	slotKey := fmt.Sprintf("appointments:%s:%s", appt.Date.Format("2006-01-02"), appt.StartTime)
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slotKey); err != nil {
		return fmt.Errorf("lock slot %s: %w", slotKey, err)
	}

	var occupying []string
	if err = tx.SelectContext(ctx, &occupying, `SELECT id FROM appointments WHERE date = $1 AND start_time = $2 AND status IN ('pending', 'confirmed')`, appt.Date, appt.StartTime); err != nil {
		return fmt.Errorf("check slot occupancy: %w", err)
	}
	if len(occupying) > 0 {
		err = appErrors.ErrSlotTaken
		return err
	}

	if _, err = tx.NamedExecContext(ctx, `INSERT INTO appointments (id, client_name, client_email, client_phone, date, start_time, session_type, status, notes, created_at, updated_at) VALUES (:id, :client_name, :client_email, :client_phone, :date, :start_time, :session_type, :status, :notes, :created_at, :updated_at)`, appt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create appointment: %w", err)
	}
	return nil
}

// UpdateStatus transitions an appointment to a new status.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update appointment status rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// Update modifies appointment contact details and notes.
func (r *AppointmentRepository) Update(ctx context.Context, appt *models.Appointment) error {
	appt.UpdatedAt = time.Now().UTC()
	const query = `UPDATE appointments SET client_name = :client_name, client_email = :client_email, client_phone = :client_phone, session_type = :session_type, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, appt); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// CountByStatus aggregates appointment counts grouped by status.
func (r *AppointmentRepository) CountByStatus(ctx context.Context) (map[models.AppointmentStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM appointments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count appointments by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AppointmentStatus]int)
	for rows.Next() {
		var status models.AppointmentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

// DailyLoad counts occupying appointments per date in the inclusive range.
func (r *AppointmentRepository) DailyLoad(ctx context.Context, from, to time.Time) ([]models.DailyLoad, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT date, COUNT(*) FROM appointments WHERE date >= $1 AND date <= $2 AND status IN ('pending', 'confirmed') GROUP BY date ORDER BY date ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily appointment load: %w", err)
	}
	defer rows.Close()

	var load []models.DailyLoad
	for rows.Next() {
		var date time.Time
		var count int
		if err := rows.Scan(&date, &count); err != nil {
			return nil, fmt.Errorf("scan daily load: %w", err)
		}
		load = append(load, models.DailyLoad{Date: date.Format("2006-01-02"), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily load: %w", err)
	}
	return load, nil
}
