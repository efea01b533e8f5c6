package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

const subscriberColumns = "id, email, name, unsubscribe_token, active, subscribed_at, unsubscribed_at"

// SubscriberRepository provides persistence for newsletter subscribers.
type SubscriberRepository struct {
	db *sqlx.DB
}

// NewSubscriberRepository creates a new subscriber repository.
func NewSubscriberRepository(db *sqlx.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// List returns subscribers with optional filtering and pagination.
func (r *SubscriberRepository) List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, int, error) {
	base := "FROM subscribers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ActiveOnly {
		conditions = append(conditions, "active = true")
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", len(args)+1, len(args)+1))
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
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY subscribed_at DESC LIMIT %d OFFSET %d", subscriberColumns, base, size, offset)
	var subscribers []models.Subscriber
	if err := r.db.SelectContext(ctx, &subscribers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	return subscribers, total, nil
}

// ListActive returns every active subscriber, for newsletter fan-out.
func (r *SubscriberRepository) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	query := fmt.Sprintf("SELECT %s FROM subscribers WHERE active = true ORDER BY subscribed_at ASC", subscriberColumns)
	var subscribers []models.Subscriber
	if err := r.db.SelectContext(ctx, &subscribers, query); err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return subscribers, nil
}

// FindByEmail loads a subscriber by email address.
func (r *SubscriberRepository) FindByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	query := fmt.Sprintf("SELECT %s FROM subscribers WHERE email = $1", subscriberColumns)
	var sub models.Subscriber
	if err := r.db.GetContext(ctx, &sub, query, email); err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindByToken loads a subscriber by unsubscribe token.
func (r *SubscriberRepository) FindByToken(ctx context.Context, token string) (*models.Subscriber, error) {
	query := fmt.Sprintf("SELECT %s FROM subscribers WHERE unsubscribe_token = $1", subscriberColumns)
	var sub models.Subscriber
	if err := r.db.GetContext(ctx, &sub, query, token); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create stores a new subscriber.
func (r *SubscriberRepository) Create(ctx context.Context, sub *models.Subscriber) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}

	const query = `INSERT INTO subscribers (id, email, name, unsubscribe_token, active, subscribed_at, unsubscribed_at) VALUES (:id, :email, :name, :unsubscribe_token, :active, :subscribed_at, :unsubscribed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

// Reactivate re-enables a previously unsubscribed address.
func (r *SubscriberRepository) Reactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE subscribers SET active = true, unsubscribed_at = NULL, subscribed_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("reactivate subscriber: %w", err)
	}
	return nil
}

// Deactivate marks a subscriber as unsubscribed.
func (r *SubscriberRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE subscribers SET active = false, unsubscribed_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("deactivate subscriber: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate subscriber rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// CountActive returns the number of active subscribers.
func (r *SubscriberRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM subscribers WHERE active = true`); err != nil {
		return 0, fmt.Errorf("count active subscribers: %w", err)
	}
	return count, nil
}

// MonthlyGrowth buckets signups per month over the trailing N months.
func (r *SubscriberRepository) MonthlyGrowth(ctx context.Context, months int) ([]models.MonthlyCount, error) {
	if months <= 0 {
		months = 6
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT to_char(date_trunc('month', subscribed_at), 'YYYY-MM') AS month, COUNT(*) FROM subscribers WHERE subscribed_at >= date_trunc('month', now()) - ($1 || ' months')::interval GROUP BY 1 ORDER BY 1 ASC`, months)
	if err != nil {
		return nil, fmt.Errorf("subscriber growth: %w", err)
	}
	defer rows.Close()

	var growth []models.MonthlyCount
	for rows.Next() {
		var entry models.MonthlyCount
		if err := rows.Scan(&entry.Month, &entry.Count); err != nil {
			return nil, fmt.Errorf("scan subscriber growth: %w", err)
		}
		growth = append(growth, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber growth: %w", err)
	}
	return growth, nil
}
