package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meridianpsych/practice-api/internal/models"
)

const newsletterColumns = "id, subject, body, body_html, status, recipient_count, sent_count, created_by, sent_at, created_at, updated_at"

// NewsletterRepository persists newsletter issues.
type NewsletterRepository struct {
	db *sqlx.DB
}

// NewNewsletterRepository constructs the repository.
func NewNewsletterRepository(db *sqlx.DB) *NewsletterRepository {
	return &NewsletterRepository{db: db}
}

// List returns newsletter issues, newest first.
func (r *NewsletterRepository) List(ctx context.Context, page, pageSize int) ([]models.NewsletterIssue, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("SELECT %s FROM newsletter_issues ORDER BY created_at DESC LIMIT %d OFFSET %d", newsletterColumns, pageSize, offset)
	var issues []models.NewsletterIssue
	if err := r.db.SelectContext(ctx, &issues, query); err != nil {
		return nil, 0, fmt.Errorf("list newsletter issues: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM newsletter_issues`); err != nil {
		return nil, 0, fmt.Errorf("count newsletter issues: %w", err)
	}

	return issues, total, nil
}

// FindByID loads an issue by id.
func (r *NewsletterRepository) FindByID(ctx context.Context, id string) (*models.NewsletterIssue, error) {
	query := fmt.Sprintf("SELECT %s FROM newsletter_issues WHERE id = $1", newsletterColumns)
	var issue models.NewsletterIssue
	if err := r.db.GetContext(ctx, &issue, query, id); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Create stores a new draft issue.
func (r *NewsletterRepository) Create(ctx context.Context, issue *models.NewsletterIssue) error {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now

	const query = `INSERT INTO newsletter_issues (id, subject, body, body_html, status, recipient_count, sent_count, created_by, sent_at, created_at, updated_at) VALUES (:id, :subject, :body, :body_html, :status, :recipient_count, :sent_count, :created_by, :sent_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("create newsletter issue: %w", err)
	}
	return nil
}

// Update modifies a draft issue's content.
func (r *NewsletterRepository) Update(ctx context.Context, issue *models.NewsletterIssue) error {
	issue.UpdatedAt = time.Now().UTC()
	const query = `UPDATE newsletter_issues SET subject = :subject, body = :body, body_html = :body_html, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("update newsletter issue: %w", err)
	}
	return nil
}

// MarkSending transitions an issue into the sending state.
func (r *NewsletterRepository) MarkSending(ctx context.Context, id string, recipients int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE newsletter_issues SET status = $1, recipient_count = $2, updated_at = $3 WHERE id = $4`, models.NewsletterSending, recipients, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("mark newsletter sending: %w", err)
	}
	return nil
}

// IncrementSent bumps the delivered counter for an issue and returns the new
// count, so callers can tell when the last delivery has landed.
func (r *NewsletterRepository) IncrementSent(ctx context.Context, id string) (int, error) {
	var sent int
	if err := r.db.GetContext(ctx, &sent, `UPDATE newsletter_issues SET sent_count = sent_count + 1, updated_at = $1 WHERE id = $2 RETURNING sent_count`, time.Now().UTC(), id); err != nil {
		return 0, fmt.Errorf("increment newsletter sent count: %w", err)
	}
	return sent, nil
}

// MarkSent finalises an issue after fan-out completes.
func (r *NewsletterRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE newsletter_issues SET status = $1, sent_at = $2, updated_at = $2 WHERE id = $3`, models.NewsletterSent, at, id); err != nil {
		return fmt.Errorf("mark newsletter sent: %w", err)
	}
	return nil
}
