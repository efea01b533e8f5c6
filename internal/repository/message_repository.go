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

const messageColumns = `id, name, email, phone, subject, body, "read", read_at, created_at`

// MessageRepository provides persistence for contact messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// List returns contact messages, newest first.
func (r *MessageRepository) List(ctx context.Context, filter models.MessageFilter) ([]models.ContactMessage, int, error) {
	base := "FROM contact_messages WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UnreadOnly {
		conditions = append(conditions, `"read" = false`)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR subject ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", messageColumns, base, size, offset)
	var messages []models.ContactMessage
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	return messages, total, nil
}

// FindByID loads a contact message by id.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.ContactMessage, error) {
	query := fmt.Sprintf("SELECT %s FROM contact_messages WHERE id = $1", messageColumns)
	var msg models.ContactMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Create stores a new contact message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.ContactMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO contact_messages (id, name, email, phone, subject, body, "read", read_at, created_at) VALUES (:id, :name, :email, :phone, :subject, :body, :read, :read_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// MarkRead flags a message as read.
func (r *MessageRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE contact_messages SET "read" = true, read_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark message read rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrNotFound
	}
	return nil
}

// Delete removes a message by id.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM contact_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// CountUnread returns the number of unread messages.
func (r *MessageRepository) CountUnread(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM contact_messages WHERE "read" = false`); err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
