package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meridianpsych/practice-api/internal/models"
)

const postColumns = "id, slug, title, excerpt, body, body_html, category, tags, audio_url, published, published_at, author_id, created_at, updated_at"

// PostRepository provides persistence for blog posts and podcast episodes.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates a new post repository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// List returns posts with optional filtering and pagination.
func (r *PostRepository) List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error) {
	base := "FROM posts WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.PublishedOnly {
		conditions = append(conditions, "published = true")
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Tag != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)+1))
		args = append(args, filter.Tag)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR excerpt ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"published_at": true,
		"created_at":   true,
		"title":        true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "published_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s NULLS LAST LIMIT %d OFFSET %d", postColumns, base, sortBy, order, size, offset)
	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	return posts, total, nil
}

// FindByID loads a post by id.
func (r *PostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	query := fmt.Sprintf("SELECT %s FROM posts WHERE id = $1", postColumns)
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		return nil, err
	}
	return &post, nil
}

// FindBySlug loads a post by its URL slug.
func (r *PostRepository) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	query := fmt.Sprintf("SELECT %s FROM posts WHERE slug = $1", postColumns)
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, slug); err != nil {
		return nil, err
	}
	return &post, nil
}

// Create stores a new post record.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	const query = `INSERT INTO posts (id, slug, title, excerpt, body, body_html, category, tags, audio_url, published, published_at, author_id, created_at, updated_at) VALUES (:id, :slug, :title, :excerpt, :body, :body_html, :category, :tags, :audio_url, :published, :published_at, :author_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// Update modifies a post record.
func (r *PostRepository) Update(ctx context.Context, post *models.Post) error {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE posts SET slug = :slug, title = :title, excerpt = :excerpt, body = :body, body_html = :body_html, category = :category, tags = :tags, audio_url = :audio_url, published = :published, published_at = :published_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// Delete removes a post by id.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// CountByPublished returns published and draft post counts.
func (r *PostRepository) CountByPublished(ctx context.Context) (published int, drafts int, err error) {
	if err = r.db.GetContext(ctx, &published, `SELECT COUNT(*) FROM posts WHERE published = true`); err != nil {
		return 0, 0, fmt.Errorf("count published posts: %w", err)
	}
	if err = r.db.GetContext(ctx, &drafts, `SELECT COUNT(*) FROM posts WHERE published = false`); err != nil {
		return 0, 0, fmt.Errorf("count draft posts: %w", err)
	}
	return published, drafts, nil
}
