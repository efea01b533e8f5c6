package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/markdown"
	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type postRepo interface {
	List(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error)
	FindByID(ctx context.Context, id string) (*models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id string) error
}

// SavePostRequest is the staff payload for creating or updating a post.
type SavePostRequest struct {
	Title     string   `json:"title" validate:"required"`
	Slug      string   `json:"slug"`
	Excerpt   string   `json:"excerpt"`
	Body      string   `json:"body" validate:"required"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	AudioURL  string   `json:"audio_url"`
	Published bool     `json:"published"`
}

// PostService manages blog posts and podcast episode pages.
type PostService struct {
	repo      postRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPostService constructs a PostService.
func NewPostService(repo postRepo, validate *validator.Validate, logger *zap.Logger) *PostService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{repo: repo, validator: validate, logger: logger}
}

// List returns posts matching the filter.
func (s *PostService) List(ctx context.Context, filter models.PostFilter) ([]models.Post, *models.Pagination, error) {
	posts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list posts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return posts, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a post by id.
func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	return post, nil
}

// GetPublishedBySlug loads a published post for the public site. Drafts are
// invisible to unauthenticated readers.
func (s *PostService) GetPublishedBySlug(ctx context.Context, slug string) (*models.Post, error) {
	post, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if !post.Published {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
	}
	return post, nil
}

// Create stores a new post, rendering its body and deriving a slug when the
// request does not provide one.
func (s *PostService) Create(ctx context.Context, authorID string, req SavePostRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}

	slug := req.Slug
	if slug == "" {
		slug = Slugify(req.Title)
	}

	post := &models.Post{
		Slug:      slug,
		Title:     req.Title,
		Excerpt:   req.Excerpt,
		Body:      req.Body,
		BodyHTML:  markdown.Render(req.Body),
		Category:  req.Category,
		Tags:      req.Tags,
		AudioURL:  req.AudioURL,
		Published: req.Published,
		AuthorID:  authorID,
	}
	if req.Published {
		now := time.Now().UTC()
		post.PublishedAt = &now
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}
	return post, nil
}

// Update replaces a post's content, re-rendering the body. PublishedAt is set
// on the first transition to published and kept on later edits.
func (s *PostService) Update(ctx context.Context, id string, req SavePostRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}

	post, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Title = req.Title
	if req.Slug != "" {
		post.Slug = req.Slug
	}
	post.Excerpt = req.Excerpt
	post.Body = req.Body
	post.BodyHTML = markdown.Render(req.Body)
	post.Category = req.Category
	post.Tags = req.Tags
	post.AudioURL = req.AudioURL

	if req.Published && !post.Published {
		now := time.Now().UTC()
		post.PublishedAt = &now
	}
	post.Published = req.Published

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update post")
	}
	return post, nil
}

// Delete removes a post.
func (s *PostService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}
	return nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowers a title into a URL-safe slug.
func Slugify(title string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}
