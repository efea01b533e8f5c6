package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type subscriberRepo interface {
	List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, int, error)
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	FindByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	FindByToken(ctx context.Context, token string) (*models.Subscriber, error)
	Create(ctx context.Context, sub *models.Subscriber) error
	Reactivate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// SubscribeRequest is the public signup payload.
type SubscribeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

// SubscriberService manages the newsletter audience.
type SubscriberService struct {
	repo      subscriberRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubscriberService constructs a SubscriberService.
func NewSubscriberService(repo subscriberRepo, validate *validator.Validate, logger *zap.Logger) *SubscriberService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriberService{repo: repo, validator: validate, logger: logger}
}

// List returns subscribers for the ops dashboard.
func (s *SubscriberService) List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, *models.Pagination, error) {
	subscribers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subscribers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	return subscribers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Subscribe adds an email to the audience. Signing up an address that already
// unsubscribed reactivates it; an already active address is a no-op, so the
// endpoint never leaks whether an email exists.
func (s *SubscriberService) Subscribe(ctx context.Context, req SubscribeRequest) (*models.Subscriber, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subscribe payload")
	}

	existing, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up subscriber")
	}

	if existing != nil {
		if existing.Active {
			return existing, nil
		}
		if err := s.repo.Reactivate(ctx, existing.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate subscriber")
		}
		existing.Active = true
		existing.UnsubscribedAt = nil
		return existing, nil
	}

	token, err := generateUnsubscribeToken()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate unsubscribe token")
	}

	sub := &models.Subscriber{
		Email:            req.Email,
		Name:             req.Name,
		UnsubscribeToken: token,
		Active:           true,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store subscriber")
	}
	return sub, nil
}

// Unsubscribe deactivates the subscriber owning the token. The token arrives
// via an email link, so no authentication is required.
func (s *SubscriberService) Unsubscribe(ctx context.Context, token string) error {
	if token == "" {
		return appErrors.Clone(appErrors.ErrValidation, "missing unsubscribe token")
	}

	sub, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "unknown unsubscribe token")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up subscriber")
	}
	if !sub.Active {
		return nil
	}

	if err := s.repo.Deactivate(ctx, sub.ID, time.Now().UTC()); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return typed
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unsubscribe")
	}
	return nil
}

func generateUnsubscribeToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
