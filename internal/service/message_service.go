package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/events"
	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type messageRepo interface {
	List(ctx context.Context, filter models.MessageFilter) ([]models.ContactMessage, int, error)
	FindByID(ctx context.Context, id string) (*models.ContactMessage, error)
	Create(ctx context.Context, msg *models.ContactMessage) error
	MarkRead(ctx context.Context, id string, readAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// SubmitMessageRequest is the public contact form payload.
type SubmitMessageRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// MessageService handles contact form submissions and the staff inbox.
type MessageService struct {
	repo      messageRepo
	feed      feedPublisher
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService constructs a MessageService.
func NewMessageService(repo messageRepo, feed feedPublisher, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{repo: repo, feed: feed, cache: cache, validator: validate, logger: logger}
}

// List returns contact messages for the staff inbox.
func (s *MessageService) List(ctx context.Context, filter models.MessageFilter) ([]models.ContactMessage, *models.Pagination, error) {
	messages, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return messages, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one contact message.
func (s *MessageService) Get(ctx context.Context, id string) (*models.ContactMessage, error) {
	msg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	return msg, nil
}

// Submit stores a contact form submission and notifies the dashboard feed.
func (s *MessageService) Submit(ctx context.Context, req SubmitMessageRequest) (*models.ContactMessage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contact payload")
	}

	msg := &models.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Body:    req.Body,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store message")
	}

	s.notifyChange(ctx, events.ActionCreated, msg.ID)
	return msg, nil
}

// MarkRead flags a message as read.
func (s *MessageService) MarkRead(ctx context.Context, id string) (*models.ContactMessage, error) {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Read {
		return msg, nil
	}

	readAt := time.Now().UTC()
	if err := s.repo.MarkRead(ctx, id, readAt); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark message read")
	}
	msg.Read = true
	msg.ReadAt = &readAt

	s.notifyChange(ctx, events.ActionUpdated, id)
	return msg, nil
}

// Delete removes a message from the inbox.
func (s *MessageService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}

	s.notifyChange(ctx, events.ActionDeleted, id)
	return nil
}

func (s *MessageService) notifyChange(ctx context.Context, action, id string) {
	if s.feed != nil {
		if err := s.feed.Publish(ctx, events.Event{Table: "messages", Action: action, ResourceID: id}); err != nil {
			s.logger.Warn("failed to publish message change", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "dashboard:*"); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	}
}
