package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/markdown"
	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/jobs"
)

type newsletterRepo interface {
	List(ctx context.Context, page, pageSize int) ([]models.NewsletterIssue, int, error)
	FindByID(ctx context.Context, id string) (*models.NewsletterIssue, error)
	Create(ctx context.Context, issue *models.NewsletterIssue) error
	Update(ctx context.Context, issue *models.NewsletterIssue) error
	MarkSending(ctx context.Context, id string, recipients int) error
	IncrementSent(ctx context.Context, id string) (int, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type activeSubscriberLister interface {
	ListActive(ctx context.Context) ([]models.Subscriber, error)
}

// Sender delivers one rendered newsletter email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogSender is the default Sender. It records deliveries instead of talking
// to a mail provider, which keeps local and test environments self-contained.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the delivery.
func (s LogSender) Send(_ context.Context, to, subject, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("newsletter email delivered", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// ComposeNewsletterRequest is the staff payload for drafting an issue.
type ComposeNewsletterRequest struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// deliveryPayload travels through the job queue for one recipient.
type deliveryPayload struct {
	IssueID    string
	Email      string
	Subject    string
	HTML       string
	Token      string
	Recipients int
}

// NewsletterService composes newsletter issues and fans deliveries out to a
// background worker pool.
type NewsletterService struct {
	repo        newsletterRepo
	subscribers activeSubscriberLister
	sender      Sender
	validator   *validator.Validate
	logger      *zap.Logger
	baseURL     string

	queue   *jobs.Queue
	queueMu sync.Mutex
}

// NewNewsletterService constructs the service and its delivery queue. Start
// must be called before Send can enqueue work.
func NewNewsletterService(repo newsletterRepo, subscribers activeSubscriberLister, sender Sender, cfg jobs.QueueConfig, baseURL string, validate *validator.Validate, logger *zap.Logger) *NewsletterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}

	s := &NewsletterService{
		repo:        repo,
		subscribers: subscribers,
		sender:      sender,
		validator:   validate,
		logger:      logger,
		baseURL:     baseURL,
	}
	s.queue = jobs.NewQueue("newsletter-delivery", s.deliver, cfg)
	return s
}

// Start spins up the delivery workers.
func (s *NewsletterService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NewsletterService) Stop() {
	s.queue.Stop()
}

// List returns newsletter issues, newest first.
func (s *NewsletterService) List(ctx context.Context, page, pageSize int) ([]models.NewsletterIssue, *models.Pagination, error) {
	issues, total, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list newsletter issues")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return issues, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get loads one issue.
func (s *NewsletterService) Get(ctx context.Context, id string) (*models.NewsletterIssue, error) {
	issue, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "newsletter issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load newsletter issue")
	}
	return issue, nil
}

// Compose creates a draft issue with the body rendered to HTML.
func (s *NewsletterService) Compose(ctx context.Context, authorID string, req ComposeNewsletterRequest) (*models.NewsletterIssue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid newsletter payload")
	}

	issue := &models.NewsletterIssue{
		Subject:   req.Subject,
		Body:      req.Body,
		BodyHTML:  markdown.Render(req.Body),
		Status:    models.NewsletterDraft,
		CreatedBy: authorID,
	}
	if err := s.repo.Create(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create newsletter issue")
	}
	return issue, nil
}

// UpdateDraft replaces a draft issue's content. Issues that have started
// sending are immutable.
func (s *NewsletterService) UpdateDraft(ctx context.Context, id string, req ComposeNewsletterRequest) (*models.NewsletterIssue, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid newsletter payload")
	}

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Status != models.NewsletterDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only draft issues can be edited")
	}

	issue.Subject = req.Subject
	issue.Body = req.Body
	issue.BodyHTML = markdown.Render(req.Body)

	if err := s.repo.Update(ctx, issue); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update newsletter issue")
	}
	return issue, nil
}

// Send fans a draft issue out to every active subscriber via the worker
// queue. It returns once every delivery is enqueued; the issue is marked sent
// when the delivered count reaches the recipient count.
func (s *NewsletterService) Send(ctx context.Context, id string) (*models.NewsletterIssue, error) {
	if !s.queue.Running() {
		return nil, appErrors.New("NEWSLETTER_DISABLED", http.StatusServiceUnavailable, "newsletter delivery is not running")
	}

	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if issue.Status != models.NewsletterDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "issue has already been sent")
	}

	recipients, err := s.subscribers.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipients")
	}
	if len(recipients) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no active subscribers to send to")
	}

	if err := s.repo.MarkSending(ctx, issue.ID, len(recipients)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark issue sending")
	}
	issue.Status = models.NewsletterSending
	issue.RecipientCount = len(recipients)

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for _, sub := range recipients {
		payload := deliveryPayload{
			IssueID:    issue.ID,
			Email:      sub.Email,
			Subject:    issue.Subject,
			HTML:       s.renderEmail(issue, sub),
			Token:      sub.UnsubscribeToken,
			Recipients: len(recipients),
		}
		job := jobs.Job{ID: uuid.NewString(), Type: "newsletter-delivery", Payload: payload}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error("failed to enqueue newsletter delivery", zap.String("issue_id", issue.ID), zap.String("email", sub.Email), zap.Error(err))
		}
	}

	return issue, nil
}

func (s *NewsletterService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(deliveryPayload)
	if !ok {
		s.logger.Error("dropping newsletter job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	if err := s.sender.Send(ctx, payload.Email, payload.Subject, payload.HTML); err != nil {
		return fmt.Errorf("send newsletter to %s: %w", payload.Email, err)
	}

	sent, err := s.repo.IncrementSent(ctx, payload.IssueID)
	if err != nil {
		s.logger.Warn("failed to record newsletter delivery", zap.String("issue_id", payload.IssueID), zap.Error(err))
		return nil
	}

	// The issue is sent only when every delivery has completed, regardless of
	// the order workers finish in.
	if sent >= payload.Recipients {
		if err := s.repo.MarkSent(ctx, payload.IssueID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to finalise newsletter issue", zap.String("issue_id", payload.IssueID), zap.Error(err))
		}
	}
	return nil
}

func (s *NewsletterService) renderEmail(issue *models.NewsletterIssue, sub models.Subscriber) string {
	unsubscribe := fmt.Sprintf("%s/newsletter/unsubscribe?token=%s", s.baseURL, sub.UnsubscribeToken)
	return fmt.Sprintf("%s\n<hr><p><a href=%q>Unsubscribe</a></p>", issue.BodyHTML, unsubscribe)
}
