package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/jobs"
)

type newsletterRepoMock struct {
	mu     sync.Mutex
	stored map[string]*models.NewsletterIssue
}

func newNewsletterRepoMock() *newsletterRepoMock {
	return &newsletterRepoMock{stored: make(map[string]*models.NewsletterIssue)}
}

func (m *newsletterRepoMock) List(ctx context.Context, page, pageSize int) ([]models.NewsletterIssue, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NewsletterIssue
	for _, issue := range m.stored {
		out = append(out, *issue)
	}
	return out, len(out), nil
}

func (m *newsletterRepoMock) FindByID(ctx context.Context, id string) (*models.NewsletterIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.stored[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *issue
	return &cp, nil
}

func (m *newsletterRepoMock) Create(ctx context.Context, issue *models.NewsletterIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue.ID == "" {
		issue.ID = "issue-1"
	}
	cp := *issue
	m.stored[issue.ID] = &cp
	return nil
}

func (m *newsletterRepoMock) Update(ctx context.Context, issue *models.NewsletterIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *issue
	m.stored[issue.ID] = &cp
	return nil
}

func (m *newsletterRepoMock) MarkSending(ctx context.Context, id string, recipients int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue := m.stored[id]
	issue.Status = models.NewsletterSending
	issue.RecipientCount = recipients
	return nil
}

func (m *newsletterRepoMock) IncrementSent(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[id].SentCount++
	return m.stored[id].SentCount, nil
}

func (m *newsletterRepoMock) MarkSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue := m.stored[id]
	issue.Status = models.NewsletterSent
	issue.SentAt = &at
	return nil
}

func (m *newsletterRepoMock) snapshot(id string) models.NewsletterIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.stored[id]
}

type senderRecorder struct {
	mu        sync.Mutex
	delivered []string
}

func (s *senderRecorder) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, to)
	return nil
}

func (s *senderRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func newTestNewsletterService(repo *newsletterRepoMock, subs *subscriberRepoMock, sender Sender) *NewsletterService {
	return NewNewsletterService(repo, subs, sender, jobs.QueueConfig{Workers: 1}, "https://example.com", validator.New(), zap.NewNop())
}

func TestComposeCreatesDraftWithRenderedBody(t *testing.T) {
	repo := newNewsletterRepoMock()
	service := newTestNewsletterService(repo, newSubscriberRepoMock(), &senderRecorder{})

	issue, err := service.Compose(context.Background(), "staff-1", ComposeNewsletterRequest{
		Subject: "September update",
		Body:    "New **group sessions** this fall.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.NewsletterDraft, issue.Status)
	assert.Contains(t, issue.BodyHTML, "<strong>group sessions</strong>")
	assert.Equal(t, "staff-1", issue.CreatedBy)
}

func TestSendFansOutToActiveSubscribers(t *testing.T) {
	repo := newNewsletterRepoMock()
	subs := newSubscriberRepoMock()
	subs.byEmail["a@example.com"] = &models.Subscriber{ID: "s1", Email: "a@example.com", Active: true, UnsubscribeToken: "t1"}
	subs.byEmail["b@example.com"] = &models.Subscriber{ID: "s2", Email: "b@example.com", Active: true, UnsubscribeToken: "t2"}
	subs.byEmail["c@example.com"] = &models.Subscriber{ID: "s3", Email: "c@example.com", Active: false, UnsubscribeToken: "t3"}

	sender := &senderRecorder{}
	service := newTestNewsletterService(repo, subs, sender)
	service.Start(context.Background())
	defer service.Stop()

	issue, err := service.Compose(context.Background(), "staff-1", ComposeNewsletterRequest{Subject: "Update", Body: "Hi"})
	require.NoError(t, err)

	sent, err := service.Send(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NewsletterSending, sent.Status)
	assert.Equal(t, 2, sent.RecipientCount)

	require.Eventually(t, func() bool {
		return sender.count() == 2 && repo.snapshot(issue.ID).Status == models.NewsletterSent
	}, 2*time.Second, 10*time.Millisecond)

	final := repo.snapshot(issue.ID)
	assert.Equal(t, 2, final.SentCount)
	assert.NotNil(t, final.SentAt)
}

type flakySender struct {
	senderRecorder
	failFor string
}

func (s *flakySender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if to == s.failFor {
		return assert.AnError
	}
	return s.senderRecorder.Send(ctx, to, subject, htmlBody)
}

func TestSendMarksSentOnlyWhenEveryDeliveryLands(t *testing.T) {
	repo := newNewsletterRepoMock()
	subs := newSubscriberRepoMock()
	subs.byEmail["a@example.com"] = &models.Subscriber{ID: "s1", Email: "a@example.com", Active: true, UnsubscribeToken: "t1"}
	subs.byEmail["b@example.com"] = &models.Subscriber{ID: "s2", Email: "b@example.com", Active: true, UnsubscribeToken: "t2"}

	sender := &flakySender{failFor: "b@example.com"}
	service := NewNewsletterService(repo, subs, sender, jobs.QueueConfig{
		Workers:    2,
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
	}, "https://example.com", validator.New(), zap.NewNop())
	service.Start(context.Background())
	defer service.Stop()

	issue, err := service.Compose(context.Background(), "staff-1", ComposeNewsletterRequest{Subject: "Update", Body: "Hi"})
	require.NoError(t, err)

	_, err = service.Send(context.Background(), issue.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return repo.snapshot(issue.ID).SentCount == 1
	}, 2*time.Second, 10*time.Millisecond)

	final := repo.snapshot(issue.ID)
	assert.Equal(t, models.NewsletterSending, final.Status, "a failed delivery must not leave the issue marked sent")
	assert.Nil(t, final.SentAt)
}

func TestSendRequiresRunningDelivery(t *testing.T) {
	repo := newNewsletterRepoMock()
	repo.stored["issue-1"] = &models.NewsletterIssue{ID: "issue-1", Status: models.NewsletterDraft}
	subs := newSubscriberRepoMock()
	subs.byEmail["a@example.com"] = &models.Subscriber{ID: "s1", Email: "a@example.com", Active: true}

	service := newTestNewsletterService(repo, subs, &senderRecorder{})

	_, err := service.Send(context.Background(), "issue-1")
	require.Error(t, err)
	assert.Equal(t, "NEWSLETTER_DISABLED", appErrors.FromError(err).Code)
	assert.Equal(t, models.NewsletterDraft, repo.snapshot("issue-1").Status, "issue must stay a draft when delivery is not running")
}

func TestSendRejectsAlreadySentIssue(t *testing.T) {
	repo := newNewsletterRepoMock()
	repo.stored["issue-1"] = &models.NewsletterIssue{ID: "issue-1", Status: models.NewsletterSent}
	subs := newSubscriberRepoMock()
	subs.byEmail["a@example.com"] = &models.Subscriber{ID: "s1", Email: "a@example.com", Active: true}

	service := newTestNewsletterService(repo, subs, &senderRecorder{})
	service.Start(context.Background())
	defer service.Stop()

	_, err := service.Send(context.Background(), "issue-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSendRequiresActiveSubscribers(t *testing.T) {
	repo := newNewsletterRepoMock()
	repo.stored["issue-1"] = &models.NewsletterIssue{ID: "issue-1", Status: models.NewsletterDraft}

	service := newTestNewsletterService(repo, newSubscriberRepoMock(), &senderRecorder{})
	service.Start(context.Background())
	defer service.Stop()

	_, err := service.Send(context.Background(), "issue-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateDraftRejectsSentIssue(t *testing.T) {
	repo := newNewsletterRepoMock()
	repo.stored["issue-1"] = &models.NewsletterIssue{ID: "issue-1", Status: models.NewsletterSending}

	service := newTestNewsletterService(repo, newSubscriberRepoMock(), &senderRecorder{})

	_, err := service.UpdateDraft(context.Background(), "issue-1", ComposeNewsletterRequest{Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
