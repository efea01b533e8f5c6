package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type messageRepoMock struct {
	byID map[string]*models.ContactMessage
}

func newMessageRepoMock() *messageRepoMock {
	return &messageRepoMock{byID: make(map[string]*models.ContactMessage)}
}

func (m *messageRepoMock) List(ctx context.Context, filter models.MessageFilter) ([]models.ContactMessage, int, error) {
	var out []models.ContactMessage
	for _, msg := range m.byID {
		if filter.UnreadOnly && msg.Read {
			continue
		}
		out = append(out, *msg)
	}
	return out, len(out), nil
}

func (m *messageRepoMock) FindByID(ctx context.Context, id string) (*models.ContactMessage, error) {
	msg, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *msg
	return &cp, nil
}

func (m *messageRepoMock) Create(ctx context.Context, msg *models.ContactMessage) error {
	if msg.ID == "" {
		msg.ID = "msg-1"
	}
	cp := *msg
	m.byID[msg.ID] = &cp
	return nil
}

func (m *messageRepoMock) MarkRead(ctx context.Context, id string, readAt time.Time) error {
	msg, ok := m.byID[id]
	if !ok {
		return appErrors.ErrNotFound
	}
	msg.Read = true
	msg.ReadAt = &readAt
	return nil
}

func (m *messageRepoMock) Delete(ctx context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

func newMessageServiceForTest(repo *messageRepoMock, feed *feedRecorder, cache *cacheRecorder) *MessageService {
	return NewMessageService(repo, feed, cache, validator.New(), zap.NewNop())
}

func TestSubmitMessageNotifiesDashboard(t *testing.T) {
	repo := newMessageRepoMock()
	feed := &feedRecorder{}
	cache := &cacheRecorder{}
	svc := newMessageServiceForTest(repo, feed, cache)

	msg, err := svc.Submit(context.Background(), SubmitMessageRequest{
		Name:    "J. Doe",
		Email:   "j.doe@example.com",
		Subject: "First session",
		Body:    "Do you have openings next week?",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	require.Len(t, feed.events, 1)
	assert.Equal(t, "messages", feed.events[0].Table)
	require.Len(t, cache.patterns, 1)
	assert.Equal(t, "dashboard:*", cache.patterns[0])
}

func TestSubmitMessageRejectsMissingBody(t *testing.T) {
	svc := newMessageServiceForTest(newMessageRepoMock(), &feedRecorder{}, &cacheRecorder{})

	_, err := svc.Submit(context.Background(), SubmitMessageRequest{
		Name:    "J. Doe",
		Email:   "j.doe@example.com",
		Subject: "First session",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	repo := newMessageRepoMock()
	readAt := time.Now().UTC()
	repo.byID["msg-1"] = &models.ContactMessage{ID: "msg-1", Read: true, ReadAt: &readAt}
	feed := &feedRecorder{}
	svc := newMessageServiceForTest(repo, feed, &cacheRecorder{})

	msg, err := svc.MarkRead(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.True(t, msg.Read)
	assert.Equal(t, readAt, *msg.ReadAt)
	assert.Empty(t, feed.events, "already-read message must not publish an update")
}

func TestMarkReadUnknownMessage(t *testing.T) {
	svc := newMessageServiceForTest(newMessageRepoMock(), &feedRecorder{}, &cacheRecorder{})

	_, err := svc.MarkRead(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeleteMessage(t *testing.T) {
	repo := newMessageRepoMock()
	repo.byID["msg-1"] = &models.ContactMessage{ID: "msg-1"}
	feed := &feedRecorder{}
	svc := newMessageServiceForTest(repo, feed, &cacheRecorder{})

	require.NoError(t, svc.Delete(context.Background(), "msg-1"))
	assert.Empty(t, repo.byID)
	require.Len(t, feed.events, 1)
	assert.Equal(t, "deleted", feed.events[0].Action)
}
