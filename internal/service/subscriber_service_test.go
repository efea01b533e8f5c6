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

type subscriberRepoMock struct {
	byEmail map[string]*models.Subscriber
}

func newSubscriberRepoMock() *subscriberRepoMock {
	return &subscriberRepoMock{byEmail: make(map[string]*models.Subscriber)}
}

func (m *subscriberRepoMock) List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, int, error) {
	var out []models.Subscriber
	for _, sub := range m.byEmail {
		if filter.ActiveOnly && !sub.Active {
			continue
		}
		out = append(out, *sub)
	}
	return out, len(out), nil
}

func (m *subscriberRepoMock) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	var out []models.Subscriber
	for _, sub := range m.byEmail {
		if sub.Active {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *subscriberRepoMock) FindByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	sub, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *sub
	return &cp, nil
}

func (m *subscriberRepoMock) FindByToken(ctx context.Context, token string) (*models.Subscriber, error) {
	for _, sub := range m.byEmail {
		if sub.UnsubscribeToken == token {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *subscriberRepoMock) Create(ctx context.Context, sub *models.Subscriber) error {
	if sub.ID == "" {
		sub.ID = "sub-" + sub.Email
	}
	cp := *sub
	m.byEmail[sub.Email] = &cp
	return nil
}

func (m *subscriberRepoMock) Reactivate(ctx context.Context, id string) error {
	for _, sub := range m.byEmail {
		if sub.ID == id {
			sub.Active = true
			sub.UnsubscribedAt = nil
			return nil
		}
	}
	return appErrors.ErrNotFound
}

func (m *subscriberRepoMock) Deactivate(ctx context.Context, id string, at time.Time) error {
	for _, sub := range m.byEmail {
		if sub.ID == id {
			sub.Active = false
			sub.UnsubscribedAt = &at
			return nil
		}
	}
	return appErrors.ErrNotFound
}

func TestSubscribeCreatesActiveSubscriberWithToken(t *testing.T) {
	repo := newSubscriberRepoMock()
	service := NewSubscriberService(repo, validator.New(), zap.NewNop())

	sub, err := service.Subscribe(context.Background(), SubscribeRequest{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)

	assert.True(t, sub.Active)
	assert.NotEmpty(t, sub.UnsubscribeToken)
}

func TestSubscribeExistingActiveIsNoOp(t *testing.T) {
	repo := newSubscriberRepoMock()
	repo.byEmail["a@example.com"] = &models.Subscriber{ID: "sub-1", Email: "a@example.com", Active: true, UnsubscribeToken: "tok"}
	service := NewSubscriberService(repo, validator.New(), zap.NewNop())

	sub, err := service.Subscribe(context.Background(), SubscribeRequest{Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Len(t, repo.byEmail, 1)
}

func TestSubscribeReactivatesLapsedAddress(t *testing.T) {
	repo := newSubscriberRepoMock()
	past := time.Now().UTC()
	repo.byEmail["a@example.com"] = &models.Subscriber{ID: "sub-1", Email: "a@example.com", Active: false, UnsubscribedAt: &past, UnsubscribeToken: "tok"}
	service := NewSubscriberService(repo, validator.New(), zap.NewNop())

	sub, err := service.Subscribe(context.Background(), SubscribeRequest{Email: "a@example.com"})
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Nil(t, sub.UnsubscribedAt)
	assert.True(t, repo.byEmail["a@example.com"].Active)
}

func TestUnsubscribeByToken(t *testing.T) {
	repo := newSubscriberRepoMock()
	repo.byEmail["a@example.com"] = &models.Subscriber{ID: "sub-1", Email: "a@example.com", Active: true, UnsubscribeToken: "tok"}
	service := NewSubscriberService(repo, validator.New(), zap.NewNop())

	require.NoError(t, service.Unsubscribe(context.Background(), "tok"))
	assert.False(t, repo.byEmail["a@example.com"].Active)
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	service := NewSubscriberService(newSubscriberRepoMock(), validator.New(), zap.NewNop())

	err := service.Unsubscribe(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubscribeRejectsInvalidEmail(t *testing.T) {
	service := NewSubscriberService(newSubscriberRepoMock(), validator.New(), zap.NewNop())

	_, err := service.Subscribe(context.Background(), SubscribeRequest{Email: "not-an-email"})
	require.Error(t, err)
}
