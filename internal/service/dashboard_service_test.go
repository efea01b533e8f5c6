package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

type dashboardApptMock struct {
	calls int
}

func (m *dashboardApptMock) CountByStatus(ctx context.Context) (map[models.AppointmentStatus]int, error) {
	m.calls++
	return map[models.AppointmentStatus]int{
		models.AppointmentPending:   2,
		models.AppointmentConfirmed: 5,
	}, nil
}

func (m *dashboardApptMock) DailyLoad(ctx context.Context, from, to time.Time) ([]models.DailyLoad, error) {
	return []models.DailyLoad{{Date: "2024-01-02", Count: 3}}, nil
}

type dashboardMsgMock struct{}

func (dashboardMsgMock) CountUnread(ctx context.Context) (int, error) { return 4, nil }

type dashboardSubMock struct{}

func (dashboardSubMock) CountActive(ctx context.Context) (int, error) { return 120, nil }

func (dashboardSubMock) MonthlyGrowth(ctx context.Context, months int) ([]models.MonthlyCount, error) {
	return []models.MonthlyCount{{Month: "2024-01", Count: 12}}, nil
}

type dashboardPostMock struct{}

func (dashboardPostMock) CountByPublished(ctx context.Context) (int, int, error) { return 9, 2, nil }

type memoryCache struct {
	values map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func TestSummaryAggregatesAllSources(t *testing.T) {
	service := NewDashboardService(&dashboardApptMock{}, dashboardMsgMock{}, dashboardSubMock{}, dashboardPostMock{}, nil, time.Minute, zap.NewNop())

	summary, err := service.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.AppointmentsByStatus[models.AppointmentConfirmed])
	assert.Equal(t, 4, summary.UnreadMessages)
	assert.Equal(t, 120, summary.ActiveSubscribers)
	assert.Equal(t, 9, summary.PublishedPosts)
	assert.Equal(t, 2, summary.DraftPosts)
	assert.Len(t, summary.UpcomingWeek, 1)
	assert.Len(t, summary.SubscriberGrowth, 1)
	assert.False(t, summary.GeneratedAt.IsZero())
}

func TestSummaryServesFromCacheOnSecondCall(t *testing.T) {
	appts := &dashboardApptMock{}
	cache := newMemoryCache()
	service := NewDashboardService(appts, dashboardMsgMock{}, dashboardSubMock{}, dashboardPostMock{}, cache, time.Minute, zap.NewNop())

	first, err := service.Summary(context.Background())
	require.NoError(t, err)
	second, err := service.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, appts.calls, "second call must not hit the database")
	assert.Equal(t, first.ActiveSubscribers, second.ActiveSubscribers)
}
