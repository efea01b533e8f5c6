package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/models"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
)

const dashboardSummaryKey = "dashboard:summary"

type dashboardAppointmentRepo interface {
	CountByStatus(ctx context.Context) (map[models.AppointmentStatus]int, error)
	DailyLoad(ctx context.Context, from, to time.Time) ([]models.DailyLoad, error)
}

type dashboardMessageRepo interface {
	CountUnread(ctx context.Context) (int, error)
}

type dashboardSubscriberRepo interface {
	CountActive(ctx context.Context) (int, error)
	MonthlyGrowth(ctx context.Context, months int) ([]models.MonthlyCount, error)
}

type dashboardPostRepo interface {
	CountByPublished(ctx context.Context) (published int, drafts int, err error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardService aggregates practice activity into one summary payload,
// cached in Redis so the dashboard can poll cheaply.
type DashboardService struct {
	appointments dashboardAppointmentRepo
	messages     dashboardMessageRepo
	subscribers  dashboardSubscriberRepo
	posts        dashboardPostRepo
	cache        dashboardCache
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewDashboardService constructs the service. A nil cache disables caching.
func NewDashboardService(appointments dashboardAppointmentRepo, messages dashboardMessageRepo, subscribers dashboardSubscriberRepo, posts dashboardPostRepo, cache dashboardCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		appointments: appointments,
		messages:     messages,
		subscribers:  subscribers,
		posts:        posts,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
	}
}

// Summary returns the dashboard aggregates, served from cache when fresh.
func (s *DashboardService) Summary(ctx context.Context) (*models.DashboardSummary, error) {
	if s.cache != nil {
		var cached models.DashboardSummary
		err := s.cache.Get(ctx, dashboardSummaryKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	summary, err := s.build(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardSummaryKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *DashboardService) build(ctx context.Context) (*models.DashboardSummary, error) {
	byStatus, err := s.appointments.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count appointments")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	upcoming, err := s.appointments.DailyLoad(ctx, today, today.AddDate(0, 0, 7))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming week")
	}

	unread, err := s.messages.CountUnread(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread messages")
	}

	activeSubs, err := s.subscribers.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subscribers")
	}

	growth, err := s.subscribers.MonthlyGrowth(ctx, 6)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subscriber growth")
	}

	published, drafts, err := s.posts.CountByPublished(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count posts")
	}

	return &models.DashboardSummary{
		AppointmentsByStatus: byStatus,
		UpcomingWeek:         upcoming,
		UnreadMessages:       unread,
		ActiveSubscribers:    activeSubs,
		SubscriberGrowth:     growth,
		PublishedPosts:       published,
		DraftPosts:           drafts,
		GeneratedAt:          time.Now().UTC(),
	}, nil
}
