package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/events"
	appErrors "github.com/meridianpsych/practice-api/pkg/errors"
	"github.com/meridianpsych/practice-api/pkg/response"
)

// watchedTables are the change feeds surfaced to dashboard clients.
var watchedTables = []string{"appointments", "messages"}

// FeedHandler streams change events to dashboard clients over SSE so the ops
// dashboard refreshes without polling.
type FeedHandler struct {
	feed   events.Feed
	logger *zap.Logger
}

// NewFeedHandler creates a new handler.
func NewFeedHandler(feed events.Feed, logger *zap.Logger) *FeedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{feed: feed, logger: logger}
}

// Stream godoc
// @Summary Dashboard change stream
// @Description Server-sent events for appointment and message changes
// @Tags Dashboard
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Security BearerAuth
// @Router /staff/dashboard/feed [get]
func (h *FeedHandler) Stream(c *gin.Context) {
	if h.feed == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "change feed is disabled"))
		return
	}

	ctx := c.Request.Context()
	ch := make(chan events.Event, 16)
	var stops []events.Unsubscribe
	for _, table := range watchedTables {
		stop, err := h.feed.Subscribe(ctx, table, func(event events.Event) {
			select {
			case ch <- event:
			default:
				h.logger.Warn("dropping change event for slow stream client", zap.String("table", event.Table))
			}
		})
		if err != nil {
			for _, stop := range stops {
				stop()
			}
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to change feed"))
			return
		}
		stops = append(stops, stop)
	}
	defer func() {
		for _, stop := range stops {
			stop()
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case event := <-ch:
			c.SSEvent("change", event)
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
