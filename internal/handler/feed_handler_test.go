package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meridianpsych/practice-api/internal/events"
)

type fakeFeed struct {
	subscribed   []string
	unsubscribed int
	event        events.Event
}

func (f *fakeFeed) Publish(ctx context.Context, event events.Event) error {
	return nil
}

func (f *fakeFeed) Subscribe(ctx context.Context, table string, handler events.Handler) (events.Unsubscribe, error) {
	f.subscribed = append(f.subscribed, table)
	if table == f.event.Table {
		handler(f.event)
	}
	return func() { f.unsubscribed++ }, nil
}

// streamRecorder ends the stream after the first SSE write by cancelling the
// request context, standing in for a client disconnect.
type streamRecorder struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseRecorder.Write(p)
	r.cancel()
	return n, err
}

func TestFeedStreamDeliversChangeEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	feed := &fakeFeed{event: events.Event{Table: "appointments", Action: events.ActionCreated, ResourceID: "appt-1"}}
	handler := NewFeedHandler(feed, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), cancel: cancel}
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/staff/dashboard/feed", nil).WithContext(ctx)

	handler.Stream(c)

	assert.Equal(t, []string{"appointments", "messages"}, feed.subscribed)
	assert.Equal(t, 2, feed.unsubscribed, "every subscription must be released when the stream ends")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event:change")
	assert.Contains(t, body, "appt-1")
}

func TestFeedStreamDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewFeedHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/staff/dashboard/feed", nil)

	handler.Stream(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
