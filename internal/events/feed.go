package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event describes a change to one row of a watched table.
type Event struct {
	Table      string    `json:"table"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resource_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Actions published on the feed.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Handler consumes a change event.
type Handler func(Event)

// Unsubscribe stops a subscription and releases its resources.
type Unsubscribe func()

// Feed delivers change notifications so dashboard views can refresh without
// polling. Any backend with a publish/subscribe channel can satisfy it.
type Feed interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, table string, handler Handler) (Unsubscribe, error)
}

// RedisFeed implements Feed on top of Redis pub/sub channels, one channel per
// table under a configurable prefix.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisFeed constructs a Redis-backed change feed.
func NewRedisFeed(client *redis.Client, prefix string, logger *zap.Logger) *RedisFeed {
	if prefix == "" {
		prefix = "practice:feed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

func (f *RedisFeed) channel(table string) string {
	return fmt.Sprintf("%s:%s", f.prefix, table)
}

// Publish emits a change event for the given table.
func (f *RedisFeed) Publish(ctx context.Context, event Event) error {
	if f.client == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(event.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

// Subscribe registers a handler for changes to one table. The returned
// Unsubscribe must be called to stop delivery.
func (f *RedisFeed) Subscribe(ctx context.Context, table string, handler Handler) (Unsubscribe, error) {
	if f.client == nil {
		return func() {}, nil
	}
	pubsub := f.client.Subscribe(ctx, f.channel(table))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s feed: %w", table, err)
	}

	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				f.logger.Warn("dropping malformed feed event", zap.String("table", table), zap.Error(err))
				continue
			}
			handler(event)
		}
	}()

	return func() {
		_ = pubsub.Close()
	}, nil
}
