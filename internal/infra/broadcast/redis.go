package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OneClickTag/tracksync/internal/core/domain"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// RedisBroadcaster publishes progress events on a per-batch pub/sub channel.
type RedisBroadcaster struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisBroadcaster creates a new Redis-backed broadcaster.
func NewRedisBroadcaster(cfg Config, log *slog.Logger) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBroadcaster{rdb: rdb, log: log}, nil
}

// Close closes the Redis connection.
func (b *RedisBroadcaster) Close() error {
	return b.rdb.Close()
}

// Health checks if Redis is reachable.
func (b *RedisBroadcaster) Health(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func channelKey(batchID string) string {
	return fmt.Sprintf("batch:progress:%s", batchID)
}

// Publish serializes the event and publishes it. Failures are logged and
// swallowed; subscribers that miss an event catch up from batch records.
func (b *RedisBroadcaster) Publish(ctx context.Context, event domain.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Warn("failed to marshal progress event",
			"batch_id", event.BatchID, "event_type", event.EventType, "error", err)
		return
	}

	if err := b.rdb.Publish(ctx, channelKey(event.BatchID), payload).Err(); err != nil {
		b.log.Warn("failed to publish progress event",
			"batch_id", event.BatchID, "event_type", event.EventType, "error", err)
	}
}
