package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checkpoint persists the EventStreams resume point in Redis so the stream
// ingester can reconnect without replaying or dropping revisions (§4.1,
// §9 "at-least-once" design note).
type Checkpoint struct {
	redis *redis.Client
	key   string
}

// NewCheckpoint builds a Checkpoint keyed by streamName.
func NewCheckpoint(client *redis.Client, streamName string) *Checkpoint {
	return &Checkpoint{redis: client, key: fmt.Sprintf("copypatrol:checkpoint:%s", streamName)}
}

// Save records the last successfully processed SSE event id.
func (c *Checkpoint) Save(ctx context.Context, lastEventID string) error {
	return c.redis.Set(ctx, c.key, lastEventID, 30*24*time.Hour).Err()
}

// Load returns the last saved event id, or "" if none has been saved yet.
func (c *Checkpoint) Load(ctx context.Context) (string, error) {
	val, err := c.redis.Get(ctx, c.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	return val, nil
}
