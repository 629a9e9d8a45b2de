package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/iancossa/attendance-fullstack/internal/logging"
)

// RedisFeed appends events to a capped Redis list shared by all API instances.
type RedisFeed struct {
	client *redis.Client
	key    string
	size   int64
	logger logging.Logger
}

// NewRedisFeed creates a feed capped at size entries under key.
func NewRedisFeed(client *redis.Client, key string, size int64, logger logging.Logger) *RedisFeed {
	if key == "" {
		key = "attendance:notifications"
	}
	if size <= 0 {
		size = 200
	}
	return &RedisFeed{client: client, key: key, size: size, logger: logger}
}

// Notify never fails the caller; write errors are logged.
func (f *RedisFeed) Notify(ctx context.Context, evt Event) {
	data, err := json.Marshal(stamp(evt))
	if err != nil {
		f.logger.Error("notify: encode event", err)
		return
	}
	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, f.key, data)
	pipe.LTrim(ctx, f.key, 0, f.size-1)
	if _, err := pipe.Exec(ctx); err != nil {
		f.logger.Error("notify: push event", err)
	}
}

// Recent returns up to limit events, newest first.
func (f *RedisFeed) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || int64(limit) > f.size {
		limit = int(f.size)
	}
	raw, err := f.client.LRange(ctx, f.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, r := range raw {
		var evt Event
		if err := json.Unmarshal([]byte(r), &evt); err != nil {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}
