// Package redis wraps the intake queue: a redis list external writers push
// pending items onto at runtime.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/sentinel/internal/core/domain"
)

const intakeKey = "sentinel:intake"

// Client wraps Redis operations for the intake queue.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration. An empty URL disables the
// intake queue.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// PushItem appends an item to the intake queue.
func (c *Client) PushItem(ctx context.Context, item domain.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if err := c.rdb.LPush(ctx, intakeKey, data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// PopItem blocks up to timeout for the next intake item. found is false when
// the timeout elapsed with an empty queue.
func (c *Client) PopItem(ctx context.Context, timeout time.Duration) (item domain.QueueItem, found bool, err error) {
	res, err := c.rdb.BRPop(ctx, timeout, intakeKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.QueueItem{}, false, nil
	}
	if err != nil {
		return domain.QueueItem{}, false, fmt.Errorf("brpop failed: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return domain.QueueItem{}, false, fmt.Errorf("unexpected brpop reply: %v", res)
	}

	if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
		return domain.QueueItem{}, false, fmt.Errorf("invalid intake item: %w", err)
	}
	return item, true, nil
}

// Depth returns the number of items waiting in the intake queue.
func (c *Client) Depth(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, intakeKey).Result()
}
