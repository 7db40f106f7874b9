package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Config configures the Redis alert queue.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops alert payloads from a Redis list.
type Consumer struct {
	client       *redis.Client
	key          string
	blockTimeout time.Duration
}

// NewConsumer creates a Redis consumer for list-based queues.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:       client,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Key returns the list key the consumer reads from.
func (c *Consumer) Key() string {
	return c.key
}

// Ping checks the connection.
func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Pop pops one payload from the list. It returns nil, nil when the block
// timeout elapses with nothing queued.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("pop from %s: %w", c.key, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Push appends payloads to the tail of the list.
func (c *Consumer) Push(ctx context.Context, payloads ...[]byte) error {
	if len(payloads) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(payloads))
	for _, p := range payloads {
		values = append(values, p)
	}
	if err := c.client.RPush(ctx, c.key, values...).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", c.key, err)
	}
	return nil
}

// Len returns the number of queued payloads.
func (c *Consumer) Len(ctx context.Context) (int64, error) {
	return c.client.LLen(ctx, c.key).Result()
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}
