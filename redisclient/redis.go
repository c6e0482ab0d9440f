// Package redisclient builds the shared *redis.Client used by the L2
// backend adapter.
package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cacheforge/semcache/config"
)

// Client wraps a *redis.Client with the cache's connection defaults.
type Client struct {
	Raw *redis.Client
	cfg *config.Config
}

// New creates a Redis client from the provided config. Returns an
// error if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	return &Client{Raw: redis.NewClient(opt), cfg: cfg}, nil
}

// Ping verifies connectivity within the configured redis_timeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RedisTimeout)
	defer cancel()
	return c.Raw.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.Raw.Close()
}
