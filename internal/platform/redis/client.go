// Package redis wires the optional cache backend. The ledger runs fine
// without it; an empty URL disables caching entirely.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"braza/internal/platform/config"
)

// Client wraps go-redis with a health probe for the readiness endpoint.
type Client struct {
	*redis.Client
}

// New dials Redis from the configured URL. An empty URL returns (nil, nil)
// and the callers fall back to uncached reads.
func New(url string, cfg config.RedisConfig) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
