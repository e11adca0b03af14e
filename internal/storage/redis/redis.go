// Package redis implements storage interfaces on top of Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config represents Redis client configuration options.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Client wraps redis.Client for dependency injection.
type Client struct {
	*redis.Client
	prefix string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "moonshot-watcher"
	}

	return &Client{Client: rdb, prefix: prefix}, nil
}

// Close closes the client.
func (c *Client) Close() error {
	return c.Client.Close()
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}
