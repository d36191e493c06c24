package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Client wraps redis.Client for dependency injection.
type Client struct {
	*redis.Client
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return &Client{Client: rdb}, nil
}

// Close closes the client.
func (c *Client) Close() error {
	return c.Client.Close()
}
