package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/token_bucket.lua
var tokenBucketScript string

// Client is a Redis-backed token-bucket rate limiter. It is a degraded-mode
// collaborator: callers fail open when it errors, it is never
// correctness-critical.
type Client struct {
	rdb        *redis.Client
	bucket     *redis.Script
	capacity   int
	refillRate float64
}

// NewClient creates a new Redis client with the rate-limit script loaded
func NewClient(addr, password string, db, capacity int, refillRate float64) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:        rdb,
		bucket:     redis.NewScript(tokenBucketScript),
		capacity:   capacity,
		refillRate: refillRate,
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Allow takes one token from the bucket for key. Returns false when the
// bucket is empty.
func (c *Client) Allow(ctx context.Context, key string) (bool, error) {
	bucketKey := fmt.Sprintf("ratelimit:%s", key)
	now := time.Now().UnixMilli()

	result, err := c.bucket.Run(ctx, c.rdb, []string{bucketKey},
		c.capacity, c.refillRate, now).Result()
	if err != nil {
		return false, fmt.Errorf("token bucket script failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type %T", result)
	}
	return allowed == 1, nil
}
