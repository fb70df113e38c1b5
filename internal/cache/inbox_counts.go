// Package cache provides the Redis-backed inbox count cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// InboxCounts caches the per-user inbox count of a workspace. It only
// stores numbers produced by the shared inbox predicate and never decides
// membership itself.
type InboxCounts struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewInboxCounts creates a cache connected to redisURL
func NewInboxCounts(redisURL string, ttl time.Duration) (*InboxCounts, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewInboxCountsWithClient(client, ttl), nil
}

// NewInboxCountsWithClient creates a cache from an existing Redis client
func NewInboxCountsWithClient(client *redis.Client, ttl time.Duration) *InboxCounts {
	return &InboxCounts{
		client: client,
		prefix: "inbox:count:",
		ttl:    ttl,
	}
}

// Enabled reports whether counts are cached at all. A zero TTL disables it.
func (c *InboxCounts) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func (c *InboxCounts) key(workspaceID, userID string) string {
	return c.prefix + workspaceID + ":" + userID
}

// Get returns the cached count; ok is false on a miss.
func (c *InboxCounts) Get(ctx context.Context, workspaceID, userID string) (int, bool, error) {
	if !c.Enabled() {
		return 0, false, nil
	}
	raw, err := c.client.Get(ctx, c.key(workspaceID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get inbox count: %w", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return count, true, nil
}

// Set stores count with the configured TTL
func (c *InboxCounts) Set(ctx context.Context, workspaceID, userID string, count int) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Set(ctx, c.key(workspaceID, userID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("set inbox count: %w", err)
	}
	return nil
}

// InvalidateWorkspace drops every user's count for workspaceID
func (c *InboxCounts) InvalidateWorkspace(ctx context.Context, workspaceID string) error {
	if !c.Enabled() {
		return nil
	}
	pattern := c.prefix + workspaceID + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan inbox counts: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate inbox counts: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *InboxCounts) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *InboxCounts) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
