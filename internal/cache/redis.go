package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// stylePrefix namespaces resolved style entries in Redis
	stylePrefix = "qr:style:"
	// DefaultTTL bounds how long a resolved style survives without
	// invalidation (1 hour)
	DefaultTTL = time.Hour
)

// StyleCache keeps resolved QR style configs per key so the stats and data
// views do not re-parse and re-merge the stored blob on every request.
// Entries are invalidated on style update and cascade delete.
type StyleCache struct {
	client *redis.Client
}

// NewStyleCache connects to Redis and verifies the connection.
func NewStyleCache(addr, password string, db, poolSize int) (*StyleCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &StyleCache{client: client}, nil
}

// Get retrieves the resolved style for a key. A cache miss returns
// (nil, nil).
func (c *StyleCache) Get(ctx context.Context, key string) (map[string]string, error) {
	val, err := c.client.Get(ctx, stylePrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from Redis: %w", err)
	}
	var resolved map[string]string
	if err := json.Unmarshal([]byte(val), &resolved); err != nil {
		return nil, fmt.Errorf("failed to decode cached style: %w", err)
	}
	return resolved, nil
}

// Set stores the resolved style for a key with the default TTL.
func (c *StyleCache) Set(ctx context.Context, key string, resolved map[string]string) error {
	data, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("failed to encode style: %w", err)
	}
	if err := c.client.Set(ctx, stylePrefix+key, data, DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to set in Redis: %w", err)
	}
	return nil
}

// Delete drops the cached style for a key.
func (c *StyleCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, stylePrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete from Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *StyleCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client, shared with the rate
// limiting middleware.
func (c *StyleCache) Client() *redis.Client {
	return c.client
}
