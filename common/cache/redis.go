package cache

import (
	"context"
	"time"

	"github.com/weeeopen/tarallo/common/redis"
)

// RedisCache stores entries in Redis so every replica shares them
type RedisCache struct {
	client    *redis.Client
	namespace string
}

// NewRedisCache creates a cache whose keys all live under namespace
func NewRedisCache(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

func (c *RedisCache) key(k string) string {
	return c.namespace + ":" + k
}

// Get retrieves a value from Redis
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.client.Lookup(ctx, c.key(key))
	if err != nil || !found {
		return nil, false, err
	}
	return []byte(val), true, nil
}

// Set stores a value with TTL
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.SetWithExpiry(ctx, c.key(key), string(value), ttl)
}

// Delete removes a value
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.key(key))
}

// DeletePrefix removes every key under prefix
func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := c.client.DeletePrefix(ctx, c.key(prefix))
	return err
}

// Close is a no-op; the Redis client is owned by bootstrap
func (c *RedisCache) Close() error {
	return nil
}
