package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stackgate/admind/pkg/config"
	"github.com/stackgate/admind/pkg/observability"
)

// Cache is a Redis-backed TTL cache with an optional in-process L1 layer.
// All values are JSON-serialized strings; invalidation is pattern-based
// so callers can drop whole domains at once.
type Cache struct {
	client  *redis.Client
	l1      *expirable.LRU[string, string]
	metrics *observability.Metrics
}

// New creates a cache from Redis configuration. An L1 size of zero
// disables the in-process layer.
func New(cfg config.RedisConfig, cacheCfg config.CacheConfig, metrics *observability.Metrics) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cacheCfg, metrics), nil
}

// NewWithClient wraps an existing Redis client; used by tests with miniredis.
func NewWithClient(client *redis.Client, cacheCfg config.CacheConfig, metrics *observability.Metrics) *Cache {
	c := &Cache{
		client:  client,
		metrics: metrics,
	}
	if cacheCfg.L1Size > 0 {
		c.l1 = expirable.NewLRU[string, string](cacheCfg.L1Size, nil, cacheCfg.L1TTL)
	}
	return c
}

// Get retrieves a value; the second return reports whether the key was found.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	if c.l1 != nil {
		if val, ok := c.l1.Get(key); ok {
			c.hit("l1")
			return val, true, nil
		}
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.miss("redis")
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}

	c.hit("redis")
	if c.l1 != nil {
		c.l1.Add(key, val)
	}
	return val, true, nil
}

// SetEx stores a value with a TTL.
func (c *Cache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if c.l1 != nil {
		c.l1.Add(key, value)
	}
	return nil
}

// Del removes keys.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.l1 != nil {
		for _, k := range keys {
			c.l1.Remove(k)
		}
	}
	return c.client.Del(ctx, keys...).Err()
}

// MGet retrieves multiple keys; absent keys are omitted from the result.
func (c *Cache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}
	result := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			result[keys[i]] = s
		}
	}
	return result, nil
}

// Keys returns keys matching a glob pattern via SCAN.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return keys, nil
}

// DeletePattern removes all keys matching a glob pattern and returns
// how many were deleted. The L1 layer is purged by prefix.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return 0, fmt.Errorf("failed to delete keys for pattern %s: %w", pattern, err)
		}
	}

	if c.l1 != nil {
		prefix := strings.TrimSuffix(pattern, "*")
		for _, k := range c.l1.Keys() {
			if strings.HasPrefix(k, prefix) {
				c.l1.Remove(k)
			}
		}
	}

	if c.metrics != nil {
		c.metrics.CacheInvalidationsTotal.WithLabelValues("pattern").Inc()
	}
	return len(keys), nil
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(layer).Inc()
	}
}

func (c *Cache) miss(layer string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(layer).Inc()
	}
}
