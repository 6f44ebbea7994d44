package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "cache:"

// RedisCache stores entries as JSON in Redis. When Redis is unreachable it
// reads and writes the fallback cache instead, so a Redis outage never fails
// a generation.
type RedisCache struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	fallback Cache
}

// NewRedisCacheParams configures a RedisCache. Zero Prefix and TTL select
// DefaultPrefix and DefaultTTL; a nil Fallback selects a MemoryCache.
type NewRedisCacheParams struct {
	Client   redis.UniversalClient
	Prefix   string
	TTL      time.Duration
	Fallback Cache
}

func NewRedisCache(params NewRedisCacheParams) *RedisCache {
	c := &RedisCache{
		client:   params.Client,
		prefix:   params.Prefix,
		ttl:      params.TTL,
		fallback: params.Fallback,
	}
	if c.prefix == "" {
		c.prefix = DefaultPrefix
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.fallback == nil {
		c.fallback = NewMemoryCache(c.ttl, 0)
	}
	return c
}

// Get retrieves an entry from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (Entry, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return c.fallback.Get(ctx, key)
	}
	if err != nil {
		logger.Warn("[Cache] Redis get failed, using fallback", "key", key, "err", err)
		return c.fallback.Get(ctx, key)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, nil
}

// Set stores an entry with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		logger.Warn("[Cache] Redis set failed, using fallback", "key", key, "err", err)
		return c.fallback.Set(ctx, key, entry)
	}
	return nil
}
