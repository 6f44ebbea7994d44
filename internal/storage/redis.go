package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to REDIS_URL. It returns nil without error when the
// variable is unset, so callers fall back to in-process stores.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	url := util.GetEnv("REDIS_URL")
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
