package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisWindow is a fixed-window limiter backed by Redis, so the limit is
// shared across every client instance pointing at the same server.
type RedisWindow struct {
	rdb    *redis.Client
	config *Config
	prefix string
}

// NewRedisWindow creates a Redis-backed limiter. A nil config uses
// DefaultConfig; an empty prefix defaults to "pgrest:ratelimit".
func NewRedisWindow(rdb *redis.Client, config *Config, prefix string) *RedisWindow {
	if config == nil {
		config = DefaultConfig()
	}
	if prefix == "" {
		prefix = "pgrest:ratelimit"
	}
	return &RedisWindow{rdb: rdb, config: config, prefix: prefix}
}

// Allow increments the window counter atomically. On Redis errors it fails
// open so a cache outage never blocks traffic.
func (rl *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.rdb.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining returns the unused quota in the current window.
func (rl *RedisWindow) Remaining(ctx context.Context, key string) (int, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	count, err := rl.rdb.Get(ctx, redisKey).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the window for a key.
func (rl *RedisWindow) Reset(ctx context.Context, key string) error {
	return rl.rdb.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, key)).Err()
}
