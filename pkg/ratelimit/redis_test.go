package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, cfg *Config) (*RedisWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisWindow(rdb, cfg, ""), mr
}

func TestRedisWindowAllow(t *testing.T) {
	rl, _ := newRedisLimiter(t, &Config{RequestsPerWindow: 2, WindowDuration: time.Minute})
	ctx := context.Background()

	ok, err := rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisWindowRemaining(t *testing.T) {
	rl, _ := newRedisLimiter(t, &Config{RequestsPerWindow: 5, WindowDuration: time.Minute})
	ctx := context.Background()

	remaining, err := rl.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining, "untouched key has the full quota")

	rl.Allow(ctx, "k")
	rl.Allow(ctx, "k")

	remaining, err = rl.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRedisWindowExpiry(t *testing.T) {
	rl, mr := newRedisLimiter(t, &Config{RequestsPerWindow: 1, WindowDuration: time.Second})
	ctx := context.Background()

	ok, _ := rl.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = rl.Allow(ctx, "k")
	assert.False(t, ok)

	mr.FastForward(2 * time.Second)

	ok, _ = rl.Allow(ctx, "k")
	assert.True(t, ok, "counter expires with the window")
}

func TestRedisWindowReset(t *testing.T) {
	rl, _ := newRedisLimiter(t, &Config{RequestsPerWindow: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	rl.Allow(ctx, "k")
	ok, _ := rl.Allow(ctx, "k")
	require.False(t, ok)

	require.NoError(t, rl.Reset(ctx, "k"))

	ok, _ = rl.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestRedisWindowFailsOpen(t *testing.T) {
	rl, mr := newRedisLimiter(t, &Config{RequestsPerWindow: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	mr.Close()

	ok, err := rl.Allow(ctx, "k")
	assert.Error(t, err)
	assert.True(t, ok, "redis outages must not block traffic")
}
