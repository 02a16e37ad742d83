package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAllow(t *testing.T) {
	w := NewWindow(&Config{RequestsPerWindow: 3, WindowDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := w.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}

	ok, err := w.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "fourth request must be rejected")
}

func TestWindowKeysAreIndependent(t *testing.T) {
	w := NewWindow(&Config{RequestsPerWindow: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	ok, _ := w.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = w.Allow(ctx, "a")
	assert.False(t, ok)

	ok, _ = w.Allow(ctx, "b")
	assert.True(t, ok, "a separate key has its own window")
}

func TestWindowExpiry(t *testing.T) {
	w := NewWindow(&Config{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond})
	ctx := context.Background()

	ok, _ := w.Allow(ctx, "k")
	assert.True(t, ok)
	ok, _ = w.Allow(ctx, "k")
	assert.False(t, ok)

	time.Sleep(15 * time.Millisecond)

	ok, _ = w.Allow(ctx, "k")
	assert.True(t, ok, "a new window opens after the duration passes")
}

func TestWindowReset(t *testing.T) {
	w := NewWindow(&Config{RequestsPerWindow: 1, WindowDuration: time.Minute})
	ctx := context.Background()

	w.Allow(ctx, "k")
	ok, _ := w.Allow(ctx, "k")
	require.False(t, ok)

	w.Reset("k")

	ok, _ = w.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestWindowConcurrency(t *testing.T) {
	limit := 50
	w := NewWindow(&Config{RequestsPerWindow: limit, WindowDuration: time.Minute})
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Allow(ctx, "shared"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.RequestsPerWindow)
	assert.Equal(t, time.Second, cfg.WindowDuration)
}
