package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb, "test")
}

func TestRedisSetAndGet(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	count := int64(25)
	r.Set(ctx, "key1", &Entry{
		Rows:  []map[string]any{{"id": float64(1), "title": "first"}},
		Count: &count,
		Tags:  []string{Tag("articles")},
		TTL:   time.Minute,
	})

	entry, found := r.Get(ctx, "key1")
	require.True(t, found)
	require.NotNil(t, entry.Count)
	assert.Equal(t, int64(25), *entry.Count)
	assert.Equal(t, []map[string]any{{"id": float64(1), "title": "first"}}, entry.Rows)
	assert.True(t, entry.Fresh(time.Now()))

	_, found = r.Get(ctx, "missing")
	assert.False(t, found)
}

func TestRedisStaleEntriesRemainReadable(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	r.Set(ctx, "short", &Entry{Rows: []map[string]any{{"id": float64(1)}}, TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	entry, found := r.Get(ctx, "short")
	require.True(t, found)
	assert.False(t, entry.Fresh(time.Now()))
}

func TestRedisInvalidateTag(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	r.Set(ctx, "a", &Entry{Rows: []map[string]any{}, Tags: []string{Tag("articles")}})
	r.Set(ctx, "u", &Entry{Rows: []map[string]any{}, Tags: []string{Tag("users")}})

	require.NoError(t, r.InvalidateTag(ctx, Tag("articles")))

	_, foundA := r.Get(ctx, "a")
	_, foundU := r.Get(ctx, "u")
	assert.False(t, foundA)
	assert.True(t, foundU)
}

func TestRedisPurge(t *testing.T) {
	r := newRedisStore(t)
	ctx := context.Background()

	r.Set(ctx, "a", &Entry{Rows: []map[string]any{}})
	r.Set(ctx, "b", &Entry{Rows: []map[string]any{}})
	require.NoError(t, r.Purge(ctx))

	_, found := r.Get(ctx, "a")
	assert.False(t, found)
}
