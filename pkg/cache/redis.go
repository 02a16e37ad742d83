package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRetention bounds how long a Redis entry outlives its TTL so that
// force-cache reads can still serve it stale.
const DefaultRetention = 24 * time.Hour

// Redis is a shared store backed by a Redis server, for deployments where
// multiple client instances should see the same cached results.
type Redis struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

// redisEnvelope is the stored representation; freshness is recomputed from
// StoredAt on read rather than delegated to Redis key expiry.
type redisEnvelope struct {
	Rows     json.RawMessage `json:"rows"`
	Count    *int64          `json:"count,omitempty"`
	Tags     []string        `json:"tags,omitempty"`
	StoredAt time.Time       `json:"storedAt"`
	TTLMs    int64           `json:"ttlMs"`
}

// NewRedis creates a Redis store. An empty prefix defaults to "pgrest".
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "pgrest"
	}
	return &Redis{rdb: rdb, prefix: prefix, retention: DefaultRetention}
}

func (r *Redis) key(k string) string    { return r.prefix + ":entry:" + k }
func (r *Redis) tagKey(t string) string { return r.prefix + ":tag:" + t }

func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}

	var rows any
	if len(env.Rows) > 0 {
		if err := json.Unmarshal(env.Rows, &rows); err != nil {
			return nil, false
		}
	}
	// JSON round-tripping loses the concrete row slice type
	if list, ok := rows.([]any); ok {
		typed := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if row, ok := item.(map[string]any); ok {
				typed = append(typed, row)
			}
		}
		rows = typed
	}

	return &Entry{
		Rows:     rows,
		Count:    env.Count,
		Tags:     env.Tags,
		StoredAt: env.StoredAt,
		TTL:      time.Duration(env.TTLMs) * time.Millisecond,
	}, true
}

func (r *Redis) Set(ctx context.Context, key string, entry *Entry) {
	if entry.TTL <= 0 {
		entry.TTL = DefaultTTL
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	rows, err := json.Marshal(entry.Rows)
	if err != nil {
		return
	}
	raw, err := json.Marshal(redisEnvelope{
		Rows:     rows,
		Count:    entry.Count,
		Tags:     entry.Tags,
		StoredAt: entry.StoredAt,
		TTLMs:    entry.TTL.Milliseconds(),
	})
	if err != nil {
		return
	}

	retention := r.retention
	if entry.TTL > retention {
		retention = entry.TTL
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, r.key(key), raw, retention)
	for _, tag := range entry.Tags {
		pipe.SAdd(ctx, r.tagKey(tag), key)
		pipe.Expire(ctx, r.tagKey(tag), retention)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *Redis) InvalidateTag(ctx context.Context, tag string) error {
	keys, err := r.rdb.SMembers(ctx, r.tagKey(tag)).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, r.key(key))
	}
	pipe.Del(ctx, r.tagKey(tag))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Purge(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}
