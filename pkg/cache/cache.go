// Package cache provides the query-result cache used by the execution layer.
//
// Entries carry their stored-at timestamp and TTL so the caller decides what
// freshness means: the default cache mode serves fresh entries only, while
// force-cache may serve a stale entry until one of its tags is invalidated.
package cache

import (
	"context"
	"time"
)

// Entry is one cached query result.
type Entry struct {
	Rows     any
	Count    *int64
	Tags     []string
	StoredAt time.Time
	TTL      time.Duration
}

// Fresh reports whether the entry is within its TTL.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// Store is a cache backend safe for concurrent use. Last-writer-wins on
// identical keys is acceptable.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Set(ctx context.Context, key string, entry *Entry)
	// InvalidateTag drops every entry stored under the given tag.
	InvalidateTag(ctx context.Context, tag string) error
	Purge(ctx context.Context) error
}

// Tag returns the stable cache tag for a resource. Framework adapters use
// these tags to hook host-environment invalidation onto resources.
func Tag(resource string) string {
	return "pgrest:" + resource
}

// Stats reports hit/miss counters for a store that tracks them.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// HitRate returns hits / (hits + misses), or 0 when no lookups happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
