package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultMaxEntries bounds the in-memory store before LRU eviction kicks in.
	DefaultMaxEntries = 1000
	// DefaultTTL applies when an entry is stored without an explicit TTL.
	DefaultTTL = 5 * time.Minute
)

// Memory is a bounded in-process LRU store. Entries past their TTL are kept
// until evicted by capacity so force-cache reads can still serve them.
type Memory struct {
	cache *lru.Cache[string, *Entry]

	mu   sync.Mutex
	tags map[string]map[string]struct{} // tag -> keys

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates a Memory store holding at most maxEntries entries.
// maxEntries < 1 falls back to DefaultMaxEntries.
func NewMemory(maxEntries int) (*Memory, error) {
	if maxEntries < 1 {
		maxEntries = DefaultMaxEntries
	}
	m := &Memory{tags: make(map[string]map[string]struct{})}
	c, err := lru.NewWithEvict(maxEntries, m.onEvict)
	if err != nil {
		return nil, err
	}
	m.cache = c
	return m, nil
}

func (m *Memory) onEvict(key string, entry *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range entry.Tags {
		if keys, ok := m.tags[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tags, tag)
			}
		}
	}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, bool) {
	entry, ok := m.cache.Get(key)
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return entry, true
}

func (m *Memory) Set(_ context.Context, key string, entry *Entry) {
	if entry.TTL <= 0 {
		entry.TTL = DefaultTTL
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	m.mu.Lock()
	for _, tag := range entry.Tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	m.mu.Unlock()

	m.cache.Add(key, entry)
}

func (m *Memory) InvalidateTag(_ context.Context, tag string) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.tags[tag]))
	for key := range m.tags[tag] {
		keys = append(keys, key)
	}
	delete(m.tags, tag)
	m.mu.Unlock()

	for _, key := range keys {
		m.cache.Remove(key)
	}
	return nil
}

func (m *Memory) Purge(_ context.Context) error {
	m.cache.Purge()
	m.mu.Lock()
	m.tags = make(map[string]map[string]struct{})
	m.mu.Unlock()
	return nil
}

// Stats returns lookup counters since creation.
func (m *Memory) Stats() Stats {
	return Stats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Entries: m.cache.Len(),
	}
}
