// Package ratelimit provides client-side request rate limiting for the
// execution layer, either per-process or shared across instances via Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outgoing requests. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow reports whether one more request may proceed now.
	Allow(ctx context.Context, key string) (bool, error)
}

// Config describes a fixed-window limit.
type Config struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// DefaultConfig allows 100 requests per second.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerWindow: 100,
		WindowDuration:    time.Second,
	}
}

// Window is an in-process fixed-window limiter.
type Window struct {
	config *Config

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewWindow creates an in-process limiter. A nil config uses DefaultConfig.
func NewWindow(config *Config) *Window {
	if config == nil {
		config = DefaultConfig()
	}
	return &Window{
		config:  config,
		windows: make(map[string]*window),
	}
}

func (w *Window) Allow(_ context.Context, key string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	win, ok := w.windows[key]
	if !ok || now.Sub(win.start) >= w.config.WindowDuration {
		w.windows[key] = &window{start: now, count: 1}
		return true, nil
	}

	win.count++
	return win.count <= w.config.RequestsPerWindow, nil
}

// Reset clears the window for a key.
func (w *Window) Reset(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.windows, key)
}
