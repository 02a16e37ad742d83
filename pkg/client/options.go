package client

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/pgrest/pkg/auth"
	"github.com/edgeflare/pgrest/pkg/cache"
	"github.com/edgeflare/pgrest/pkg/ratelimit"
)

// RetryConfig controls how transient failures are retried.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// InitialBackoff seeds the exponential delay between attempts.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// RetryableStatus lists upstream status codes worth retrying.
	RetryableStatus []int
	// RetryableKinds lists transport error kinds worth retrying.
	RetryableKinds []Kind
}

// DefaultRetryConfig retries network and timeout failures plus 429 and
// common 5xx responses, up to 3 attempts with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		RetryableStatus: []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		RetryableKinds:  []Kind{KindNetwork, KindTimeout},
	}
}

func (c RetryConfig) statusRetryable(code int) bool {
	for _, s := range c.RetryableStatus {
		if s == code {
			return true
		}
	}
	return false
}

func (c RetryConfig) kindRetryable(k Kind) bool {
	for _, rk := range c.RetryableKinds {
		if rk == k {
			return true
		}
	}
	return false
}

// PoolConfig tunes the underlying HTTP transport's connection pool.
type PoolConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPool tunes the default transport's connection pool. Ignored when
// WithHTTPClient is also given.
func WithPool(pool PoolConfig) Option {
	return func(c *Client) { c.pool = &pool }
}

// WithLogger sets the zap logger. The default is zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithCache enables result caching through the given store.
func WithCache(store cache.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithCacheTTL sets the default freshness window for cached results.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cacheTTL = ttl }
}

// WithAuth attaches a bearer token provider.
func WithAuth(tokens auth.TokenProvider) Option {
	return func(c *Client) { c.tokens = tokens }
}

// WithRateLimiter gates outgoing requests through the given limiter.
func WithRateLimiter(limiter ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

// WithRetry replaces the default retry policy.
func WithRetry(retry RetryConfig) Option {
	return func(c *Client) { c.retry = retry }
}

// WithTimeout sets the per-attempt request timeout. The default is 5s.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithHeader adds a header to every outgoing request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Add(key, value) }
}

// WithCoalescing deduplicates concurrent identical read requests into one
// in-flight network call. Off by default; callers sharing a coalesced result
// must treat returned rows as read-only.
func WithCoalescing() Option {
	return func(c *Client) { c.coalesce = true }
}

// WithoutMetrics disables Prometheus instrumentation.
func WithoutMetrics() Option {
	return func(c *Client) { c.metricsOn = false }
}

// CacheMode selects how the execution layer consults the cache.
type CacheMode int

const (
	// CacheDefault serves entries within their TTL, refetching otherwise.
	CacheDefault CacheMode = iota
	// ForceCache serves a cached entry regardless of age when present.
	ForceCache
	// NoStore bypasses the cache entirely, reading and writing nothing.
	NoStore
)

type execOptions struct {
	cacheMode  CacheMode
	cacheTTL   time.Duration
	cacheTags  []string
	timeout    time.Duration
	retry      RetryConfig
	exactCount bool
}

// ExecOption overrides execution policy for a single terminal call.
type ExecOption func(*execOptions)

// WithCacheMode selects the cache mode for this execution.
func WithCacheMode(mode CacheMode) ExecOption {
	return func(o *execOptions) { o.cacheMode = mode }
}

// WithForceCache is shorthand for WithCacheMode(ForceCache).
func WithForceCache() ExecOption {
	return func(o *execOptions) { o.cacheMode = ForceCache }
}

// WithNoStore is shorthand for WithCacheMode(NoStore).
func WithNoStore() ExecOption {
	return func(o *execOptions) { o.cacheMode = NoStore }
}

// WithExecCacheTTL overrides the freshness window for this execution.
func WithExecCacheTTL(ttl time.Duration) ExecOption {
	return func(o *execOptions) { o.cacheTTL = ttl }
}

// WithCacheTags stores the result under extra invalidation tags on top of
// the per-resource tag.
func WithCacheTags(tags ...string) ExecOption {
	return func(o *execOptions) { o.cacheTags = append(o.cacheTags, tags...) }
}

// WithExecTimeout overrides the per-attempt timeout for this execution.
func WithExecTimeout(timeout time.Duration) ExecOption {
	return func(o *execOptions) { o.timeout = timeout }
}

// WithExecRetry overrides the retry policy for this execution.
func WithExecRetry(retry RetryConfig) ExecOption {
	return func(o *execOptions) { o.retry = retry }
}

// WithExactCount requests an exact total row count alongside the rows.
func WithExactCount() ExecOption {
	return func(o *execOptions) { o.exactCount = true }
}
