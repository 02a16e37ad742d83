// Package client is a Go client for PostgREST-compatible REST APIs.
//
// A Client hands out fluent query builders scoped to a resource. Builder
// calls accumulate a declarative request description; nothing touches the
// network until a terminal operation (Execute, ExecuteWithPagination, Count,
// Insert, Update, Upsert, Delete) runs it through the execution layer, which
// applies caching, rate-limit, retry and timeout policy.
//
//	c, err := client.New("https://api.example.com",
//		client.WithCache(store),
//		client.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := c.From("articles").
//		Select("id", "title").
//		Eq("status", "published").
//		Order("created_at", &client.OrderOpts{Ascending: false}).
//		Limit(10).
//		Execute(ctx)
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/pgrest/pkg/auth"
	"github.com/edgeflare/pgrest/pkg/cache"
	"github.com/edgeflare/pgrest/pkg/ratelimit"
)

// DefaultTimeout is the per-attempt request timeout when none is configured.
const DefaultTimeout = 5 * time.Second

// Client talks to one PostgREST-compatible endpoint.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	pool       *PoolConfig
	headers    http.Header
	logger     *zap.Logger
	store      cache.Store
	cacheTTL   time.Duration
	tokens     auth.TokenProvider
	limiter    ratelimit.Limiter
	retry      RetryConfig
	timeout    time.Duration
	coalesce   bool
	metricsOn  bool

	exec *executor
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, validationErr("base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, validationErr("invalid base URL %q: %v", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, validationErr("base URL must use http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:   u,
		headers:   make(http.Header),
		logger:    zap.NewNop(),
		cacheTTL:  cache.DefaultTTL,
		retry:     DefaultRetryConfig(),
		timeout:   DefaultTimeout,
		metricsOn: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		pool := DefaultPoolConfig()
		if c.pool != nil {
			pool = *c.pool
		}
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        pool.MaxIdleConns,
				MaxIdleConnsPerHost: pool.MaxIdleConnsPerHost,
				MaxConnsPerHost:     pool.MaxConnsPerHost,
				IdleConnTimeout:     pool.IdleConnTimeout,
			},
		}
	}

	c.exec = &executor{c: c}
	return c, nil
}

// From returns a query builder scoped to a table or view.
func (c *Client) From(resource string) *QueryBuilder {
	return &QueryBuilder{
		c:    c,
		desc: descriptor{Resource: resource},
	}
}

// Rpc returns a builder for a stored procedure call. args may be nil for
// zero-argument functions. The builder supports the same terminal
// operations; filters and ordering apply to set-returning functions.
func (c *Client) Rpc(name string, args any) *QueryBuilder {
	return &QueryBuilder{
		c: c,
		desc: descriptor{
			Resource: "rpc/" + name,
			Method:   http.MethodPost,
			Body:     args,
			RPC:      true,
		},
	}
}

// InvalidateResource drops every cached result for a resource. This is the
// hook framework adapters call from their host invalidation mechanism.
func (c *Client) InvalidateResource(ctx context.Context, resource string) error {
	if c.store == nil {
		return nil
	}
	return c.store.InvalidateTag(ctx, cache.Tag(resource))
}

// Cache exposes the configured store, or nil when caching is disabled.
func (c *Client) Cache() cache.Store { return c.store }

func (c *Client) execDefaults() execOptions {
	return execOptions{
		cacheTTL: c.cacheTTL,
		timeout:  c.timeout,
		retry:    c.retry,
	}
}
