package metrics

import (
	"cmp"
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgrest_requests_total",
			Help: "Total number of executed requests by resource, method and outcome",
		},
		[]string{"resource", "method", "outcome"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgrest_request_duration_seconds",
			Help:    "Duration of request execution including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource", "method"},
	)

	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgrest_retries_total",
			Help: "Total number of retry attempts by resource",
		},
		[]string{"resource"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgrest_cache_hits_total",
			Help: "Total number of cache hits by resource",
		},
		[]string{"resource"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgrest_cache_misses_total",
			Help: "Total number of cache misses by resource",
		},
		[]string{"resource"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgrest_rate_limited_total",
			Help: "Total number of requests rejected by the client-side rate limiter",
		},
		[]string{"resource"},
	)
)

// PromServerOpts configures the metrics scrape endpoint. Zero-value fields
// use the defaults noted per field.
type PromServerOpts struct {
	Addr              string        // defaults to ":9100"
	Path              string        // defaults to "/metrics"
	ShutdownTimeout   time.Duration // defaults to 5 seconds
	ReadHeaderTimeout time.Duration // defaults to 3 seconds
}

// StartPrometheusServer serves the scrape endpoint until ctx is cancelled,
// then shuts it down gracefully. The serving goroutine is tracked on wg so
// callers can wait for the shutdown to complete.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	o := PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
	if opts != nil {
		o.Addr = cmp.Or(opts.Addr, o.Addr)
		o.Path = cmp.Or(opts.Path, o.Path)
		o.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, o.ShutdownTimeout)
		o.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, o.ReadHeaderTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle(o.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              o.Addr,
		Handler:           mux,
		ReadHeaderTimeout: o.ReadHeaderTimeout,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Starting Prometheus metrics server on %s", o.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down metrics server: %v", err)
		}
	}()
}
