package pgrest

import (
	"cmp"
	"fmt"
	"log"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/edgeflare/pgrest/pkg/auth"
	"github.com/edgeflare/pgrest/pkg/cache"
	"github.com/edgeflare/pgrest/pkg/client"
	"github.com/edgeflare/pgrest/pkg/ratelimit"
)

// buildClient assembles a client from the loaded config plus flag and
// environment overrides.
func buildClient() (*client.Client, error) {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}

	baseURL := cmp.Or(
		viper.GetString("url"),
		os.Getenv("PGREST_URL"),
		cfg.BaseURL,
	)
	if baseURL == "" {
		return nil, fmt.Errorf("base URL required (--url flag, PGREST_URL env, or config file)")
	}

	opts := []client.Option{
		client.WithLogger(buildLogger()),
		client.WithRetry(client.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialBackoff:  cfg.Retry.InitialBackoff,
			MaxBackoff:      cfg.Retry.MaxBackoff,
			RetryableStatus: client.DefaultRetryConfig().RetryableStatus,
			RetryableKinds:  client.DefaultRetryConfig().RetryableKinds,
		}),
	}

	if cfg.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.Timeout))
	}

	if cfg.Pool.MaxIdleConns > 0 {
		opts = append(opts, client.WithPool(client.PoolConfig{
			MaxIdleConns:        cfg.Pool.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Pool.MaxIdleConnsPerHost,
			MaxConnsPerHost:     cfg.Pool.MaxConnsPerHost,
			IdleConnTimeout:     cfg.Pool.IdleConnTimeout,
		}))
	}

	if cfg.Cache.Enabled {
		var store cache.Store
		if cfg.Cache.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			store = cache.NewRedis(rdb, "pgrest")
		} else {
			mem, err := cache.NewMemory(cfg.Cache.MaxEntries)
			if err != nil {
				return nil, fmt.Errorf("cache init: %w", err)
			}
			store = mem
		}
		opts = append(opts, client.WithCache(store), client.WithCacheTTL(cfg.Cache.TTL))
	}

	if cfg.RateLimit.Enabled {
		opts = append(opts, client.WithRateLimiter(ratelimit.NewWindow(&ratelimit.Config{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.Window,
		})))
	}

	token := cmp.Or(os.Getenv("PGREST_AUTH_TOKEN"), cfg.Auth.Token)
	if token != "" {
		opts = append(opts, client.WithAuth(auth.Static(token)))
	}

	return client.New(baseURL, opts...)
}

func buildLogger() *zap.Logger {
	if logLevel == "none" {
		return zap.NewNop()
	}

	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
