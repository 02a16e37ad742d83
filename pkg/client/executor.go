package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/edgeflare/pgrest/pkg/cache"
	"github.com/edgeflare/pgrest/pkg/metrics"
)

// executor is the execution layer: it applies cache, rate-limit, retry and
// timeout policy around one HTTP request and normalizes the response.
type executor struct {
	c  *Client
	sf singleflight.Group
}

// fetched is the raw outcome of one network fetch, before the single-row
// contract is applied.
type fetched struct {
	rows  any
	count *int64
}

func (e *executor) run(ctx context.Context, d *descriptor, opts ...ExecOption) *Result {
	o := e.c.execDefaults()
	for _, opt := range opts {
		opt(&o)
	}

	method := d.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	res := e.do(ctx, d, method, &o)
	if e.c.metricsOn {
		outcome := "success"
		if res.Err != nil {
			outcome = res.Err.Kind.String()
		}
		metrics.Requests.WithLabelValues(d.Resource, method, outcome).Inc()
		metrics.RequestDuration.WithLabelValues(d.Resource, method).Observe(time.Since(start).Seconds())
	}
	return res
}

func (e *executor) do(ctx context.Context, d *descriptor, method string, o *execOptions) *Result {
	readOnly := method == http.MethodGet
	cacheable := readOnly && e.c.store != nil && o.cacheMode != NoStore

	var key string
	if cacheable {
		key = d.fingerprint()
		if entry, ok := e.c.store.Get(ctx, key); ok && (o.cacheMode == ForceCache || entry.Fresh(time.Now())) {
			if e.c.metricsOn {
				metrics.CacheHits.WithLabelValues(d.Resource).Inc()
			}
			e.c.logger.Debug("cache hit", zap.String("resource", d.Resource), zap.String("key", key))
			return materialize(d, entry.Rows, entry.Count)
		}
		if e.c.metricsOn {
			metrics.CacheMisses.WithLabelValues(d.Resource).Inc()
		}
	}

	var f *fetched
	var ferr *Error
	if cacheable && e.c.coalesce {
		// coalesced callers share one in-flight fetch and its rows
		v, err, _ := e.sf.Do(key, func() (any, error) {
			got, gerr := e.fetch(ctx, d, method, o)
			if gerr != nil {
				return nil, gerr
			}
			return got, nil
		})
		if err != nil {
			errors.As(err, &ferr)
		} else {
			f = v.(*fetched)
		}
	} else {
		f, ferr = e.fetch(ctx, d, method, o)
	}

	if ferr != nil {
		e.c.logger.Warn("request failed",
			zap.String("resource", d.Resource),
			zap.String("method", method),
			zap.String("kind", ferr.Kind.String()),
			zap.Error(ferr))
		return &Result{Err: ferr}
	}

	if cacheable {
		tags := append([]string{cache.Tag(d.Resource)}, o.cacheTags...)
		e.c.store.Set(ctx, key, &cache.Entry{
			Rows:  f.rows,
			Count: f.count,
			Tags:  tags,
			TTL:   o.cacheTTL,
		})
	} else if !readOnly && !d.RPC && e.c.store != nil {
		// a successful write makes every cached read of this resource stale
		if err := e.c.store.InvalidateTag(ctx, cache.Tag(d.Resource)); err != nil {
			e.c.logger.Warn("cache invalidation failed", zap.String("resource", d.Resource), zap.Error(err))
		}
	}

	return materialize(d, f.rows, f.count)
}

// materialize applies the single-row contract and shapes the final Result.
func materialize(d *descriptor, rows any, count *int64) *Result {
	res := &Result{Count: count}

	list, isList := rows.([]map[string]any)
	if !isList {
		// rpc results may be a bare scalar or object
		res.Data = rows
		return res
	}

	if d.Single {
		switch len(list) {
		case 0:
			res.Err = notFoundErr(d.Resource)
		case 1:
			res.Data = list[0]
		default:
			res.Err = multipleRowsErr(d.Resource, len(list))
		}
		return res
	}

	if list == nil {
		list = []map[string]any{}
	}
	res.Data = list
	return res
}

// fetch waits for the rate limiter, then performs the request with retry.
func (e *executor) fetch(ctx context.Context, d *descriptor, method string, o *execOptions) (*fetched, *Error) {
	if e.c.limiter != nil {
		if ferr := e.waitForLimiter(ctx, d.Resource); ferr != nil {
			return nil, ferr
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retry.InitialBackoff
	b.MaxInterval = o.retry.MaxBackoff
	b.MaxElapsedTime = 0

	var bo backoff.BackOff = b
	if o.retry.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(b, uint64(o.retry.MaxAttempts-1))
	}
	bo = backoff.WithContext(bo, ctx)

	var got *fetched
	attempts := 0
	operation := func() error {
		attempts++
		if attempts > 1 {
			if e.c.metricsOn {
				metrics.Retries.WithLabelValues(d.Resource).Inc()
			}
			e.c.logger.Debug("retrying request", zap.String("resource", d.Resource), zap.Int("attempt", attempts))
		}

		f, aerr := e.attempt(ctx, d, method, o)
		if aerr == nil {
			got = f
			return nil
		}

		retryable := false
		switch aerr.Kind {
		case KindServer:
			retryable = o.retry.statusRetryable(aerr.StatusCode)
		case KindCancelled, KindValidation:
			// caller aborted or misused the builder, retrying cannot help
		default:
			retryable = o.retry.kindRetryable(aerr.Kind)
		}
		if !retryable {
			return backoff.Permanent(aerr)
		}
		return aerr
	}

	if err := backoff.Retry(operation, bo); err != nil {
		var ferr *Error
		if errors.As(err, &ferr) {
			return nil, ferr
		}
		return nil, networkErr(err)
	}
	return got, nil
}

// waitForLimiter blocks until the limiter admits the request or the caller's
// context ends. Limiter errors fail open.
func (e *executor) waitForLimiter(ctx context.Context, resource string) *Error {
	limited := false
	for {
		ok, err := e.c.limiter.Allow(ctx, resource)
		if err != nil || ok {
			return nil
		}
		if !limited {
			limited = true
			if e.c.metricsOn {
				metrics.RateLimited.WithLabelValues(resource).Inc()
			}
			e.c.logger.Debug("rate limited, waiting", zap.String("resource", resource))
		}
		select {
		case <-ctx.Done():
			return classifyCtxErr(ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// attempt performs exactly one HTTP round trip.
func (e *executor) attempt(ctx context.Context, d *descriptor, method string, o *execOptions) (*fetched, *Error) {
	actx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if d.Body != nil {
		payload, err := json.Marshal(d.Body)
		if err != nil {
			return nil, validationErr("cannot marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	u := *e.c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(d.Resource, "/")
	u.RawQuery = d.encode()

	req, err := http.NewRequestWithContext(actx, method, u.String(), reqBody)
	if err != nil {
		return nil, validationErr("cannot build request: %v", err)
	}

	for key, values := range e.c.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer := preferHeader(d, o); prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	if e.c.tokens != nil {
		token, terr := e.c.tokens.Token(actx)
		if terr != nil {
			return nil, networkErr(fmt.Errorf("auth token: %w", terr))
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := e.c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serverErr(resp.StatusCode, upstreamMessage(body))
	}

	f := &fetched{count: parseContentRange(resp.Header.Get("Content-Range"))}
	if len(body) > 0 && string(body) != "null" {
		rows, perr := decodeRows(body)
		if perr != nil {
			return nil, serverErr(resp.StatusCode, fmt.Sprintf("cannot decode response body: %v", perr))
		}
		f.rows = rows
	} else {
		f.rows = []map[string]any{}
	}
	return f, nil
}

// preferHeader assembles RFC 7240 preferences for the request.
func preferHeader(d *descriptor, o *execOptions) string {
	var parts []string
	if d.Count || o.exactCount {
		parts = append(parts, "count=exact")
	}
	if d.Method != "" && d.Method != http.MethodGet && !d.RPC {
		parts = append(parts, "return=representation")
	}
	if d.Upsert {
		parts = append(parts, "resolution=merge-duplicates")
	}
	return strings.Join(parts, ", ")
}

// decodeRows normalizes a JSON response body: arrays become
// []map[string]any, a bare object becomes a one-element collection, and
// anything else (rpc scalars) is kept as-is.
func decodeRows(body []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	switch v := raw.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				// array of scalars, e.g. from an rpc returning setof int
				return raw, nil
			}
			rows = append(rows, row)
		}
		return rows, nil
	case map[string]any:
		return []map[string]any{v}, nil
	default:
		return raw, nil
	}
}

// parseContentRange extracts the total from a "0-9/25" or "*/25" header.
func parseContentRange(header string) *int64 {
	if header == "" {
		return nil
	}
	_, totalPart, found := strings.Cut(header, "/")
	if !found || totalPart == "*" {
		return nil
	}
	total, err := strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return nil
	}
	return &total
}

// upstreamMessage extracts the message field of a PostgREST error body,
// falling back to the raw body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

// classifyTransportErr maps a transport failure onto the error taxonomy.
// Caller cancellation is reported distinctly from deadline expiry.
func classifyTransportErr(ctx context.Context, err error) *Error {
	if ctx.Err() == context.Canceled {
		return cancelledErr(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErr(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutErr(err)
	}
	return networkErr(err)
}

func classifyCtxErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErr(err)
	}
	return cancelledErr(err)
}
