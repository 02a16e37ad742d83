// Package auth supplies bearer tokens to the execution layer.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider returns the bearer token to attach to a request, or an empty
// string for anonymous access.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

func (s Static) Token(_ context.Context) (string, error) { return string(s), nil }

// RefreshFunc obtains a fresh token, typically from an auth endpoint.
type RefreshFunc func(ctx context.Context) (string, error)

// Refreshing caches a JWT and refreshes it through a callback shortly before
// its exp claim passes. The token signature is not verified here; the server
// does that. Only the expiry is read.
type Refreshing struct {
	refresh RefreshFunc
	leeway  time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewRefreshing creates a provider that refreshes via fn when the cached
// token is within leeway of expiring. leeway <= 0 defaults to 30s.
func NewRefreshing(fn RefreshFunc, leeway time.Duration) *Refreshing {
	if leeway <= 0 {
		leeway = 30 * time.Second
	}
	return &Refreshing{refresh: fn, leeway: leeway}
}

func (r *Refreshing) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Add(r.leeway).Before(r.expiresAt) {
		return r.token, nil
	}

	token, err := r.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	expiresAt, err := tokenExpiry(token)
	if err != nil {
		return "", err
	}

	r.token = token
	r.expiresAt = expiresAt
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("cannot parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("token has no usable exp claim")
	}
	return exp.Time, nil
}
