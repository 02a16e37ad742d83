package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "web_user",
		"exp":  time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStatic(t *testing.T) {
	token, err := Static("abc123").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
}

func TestRefreshingCachesUntilExpiry(t *testing.T) {
	var calls atomic.Int64
	fresh := signedToken(t, time.Hour)
	r := NewRefreshing(func(_ context.Context) (string, error) {
		calls.Add(1)
		return fresh, nil
	}, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := r.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, fresh, token)
	}
	assert.Equal(t, int64(1), calls.Load(), "unexpired token is served from cache")
}

func TestRefreshingRenewsWithinLeeway(t *testing.T) {
	var calls atomic.Int64
	r := NewRefreshing(func(_ context.Context) (string, error) {
		calls.Add(1)
		// expires in 10s, inside the 30s leeway, so every call refreshes
		return signedToken(t, 10*time.Second), nil
	}, 30*time.Second)
	ctx := context.Background()

	_, err := r.Token(ctx)
	require.NoError(t, err)
	_, err = r.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestRefreshingPropagatesErrors(t *testing.T) {
	boom := errors.New("auth endpoint down")
	r := NewRefreshing(func(_ context.Context) (string, error) {
		return "", boom
	}, 0)

	_, err := r.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestRefreshingRejectsTokenWithoutExp(t *testing.T) {
	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "web_user"})
	signed, err := noExp.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	r := NewRefreshing(func(_ context.Context) (string, error) {
		return signed, nil
	}, 0)

	_, err = r.Token(context.Background())
	assert.ErrorContains(t, err, "exp claim")
}

func TestRefreshingRejectsMalformedToken(t *testing.T) {
	r := NewRefreshing(func(_ context.Context) (string, error) {
		return "not-a-jwt", nil
	}, 0)

	_, err := r.Token(context.Background())
	assert.ErrorContains(t, err, "cannot parse token")
}
