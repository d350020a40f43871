package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 1})
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "caller:ops")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "caller:ops")
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "caller:cron")
	assert.True(t, ok, "keys are independent")

	now = now.Add(30 * time.Second)
	ok, _ = rl.Allow(ctx, "caller:ops")
	assert.True(t, ok, "tokens refill over time")

	now = now.Add(5 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.buckets)
}

func TestNewRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, DefaultRateLimitConfig(), rl.config)
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	rl := NewRedisRateLimiter(client, RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "")

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "caller:ops")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "caller:ops")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("menuboard:ratelimit:caller:ops"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, "caller:ops")
	require.NoError(t, err)
	assert.True(t, ok, "window resets after expiry")

	mr.Close()
	_, err = rl.Allow(ctx, "caller:ops")
	assert.Error(t, err)
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) {
	return false, assert.AnError
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	handler := RateLimit(limiter, time.Hour, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(caller string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/admin/subscriptions/commands", nil)
		if caller != "" {
			r = r.WithContext(contextkeys.WithCaller(r.Context(), &contextkeys.Caller{Name: caller}))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, call("ops").Code)
	w := call("ops")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("cron").Code)
	assert.Equal(t, http.StatusOK, call("").Code)

	t.Run("limiter errors fail open", func(t *testing.T) {
		h := RateLimit(errLimiter{}, time.Minute, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
