package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/menuboard/menuboard/pkg/contextkeys"
	"github.com/menuboard/menuboard/pkg/httputil"
	"github.com/sirupsen/logrus"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         60,
	}
}

// Limiter decides whether one more request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimiter is an in-process token bucket limiter
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	maxTokens := rl.config.RequestsPerWindow + rl.config.BurstSize
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{tokens: maxTokens, lastUpdate: now}
		rl.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastUpdate)
	tokensToAdd := int(elapsed.Seconds() * float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds())
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		if b.tokens > maxTokens {
			b.tokens = maxTokens
		}
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// incrWindowScript starts the window expiry on the first hit only
var incrWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter is a fixed-window limiter shared by all replicas
type RedisRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a Redis-backed limiter
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisRateLimiter {
	if config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "menuboard:ratelimit"
	}
	return &RedisRateLimiter{client: client, config: config, prefix: prefix}
}

// Allow increments the window counter for key
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	n, err := incrWindowScript.Run(ctx, rl.client, []string{redisKey},
		rl.config.WindowDuration.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n <= int64(rl.config.RequestsPerWindow+rl.config.BurstSize), nil
}

// RateLimit limits requests per authenticated caller, or per client IP when
// unauthenticated. Limiter errors fail open.
func RateLimit(limiter Limiter, window time.Duration, log *logrus.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logrus.New()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if caller := contextkeys.GetCaller(r.Context()); caller != nil {
				key = "caller:" + caller.Name
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.WithError(err).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
				httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
