package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the sustained number of requests allowed per window
	RequestsPerWindow int `env:"REQUESTS" envDefault:"10"`
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration `env:"WINDOW" envDefault:"1m"`
	// BurstSize allows temporary bursts above the rate
	BurstSize int `env:"BURST" envDefault:"5"`
	// MaxKeys bounds the number of tracked clients
	MaxKeys int `env:"MAX_KEYS" envDefault:"10000"`
}

// DefaultRateLimitConfig returns default rate limit settings for credential endpoints
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         5,
		MaxKeys:           10000,
	}
}

// RateLimiter hands out a token bucket per key. Idle buckets are evicted
// after two windows or when MaxKeys is exceeded.
type RateLimiter struct {
	config   RateLimitConfig
	limit    rate.Limit
	limiters *lru.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = defaults.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = defaults.WindowDuration
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = defaults.MaxKeys
	}
	if config.BurstSize < 0 {
		config.BurstSize = 0
	}

	return &RateLimiter{
		config:   config,
		limit:    rate.Limit(float64(config.RequestsPerWindow) / config.WindowDuration.Seconds()),
		limiters: lru.NewLRU[string, *rate.Limiter](config.MaxKeys, nil, 2*config.WindowDuration),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.config.RequestsPerWindow+rl.config.BurstSize)
	rl.limiters.Add(key, l)
	return l
}

// Allow checks if a request is allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Remaining returns the number of requests currently available for a key
func (rl *RateLimiter) Remaining(key string) int {
	l, ok := rl.limiters.Peek(key)
	if !ok {
		return rl.config.RequestsPerWindow + rl.config.BurstSize
	}
	return int(math.Max(0, math.Floor(l.Tokens())))
}

// Handler wraps an HTTP handler with per-client-IP rate limiting
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + getClientIP(r)

		if !rl.Allow(key) {
			rl.rateLimitExceeded(w)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.Remaining(key)))

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) rateLimitExceeded(w http.ResponseWriter) {
	retryAfter := math.Ceil(1 / float64(rl.limit))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded"}`))
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// first hop is the original client
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
