package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter is a per-client fixed window counter kept in Redis. A limiter
// without Redis, or with a zero limit, allows everything.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit, window: window}
}

// Enabled reports whether requests are actually counted
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.redis != nil && rl.limit > 0
}

// Allow counts one request for key and reports whether it is within the
// limit. Redis failures let the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if !rl.Enabled() {
		return true
	}

	k := rateLimitKeyPrefix + key
	count, err := rl.redis.Incr(ctx, k).Result()
	if err != nil {
		log.Printf("⚠️ Rate limiter unavailable: %v", err)
		return true
	}
	if count == 1 {
		// first hit opens the window
		if err := rl.redis.Expire(ctx, k, rl.window).Err(); err != nil {
			log.Printf("⚠️ Failed to set rate limit window: %v", err)
		}
	}
	return count <= int64(rl.limit)
}

// clientKey identifies the caller, preferring the first forwarded address
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
