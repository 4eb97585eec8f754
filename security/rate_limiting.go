package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis backed fixed-window limiter. One counter per
// caller per window; the first hit sets the window expiry.
type RateLimiter struct {
	redis    *redis.Client
	window   time.Duration
	requests int
}

func NewRateLimiter(redisClient *redis.Client, window time.Duration, requests int) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		window:   window,
		requests: requests,
	}
}

// Middleware limits by user id for authenticated requests, client IP
// otherwise. Redis failures let the request through.
func (r *RateLimiter) Middleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		caller := e.RealIP()
		if e.Auth != nil {
			caller = fmt.Sprintf("user:%s", e.Auth.Id)
		}

		key := fmt.Sprintf("ratelimit:%s", caller)
		ctx := e.Request.Context()

		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, r.window)
			}
			if count > int64(r.requests) {
				return apis.NewApiError(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			}
		}

		return e.Next()
	}
}

// AntiBotMiddleware rejects requests from obvious scraper user agents and
// throttles bursty IPs harder than the general limiter.
func (r *RateLimiter) AntiBotMiddleware() func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		key := fmt.Sprintf("antibot:%s", e.RealIP())
		ctx := e.Request.Context()

		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, time.Minute)
			}
			if count > 30 {
				return apis.NewApiError(http.StatusTooManyRequests, "Too many requests", nil)
			}
		}

		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
