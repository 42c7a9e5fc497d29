package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// OrderRateLimit caps order creation attempts per user per minute. A
// burst of retries with the same idempotency key is harmless, so the
// limit only needs to stop abusive scripted checkout.
func (r *RateLimiter) OrderRateLimit(maxPerMinute int) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		var id string
		if e.Auth != nil {
			id = fmt.Sprintf("user:%s", e.Auth.Id)
		} else {
			id = e.RealIP()
		}
		key := fmt.Sprintf("ratelimit:orders:%s", id)

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, time.Minute)
			}
			if count > int64(maxPerMinute) {
				return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
			}
		}

		return e.Next()
	}
}

// AntiBotMiddleware rejects obviously scripted clients and throttles
// anonymous request bursts per IP.
func (r *RateLimiter) AntiBotMiddleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		userAgent := e.Request.Header.Get("User-Agent")
		if r.isSuspiciousUserAgent(userAgent) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		ip := e.RealIP()
		key := fmt.Sprintf("antibot:%s", ip)

		ctx := e.Request.Context()
		count, err := r.redis.Incr(ctx, key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(ctx, key, time.Minute)
			}
			if count > 120 {
				return apis.NewTooManyRequestsError("Too many requests", nil)
			}
		}

		return e.Next()
	}
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
