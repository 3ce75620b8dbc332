package security

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis-backed fixed-window limiter for the public
// webhook listener. Limits are per provider endpoint per source IP.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: limit, window: window}
}

// WebhookRateLimit caps notification bursts so a misbehaving provider (or
// a replay flood) cannot starve the reconciler.
func (r *RateLimiter) WebhookRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("ratelimit:webhook:%s:%s", c.PathParam("provider"), c.RealIP())
			ctx := c.Request().Context()

			count, err := r.redis.Incr(ctx, key).Result()
			if err != nil {
				// Redis down must not block provider notifications.
				return next(c)
			}
			if count == 1 {
				r.redis.Expire(ctx, key, r.window)
			}
			if count > r.limit {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests",
				})
			}

			return next(c)
		}
	}
}
