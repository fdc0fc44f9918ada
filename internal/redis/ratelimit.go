package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/bookloop/messaging-service/internal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter shared by every instance.
type RateLimiter struct {
	Redis  *redis.Client
	Prefix string
	Limit  int // requests
	Window time.Duration
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Redis: r, Prefix: prefix + ":ratelimit", Limit: limit, Window: window}
}

func (r *RateLimiter) key(k string) string {
	return fmt.Sprintf("%s:%s", r.Prefix, k)
}

// Allow counts one hit against k and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, k string) (bool, error) {
	redisKey := r.key(k)
	count, err := r.Redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.Redis.Expire(ctx, redisKey, r.Window)
	}
	return count <= int64(r.Limit), nil
}

func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, err := r.Allow(c.UserContext(), keyFunc(c))
		if err != nil {
			return utils.JSONError(c, fiber.StatusServiceUnavailable, "rate limiter unavailable")
		}
		if !ok {
			return utils.JSONError(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
