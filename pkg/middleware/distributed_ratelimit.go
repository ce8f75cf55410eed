package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter implements the same fixed-window contract as
// RateLimiter on top of Redis, so limits are shared across instances. This
// closes the per-instance gap of the in-memory limiter for horizontally
// scaled deployments.
type DistributedRateLimiter struct {
	redis  *redis.Client
	prefix string
}

// NewDistributedRateLimiter creates a Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Check counts one request against the identifier's window. On Redis errors
// it fails open (allows the request) to avoid turning a cache outage into an
// API outage; the error is returned for logging.
func (rl *DistributedRateLimiter) Check(ctx context.Context, identifier string, maxRequests int, window time.Duration) (Result, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, identifier)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{Allowed: true, Remaining: maxRequests, ResetTime: time.Now().Add(window)}, fmt.Errorf("redis error: %w", err)
	}

	ttl, err := rl.redis.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}
	resetTime := time.Now().Add(ttl)

	count := incr.Val()
	remaining := maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count <= int64(maxRequests), Remaining: remaining, ResetTime: resetTime}, nil
}

// Reset clears the rate limit for an identifier (tests, admin tooling)
func (rl *DistributedRateLimiter) Reset(ctx context.Context, identifier string) error {
	return rl.redis.Del(ctx, fmt.Sprintf("%s:%s", rl.prefix, identifier)).Err()
}

// HealthCheck verifies Redis connectivity
func (rl *DistributedRateLimiter) HealthCheck(ctx context.Context) error {
	return rl.redis.Ping(ctx).Err()
}
