package factory

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
)

type Cache interface {
	Ping(ctx context.Context) error
}

type RedisClientProvider interface {
	GetClient() *redis.Client
}

type Logger interface {
	ratelimit.Logger
	Warn(msg string, args ...interface{})
}

// RateLimiterFactory builds limiters that share one backend. When the cache
// exposes a reachable Redis client every limiter is Redis-backed, otherwise
// each gets its own in-memory table.
type RateLimiterFactory struct {
	redis  *redis.Client
	logger Logger
}

func NewRateLimiterFactory(cache Cache, logger Logger) *RateLimiterFactory {
	f := &RateLimiterFactory{logger: logger}

	if cache == nil {
		return f
	}
	provider, ok := cache.(RedisClientProvider)
	if !ok {
		return f
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable for rate limiting, using in-memory limiters", "error", err)
		return f
	}

	f.redis = provider.GetClient()
	return f
}

func (f *RateLimiterFactory) UsesRedis() bool {
	return f.redis != nil
}

// Create returns a limiter allowing requests per window. keyPrefix keeps its
// Redis keys apart from other limiters on the same server.
func (f *RateLimiterFactory) Create(requests int, window time.Duration, keyPrefix string) ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
		Requests:  requests,
		Window:    window,
		Redis:     f.redis,
		Logger:    f.logger,
		KeyPrefix: keyPrefix,
	})
}
