package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Atomic sliding window over a sorted set scored in milliseconds.
// Returns 1 when the call is limited.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

	if redis.call('ZCARD', key) >= limit then
		return 1
	end

	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)

	return 0
`)

const redisCallTimeout = 2 * time.Second

// RedisRateLimiter implements sliding window rate limiting for distributed systems
type RedisRateLimiter struct {
	client    *redis.Client
	requests  int
	window    time.Duration
	keyPrefix string
	logger    Logger
	now       Clock
}

func NewRedisRateLimiter(client *redis.Client, requests int, window time.Duration, logger Logger, opts ...Option) *RedisRateLimiter {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	o := buildOptions(opts)

	return &RedisRateLimiter{
		client:    client,
		requests:  requests,
		window:    window,
		keyPrefix: o.keyPrefix,
		logger:    logger,
		now:       o.clock,
	}
}

func (r *RedisRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

func (r *RedisRateLimiter) IsLimited(key string) (bool, error) {
	if key == "" {
		key = unknownKey
	}

	fullKey := r.keyPrefix + key

	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	now := r.now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, randomSuffix())

	result, err := slidingWindowScript.Run(ctx, r.client, []string{fullKey},
		now, r.window.Milliseconds(), r.requests, member,
	).Int64()
	if err != nil {
		if r.logger != nil {
			r.logger.Error("Redis rate limit script execution failed", "key", fullKey, "error", err)
		}
		// Return error instead of silently allowing: limiting is a security control.
		return false, fmt.Errorf("rate limiter Redis error: %w", err)
	}

	return result == 1, nil
}

// The Redis client is owned by the ApplicationConfig and closed there
func (r *RedisRateLimiter) Close() error {
	return nil
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
