package ratelimit

import (
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/loppilove/waitlist-api/pkg/constants"
)

type Logger interface {
	Error(msg string, args ...interface{})
}

// Clock returns the current instant. Limiters take one so tests can drive time.
type Clock func() time.Time

// RateLimiter defines the strategy interface for rate limiting
type RateLimiter interface {
	GetLimitDetails() (int, time.Duration)
	IsLimited(key string) (bool, error)
	Close() error
}

// unknownKey is used for callers whose address could not be resolved.
const unknownKey = "unknown"

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Requests    int
	Window      time.Duration
	Redis       *redis.Client // Optional, if nil uses in-memory
	Logger      Logger        // Optional logger for Redis operations
	Clock       Clock         // Optional, defaults to time.Now
	GCThreshold int           // Optional, in-memory only
	KeyPrefix   string        // Optional, Redis only; defaults to "ratelimit:"
}

// NewRateLimiter creates a rate limiter based on configuration
func NewRateLimiter(config *RateLimitConfig) RateLimiter {
	if config.Redis != nil {
		return NewRedisRateLimiter(config.Redis, config.Requests, config.Window, config.Logger,
			WithClock(config.Clock),
			WithKeyPrefix(config.KeyPrefix),
		)
	}
	return NewSlidingWindowRateLimiter(config.Requests, config.Window,
		WithClock(config.Clock),
		WithGCThreshold(config.GCThreshold),
	)
}

type options struct {
	clock       Clock
	gcThreshold int
	keyPrefix   string
}

type Option func(*options)

// WithClock overrides time.Now. A nil clock is ignored.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithGCThreshold sets how many identifiers the in-memory table may hold
// before stale ones are swept. Non-positive values are ignored.
func WithGCThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.gcThreshold = n
		}
	}
}

// WithKeyPrefix namespaces Redis keys so several limiters can share a server.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now, gcThreshold: constants.DefaultRateLimitGCThreshold, keyPrefix: "ratelimit:"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
