package constants

import "time"

// Router-wide rate limiting, applied per client IP to every route.
const (
	DefaultRateLimitRequests      = 100
	DefaultRateLimitWindowMinutes = 1
	// DefaultRateLimitGCThreshold is the identifier count above which stale
	// in-memory rate limit windows are swept.
	DefaultRateLimitGCThreshold = 1000
)

// Waitlist defaults
const (
	DefaultWaitlistRateLimitRequests = 10
	DefaultWaitlistSource            = "unknown"
	DefaultBrand                     = "loppi-love"
	MaxSourceLength                  = 64
)

func DefaultRateLimitWindow() time.Duration {
	return time.Duration(DefaultRateLimitWindowMinutes) * time.Minute
}
