package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindowRateLimiter keeps, per identifier, the instants of the calls it
// admitted during the trailing window. A call is admitted while fewer than
// requests instants remain in the window.
type SlidingWindowRateLimiter struct {
	requests    int
	window      time.Duration
	gcThreshold int
	now         Clock

	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewSlidingWindowRateLimiter(requests int, window time.Duration, opts ...Option) *SlidingWindowRateLimiter {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	o := buildOptions(opts)

	return &SlidingWindowRateLimiter{
		requests:    requests,
		window:      window,
		gcThreshold: o.gcThreshold,
		now:         o.clock,
		windows:     make(map[string][]time.Time),
	}
}

// Allow reports whether identifier may make another call now, recording the
// call when it may. Denied calls leave the stored window untouched.
func (r *SlidingWindowRateLimiter) Allow(identifier string) bool {
	if identifier == "" {
		identifier = unknownKey
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	timestamps := r.windows[identifier]
	first := r.firstFresh(timestamps, now)

	if len(timestamps)-first >= r.requests {
		return false
	}

	// Compact in place: the stale prefix is dropped and now appended.
	kept := append(timestamps[:0], timestamps[first:]...)
	r.windows[identifier] = append(kept, now)

	if len(r.windows) > r.gcThreshold {
		r.sweep(now)
	}

	return true
}

func (r *SlidingWindowRateLimiter) IsLimited(key string) (bool, error) {
	return !r.Allow(key), nil
}

func (r *SlidingWindowRateLimiter) GetLimitDetails() (int, time.Duration) {
	return r.requests, r.window
}

func (r *SlidingWindowRateLimiter) Close() error {
	return nil
}

// Len returns the number of identifiers currently tracked.
func (r *SlidingWindowRateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// firstFresh returns the index of the first timestamp still inside the window.
// Timestamps are appended in call order, so everything before it is stale.
func (r *SlidingWindowRateLimiter) firstFresh(timestamps []time.Time, now time.Time) int {
	for i, ts := range timestamps {
		if now.Sub(ts) < r.window {
			return i
		}
	}
	return len(timestamps)
}

// sweep drops identifiers whose newest call has aged out. Caller holds mu.
func (r *SlidingWindowRateLimiter) sweep(now time.Time) {
	for key, timestamps := range r.windows {
		if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) >= r.window {
			delete(r.windows, key)
		}
	}
}
