package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSlidingWindow_IsPerKey(t *testing.T) {
	limiter := NewSlidingWindowRateLimiter(1, time.Second)

	limited, err := limiter.IsLimited("client-a")
	require.NoError(t, err)
	assert.False(t, limited, "first request for client-a should not be limited")

	limited, err = limiter.IsLimited("client-a")
	require.NoError(t, err)
	assert.True(t, limited, "second immediate request for client-a should be limited")

	limited, err = limiter.IsLimited("client-b")
	require.NoError(t, err)
	assert.False(t, limited, "first request for client-b should not be limited (per-key limiter)")
}

func TestSlidingWindow_DeniesQuotaPlusOne(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindowRateLimiter(10, time.Minute, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("203.0.113.7"), "call %d should be allowed", i+1)
		clock.Advance(time.Second)
	}

	assert.False(t, limiter.Allow("203.0.113.7"), "11th call inside the window must be denied")
}

func TestSlidingWindow_RestoresOneSlotWhenOldestAgesOut(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindowRateLimiter(3, time.Minute, WithClock(clock.Now))

	require.True(t, limiter.Allow("ip"))
	clock.Advance(10 * time.Second)
	require.True(t, limiter.Allow("ip"))
	require.True(t, limiter.Allow("ip"))
	require.False(t, limiter.Allow("ip"))

	// Oldest call is now exactly one window old.
	clock.Advance(50 * time.Second)
	assert.True(t, limiter.Allow("ip"), "capacity for one more call once the oldest ages out")
	assert.False(t, limiter.Allow("ip"), "only one slot should have been restored")
}

func TestSlidingWindow_DeniedCallsDoNotExtendTheWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindowRateLimiter(1, time.Minute, WithClock(clock.Now))

	require.True(t, limiter.Allow("ip"))
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		require.False(t, limiter.Allow("ip"))
	}

	clock.Advance(10 * time.Second)
	assert.True(t, limiter.Allow("ip"))
}

func TestSlidingWindow_EmptyIdentifierSharesUnknownBucket(t *testing.T) {
	limiter := NewSlidingWindowRateLimiter(1, time.Minute)

	assert.True(t, limiter.Allow(""))
	assert.False(t, limiter.Allow("unknown"))
}

func TestSlidingWindow_SweepsStaleIdentifiersPastThreshold(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindowRateLimiter(5, time.Minute, WithClock(clock.Now), WithGCThreshold(3))

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow(fmt.Sprintf("old-%d", i)))
	}
	assert.Equal(t, 3, limiter.Len())

	clock.Advance(2 * time.Minute)
	require.True(t, limiter.Allow("fresh"))

	assert.Equal(t, 1, limiter.Len(), "stale identifiers should be evicted once the table passes the threshold")
}

func TestSlidingWindow_NoSweepBelowThreshold(t *testing.T) {
	clock := newFakeClock()
	limiter := NewSlidingWindowRateLimiter(5, time.Minute, WithClock(clock.Now), WithGCThreshold(10))

	require.True(t, limiter.Allow("old"))
	clock.Advance(2 * time.Minute)
	require.True(t, limiter.Allow("fresh"))

	assert.Equal(t, 2, limiter.Len())
}

func TestSlidingWindow_ConcurrentCallersNeverExceedQuota(t *testing.T) {
	limiter := NewSlidingWindowRateLimiter(50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRedisRateLimiter(newTestRedis(t), 2, time.Minute, nil, WithClock(clock.Now))

	limited, err := limiter.IsLimited("198.51.100.1")
	require.NoError(t, err)
	assert.False(t, limited)

	clock.Advance(time.Second)
	limited, err = limiter.IsLimited("198.51.100.1")
	require.NoError(t, err)
	assert.False(t, limited)

	limited, err = limiter.IsLimited("198.51.100.1")
	require.NoError(t, err)
	assert.True(t, limited, "third call inside the window must be limited")

	limited, err = limiter.IsLimited("198.51.100.2")
	require.NoError(t, err)
	assert.False(t, limited, "other identifiers have their own window")

	clock.Advance(time.Minute)
	limited, err = limiter.IsLimited("198.51.100.1")
	require.NoError(t, err)
	assert.False(t, limited, "oldest call aged out")
}

func TestRedisRateLimiter_ReturnsErrorWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	limiter := NewRedisRateLimiter(client, 2, time.Minute, nil)

	_, err := limiter.IsLimited("ip")
	assert.Error(t, err)
}

func TestNewRateLimiter_PicksStrategy(t *testing.T) {
	inMemory := NewRateLimiter(&RateLimitConfig{Requests: 3, Window: time.Minute})
	_, ok := inMemory.(*SlidingWindowRateLimiter)
	assert.True(t, ok)

	distributed := NewRateLimiter(&RateLimitConfig{Requests: 3, Window: time.Minute, Redis: newTestRedis(t)})
	_, ok = distributed.(*RedisRateLimiter)
	assert.True(t, ok)

	requests, window := distributed.GetLimitDetails()
	assert.Equal(t, 3, requests)
	assert.Equal(t, time.Minute, window)
}

func TestRedisRateLimiter_KeyPrefixIsolatesLimiters(t *testing.T) {
	client := newTestRedis(t)
	clock := newFakeClock()

	router := NewRedisRateLimiter(client, 1, time.Minute, nil, WithClock(clock.Now))
	waitlist := NewRedisRateLimiter(client, 1, time.Minute, nil, WithClock(clock.Now), WithKeyPrefix("ratelimit:waitlist:"))

	limited, err := router.IsLimited("203.0.113.9")
	require.NoError(t, err)
	assert.False(t, limited)

	limited, err = waitlist.IsLimited("203.0.113.9")
	require.NoError(t, err)
	assert.False(t, limited, "separate prefixes keep separate windows")

	limited, err = waitlist.IsLimited("203.0.113.9")
	require.NoError(t, err)
	assert.True(t, limited)
}

func TestRedisRateLimiter_PrefixAlwaysApplied(t *testing.T) {
	client := newTestRedis(t)
	clock := newFakeClock()
	limiter := NewRedisRateLimiter(client, 1, time.Minute, nil, WithClock(clock.Now), WithKeyPrefix("ratelimit:waitlist:"))

	limited, err := limiter.IsLimited("203.0.113.9")
	require.NoError(t, err)
	assert.False(t, limited)

	// A caller key that looks pre-prefixed gets its own bucket.
	limited, err = limiter.IsLimited("ratelimit:waitlist:203.0.113.9")
	require.NoError(t, err)
	assert.False(t, limited)

	keys, err := client.Keys(context.Background(), "ratelimit:waitlist:*").Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"ratelimit:waitlist:203.0.113.9",
		"ratelimit:waitlist:ratelimit:waitlist:203.0.113.9",
	}, keys)
}
