package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/internal/models"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type dispatched struct {
	email  string
	source string
}

type recordingSyncer struct {
	mu    sync.Mutex
	calls []dispatched
}

func (s *recordingSyncer) Dispatch(email, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, dispatched{email: email, source: source})
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.values[key], nil
}

func (c *mapCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

type stubLimiter struct {
	limited bool
	err     error
	keys    []string
}

func (l *stubLimiter) GetLimitDetails() (int, time.Duration) { return 10, time.Minute }

func (l *stubLimiter) Close() error { return nil }

func (l *stubLimiter) IsLimited(key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.limited, l.err
}

type serviceFixture struct {
	repo    *MockWaitlistRepository
	syncer  *recordingSyncer
	cache   *mapCache
	limiter ratelimit.RateLimiter
	metrics *Metrics
	reg     *prometheus.Registry
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	reg := prometheus.NewRegistry()
	return &serviceFixture{
		repo:    NewMockWaitlistRepository(ctrl),
		syncer:  &recordingSyncer{},
		limiter: ratelimit.NewSlidingWindowRateLimiter(10, time.Minute, ratelimit.WithClock(func() time.Time { return fixedNow })),
		metrics: NewMetrics(reg),
		reg:     reg,
	}
}

func (f *serviceFixture) service() WaitlistService {
	cfg := ServiceConfig{
		Limiter: f.limiter,
		Syncer:  f.syncer,
		Metrics: f.metrics,
		Clock:   func() time.Time { return fixedNow },
	}
	if f.cache != nil {
		cfg.Cache = f.cache
	}
	return NewWaitlistService(log.NewDiscardLogger(), f.repo, cfg)
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, label string) float64 {
	t.Helper()

	var m dto.Metric
	require.NoError(t, vec.WithLabelValues(label).Write(&m))
	return m.GetCounter().GetValue()
}

func submit(email, source string) SubmitCommand {
	return SubmitCommand{Email: email, Source: source, ClientIdentifier: "203.0.113.10"}
}

func TestSubmit_NewEmailIsStoredAndSynced(t *testing.T) {
	f := newServiceFixture(t)

	gomock.InOrder(
		f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(false, nil),
		f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, entry *models.WaitlistEntry) (bool, error) {
				assert.Equal(t, "ada@example.com", entry.Email)
				assert.Equal(t, "hero", entry.Source)
				assert.Equal(t, "loppi-love", entry.Brand)
				assert.True(t, entry.Subscribed)
				assert.Equal(t, fixedNow, entry.CreatedAt)
				return true, nil
			}),
	)

	result, err := f.service().Submit(context.Background(), submit("  Ada@Example.COM ", " hero "))
	require.NoError(t, err)

	assert.Equal(t, &SubmitResult{Success: true, Message: MessageWelcome}, result)
	assert.Equal(t, []dispatched{{email: "ada@example.com", source: "hero"}}, f.syncer.calls)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.submissions, outcomeCreated))
}

func TestSubmit_BlankSourceDefaultsToUnknown(t *testing.T) {
	f := newServiceFixture(t)

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(false, nil)
	f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *models.WaitlistEntry) (bool, error) {
			assert.Equal(t, "unknown", entry.Source)
			return true, nil
		})

	_, err := f.service().Submit(context.Background(), submit("ada@example.com", "   "))
	require.NoError(t, err)
}

func TestSubmit_DuplicateVariantsAnswerAlreadyJoined(t *testing.T) {
	for _, email := range []string{"ada@example.com", "ADA@EXAMPLE.COM", "  ada@Example.com\t"} {
		t.Run(email, func(t *testing.T) {
			f := newServiceFixture(t)
			f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(true, nil)

			result, err := f.service().Submit(context.Background(), submit(email, "footer"))
			require.NoError(t, err)

			assert.Equal(t, &SubmitResult{Success: true, Message: MessageAlreadyJoined, AlreadyExists: true}, result)
			assert.Empty(t, f.syncer.calls)
		})
	}
}

func TestSubmit_InvalidEmailNeverTouchesStore(t *testing.T) {
	cases := []string{"", "   ", "plainaddress", "a@b", "@example.com", "user@", "two words@example.com", "a@b@c.com"}

	for _, email := range cases {
		t.Run(fmt.Sprintf("%q", email), func(t *testing.T) {
			f := newServiceFixture(t)

			result, err := f.service().Submit(context.Background(), submit(email, ""))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, apperrors.ErrorTypeInvalidRequest, apperrors.GetErrorType(err))
			assert.Empty(t, f.syncer.calls)
		})
	}
}

func TestSubmit_EleventhCallIsRateLimitedBeforeStore(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service()

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).Return(false, nil).Times(10)
	f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(true, nil).Times(10)

	for i := 0; i < 10; i++ {
		_, err := svc.Submit(context.Background(), submit(fmt.Sprintf("user%d@example.com", i), ""))
		require.NoError(t, err)
	}

	result, err := svc.Submit(context.Background(), submit("late@example.com", ""))
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, apperrors.ErrorTypeRateLimitExceeded, apperrors.GetErrorType(err))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.submissions, outcomeRateLimited))

	// Invalid input is rate limited too; the limit is checked first.
	_, err = svc.Submit(context.Background(), submit("nope", ""))
	assert.Equal(t, apperrors.ErrorTypeRateLimitExceeded, apperrors.GetErrorType(err))
}

func TestSubmit_OtherClientsAreNotLimited(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.service()

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).Return(true, nil).Times(11)

	for i := 0; i < 10; i++ {
		_, err := svc.Submit(context.Background(), submit("ada@example.com", ""))
		require.NoError(t, err)
	}

	_, err := svc.Submit(context.Background(), SubmitCommand{Email: "ada@example.com", ClientIdentifier: "198.51.100.4"})
	assert.NoError(t, err)
}

func TestSubmit_BlankClientSharesUnknownBucket(t *testing.T) {
	f := newServiceFixture(t)
	limiter := &stubLimiter{limited: true}
	f.limiter = limiter

	_, err := f.service().Submit(context.Background(), SubmitCommand{Email: "ada@example.com", ClientIdentifier: "  "})
	require.Error(t, err)
	assert.Equal(t, []string{"unknown"}, limiter.keys)
}

func TestSubmit_LimiterErrorFailsOpen(t *testing.T) {
	f := newServiceFixture(t)
	f.limiter = &stubLimiter{err: errors.New("redis: connection refused")}

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(false, nil)
	f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(true, nil)

	result, err := f.service().Submit(context.Background(), submit("ada@example.com", ""))
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
}

func TestSubmit_LostInsertRaceAnswersAlreadyJoined(t *testing.T) {
	f := newServiceFixture(t)
	f.cache = newMapCache()

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(false, nil)
	f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(false, nil)

	result, err := f.service().Submit(context.Background(), submit("ada@example.com", ""))
	require.NoError(t, err)

	assert.True(t, result.AlreadyExists)
	assert.Equal(t, MessageAlreadyJoined, result.Message)
	assert.Empty(t, f.syncer.calls)
	assert.Equal(t, "1", f.cache.values[duplicateCachePrefix+"ada@example.com"])
}

func TestSubmit_StoreErrorsSurface(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		f := newServiceFixture(t)
		f.repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).
			Return(false, apperrors.NewDatabaseError("unable to look up waitlist entry", errors.New("timeout")))

		result, err := f.service().Submit(context.Background(), submit("ada@example.com", ""))
		require.Error(t, err)
		assert.Nil(t, result)
		assert.Equal(t, 500, apperrors.HTTPStatusCode(err))
	})

	t.Run("insert", func(t *testing.T) {
		f := newServiceFixture(t)
		f.repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).Return(false, nil)
		f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).
			Return(false, apperrors.NewDatabaseError("unable to create waitlist entry", errors.New("disk full")))

		_, err := f.service().Submit(context.Background(), submit("ada@example.com", ""))
		require.Error(t, err)
		assert.Empty(t, f.syncer.calls)
		assert.Equal(t, 1.0, counterValue(t, f.metrics.submissions, outcomeError))
	})
}

func TestSubmit_CacheHitSkipsStore(t *testing.T) {
	f := newServiceFixture(t)
	f.cache = newMapCache()
	f.cache.values[duplicateCachePrefix+"ada@example.com"] = "1"

	result, err := f.service().Submit(context.Background(), submit("ADA@example.com", ""))
	require.NoError(t, err)
	assert.True(t, result.AlreadyExists)
}

func TestSubmit_StoreHitIsCached(t *testing.T) {
	f := newServiceFixture(t)
	f.cache = newMapCache()
	svc := f.service()

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(true, nil).Times(1)

	for i := 0; i < 2; i++ {
		result, err := svc.Submit(context.Background(), submit("ada@example.com", ""))
		require.NoError(t, err)
		assert.True(t, result.AlreadyExists)
	}
	assert.Equal(t, DefaultDuplicateCacheTTL, f.cache.ttls[duplicateCachePrefix+"ada@example.com"])
}

func TestSubmit_CacheFailureFallsBackToStore(t *testing.T) {
	f := newServiceFixture(t)
	f.cache = newMapCache()
	f.cache.err = errors.New("redis down")

	f.repo.EXPECT().ExistsByEmail(gomock.Any(), "ada@example.com").Return(false, nil)
	f.repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(true, nil)

	result, err := f.service().Submit(context.Background(), submit("ada@example.com", ""))
	require.NoError(t, err)
	assert.False(t, result.AlreadyExists)
}

func TestSubmit_WorksWithoutOptionalCollaborators(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := NewMockWaitlistRepository(ctrl)
	repo.EXPECT().ExistsByEmail(gomock.Any(), gomock.Any()).Return(false, nil)
	repo.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(true, nil)

	svc := NewWaitlistService(log.NewDiscardLogger(), repo, ServiceConfig{})
	result, err := svc.Submit(context.Background(), submit("ada@example.com", ""))
	require.NoError(t, err)
	assert.Equal(t, MessageWelcome, result.Message)
}
