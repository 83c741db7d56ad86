package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/loppilove/waitlist-api/config/router"
	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/factory"
	"github.com/loppilove/waitlist-api/pkg/marketing"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const limiterKeyPrefix = "ratelimit:waitlist:"

type WaitlistServiceFactory interface {
	CreateRepository() (WaitlistRepository, error)
	CreateSyncer() *Syncer
	CreateService() (WaitlistService, error)
	CreateController() (*router.RESTController, error)
	Close(ctx context.Context) error
}

// FactoryConfig carries the wiring for one waitlist instance. Exactly one of
// DB and DynamoDB must be set; everything else is optional.
type FactoryConfig struct {
	Logger *log.Logger

	DB            *gorm.DB
	DynamoDB      DynamoDBAPI
	DynamoDBTable string

	Cache     DuplicateCache
	Limiters  *factory.RateLimiterFactory
	Marketing marketing.Client
	Metrics   prometheus.Registerer

	RateLimitRequests int
	RateLimitWindow   time.Duration
	Brand             string
	DuplicateCacheTTL time.Duration
	Sync              SyncerConfig
	DevRoutes         bool
}

// DefaultWaitlistServiceFactory builds each component once and hands out the
// same instance on later calls, so collectors are registered only once.
type DefaultWaitlistServiceFactory struct {
	cfg FactoryConfig

	repository WaitlistRepository
	limiter    ratelimit.RateLimiter
	metrics    *Metrics
	syncer     *Syncer
	service    WaitlistService
}

func NewWaitlistServiceFactory(cfg FactoryConfig) WaitlistServiceFactory {
	if cfg.Logger == nil {
		cfg.Logger = log.NewDiscardLogger()
	}
	if cfg.Limiters == nil {
		cfg.Limiters = factory.NewRateLimiterFactory(nil, cfg.Logger)
	}

	return &DefaultWaitlistServiceFactory{cfg: cfg}
}

func (f *DefaultWaitlistServiceFactory) CreateRepository() (WaitlistRepository, error) {
	if f.repository != nil {
		return f.repository, nil
	}

	switch {
	case f.cfg.DB != nil && f.cfg.DynamoDB != nil:
		return nil, fmt.Errorf("waitlist: both SQL and DynamoDB stores configured")
	case f.cfg.DB != nil:
		f.repository = NewWaitlistRepository(f.cfg.DB)
	case f.cfg.DynamoDB != nil:
		f.repository = NewDynamoDBWaitlistRepository(f.cfg.DynamoDB, f.cfg.DynamoDBTable)
	default:
		return nil, fmt.Errorf("waitlist: no store configured")
	}

	return f.repository, nil
}

func (f *DefaultWaitlistServiceFactory) createLimiter() ratelimit.RateLimiter {
	if f.limiter != nil {
		return f.limiter
	}

	f.limiter = f.cfg.Limiters.Create(f.cfg.RateLimitRequests, f.cfg.RateLimitWindow, limiterKeyPrefix)
	requests, window := f.limiter.GetLimitDetails()
	f.cfg.Logger.Info("Waitlist rate limiting configured",
		"requests", requests,
		"window", window,
		"redis", f.cfg.Limiters.UsesRedis(),
	)
	return f.limiter
}

func (f *DefaultWaitlistServiceFactory) createMetrics() *Metrics {
	if f.metrics == nil && f.cfg.Metrics != nil {
		f.metrics = NewMetrics(f.cfg.Metrics)
	}
	return f.metrics
}

func (f *DefaultWaitlistServiceFactory) CreateSyncer() *Syncer {
	if f.syncer == nil {
		f.syncer = NewSyncer(f.cfg.Marketing, f.cfg.Logger, f.createMetrics(), f.cfg.Sync)
	}
	return f.syncer
}

func (f *DefaultWaitlistServiceFactory) CreateService() (WaitlistService, error) {
	if f.service != nil {
		return f.service, nil
	}

	repository, err := f.CreateRepository()
	if err != nil {
		return nil, err
	}

	f.service = NewWaitlistService(f.cfg.Logger, repository, ServiceConfig{
		Limiter:           f.createLimiter(),
		Cache:             f.cfg.Cache,
		Syncer:            f.CreateSyncer(),
		Metrics:           f.createMetrics(),
		Brand:             f.cfg.Brand,
		DuplicateCacheTTL: f.cfg.DuplicateCacheTTL,
	})

	return f.service, nil
}

func (f *DefaultWaitlistServiceFactory) CreateController() (*router.RESTController, error) {
	service, err := f.CreateService()
	if err != nil {
		return nil, err
	}

	_, window := f.createLimiter().GetLimitDetails()
	if f.cfg.DevRoutes {
		f.cfg.Logger.Warn("Development route POST /test-store is enabled")
	}

	return NewWaitlistController(service, window, f.cfg.DevRoutes), nil
}

// Close drains the sync queue.
func (f *DefaultWaitlistServiceFactory) Close(ctx context.Context) error {
	if f.syncer == nil {
		return nil
	}
	return f.syncer.Close(ctx)
}
