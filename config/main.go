package config

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"
	"github.com/loppilove/waitlist-api/config/router"
	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/internal/models"
	"github.com/loppilove/waitlist-api/pkg/constants"
	"github.com/loppilove/waitlist-api/pkg/factory"
	"github.com/loppilove/waitlist-api/pkg/marketing"
	"gorm.io/gorm"
)

const shutdownHookTimeout = 15 * time.Second

type ApplicationConfig struct {
	DB              *gorm.DB         // nil when WAITLIST_STORE=dynamodb
	DynamoDB        *dynamodb.Client // nil unless WAITLIST_STORE=dynamodb
	RouterService   *router.RouterService
	Logger          *log.Logger
	Cache           Cache
	Limiters        *factory.RateLimiterFactory
	Marketing       marketing.Client // nil when Brevo is not configured
	Config          *AppConfig
	Waitlist        *WaitlistConfig
	TracingShutdown func(context.Context) error

	shutdownHooks []func(context.Context) error
}

// AppConfig covers the HTTP-wide limits. The waitlist's own limits live in
// WaitlistConfig.
type AppConfig struct {
	AppEnv            string        `env:"APP_ENV"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"`
}

// NewAppConfig reads the environment leniently: malformed or non-positive
// values keep their defaults.
func NewAppConfig() *AppConfig {
	defaults := AppConfig{
		RateLimitRequests: constants.DefaultRateLimitRequests,
		RateLimitWindow:   constants.DefaultRateLimitWindow(),
		RequestTimeout:    router.DefaultTimeoutDuration,
	}

	var parsed AppConfig
	_ = env.Parse(&parsed)

	config := defaults
	config.AppEnv = GetAppEnv()
	if parsed.RateLimitRequests > 0 {
		config.RateLimitRequests = parsed.RateLimitRequests
	}
	if parsed.RateLimitWindow > 0 {
		config.RateLimitWindow = parsed.RateLimitWindow
	}
	if parsed.RequestTimeout > 0 {
		config.RequestTimeout = parsed.RequestTimeout
	}
	return &config
}

// IsDevelopment reports whether development-only routes may be mounted.
func (c *AppConfig) IsDevelopment() bool {
	return IsDevelopmentEnv(c.AppEnv)
}

// AddShutdownHook registers fn to run at the start of Cleanup, before the
// store and cache are closed. Hooks run in reverse registration order.
func (ac *ApplicationConfig) AddShutdownHook(fn func(context.Context) error) {
	if fn == nil {
		return
	}
	ac.shutdownHooks = append(ac.shutdownHooks, fn)
}

func (ac *ApplicationConfig) Cleanup() {
	if len(ac.shutdownHooks) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownHookTimeout)
		for i := len(ac.shutdownHooks) - 1; i >= 0; i-- {
			if err := ac.shutdownHooks[i](ctx); err != nil {
				ac.Logger.Error("Shutdown hook failed", "error", err)
			}
		}
		cancel()
		ac.shutdownHooks = nil
	}

	if ac.TracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ac.TracingShutdown(ctx); err != nil {
			ac.Logger.Error("Failed to shutdown tracer provider", "error", err)
		}
	}

	if ac.DB != nil {
		CloseDatabase(ac.DB, ac.Logger)
	}

	if ac.RouterService != nil {
		ac.RouterService.Cleanup()
	}

	if ac.Cache != nil {
		_ = CloseCache(ac.Cache, ac.Logger)
	}

	ac.Logger.Info("Application cleanup completed")
}

func LoadApplicationConfiguration(logger *log.Logger, autoMigrate bool) (*ApplicationConfig, error) {
	InitializeEnvFile(logger)

	if autoMigrate {
		appEnv := GetAppEnv()
		if err := ValidateAutoMigrateAllowed(appEnv); err != nil {
			return nil, err
		}
		if appEnv == "" {
			logger.Warn("APP_ENV not set; allowing --auto-migrate as development")
		}
	}

	waitlistCfg, err := LoadWaitlistConfig()
	if err != nil {
		return nil, err
	}

	marketingCfg, err := LoadMarketingConfig()
	if err != nil {
		// A malformed Brevo setting disables sync rather than the whole service.
		logger.Error("Invalid marketing configuration; contact sync disabled", "error", err)
		marketingCfg = nil
	}

	tracingShutdown, err := SetupTracing(logger)
	if err != nil {
		return nil, err
	}

	appConfig := &ApplicationConfig{
		Logger:          logger,
		Config:          NewAppConfig(),
		Waitlist:        waitlistCfg,
		TracingShutdown: tracingShutdown,
	}

	if err := appConfig.connectStore(autoMigrate); err != nil {
		return nil, err
	}

	appConfig.Cache = NewCacheConfig().NewCacheOrNil(logger)
	appConfig.Limiters = factory.NewRateLimiterFactory(appConfig.Cache, logger)
	appConfig.Marketing = NewMarketingClientOrNil(logger, marketingCfg, waitlistCfg.Brand)

	appConfig.RouterService = router.CreateRouterService(logger, appConfig.Limiters, &router.RouterConfig{
		RateLimitRequests: appConfig.Config.RateLimitRequests,
		RateLimitWindow:   appConfig.Config.RateLimitWindow,
		RequestTimeout:    appConfig.Config.RequestTimeout,
	})

	logger.Info("Application configuration loaded successfully",
		"app_env", appConfig.Config.AppEnv,
		"store", waitlistCfg.Store,
		"cache", appConfig.Cache != nil,
		"marketing", appConfig.Marketing != nil,
	)

	return appConfig, nil
}

// LoadToolConfiguration connects the waitlist store and marketing client for
// one-off commands. No router, tracing or cache is set up.
func LoadToolConfiguration(logger *log.Logger) (*ApplicationConfig, error) {
	waitlistCfg, err := LoadWaitlistConfig()
	if err != nil {
		return nil, err
	}

	marketingCfg, err := LoadMarketingConfig()
	if err != nil {
		return nil, err
	}

	appConfig := &ApplicationConfig{
		Logger:   logger,
		Config:   NewAppConfig(),
		Waitlist: waitlistCfg,
	}
	if err := appConfig.connectStore(false); err != nil {
		return nil, err
	}
	appConfig.Marketing = NewMarketingClientOrNil(logger, marketingCfg, waitlistCfg.Brand)

	return appConfig, nil
}

func (ac *ApplicationConfig) connectStore(autoMigrate bool) error {
	if ac.Waitlist.UsesDynamoDB() {
		if autoMigrate {
			ac.Logger.Warn("--auto-migrate has no effect with the DynamoDB store")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := NewDynamoDBClient(ctx, ac.Logger, ac.Waitlist.AWSRegion, ac.Waitlist.DynamoDBEndpoint)
		if err != nil {
			return err
		}
		ac.DynamoDB = client
		return nil
	}

	db, err := NewDatabase(ac.Logger, nil)
	if err != nil {
		return err
	}

	if autoMigrate {
		if err := AutoMigrate(ac.Logger, db, models.ModelRegistry...); err != nil {
			CloseDatabase(db, ac.Logger)
			return err
		}
	}
	ac.DB = db
	return nil
}
