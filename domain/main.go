package domain

import (
	"github.com/loppilove/waitlist-api/config"
	"github.com/loppilove/waitlist-api/domain/monitoring"
	"github.com/loppilove/waitlist-api/domain/waitlist"
)

// NewWaitlistFactory wires the waitlist components from the loaded
// configuration. The CLI uses it without a router.
func NewWaitlistFactory(appConfig *config.ApplicationConfig) waitlist.WaitlistServiceFactory {
	wc := appConfig.Waitlist

	cfg := waitlist.FactoryConfig{
		Logger:            appConfig.Logger,
		DB:                appConfig.DB,
		DynamoDBTable:     wc.DynamoDBTable,
		Cache:             appConfig.Cache,
		Limiters:          appConfig.Limiters,
		Marketing:         appConfig.Marketing,
		RateLimitRequests: wc.RateLimitRequests,
		RateLimitWindow:   wc.RateLimitWindow,
		Brand:             wc.Brand,
		DuplicateCacheTTL: wc.DuplicateCacheTTL,
		Sync: waitlist.SyncerConfig{
			Workers:   wc.SyncWorkers,
			QueueSize: wc.SyncQueueSize,
			Timeout:   wc.SyncTimeout,
		},
	}
	// A nil *dynamodb.Client must not become a non-nil interface.
	if appConfig.DynamoDB != nil {
		cfg.DynamoDB = appConfig.DynamoDB
	}
	if appConfig.RouterService != nil {
		cfg.Metrics = appConfig.RouterService.MetricsRegisterer()
		cfg.DevRoutes = appConfig.Config.IsDevelopment()
	}

	return waitlist.NewWaitlistServiceFactory(cfg)
}

func SetupCoreDomain(appConfig *config.ApplicationConfig) error {
	waitlistFactory := NewWaitlistFactory(appConfig)

	repository, err := waitlistFactory.CreateRepository()
	if err != nil {
		return err
	}

	controller, err := waitlistFactory.CreateController()
	if err != nil {
		return err
	}
	appConfig.AddShutdownHook(waitlistFactory.Close)

	appConfig.RouterService.MountController(monitoring.NewMonitoringController(repository, appConfig.Cache, appConfig.Marketing, appConfig.Logger))
	appConfig.RouterService.MountController(controller)

	return nil
}
