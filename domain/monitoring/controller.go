package monitoring

import (
	"context"
	"time"

	"github.com/loppilove/waitlist-api/config/router"
	"github.com/loppilove/waitlist-api/internal/log"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
)

const healthCheckTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type MarketingStatus interface {
	IsConfigured() bool
}

type HealthStatus struct {
	Database  int `json:"database"`  // 1 = healthy, 0 = unhealthy
	Cache     int `json:"cache"`     // 1 = healthy, 0 = unhealthy/not configured
	Marketing int `json:"marketing"` // 1 = configured, 0 = sync disabled
	Uptime    int `json:"uptime"`    // uptime in seconds
}

type MonitoringController struct {
	store     Pinger
	cache     Pinger
	marketing MarketingStatus
	logger    *log.Logger
	startTime time.Time
}

// NewMonitoringController mounts "/" and "/health". cache and marketing may be nil.
func NewMonitoringController(store Pinger, cache Pinger, marketing MarketingStatus, logger *log.Logger) *router.RESTController {
	ctrl := &MonitoringController{
		store:     store,
		cache:     cache,
		marketing: marketing,
		logger:    logger,
		startTime: time.Now(),
	}

	return router.NewRESTController(
		"MonitoringController",
		"/",
		func(routerService *router.RouterService, controller *router.RESTController) {
			monitoringRateLimiter := ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
				Requests: 10,
				Window:   time.Minute,
			})

			routerService.AddGetHandler(controller, monitoringRateLimiter, "", func(c *router.RequestContext) *router.ServiceResult {
				return router.OKResult("Monitoring endpoint is operational.", "Monitoring successful")
			})

			routerService.AddGetHandler(controller, monitoringRateLimiter, "health", ctrl.healthCheck)
		},
	)
}

func (ctrl *MonitoringController) healthCheck(c *router.RequestContext) *router.ServiceResult {
	logger := router.GetLogger(c)
	logger.Info("Health check endpoint called")

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	return router.OKResult(ctrl.performHealthChecks(ctx, logger), "loppi-waitlist health check completed")
}

func (ctrl *MonitoringController) performHealthChecks(ctx context.Context, logger *log.Logger) HealthStatus {
	status := HealthStatus{
		Uptime: int(time.Since(ctrl.startTime).Seconds()),
	}

	if ctrl.store != nil && ctrl.store.Ping(ctx) == nil {
		status.Database = 1
	} else {
		logger.Error("Database health check failed")
	}

	switch {
	case ctrl.cache == nil:
		logger.Info("Cache not configured, cache health check skipped")
	case ctrl.cache.Ping(ctx) == nil:
		status.Cache = 1
	default:
		logger.Error("Cache health check failed")
	}

	if ctrl.marketing != nil && ctrl.marketing.IsConfigured() {
		status.Marketing = 1
	}

	return status
}
