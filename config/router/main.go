package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loppilove/waitlist-api/internal/log"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
	"github.com/loppilove/waitlist-api/pkg/factory"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
	"github.com/loppilove/waitlist-api/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	// DefaultTimeoutDuration is the default request timeout
	DefaultTimeoutDuration = 30 * time.Second

	globalLimiterPrefix = "ratelimit:http:"
)

type RouterService struct {
	engine          *gin.Engine
	server          *http.Server
	logger          *log.Logger
	settings        HTTPSettings
	requestTimeout  time.Duration
	metricsRegistry *prometheus.Registry

	rateLimiter       ratelimit.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration

	handlerToControllerMap map[string]*RESTController
	rateLimitOverrides     map[string]ratelimit.RateLimiter
	// methodNotAllowed answers unregistered methods on a known route path.
	methodNotAllowed map[string]MiddlewareFunc
}

type RouterConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
}

// CreateRouterService builds the gin engine with the full middleware chain.
// limiters may be nil, in which case the global limiter is in-memory.
func CreateRouterService(logger *log.Logger, limiters *factory.RateLimiterFactory, routerConfig *RouterConfig) *RouterService {
	settings, err := LoadHTTPSettings()
	if err != nil {
		logger.Warn("Invalid HTTP settings, using defaults", "error", err)
	}

	if settings.GinMode != "" {
		logger.Info("Setting Gin mode", "mode", settings.GinMode)
		gin.SetMode(settings.GinMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.HandleMethodNotAllowed = true
	engine.RedirectTrailingSlash = true

	if utils.IsTracingEnabled() {
		engine.Use(otelgin.Middleware(utils.OTelServiceName()))
		logger.Info("Tracing middleware enabled")
	}

	// gin trusts every proxy unless told otherwise, which would let callers
	// pick their own ClientIP through X-Forwarded-For.
	if err := engine.SetTrustedProxies(settings.trustedProxyCIDRs()); err != nil {
		logger.Error("Invalid TRUSTED_PROXIES; disabling trusted proxies", "error", err)
		_ = engine.SetTrustedProxies(nil)
	} else if len(settings.TrustedProxies) == 0 {
		logger.Info("Trusted proxies disabled (TRUSTED_PROXIES not set)")
	}

	requestTimeout := routerConfig.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultTimeoutDuration
	}

	rs := &RouterService{
		engine:            engine,
		logger:            logger,
		settings:          settings,
		requestTimeout:    requestTimeout,
		rateLimitRequests: routerConfig.RateLimitRequests,
		rateLimitWindow:   routerConfig.RateLimitWindow,

		rateLimitOverrides:     make(map[string]ratelimit.RateLimiter),
		handlerToControllerMap: make(map[string]*RESTController),
		methodNotAllowed:       make(map[string]MiddlewareFunc),
	}

	if limiters == nil {
		limiters = factory.NewRateLimiterFactory(nil, logger)
	}
	rs.rateLimiter = limiters.Create(rs.rateLimitRequests, rs.rateLimitWindow, globalLimiterPrefix)
	logger.Info("Global rate limiter ready",
		"requests", rs.rateLimitRequests,
		"window", rs.rateLimitWindow,
		"redis", limiters.UsesRedis(),
	)

	// Mounted first so /metrics skips the chain below.
	rs.mountMetrics()

	engine.Use(
		rs.correlationIDMiddleware(),
		rs.accessLogMiddleware(),
		rs.securityHeadersMiddleware(),
		rs.bodyLimitMiddleware(),
		rs.corsMiddleware(),
		rs.rateLimitMiddleware(),
		rs.deadlineMiddleware(),
	)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResult(apperrors.StatusNotFound, "Route not found", nil).ToJSON())
	})
	engine.NoMethod(func(c *gin.Context) {
		if handler, ok := rs.methodNotAllowed[path.Clean(c.Request.URL.Path)]; ok {
			handler(c)
			return
		}
		c.JSON(http.StatusMethodNotAllowed, ErrorResult(apperrors.StatusMethodNotAllowed, "Method not allowed", nil).ToJSON())
	})

	rs.server = &http.Server{
		Addr:              settings.addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("Router service initialized", "addr", rs.server.Addr)
	return rs
}

func (routerService *RouterService) GetDefaultRateLimitConfig() (int, time.Duration) {
	return routerService.rateLimitRequests, routerService.rateLimitWindow
}

// MetricsRegisterer returns the registry served on /metrics, or nil when
// metrics are disabled.
func (routerService *RouterService) MetricsRegisterer() prometheus.Registerer {
	if routerService.metricsRegistry == nil {
		return nil
	}
	return routerService.metricsRegistry
}

func (routerService *RouterService) GetEngine() *gin.Engine {
	return routerService.engine
}

func (routerService *RouterService) Cleanup() {
	if routerService.rateLimiter != nil {
		if err := routerService.rateLimiter.Close(); err != nil {
			routerService.logger.Error("Failed to close rate limiter", "error", err)
		}
	}
	routerService.logger.Info("Router service cleanup completed")
}

func (routerService *RouterService) MountController(controller *RESTController) {
	controller.prepare(routerService, controller)

	routerService.logger.Info("Controller mounted",
		"name", controller.name,
		"path", controller.mountPoint,
		"handlers", controller.handlerCount,
	)
}

// RunHTTPServer blocks until the server stops. A graceful Shutdown returns nil.
func (routerService *RouterService) RunHTTPServer() error {
	routerService.logger.Info("Starting HTTP server", "addr", routerService.server.Addr)

	if err := routerService.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		routerService.logger.Error("HTTP server stopped", "error", err)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (routerService *RouterService) Shutdown(ctx context.Context) error {
	routerService.logger.Info("Shutting down HTTP server")
	return routerService.server.Shutdown(ctx)
}

// RetryAfterSeconds renders a Retry-After header value for a limiter window.
func RetryAfterSeconds(window time.Duration) string {
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
