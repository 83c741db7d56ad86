package router

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loppilove/waitlist-api/internal/log"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
	"github.com/loppilove/waitlist-api/pkg/ratelimit"
)

const (
	correlationHeader = "X-Correlation-ID"

	corsAllowedHeaders = "Content-Type"
	corsAllowedMethods = "GET, POST, OPTIONS"
)

// correlationIDMiddleware propagates the caller's correlation id, minting one
// when absent, and stores a logger bound to it on the request context.
func (routerService *RouterService) correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = log.GenerateCorrelationID()
		}
		c.Header(correlationHeader, id)

		ctx := context.WithValue(c.Request.Context(), log.CorrelatedIDKey, id)
		ctx = context.WithValue(ctx, log.LoggerKeyForContext, routerService.logger.WithCorrelationID(ctx))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (routerService *RouterService) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		GetLogger(c).Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (routerService *RouterService) securityHeadersMiddleware() gin.HandlerFunc {
	hsts := ""
	if routerService.settings.hstsEnabled() {
		hsts = routerService.settings.hstsValue()
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if hsts != "" && isHTTPS(c) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// isHTTPS also trusts X-Forwarded-Proto, since TLS usually ends at the proxy.
func isHTTPS(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")), "https")
}

func (routerService *RouterService) bodyLimitMiddleware() gin.HandlerFunc {
	limit := routerService.settings.MaxBodyBytes

	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				ErrorResult(http.StatusRequestEntityTooLarge, "Request payload too large", nil).ToJSON())
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// corsMiddleware adds CORS headers for allowed origins and answers their
// preflights with 200. Other origins pass through without CORS headers, so
// browsers block the response.
func (routerService *RouterService) corsMiddleware() gin.HandlerFunc {
	settings := routerService.settings
	if len(settings.AllowedOrigins) == 0 {
		routerService.logger.Warn("CORS_ALLOWED_ORIGIN not set, cross-origin requests will be refused by browsers")
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !settings.originAllowed(origin) {
			GetLogger(c).Warn("CORS origin not allowed", "origin", origin)
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// deadlineMiddleware bounds the request context. Handlers run on the request
// goroutine; the server's read and write timeouts cut off slow connections.
func (routerService *RouterService) deadlineMiddleware() gin.HandlerFunc {
	timeout := routerService.requestTimeout

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			GetLogger(c).Warn("Request deadline exceeded", "timeout", timeout)
			c.AbortWithStatusJSON(http.StatusRequestTimeout,
				ErrorResult(apperrors.StatusRequestTimeout, "Request timeout", nil).ToJSON())
		}
	}
}

// limiterFor picks the handler override when one is bound, else the router
// default. The second result is false when no route matched, which covers
// both unknown paths and unregistered methods.
func (routerService *RouterService) limiterFor(c *gin.Context) (ratelimit.RateLimiter, bool) {
	key := routerService.keyForPathAndMethod(c.FullPath(), c.Request.Method)
	if _, owned := routerService.handlerToControllerMap[key]; !owned {
		return nil, false
	}
	if override, ok := routerService.rateLimitOverrides[key]; ok {
		return override, true
	}
	return routerService.rateLimiter, true
}

// rateLimitMiddleware throttles per client IP. Limiter failures let the
// request through.
func (routerService *RouterService) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter, owned := routerService.limiterFor(c)
		if !owned {
			// NoRoute or NoMethod answers.
			c.Next()
			return
		}
		if limiter == nil || limiter == Unmetered {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		limit, window := limiter.GetLimitDetails()
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Window", window.String())

		limited, err := limiter.IsLimited(clientIP)
		if err != nil {
			routerService.logger.Error("Rate limiter error", "error", err, "client_ip", clientIP)
			c.Next()
			return
		}
		if limited {
			routerService.logger.Warn("Rate limit exceeded", "client_ip", clientIP)
			retryAfter := RetryAfterSeconds(window)
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, TooManyRequestsResult(RateLimitResponse{
				Limit:      limit,
				Window:     window.String(),
				RetryAfter: retryAfter,
			}).ToJSON())
			return
		}

		c.Next()
	}
}
