package router

import (
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/loppilove/waitlist-api/pkg/ratelimit"
)

// NewRESTController groups handlers under mountPoint. prepare runs once, at
// MountController time, and registers the routes.
func NewRESTController(name, mountPoint string, prepare func(*RouterService, *RESTController)) *RESTController {
	return &RESTController{
		name:       name,
		mountPoint: path.Clean("/" + mountPoint),
		prepare:    prepare,
	}
}

// routePath joins the mount point and a relative path into a clean absolute
// route without a trailing slash.
func (controller *RESTController) routePath(relativePath string) string {
	return path.Clean(controller.mountPoint + "/" + relativePath)
}

func (routerService *RouterService) keyForPathAndMethod(path, method string) string {
	return method + " " + path
}

// bind records the route owner and its limiter override. Registering the same
// route twice is a programming error.
func (routerService *RouterService) bind(controller *RESTController, route, method string, limiter ratelimit.RateLimiter) {
	key := routerService.keyForPathAndMethod(route, method)
	if owner, taken := routerService.handlerToControllerMap[key]; taken {
		panic(fmt.Sprintf("route %s is already registered by controller %q", key, owner.name))
	}
	routerService.handlerToControllerMap[key] = controller

	if limiter != nil {
		routerService.rateLimitOverrides[key] = limiter
	}
}

// Unmetered, bound as a route's limiter, exempts the route from the router
// limiter. The handler is then responsible for its own throttling.
var Unmetered ratelimit.RateLimiter = unmeteredLimiter{}

type unmeteredLimiter struct{}

func (unmeteredLimiter) GetLimitDetails() (int, time.Duration) { return 0, 0 }
func (unmeteredLimiter) IsLimited(string) (bool, error) { return false, nil }
func (unmeteredLimiter) Close() error { return nil }

func createHandler(handler HandlerFunction) MiddlewareFunc {
	return func(c *RequestContext) {
		result := handler(c)
		if result == nil {
			GetLogger(c).Error("Handler returned no result", "path", c.FullPath())
			c.JSON(http.StatusInternalServerError, InternalServerErrorResult("Internal server error").ToJSON())
			return
		}

		for key, value := range result.Headers {
			c.Header(key, value)
		}

		switch {
		case result.NoBody:
			c.Status(result.StatusCode)
			c.Writer.WriteHeaderNow()
		case result.Body != nil:
			c.JSON(result.StatusCode, result.Body)
		default:
			c.JSON(result.StatusCode, result.ToJSON())
		}
	}
}

// addHandler registers a route. limiter, when non-nil, replaces the global
// limiter for this route only.
func (routerService *RouterService) addHandler(
	method string,
	controller *RESTController,
	limiter ratelimit.RateLimiter,
	relativePath string,
	handler HandlerFunction,
	middlewares []MiddlewareFunc,
) {
	route := controller.routePath(relativePath)
	routerService.bind(controller, route, method, limiter)
	controller.handlerCount++

	routerService.engine.Handle(method, route, append(middlewares, createHandler(handler))...)
	routerService.logger.Debug("Handler registered", "method", method, "path", route)
}

func (routerService *RouterService) AddPostHandler(controller *RESTController, limiter ratelimit.RateLimiter, path string, handler HandlerFunction, middlewares ...MiddlewareFunc) {
	routerService.addHandler(http.MethodPost, controller, limiter, path, handler, middlewares)
}

func (routerService *RouterService) AddGetHandler(controller *RESTController, limiter ratelimit.RateLimiter, path string, handler HandlerFunction, middlewares ...MiddlewareFunc) {
	routerService.addHandler(http.MethodGet, controller, limiter, path, handler, middlewares)
}

func (routerService *RouterService) AddPutHandler(controller *RESTController, limiter ratelimit.RateLimiter, path string, handler HandlerFunction, middlewares ...MiddlewareFunc) {
	routerService.addHandler(http.MethodPut, controller, limiter, path, handler, middlewares)
}

func (routerService *RouterService) AddDeleteHandler(controller *RESTController, limiter ratelimit.RateLimiter, path string, handler HandlerFunction, middlewares ...MiddlewareFunc) {
	routerService.addHandler(http.MethodDelete, controller, limiter, path, handler, middlewares)
}

func (routerService *RouterService) AddPatchHandler(controller *RESTController, limiter ratelimit.RateLimiter, path string, handler HandlerFunction, middlewares ...MiddlewareFunc) {
	routerService.addHandler(http.MethodPatch, controller, limiter, path, handler, middlewares)
}

func (routerService *RouterService) AddOptionsHandler(controller *RESTController, limiter ratelimit.RateLimiter, path string, handler HandlerFunction, middlewares ...MiddlewareFunc) {
	routerService.addHandler(http.MethodOptions, controller, limiter, path, handler, middlewares)
}

// SetMethodNotAllowedHandler answers every method not registered on the route
// at relativePath. Without one, such requests get the generic 405 envelope.
func (routerService *RouterService) SetMethodNotAllowedHandler(controller *RESTController, relativePath string, handler HandlerFunction) {
	route := controller.routePath(relativePath)
	routerService.methodNotAllowed[route] = createHandler(handler)
	routerService.logger.Debug("Method-not-allowed handler registered", "path", route)
}
