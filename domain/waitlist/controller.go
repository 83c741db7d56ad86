package waitlist

import (
	"net/http"
	"time"

	"github.com/loppilove/waitlist-api/config/router"
	apperrors "github.com/loppilove/waitlist-api/pkg/errors"
)

const (
	submitPath     = "api/waitlist"
	testStorePath  = "test-store"
	allowedMethods = "POST, OPTIONS"
)

// NewWaitlistController mounts POST /api/waitlist. The bodies follow the
// landing page contract rather than the router envelope, so the routes are
// kept off the router limiter and the service's own limiter is the only one
// a caller can hit. retryAfter is that limiter's window; devRoutes adds
// POST /test-store.
func NewWaitlistController(service WaitlistService, retryAfter time.Duration, devRoutes bool) *router.RESTController {
	return router.NewRESTController(
		"WaitlistController",
		"/",
		func(rs *router.RouterService, c *router.RESTController) {
			submit := submitHandler(service, router.RetryAfterSeconds(retryAfter))

			rs.AddPostHandler(c, router.Unmetered, submitPath, submit)
			rs.AddOptionsHandler(c, router.Unmetered, submitPath, preflightHandler)
			rs.SetMethodNotAllowedHandler(c, submitPath, methodNotAllowedHandler)

			if devRoutes {
				rs.AddPostHandler(c, router.Unmetered, testStorePath, submit)
				rs.SetMethodNotAllowedHandler(c, testStorePath, methodNotAllowedHandler)
			}
		},
	)
}

func submitHandler(service WaitlistService, retryAfter string) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		logger := router.GetLogger(ctx)

		var req SubmitWaitlistRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			// An unreadable body is treated as a missing email so the rate
			// check still runs first.
			logger.Warn("Failed to bind waitlist request", "error", err)
			req = SubmitWaitlistRequest{}
		}

		result, err := service.Submit(ctx.Request.Context(), SubmitCommand{
			Email:            req.Email,
			Source:           req.Source,
			ClientIdentifier: ctx.ClientIP(),
		})
		if err != nil {
			return errorResult(err, retryAfter)
		}

		return router.PlainResult(http.StatusOK, result)
	}
}

func errorResult(err error, retryAfter string) *router.ServiceResult {
	switch status := apperrors.HTTPStatusCode(err); status {
	case http.StatusBadRequest:
		return router.PlainResult(status, ErrorResponse{Error: MessageInvalidEmail})
	case http.StatusMethodNotAllowed:
		return router.PlainResult(status, ErrorResponse{Error: MessageMethodNotAllowed}).
			WithHeader("Allow", allowedMethods)
	case http.StatusTooManyRequests:
		return router.PlainResult(status, ErrorResponse{Error: MessageTooManyRequests}).
			WithHeader("Retry-After", retryAfter)
	default:
		return router.PlainResult(http.StatusInternalServerError, ErrorResponse{Error: MessageInternalError})
	}
}

func preflightHandler(ctx *router.RequestContext) *router.ServiceResult {
	return router.EmptyResult(http.StatusOK)
}

func methodNotAllowedHandler(ctx *router.RequestContext) *router.ServiceResult {
	return errorResult(apperrors.NewMethodNotAllowedError(MessageMethodNotAllowed, nil), "")
}
