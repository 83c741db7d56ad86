package router

import (
	"net/http"

	"github.com/loppilove/waitlist-api/internal/log"
)

// GetLogger returns the correlated logger stored by the correlation
// middleware, or a fresh one for contexts that skipped it.
func GetLogger(ctx *RequestContext) *log.Logger {
	if l, ok := ctx.Request.Context().Value(log.LoggerKeyForContext).(*log.Logger); ok {
		return l
	}
	return log.NewLoggerWithJSONOutput().WithCorrelationID(ctx.Request.Context())
}

func envelope(statusCode int, data any, message string) *ServiceResult {
	return &ServiceResult{StatusCode: statusCode, Data: data, Message: message}
}

func OKResult(data any, message string) *ServiceResult {
	return envelope(http.StatusOK, data, message)
}

func BadRequestResult(message string, payload any) *ServiceResult {
	return envelope(http.StatusBadRequest, payload, message)
}

func NotFoundResult(message string) *ServiceResult {
	return envelope(http.StatusNotFound, nil, message)
}

func TooManyRequestsResult(data RateLimitResponse) *ServiceResult {
	return envelope(http.StatusTooManyRequests, data, "Too Many Requests")
}

func InternalServerErrorResult(message string) *ServiceResult {
	return envelope(http.StatusInternalServerError, nil, message)
}

func ErrorResult(statusCode int, message string, data any) *ServiceResult {
	return envelope(statusCode, data, message)
}

// PlainResult writes body as the whole JSON response, without the envelope.
func PlainResult(statusCode int, body any) *ServiceResult {
	return &ServiceResult{StatusCode: statusCode, Body: body}
}

// EmptyResult writes the status and headers only.
func EmptyResult(statusCode int) *ServiceResult {
	return &ServiceResult{StatusCode: statusCode, NoBody: true}
}
