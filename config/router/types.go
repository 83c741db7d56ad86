package router

import (
	"github.com/gin-gonic/gin"
)

type RequestContext = gin.Context

type MiddlewareFunc = gin.HandlerFunc

type ServiceResult struct {
	StatusCode int    `json:"code"`
	Data       any    `json:"data"`
	Message    string `json:"message"`

	// Body, when set, is written as-is instead of the code/data/message envelope.
	Body any `json:"-"`
	// NoBody writes the status line and headers only.
	NoBody  bool              `json:"-"`
	Headers map[string]string `json:"-"`
}

type RateLimitResponse struct {
	Limit      int    `json:"limit"`
	Window     string `json:"window"`
	RetryAfter string `json:"retry_after"`
}

type HandlerFunction func(*RequestContext) *ServiceResult

type RESTController struct {
	name         string
	mountPoint   string
	handlerCount int
	prepare      func(*RouterService, *RESTController)
}

func (result *ServiceResult) ToJSON() gin.H {
	return gin.H{
		"code":    result.StatusCode,
		"data":    result.Data,
		"message": result.Message,
	}
}

// WithHeader sets a response header and returns the result for chaining.
func (result *ServiceResult) WithHeader(key, value string) *ServiceResult {
	if result.Headers == nil {
		result.Headers = make(map[string]string)
	}
	result.Headers[key] = value
	return result
}
