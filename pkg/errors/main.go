package errors

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StatusOK                  = 200
	StatusNoContent           = 204
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusMethodNotAllowed    = 405
	StatusRequestTimeout      = 408
	StatusConflict            = 409
	StatusTooManyRequests     = 429
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503
)

// ErrorType classifies an AppError. Handlers map it to a status code.
type ErrorType string

const (
	ErrorTypeInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrorTypeRateLimitExceeded   ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrorTypeMethodNotAllowed    ErrorType = "METHOD_NOT_ALLOWED"
	ErrorTypeConflict            ErrorType = "CONFLICT"
	ErrorTypeDatabaseError       ErrorType = "DATABASE_ERROR"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
	ErrorTypeUnknown             ErrorType = "UNKNOWN_ERROR"
)

// AppError carries a caller-safe Message alongside the underlying cause.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(errType ErrorType, message string, err error) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

func NewInvalidRequestError(message string, err error) *AppError {
	return NewAppError(ErrorTypeInvalidRequest, message, err)
}

func NewRateLimitExceededError(message string, err error) *AppError {
	return NewAppError(ErrorTypeRateLimitExceeded, message, err)
}

func NewMethodNotAllowedError(message string, err error) *AppError {
	return NewAppError(ErrorTypeMethodNotAllowed, message, err)
}

func NewConflictError(message string, err error) *AppError {
	return NewAppError(ErrorTypeConflict, message, err)
}

func NewDatabaseError(message string, err error) *AppError {
	return NewAppError(ErrorTypeDatabaseError, message, err)
}

func NewInternalServerError(message string, err error) *AppError {
	return NewAppError(ErrorTypeInternalServerError, message, err)
}

// GetErrorType returns "" for nil and ErrorTypeUnknown for errors outside the
// taxonomy.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

var duplicateKeyMarkers = []string{"duplicate", "unique constraint", "sqlstate 23505"}

// IsDuplicateKeyError recognises unique-constraint violations from Postgres
// and SQLite, plus conflicts already classified as such.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if GetErrorType(err) == ErrorTypeConflict {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range duplicateKeyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
