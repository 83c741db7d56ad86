package errors

import "errors"

const genericMessage = "An unexpected error occurred"

var statusByType = map[ErrorType]int{
	ErrorTypeInvalidRequest:    StatusBadRequest,
	ErrorTypeRateLimitExceeded: StatusTooManyRequests,
	ErrorTypeMethodNotAllowed:  StatusMethodNotAllowed,
	ErrorTypeConflict:          StatusConflict,
}

// HTTPStatusCode maps err to a response status. Anything unclassified is a 500.
func HTTPStatusCode(err error) int {
	if status, ok := statusByType[GetErrorType(err)]; ok {
		return status
	}
	return StatusInternalServerError
}

// GetHumanReadableMessage returns the AppError message, never the text of a
// wrapped driver or transport error.
func GetHumanReadableMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return genericMessage
}
