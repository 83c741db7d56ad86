package errors

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewInvalidRequestError("bad", nil), StatusBadRequest},
		{NewRateLimitExceededError("slow down", nil), StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", NewConflictError("exists", nil)), StatusConflict},
		{NewMethodNotAllowedError("nope", nil), StatusMethodNotAllowed},
		{NewDatabaseError("db", nil), StatusInternalServerError},
		{NewInternalServerError("encode", nil), StatusInternalServerError},
		{fmt.Errorf("plain"), StatusInternalServerError},
		{nil, StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), "%v", tc.err)
	}
}

func TestGetHumanReadableMessage_DoesNotLeakInternalErrors(t *testing.T) {
	assert.Equal(t, "Invalid email address", GetHumanReadableMessage(NewInvalidRequestError("Invalid email address", nil)))
	assert.Equal(t, "An unexpected error occurred", GetHumanReadableMessage(fmt.Errorf("pq: connection refused")))
	assert.Equal(t, "An unexpected error occurred", GetHumanReadableMessage(nil))
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetErrorType(nil))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(fmt.Errorf("plain")))
	assert.Equal(t, ErrorTypeDatabaseError, GetErrorType(fmt.Errorf("repo: %w", NewDatabaseError("lookup", nil))))
}

func TestAppError_UnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewDatabaseError("unable to create waitlist entry", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DATABASE_ERROR: unable to create waitlist entry: disk full", err.Error())
}

func TestIsDuplicateKeyError(t *testing.T) {
	assert.True(t, IsDuplicateKeyError(fmt.Errorf("UNIQUE constraint failed: waitlist_users.email")))
	assert.True(t, IsDuplicateKeyError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)")))
	assert.True(t, IsDuplicateKeyError(NewConflictError("exists", nil)))
	assert.False(t, IsDuplicateKeyError(fmt.Errorf("connection reset")))
	assert.False(t, IsDuplicateKeyError(nil))
}

type signup struct {
	Email string `json:"email" validate:"required,email"`
	Note  string `json:"note" validate:"max=3"`
}

func TestFormatValidationErrors_UsesJSONFieldNames(t *testing.T) {
	err := validator.New().Struct(&signup{Email: "nope", Note: "toolong"})
	require.Error(t, err)

	got := FormatValidationErrors(err, &signup{})
	require.Len(t, got, 2)
	assert.Equal(t, ValidationErrorResponse{Field: "email", Message: "Invalid email format"}, got[0])
	assert.Equal(t, ValidationErrorResponse{Field: "note", Message: "Must not exceed 3 characters"}, got[1])
}

func TestFormatValidationErrors_TypeMismatch(t *testing.T) {
	var payload signup
	err := json.Unmarshal([]byte(`{"email": 42}`), &payload)
	require.Error(t, err)

	got := FormatValidationErrors(err, &payload)
	require.Len(t, got, 1)
	assert.Equal(t, "email", got[0].Field)
}
