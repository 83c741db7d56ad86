package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var tagMessages = map[string]string{
	"required":       "This field is required",
	"email":          "Invalid email format",
	"waitlist_email": "Invalid email format",
	"printascii":     "Value must contain printable ASCII characters only",
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("Must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("Must not exceed %s characters", fe.Param())
	}
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return msg
	}
	return "Invalid value"
}

// jsonFieldName resolves the struct field to its JSON name, or returns it
// unchanged when model is unknown or untagged.
func jsonFieldName(model reflect.Type, field string) string {
	if model == nil {
		return field
	}
	sf, ok := model.FieldByName(field)
	if !ok {
		return field
	}
	if name, _, _ := strings.Cut(sf.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return field
}

// FormatValidationErrors flattens binding and validator errors into
// field/message pairs keyed by the JSON field name of model.
func FormatValidationErrors(err error, model any) []ValidationErrorResponse {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []ValidationErrorResponse{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("Invalid type for field %s. Expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value),
		}}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}

	var modelType reflect.Type
	if model != nil {
		modelType = reflect.TypeOf(model)
		for modelType.Kind() == reflect.Ptr {
			modelType = modelType.Elem()
		}
		if modelType.Kind() != reflect.Struct {
			modelType = nil
		}
	}

	out := make([]ValidationErrorResponse, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationErrorResponse{
			Field:   jsonFieldName(modelType, fe.Field()),
			Message: messageFor(fe),
		})
	}
	return out
}
