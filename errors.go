package editpreview

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownAction is returned for an action name the preview does not
// handle.
var ErrUnknownAction = errors.New("unknown action")

// ErrNoUploadTarget is returned for an upload that no image click
// prepared.
var ErrNoUploadTarget = errors.New("no image selected for upload")

// Errors a HostProvider returns to select the HTTP status of a refused
// request.
var (
	ErrUnauthenticated = errors.New("not signed in")
	ErrForbidden       = errors.New("forbidden")
	ErrPageNotFound    = errors.New("page not found")
)

// generalErrorKey holds errors not tied to a field.
const generalErrorKey = "_general"

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field-specific error
func NewFieldError(field string, err error) FieldError {
	return FieldError{Field: field, Message: err.Error()}
}

// MultiError is a collection of field errors (implements error interface)
type MultiError []FieldError

func (m MultiError) Error() string {
	if len(m) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range m {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidationToMultiError converts go-playground/validator errors to MultiError
func ValidationToMultiError(err error) MultiError {
	var fieldErrors MultiError

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fieldErrors
	}

	for _, e := range validationErrs {
		fieldName := strings.ToLower(e.Field())

		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", e.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
		default:
			message = fmt.Sprintf("%s is invalid", e.Field())
		}

		fieldErrors = append(fieldErrors, FieldError{
			Field:   fieldName,
			Message: message,
		})
	}

	return fieldErrors
}

// errorMap flattens an action error into the response's field errors.
func errorMap(err error) map[string]string {
	out := make(map[string]string)
	if err == nil {
		return out
	}
	var multi MultiError
	var field FieldError
	switch {
	case errors.As(err, &multi):
		for _, fe := range multi {
			out[fe.Field] = fe.Message
		}
	case errors.As(err, &field):
		out[field.Field] = field.Message
	default:
		out[generalErrorKey] = err.Error()
	}
	return out
}
