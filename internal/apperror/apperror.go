// Package apperror defines the error kinds the service layer returns.
//
// Handlers never look at raw error strings. They check the kind with
// errors.Is (ErrValidation, ErrNotFound, ...) and read the client-facing
// text from AppError.Message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrUpstream   = errors.New("upstream error")
	ErrInternal   = errors.New("internal error")
)

type AppError struct {
	Err     error  // actual error kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // Optional: status reported by an upstream service (0 = none)
	Cause   error  // Optional: underlying failure, logged but never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage returns a not-found error with a fixed client message.
func NotFoundMessage(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
		Cause:   cause,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Upstream reports a failed call to an external service.
// status is 0 when the transport failed before any response arrived.
func Upstream(status int, message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
		Status:  status,
		Cause:   cause,
	}
}

// Internal hides cause behind a generic message.
func Internal(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: message,
		Cause:   cause,
	}
}
