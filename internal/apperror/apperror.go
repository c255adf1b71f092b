// Package apperror defines the domain error kinds shared by the stores, services and HTTP handlers.
//
// Services return *AppError values wrapping one of the sentinel errors below; handlers translate the
// sentinel into an HTTP status with errors.Is and show AppError.Message to the caller.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpstream     = errors.New("upstream failure")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // human-readable, safe to return to clients
	Field   string // optional: request field that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Unauthorized is returned when credentials are missing or do not resolve to a user.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Upstream wraps a failure of a third-party call. The cause stays reachable through
// errors.Is/As on the wrapped chain but is never shown to clients.
func Upstream(message string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrUpstream, cause),
		Message: message,
	}
}
