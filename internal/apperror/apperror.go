// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinels below. The
// HTTP layer never inspects messages; it maps the sentinel to a status code
// with errors.Is, so a service can add context with fmt.Errorf("...: %w")
// without breaking the mapping.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrDelivery     = errors.New("delivery failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: lower-level failure, logged but never shown to clients
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError for an arbitrary sentinel with a caller-chosen message.
func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
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

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized marks a missing or rejected credential (401).
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// DeliveryFailed reports that an outbound channel (email) refused or dropped a
// message. The cause is kept for logs.
func DeliveryFailed(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrDelivery,
		Message: message,
		Cause:   cause,
	}
}
