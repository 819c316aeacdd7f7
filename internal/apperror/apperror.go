// Package apperror defines the error taxonomy shared by every layer.
//
// Services and repositories return *AppError values wrapping one of the
// sentinels below. Handlers use errors.Is to pick an HTTP status and show
// Message to the client. Cause carries the underlying driver or network error
// for logs only; it is never rendered to the end user.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage error")

	// Business-rule conflicts. Both match ErrConflict as well.
	ErrAlreadyExists = fmt.Errorf("already exists: %w", ErrConflict)
	ErrAlreadyVoted  = fmt.Errorf("already voted: %w", ErrConflict)
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, for logs
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
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

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict: %s", resource, message),
	}
}

// AlreadyExists reports that the caller already owns the single allowed resource.
func AlreadyExists(resource string) *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// AlreadyVoted reports a second vote by the same user on the same entry.
func AlreadyVoted(entryID string) *AppError {
	return &AppError{
		Err:     ErrAlreadyVoted,
		Message: fmt.Sprintf("already voted for entry %s", entryID),
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

// Storage wraps a relational or object-store failure. op names the operation
// ("creating entry") and ends up in logs together with the cause.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: op,
		Cause:   cause,
	}
}

// PublicMessage is what may be shown to an end user for err.
func PublicMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) || errors.Is(err, ErrStorage) {
		return "An internal error occurred"
	}
	return appErr.Message
}
