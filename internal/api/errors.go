package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/forgeworks/genbatch/internal/capability"
	"github.com/forgeworks/genbatch/internal/domain"
	"github.com/forgeworks/genbatch/internal/engine"
	"github.com/forgeworks/genbatch/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	// Authorization errors
	case errors.Is(err, engine.ErrForbidden),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	// Not found errors
	case store.IsNotFoundError(err),
		errors.Is(err, domain.ErrItemIndexOutOfRange):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, engine.ErrConflictingTask),
		errors.Is(err, engine.ErrTaskStillRunning):
		return http.StatusConflict

	// Semantically invalid but well-formed requests
	case errors.Is(err, capability.ErrMethodNotCapable),
		errors.Is(err, engine.ErrEmptyResource),
		errors.Is(err, engine.ErrItemNotRegenerable):
		return http.StatusUnprocessableEntity

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message based
// on the error type. Raw error strings never reach the client.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, engine.ErrForbidden),
		errors.Is(err, domain.ErrUnauthorized):
		return "You do not own this resource"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrResourceNotFound):
		return "Resource not found"

	case errors.Is(err, domain.ErrItemIndexOutOfRange),
		errors.Is(err, store.ErrItemNotFound):
		return "Item not found"

	case store.IsNotFoundError(err):
		return "Not found"

	case errors.Is(err, engine.ErrConflictingTask):
		return "A task of this type is already running for the resource"

	case errors.Is(err, engine.ErrTaskStillRunning):
		return "Task is still running"

	case errors.Is(err, capability.ErrMethodNotCapable):
		return "Unknown method"

	case errors.Is(err, engine.ErrEmptyResource):
		return "Resource has no units of work"

	case errors.Is(err, engine.ErrItemNotRegenerable):
		return "Item has no completed result to regenerate"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.As(err, &validationErrs):
		return "Invalid request"

	default:
		return "An unexpected error occurred"
	}
}
