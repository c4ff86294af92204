package api

import (
	"errors"
	"net/http"

	"github.com/artivo/restyle-api/internal/api/shared"
	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/pipeline"
	"github.com/artivo/restyle-api/internal/queue"
	"github.com/artivo/restyle-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status
// codes based on the error type. This prevents leaking internal error
// types or messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, store.ErrTransformationNotFound),
		errors.Is(err, store.ErrSubscriberNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors: the record moved underneath the request
	case errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	// Authorization errors
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	// Backpressure
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests

	// Shutdown in progress
	case errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal
// details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrTransformationNotFound):
		return "Transformation not found"
	case errors.Is(err, store.ErrSubscriberNotFound):
		return "Webhook subscription not found"
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return "Transformation has already finished"
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicate):
		return "Request conflicts with the current state"
	case errors.Is(err, pipeline.ErrStyleNotFound):
		return "Unknown style"
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return "Invalid request"
	case errors.Is(err, domain.ErrUnauthorized):
		return "You do not own this resource"
	case errors.Is(err, queue.ErrQueueFull):
		return "Service is at capacity, try again later"
	case errors.Is(err, queue.ErrQueueClosed):
		return "Service is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes an error response using the error-type mapping.
// An empty userMessage falls back to the safe message for the error.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, userMessage string) {
	status := MapErrorToStatusCode(err)
	if userMessage == "" {
		userMessage = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, userMessage, err)
}
