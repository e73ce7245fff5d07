package handler

import (
	"errors"
	"net/http"

	"payflow/internal/provider"
	"payflow/internal/redis"
	"payflow/internal/service"
)

// mapErrorToHTTPStatus maps service/store/provider errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, redis.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidSessionID),
		errors.Is(err, service.ErrInvalidInvoiceID),
		errors.Is(err, service.ErrInvalidCart),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrUnknownSeller),
		errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrSessionNotPending),
		errors.Is(err, service.ErrSessionAlreadyCancelled):
		return http.StatusConflict

	// Upstream provider errors
	case provider.IsTransient(err):
		return http.StatusBadGateway
	case provider.IsTerminal(err):
		return http.StatusUnprocessableEntity

	// Receipt service not configured
	case errors.Is(err, service.ErrEbarimtUnavailable):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
