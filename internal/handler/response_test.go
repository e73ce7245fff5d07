package handler

import (
	"errors"
	"net/http"
	"testing"

	"payflow/internal/provider"
	"payflow/internal/redis"
	"payflow/internal/service"
)

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"session not found", redis.ErrNotFound, http.StatusNotFound},
		{"invalid session id", service.ErrInvalidSessionID, http.StatusBadRequest},
		{"invalid cart", service.ErrInvalidCart, http.StatusBadRequest},
		{"amount mismatch", service.ErrAmountMismatch, http.StatusBadRequest},
		{"unknown provider", provider.ErrUnknownProvider, http.StatusBadRequest},
		{"not pending", service.ErrSessionNotPending, http.StatusConflict},
		{"already cancelled", service.ErrSessionAlreadyCancelled, http.StatusConflict},
		{"transient provider error", provider.Transient("check", errors.New("timeout")), http.StatusBadGateway},
		{"terminal provider error", provider.Terminal("create", errors.New("rejected")), http.StatusUnprocessableEntity},
		{"receipt unavailable", service.ErrEbarimtUnavailable, http.StatusServiceUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
				t.Errorf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
