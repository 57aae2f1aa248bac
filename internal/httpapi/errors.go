package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lorad/internal/manager"
	"lorad/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps service errors to HTTP status codes. Upstream client errors
// (4xx) pass through; any other upstream failure is a bad gateway.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case manager.IsAdapterNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrModelRequired):
		return http.StatusBadRequest
	case manager.IsUpstreamUnreachable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if code, ok := manager.UpstreamStatus(err); ok && code >= 400 && code < 500 {
		return code
	}
	if manager.IsSwapFailed(err) || manager.IsUpstreamRejected(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
