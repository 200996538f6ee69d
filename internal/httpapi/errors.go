package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"zmapd/internal/feature"
	"zmapd/internal/manager"
	"zmapd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps manager errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case manager.IsZMapNotFound(err), manager.IsViewNotFound(err):
		return http.StatusNotFound
	case manager.IsDying(err), manager.IsInvalidState(err):
		return http.StatusConflict
	case manager.IsNotConnected(err), manager.IsShuttingDown(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, feature.ErrInvalidSequence):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
