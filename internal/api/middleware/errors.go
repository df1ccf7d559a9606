package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/fzdarsky/quietplanet/internal/logging"
	"github.com/fzdarsky/quietplanet/pkg/protocol"
)

// ErrorHandler returns middleware that recovers from panics and handles errors.
func ErrorHandler(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic recovered", map[string]any{
						"error": err,
						"path":  r.URL.Path,
					})

					WriteJSONError(w, protocol.NewSystemError())
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status code has already been written
		return
	}
}

// WriteJSONError writes a JSON error response with the status for its code.
func WriteJSONError(w http.ResponseWriter, err *protocol.ErrorResponse) {
	WriteJSON(w, err, HTTPStatusForErrorCode(err.Code))
}

// HTTPStatusForErrorCode maps protocol error codes to HTTP status codes.
// Failed and expired login attempts are client errors, not authentication challenges.
func HTTPStatusForErrorCode(code protocol.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case protocol.ErrCodeInvalidRequest,
		protocol.ErrCodeAlreadyExists,
		protocol.ErrCodeAuthenticationFailed,
		protocol.ErrCodeSessionExpired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case protocol.ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 403 Forbidden
	case protocol.ErrCodeForbidden:
		return http.StatusForbidden

	// 404 Not Found
	case protocol.ErrCodeNotFound:
		return http.StatusNotFound

	// 429 Too Many Requests
	case protocol.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 503 Service Unavailable
	case protocol.ErrCodeShuttingDown:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
