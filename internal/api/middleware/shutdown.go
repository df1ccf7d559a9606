package middleware

import (
	"net/http"

	"github.com/fzdarsky/quietplanet/pkg/protocol"
)

// RejectDuringShutdown answers 503 SHUTTING_DOWN once isShutdown reports true, so requests
// arriving on kept-alive connections while the server drains are not started.
func RejectDuringShutdown(isShutdown func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isShutdown() {
				w.Header().Set("Connection", "close")
				WriteJSONError(w, protocol.NewShuttingDownError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
