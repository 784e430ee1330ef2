package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"session-auth/internal/model"
)

// Timeout bounds the whole request. Store calls inside it carry their own,
// shorter deadline and surface as UPSTREAM_UNAVAILABLE before this fires.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	message, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "REQUEST_TIMEOUT",
			Message: "request timed out",
		},
	})

	return func(next http.Handler) http.Handler {
		// TimeoutHandler hands next a fresh header map; carry the request id in.
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := RequestIDFromContext(r.Context()); id != "" {
				w.Header().Set(requestIDHeader, id)
			}
			next.ServeHTTP(w, r)
		})
		return http.TimeoutHandler(inner, timeout, string(message))
	}
}
