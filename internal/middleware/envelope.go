package middleware

import (
	"encoding/json"
	"net/http"

	"session-auth/internal/model"
)

// writeFailure answers with the error envelope, stamped with the request id
// Logging put on the response.
func writeFailure(w http.ResponseWriter, status int, body *model.APIError) {
	if body.RequestID == "" {
		body.RequestID = w.Header().Get(requestIDHeader)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Success: false, Error: body})
}
