// Package middleware provides the HTTP middleware of the vaultd API: JWT
// caller authentication, per-caller rate limiting, request logging and CORS.
package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON error envelope shared with the API handlers.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteError writes an error envelope with the given status.
func WriteError(w http.ResponseWriter, status int, kind string, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: kind, Code: code, Message: message})
}
