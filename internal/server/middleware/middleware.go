// Package middleware provides the HTTP middleware chain for the status API:
// request logging, API key auth, and Redis-backed rate limiting.
package middleware

import "net/http"

// deny writes a JSON error body with the given status.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
