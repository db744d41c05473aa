package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Middleware returns an HTTP middleware that checks the request token.
// Requests to skipPaths (e.g., "/healthz") are allowed without a token.
// An empty token disables authentication entirely.
// If rl is non-nil, failed attempts are tracked per client IP and the IP is
// blocked after exceeding the threshold (10 failures/min, 5-min block).
func Middleware(token string, skipPaths []string, rl *RateLimiter) func(http.Handler) http.Handler {
	skipSet := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || skipSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := ClientIP(r)
			if rl != nil && rl.IsAuthBlocked(clientIP) {
				w.Header().Set("Retry-After", strconv.Itoa(rl.AuthBlockRetryAfter(clientIP)))
				WriteError(w, http.StatusTooManyRequests, "too many failed authentication attempts, try again later")
				return
			}

			provided := TokenFromRequest(r)
			if provided == "" || !ValidateKey(provided, token) {
				if rl != nil {
					rl.AuthFailure(clientIP)
				}
				msg := "invalid token"
				if provided == "" {
					msg = "missing token"
				}
				WriteError(w, http.StatusUnauthorized, msg)
				return
			}

			if rl != nil {
				rl.AuthSuccess(clientIP)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes a failure envelope with the given HTTP status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
		"kind":    http.StatusText(status),
	})
}
