// Package auth provides token checks, failed-attempt blocking and per-client
// rate limiting for the daemon's HTTP API.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader is an alternative header carrying the token.
const APIKeyHeader = "X-API-Key"

// ValidateKey performs timing-safe comparison of the provided key
// against the expected key. An empty expected key never matches.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// TokenFromRequest extracts the client's token. The Authorization header
// may carry the raw token, as the behavior pack sends it, or a Bearer
// token; X-API-Key is checked last.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return strings.TrimSpace(h)
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}
