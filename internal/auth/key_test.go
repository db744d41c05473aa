package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		provided, expected string
		want               bool
	}{
		{"correct", "correct", true},
		{"wrong", "correct", false},
		{"correc", "correct", false},
		{"", "correct", false},
		{"anything", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := ValidateKey(tt.provided, tt.expected); got != tt.want {
			t.Errorf("ValidateKey(%q, %q) = %v, want %v", tt.provided, tt.expected, got, tt.want)
		}
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"raw Authorization", map[string]string{"Authorization": "tok"}, "tok"},
		{"Bearer Authorization", map[string]string{"Authorization": "Bearer tok"}, "tok"},
		{"X-API-Key", map[string]string{"X-API-Key": "tok"}, "tok"},
		{"Authorization wins", map[string]string{"Authorization": "a", "X-API-Key": "b"}, "a"},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := TokenFromRequest(req); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
