package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler is a simple handler that writes 200 OK with body "ok".
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestMiddleware(t *testing.T) {
	const token = "test-token"
	skipPaths := []string{"/healthz"}

	tests := []struct {
		name       string
		token      string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{"raw token", token, "/io/list", map[string]string{"Authorization": token}, http.StatusOK},
		{"Bearer token", token, "/io/list", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
		{"X-API-Key", token, "/io/list", map[string]string{"X-API-Key": token}, http.StatusOK},
		{"wrong token", token, "/io/list", map[string]string{"Authorization": "nope"}, http.StatusUnauthorized},
		{"missing token", token, "/io/list", nil, http.StatusUnauthorized},
		{"skip path", token, "/healthz", nil, http.StatusOK},
		{"auth disabled", "", "/io/list", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(tt.token, skipPaths, nil)(okHandler())
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddleware_FailureEnvelope(t *testing.T) {
	handler := Middleware("tok", nil, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/io/list", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["success"] != false || body["error"] != "missing token" {
		t.Errorf("body = %v", body)
	}
}

func TestMiddleware_BlocksAfterRepeatedFailures(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	handler := Middleware("tok", nil, rl)(okHandler())

	send := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/io/list", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < lockoutThreshold; i++ {
		if rec := send("wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	rec := send("tok")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 once blocked", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestClientIP(t *testing.T) {
	t.Run("host of RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.50")

		if got := ClientIP(req); got != "192.168.1.1" {
			t.Errorf("ClientIP() = %q, want %q", got, "192.168.1.1")
		}
	})

	t.Run("RemoteAddr without port", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "pipe"

		if got := ClientIP(req); got != "pipe" {
			t.Errorf("ClientIP() = %q, want %q", got, "pipe")
		}
	})
}
