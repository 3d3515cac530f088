package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		value    string
		expected int
	}{
		{"disabled", "", "", "", http.StatusOK},
		{"missing", "secret", "", "", http.StatusUnauthorized},
		{"bearer", "secret", "Authorization", "Bearer secret", http.StatusOK},
		{"wrong bearer", "secret", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"api key", "secret", "X-API-Key", "secret", http.StatusOK},
		{"basic scheme", "secret", "Authorization", "Basic secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/attendance/active-session", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			recorder := httptest.NewRecorder()

			RequireToken(tt.token)(okHandler()).ServeHTTP(recorder, req)

			if recorder.Code != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, recorder.Code)
			}
		})
	}
}

func TestCORS_AllowedOrigins(t *testing.T) {
	handler := CORS([]string{"https://portal.example.edu"})(okHandler())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://portal.example.edu", true},
		{"http://localhost:5173", true},
		{"https://evil.example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		got := recorder.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("origin %q: expected it to be allowed, got %q", tt.origin, got)
		}
		if !tt.allowed && got != "" {
			t.Errorf("origin %q: expected no CORS header, got %q", tt.origin, got)
		}
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/recognize", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", recorder.Code)
	}
	if called {
		t.Error("preflight should not reach the next handler")
	}
}

func TestSecurityHeaders(t *testing.T) {
	recorder := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))

	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if recorder.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected X-Frame-Options DENY")
	}
}
