package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if len(seen) != 26 || w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected generated ULID echoed, got request %q response %q", seen, w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "client-id" {
		t.Errorf("Expected client id to be kept, got %q", w.Header().Get(RequestIDHeader))
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SecurityHeaders(true)(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected nosniff")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("Expected no HSTS over plain HTTP")
	}
}

func TestCORSFromEnv(t *testing.T) {
	t.Parallel()

	h := CORSFromEnv("https://app.example.com, https://app.example.com ,")(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected disallowed origin to get no header, got %q", got)
	}

	if got := AllowedOrigins(""); len(got) != 1 || got[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins(\"\") = %v", got)
	}
}
