package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubHandler is a simple handler that returns 200 OK.
var stubHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newCORSServer(origins []string) *Server {
	return &Server{
		config: Config{
			CORSAllowedOrigins: origins,
		},
	}
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	s := newCORSServer(nil)
	handler := s.corsMiddleware(stubHandler)

	req := httptest.NewRequest("GET", "/v1/notices", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers when no origins configured")
	}
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	s := newCORSServer([]string{"https://portal.example.com"})
	handler := s.corsMiddleware(stubHandler)

	req := httptest.NewRequest("GET", "/v1/notices", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example.com" {
		t.Fatalf("expected Access-Control-Allow-Origin=https://portal.example.com, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, DELETE, OPTIONS" {
		t.Fatalf("expected Allow-Methods, got %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	s := newCORSServer([]string{"https://portal.example.com"})
	handler := s.corsMiddleware(stubHandler)

	req := httptest.NewRequest("GET", "/v1/notices", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("expected no CORS headers for disallowed origin")
	}
}

func TestCORS_Wildcard(t *testing.T) {
	s := newCORSServer([]string{"*"})
	handler := s.corsMiddleware(stubHandler)

	req := httptest.NewRequest("GET", "/v1/notices", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example.com" {
		t.Fatalf("expected echoed origin, got %q", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	s := newCORSServer([]string{"https://portal.example.com"})
	called := false
	handler := s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/v1/vacations", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if called {
		t.Fatal("preflight should not reach the handler")
	}
}
