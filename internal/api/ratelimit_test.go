package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/fitteam/fitlib/internal/models"
)

func newTestLimiter(now *time.Time) *RateLimiter {
	rl := NewRateLimiter()
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiterAllowDeny(t *testing.T) {
	now := testNow
	rl := newTestLimiter(&now)

	for i := 0; i < 5; i++ {
		if !rl.Allow("k1", 5) {
			t.Fatalf("expected allow on request %d", i+1)
		}
	}
	if rl.Allow("k1", 5) {
		t.Fatal("expected deny after burst used")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	now := testNow
	rl := newTestLimiter(&now)

	for i := 0; i < 3; i++ {
		rl.Allow("k1", 3)
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected deny after limit")
	}

	// 3 per minute refills one token every 20s
	now = now.Add(21 * time.Second)
	if !rl.Allow("k1", 3) {
		t.Fatal("expected allow after refill")
	}
	if rl.Allow("k1", 3) {
		t.Fatal("expected only one token refilled")
	}
}

func TestRateLimiterKeyIsolation(t *testing.T) {
	now := testNow
	rl := newTestLimiter(&now)

	for i := 0; i < 2; i++ {
		rl.Allow("key1", 2)
	}
	if rl.Allow("key1", 2) {
		t.Fatal("expected key1 denied")
	}
	if !rl.Allow("key2", 2) {
		t.Fatal("expected key2 allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := testNow
	rl := newTestLimiter(&now)

	rl.Allow("stale", 10)
	now = now.Add(5 * time.Minute)
	rl.Allow("fresh", 10)

	rl.cleanup()

	rl.mu.Lock()
	_, hasStale := rl.buckets["stale"]
	_, hasFresh := rl.buckets["fresh"]
	rl.mu.Unlock()

	if hasStale {
		t.Fatal("expected stale entry to be cleaned up")
	}
	if !hasFresh {
		t.Fatal("expected fresh entry to remain")
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := parseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "10.0.0.1:5555", "", "10.0.0.1"},
		{"untrusted remote ignores forwarded", "198.51.100.9:5555", "203.0.113.7", "198.51.100.9"},
		{"forwarded single", "10.0.0.1:5555", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain", "10.0.0.1:5555", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
		{"spoofed leftmost hop", "10.0.0.1:5555", "1.2.3.4, 203.0.113.7, 10.0.0.2", "203.0.113.7"},
		{"all hops trusted", "10.0.0.1:5555", "10.0.0.3, 10.0.0.2", "10.0.0.1"},
		{"no port", "10.0.0.1", "", "10.0.0.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := clientIP(r, trusted); got != tc.want {
				t.Fatalf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}

	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := clientIP(r, nil); got != "10.0.0.1" {
		t.Fatalf("no trusted proxies: clientIP = %q, want socket address", got)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := parseTrustedProxies([]string{"10.1.2.3/8", "192.0.2.7", "::1"})
	if err != nil {
		t.Fatal(err)
	}
	want := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
		netip.MustParsePrefix("::1/128"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	for _, bad := range []string{"10.0.0.0/33", "proxy.local"} {
		if _, err := parseTrustedProxies([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestLoginRateLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	srv, store, _ := newTestServerWithConfig(t, func(c *Config) { c.RateLimit.Login = 3 })
	createTestUser(t, store, "park", models.GradeMember)

	limited := 0
	for i := 0; i < 20; i++ {
		w := loginFrom(srv, fmt.Sprintf("203.0.113.%d", i+1))
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 17 {
		t.Fatalf("rate limited %d of 20 attempts, want 17", limited)
	}
}

func TestLoginRateLimitPerForwardedClient(t *testing.T) {
	srv, store, _ := newTestServerWithConfig(t, func(c *Config) {
		c.RateLimit.Login = 1
		// httptest requests arrive from 192.0.2.1.
		c.TrustedProxies = []string{"192.0.2.0/24"}
	})
	createTestUser(t, store, "park", models.GradeMember)

	expectError(t, loginFrom(srv, "203.0.113.1"), http.StatusUnauthorized, ErrCodeUnauthorized)
	expectError(t, loginFrom(srv, "203.0.113.1"), http.StatusTooManyRequests, ErrCodeRateLimited)
	expectError(t, loginFrom(srv, "203.0.113.2"), http.StatusUnauthorized, ErrCodeUnauthorized)
}

// loginFrom posts a failing login that claims to be forwarded for ip.
func loginFrom(srv *Server, ip string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(loginRequest{LoginID: "park", Password: "bad-password"})
	req := httptest.NewRequest("POST", "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	return w
}

func TestWriteRateLimitPerUser(t *testing.T) {
	srv, store, _ := newTestServerWithConfig(t, func(c *Config) { c.RateLimit.Write = 1 })
	_, token := createTestUser(t, store, "leader", models.GradeLeader)
	_, other := createTestUser(t, store, "leader2", models.GradeLeader)

	w := doRequest(srv, "POST", "/v1/tools", token, toolRequest{Name: "Slack", Category: "chat", URL: "https://slack.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(srv, "POST", "/v1/tools", token, toolRequest{Name: "Notion", Category: "docs", URL: "https://notion.so"})
	expectError(t, w, http.StatusTooManyRequests, ErrCodeRateLimited)

	// Reads draw from a separate budget, other users from their own.
	if w := doRequest(srv, "GET", "/v1/tools", token, nil); w.Code != http.StatusOK {
		t.Fatalf("read after write limit: got %d", w.Code)
	}
	w = doRequest(srv, "POST", "/v1/tools", other, toolRequest{Name: "Notion", Category: "docs", URL: "https://notion.so"})
	if w.Code != http.StatusCreated {
		t.Fatalf("other user: expected 201, got %d", w.Code)
	}
}
