package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/permission"
	"github.com/fitteam/fitlib/internal/portaldb"
)

func login(t *testing.T, srv *Server, loginID, password string) loginResponse {
	t.Helper()
	w := doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: loginID, Password: password})
	return decodeData[loginResponse](t, w, http.StatusOK)
}

func menuKeys(items []permission.Item) []string {
	var keys []string
	for _, it := range items {
		keys = append(keys, it.Key)
		keys = append(keys, menuKeys(it.Children)...)
	}
	return keys
}

func TestLoginAndMe(t *testing.T) {
	srv, store := newTestServer(t)
	createTestUser(t, store, "Kim", models.GradeMember)

	resp := login(t, srv, "KIM", "password123")
	if !strings.HasPrefix(resp.Token, "fl_") || len(resp.Token) != 35 {
		t.Fatalf("unexpected token shape %q", resp.Token)
	}
	if resp.User == nil || resp.User.LoginID != "kim" {
		t.Fatalf("login user = %+v", resp.User)
	}
	if !resp.ExpiresAt.After(testNow) {
		t.Errorf("expires_at %v not after now", resp.ExpiresAt)
	}

	me := decodeData[meResponse](t, doRequest(srv, "GET", "/v1/me", resp.Token, nil), http.StatusOK)
	if me.User.Grade != models.GradeMember {
		t.Errorf("grade = %s", me.User.Grade)
	}
	keys := strings.Join(menuKeys(me.Menus), ",")
	if keys != "dashboard,notices,blog,vacations,equipment,tools,reports" {
		t.Errorf("member menus = %s", keys)
	}
}

func TestMeMenusByGrade(t *testing.T) {
	srv, store := newTestServer(t)
	_, guest := createTestUser(t, store, "guest", models.GradeGuest)
	_, admin := createTestUser(t, store, "admin", models.GradeAdmin)

	me := decodeData[meResponse](t, doRequest(srv, "GET", "/v1/me", guest, nil), http.StatusOK)
	if keys := strings.Join(menuKeys(me.Menus), ","); keys != "dashboard,notices,tools" {
		t.Errorf("guest menus = %s", keys)
	}

	me = decodeData[meResponse](t, doRequest(srv, "GET", "/v1/me", admin, nil), http.StatusOK)
	keys := menuKeys(me.Menus)
	if len(keys) != 12 || keys[len(keys)-1] != "admin.audit" {
		t.Errorf("admin menus = %v", keys)
	}
}

func TestLoginFailures(t *testing.T) {
	srv, store := newTestServer(t)
	uid, _ := createTestUser(t, store, "lee", models.GradeMember)

	w := doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: "lee", Password: "wrong-password"})
	wrongPw := expectError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	w = doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: "nobody", Password: "password123"})
	noUser := expectError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
	if wrongPw.Message != noUser.Message {
		t.Errorf("messages differ: %q vs %q", wrongPw.Message, noUser.Message)
	}

	w = doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: "lee"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	inactive := false
	if _, err := store.UpdateUser(uid, portaldb.UserUpdate{Active: &inactive}); err != nil {
		t.Fatal(err)
	}
	w = doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: "lee", Password: "password123"})
	expectError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	if snap := srv.metrics.Snapshot(); snap.LoginFailures != 3 {
		t.Errorf("login failures = %d, want 3", snap.LoginFailures)
	}
}

func TestLoginRateLimited(t *testing.T) {
	srv, store, _ := newTestServerWithConfig(t, func(c *Config) { c.RateLimit.Login = 2 })
	createTestUser(t, store, "park", models.GradeMember)

	for i := 0; i < 2; i++ {
		w := doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: "park", Password: "bad-password"})
		expectError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
	}
	w := doRequest(srv, "POST", "/v1/auth/login", "", loginRequest{LoginID: "park", Password: "password123"})
	expectError(t, w, http.StatusTooManyRequests, ErrCodeRateLimited)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv, store := newTestServer(t)
	createTestUser(t, store, "choi", models.GradeMember)
	resp := login(t, srv, "choi", "password123")

	w := doRequest(srv, "POST", "/v1/auth/logout", resp.Token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(srv, "GET", "/v1/me", resp.Token, nil)
	expectError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestSessionsListAndRevoke(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "jung", models.GradeMember)
	other := login(t, srv, "jung", "password123")

	sessions := decodeData[[]sessionResponse](t, doRequest(srv, "GET", "/v1/me/sessions", token, nil), http.StatusOK)
	if len(sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sessions))
	}
	var otherID string
	current := 0
	for _, s := range sessions {
		if s.Current {
			current++
		} else {
			otherID = s.ID
		}
	}
	if current != 1 || otherID == "" {
		t.Fatalf("sessions = %+v", sessions)
	}

	w := doRequest(srv, "DELETE", "/v1/me/sessions/"+otherID, token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	expectError(t, doRequest(srv, "GET", "/v1/me", other.Token, nil), http.StatusUnauthorized, ErrCodeUnauthorized)

	_, intruder := createTestUser(t, store, "intruder", models.GradeMember)
	w = doRequest(srv, "DELETE", "/v1/me/sessions/"+sessions[0].ID, intruder, nil)
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)
}

func TestChangePassword(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "yoon", models.GradeMember)

	w := doRequest(srv, "PATCH", "/v1/me/password", token, changePasswordRequest{CurrentPassword: "nope", NewPassword: "new-password"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = doRequest(srv, "PATCH", "/v1/me/password", token, changePasswordRequest{CurrentPassword: "password123", NewPassword: "short"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = doRequest(srv, "PATCH", "/v1/me/password", token, changePasswordRequest{CurrentPassword: "password123", NewPassword: "new-password"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	login(t, srv, "yoon", "new-password")
}

func TestPasswordOverBcryptLimitRejected(t *testing.T) {
	srv, store := newTestServer(t)
	_, admin := createTestUser(t, store, "admin", models.GradeAdmin)
	memberID, member := createTestUser(t, store, "yoon", models.GradeMember)
	long := strings.Repeat("가", 25) // 75 bytes

	w := doRequest(srv, "POST", "/v1/admin/users", admin, createUserRequest{LoginID: "han", Name: "Han", Password: long, Grade: models.GradeMember})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = doRequest(srv, "POST", "/v1/admin/users/"+memberID+"/password", admin, setPasswordRequest{Password: long})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = doRequest(srv, "PATCH", "/v1/me/password", member, changePasswordRequest{CurrentPassword: "password123", NewPassword: long})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	login(t, srv, "yoon", "password123")
}

func TestSessionNameTruncatedByRune(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "kang", models.GradeMember)

	body, _ := json.Marshal(loginRequest{LoginID: "kang", Password: "password123"})
	req := httptest.NewRequest("POST", "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", strings.Repeat("가", 130))
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	decodeData[loginResponse](t, w, http.StatusOK)

	sessions := decodeData[[]sessionResponse](t, doRequest(srv, "GET", "/v1/me/sessions", token, nil), http.StatusOK)
	var name string
	for _, s := range sessions {
		if !s.Current {
			name = s.Name
		}
	}
	if !utf8.ValidString(name) {
		t.Fatalf("session name is not valid UTF-8: %q", name)
	}
	if n := utf8.RuneCountInString(name); n != 120 {
		t.Fatalf("session name has %d runes, want 120", n)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"curl/8.0", 120, "curl/8.0"},
		{"abcdef", 3, "abc"},
		{"가나다라", 2, "가나"},
		{"", 5, ""},
	}
	for _, tc := range tests {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
