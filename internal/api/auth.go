package api

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/permission"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// loginRequest is the JSON body for POST /v1/auth/login.
type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

// loginResponse is the data of a successful login.
type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// meResponse is the data of GET /v1/me.
type meResponse struct {
	User  *models.User      `json:"user"`
	Menus []permission.Item `json:"menus"`
}

// changePasswordRequest is the JSON body for PATCH /v1/me/password.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// sessionResponse describes one of the caller's sessions.
type sessionResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Current    bool       `json:"current"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// handleLogin handles POST /v1/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.LoginID) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "login_id and password are required")
		return
	}

	user, err := s.store.Authenticate(req.LoginID, req.Password)
	if err != nil {
		logFor(r.Context()).Error("authenticate", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to authenticate")
		return
	}
	if user == nil {
		s.metrics.RecordLogin(false)
		logFor(r.Context()).Info("login failed", "login_id", strings.ToLower(req.LoginID), "ip", clientIP(r, s.trustedProxies))
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid login id or password")
		return
	}

	name := "login"
	if ua := r.Header.Get("User-Agent"); ua != "" {
		name = truncateRunes(ua, maxSessionNameRunes)
	}
	token, sess, err := s.store.IssueToken(user.ID, name, s.config.SessionTTL)
	if err != nil {
		writeStoreError(w, r, "issue token", err)
		return
	}
	s.metrics.RecordLogin(true)
	logFor(r.Context()).Info("login", "uid", user.ID, "session_id", sess.ID)

	writeData(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: user})
}

// handleLogout handles POST /v1/auth/logout, revoking the presented token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if err := s.store.RevokeSession(user.SessionID, user.ID); err != nil {
		writeStoreError(w, r, "revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /v1/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	writeData(w, http.StatusOK, meResponse{
		User:  user.User,
		Menus: s.menus.Table().Filter(user.Grade),
	})
}

// handleChangePassword handles PATCH /v1/me/password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeStoreError(w, r, "change password", err)
		return
	}
	s.audit(r, "password", "user", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions handles GET /v1/me/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	sessions, err := s.store.ListSessions(user.ID)
	if err != nil {
		writeStoreError(w, r, "list sessions", err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess, user.SessionID))
	}
	writeData(w, http.StatusOK, out)
}

func toSessionResponse(sess *portaldb.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:         sess.ID,
		Name:       sess.Name,
		Current:    sess.ID == currentID,
		ExpiresAt:  sess.ExpiresAt,
		LastUsedAt: sess.LastUsedAt,
		CreatedAt:  sess.CreatedAt,
	}
}

// handleRevokeSession handles DELETE /v1/me/sessions/{id}.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	if err := s.store.RevokeSession(r.PathValue("id"), user.ID); err != nil {
		writeStoreError(w, r, "revoke session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxSessionNameRunes = 120

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
