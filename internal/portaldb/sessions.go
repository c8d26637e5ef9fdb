package portaldb

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/fitteam/fitlib/internal/models"
)

const (
	tokenPrefix = "fl_"
	tokenLength = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// Session is a stored bearer token (without the plaintext secret).
type Session struct {
	ID         string
	UserID     string
	Name       string
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// IssueToken creates a session for the given user valid for ttl.
// Returns the plaintext token (shown once) and the stored Session record.
func (db *DB) IssueToken(userID, name string, ttl time.Duration) (string, *Session, error) {
	if ttl <= 0 {
		return "", nil, invalid("token ttl must be positive")
	}
	if name == "" {
		name = "login"
	}

	var exists int
	if err := db.conn.QueryRow(`SELECT 1 FROM users WHERE id = ? AND active = 1`, userID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, fmt.Errorf("active user %s: %w", userID, ErrNotFound)
		}
		return "", nil, fmt.Errorf("check user: %w", err)
	}

	id, err := generateID("s_")
	if err != nil {
		return "", nil, fmt.Errorf("generate session id: %w", err)
	}

	secret := make([]byte, tokenLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random token: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}
	plaintext := tokenPrefix + string(secret)

	now := db.now()
	expiresAt := now.Add(ttl)
	_, err = db.conn.Exec(
		`INSERT INTO sessions (id, user_id, token_hash, name, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, hashToken(plaintext), name, expiresAt, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert session: %w", err)
	}

	return plaintext, &Session{ID: id, UserID: userID, Name: name, ExpiresAt: expiresAt, CreatedAt: now}, nil
}

func hashToken(plaintext string) string {
	hash := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(hash[:])
}

// VerifyToken checks a plaintext token against stored hashes.
// Returns the matching Session and its active User, or nil, nil, nil when the
// token is unknown, expired, or belongs to a deactivated account.
func (db *DB) VerifyToken(plaintext string) (*Session, *models.User, error) {
	keyHash := hashToken(plaintext)

	s := &Session{}
	var userID string
	err := db.conn.QueryRow(`
		SELECT s.id, s.user_id, s.name, s.expires_at, s.last_used_at, s.created_at, u.id
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = ? AND u.active = 1
	`, keyHash).Scan(&s.ID, &s.UserID, &s.Name, &s.ExpiresAt, &s.LastUsedAt, &s.CreatedAt, &userID)
	if err == sql.ErrNoRows {
		slog.Debug("session not found", "token_hash_prefix", keyHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	now := db.now()
	if !s.ExpiresAt.After(now) {
		slog.Debug("session expired", "session_id", s.ID, "expires_at", s.ExpiresAt)
		return nil, nil, nil
	}

	if _, err := db.conn.Exec(`UPDATE sessions SET last_used_at = ? WHERE id = ?`, now, s.ID); err != nil {
		slog.Warn("update last_used_at", "session_id", s.ID, "err", err)
	}
	s.LastUsedAt = &now

	u, err := db.GetUserByID(userID)
	if err != nil {
		return nil, nil, err
	}
	return s, u, nil
}

// RevokeSession deletes a session, only if owned by the given user.
func (db *DB) RevokeSession(sessionID, userID string) error {
	res, err := db.conn.Exec(`DELETE FROM sessions WHERE id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// ListSessions returns all sessions for a user (without secrets).
func (db *DB) ListSessions(userID string) ([]*Session, error) {
	rows, err := db.conn.Query(
		`SELECT id, user_id, name, expires_at, last_used_at, created_at FROM sessions WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s := &Session{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.ExpiresAt, &s.LastUsedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: iterate: %w", err)
	}
	return out, nil
}

// CleanupExpiredSessions deletes sessions past their expiry.
// Returns the number of rows deleted.
func (db *DB) CleanupExpiredSessions() (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, db.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
