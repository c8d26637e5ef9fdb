package portaldb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fitteam/fitlib/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// MaxPasswordBytes is bcrypt's input limit. Hangul takes three bytes per
// character, so the cap is in bytes, not characters.
const MaxPasswordBytes = 72

// PasswordCost is the bcrypt cost for new hashes. Tests lower it.
var PasswordCost = bcrypt.DefaultCost

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// compareDummy spends a bcrypt comparison when no account matched, keeping
// login latency uniform.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fitlib-dummy-password"), PasswordCost)
	})
	bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

const userColumns = `id, login_id, name, email, grade, active, created_at, updated_at`

// NewUser holds the fields needed to create an account.
type NewUser struct {
	LoginID  string
	Name     string
	Email    string
	Password string
	Grade    models.Grade
}

// CreateUser inserts a new account with a bcrypt-hashed password.
// The login id is lowercased.
func (db *DB) CreateUser(nu NewUser) (*models.User, error) {
	loginID := strings.ToLower(strings.TrimSpace(nu.LoginID))
	if loginID == "" {
		return nil, invalid("login_id is required")
	}
	name := strings.TrimSpace(nu.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if nu.Grade == "" {
		nu.Grade = models.GradeMember
	}
	if !nu.Grade.Valid() {
		return nil, invalid("unknown grade %q", nu.Grade)
	}
	hash, err := hashPassword(nu.Password)
	if err != nil {
		return nil, err
	}

	existing, err := db.GetUserByLogin(loginID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: login_id %q already taken", ErrConflict, loginID)
	}

	id, err := generateID("u_")
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}

	now := db.now()
	_, err = db.conn.Exec(
		`INSERT INTO users (id, login_id, name, email, grade, password_hash, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		id, loginID, name, strings.TrimSpace(nu.Email), string(nu.Grade), hash, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &models.User{
		ID: id, LoginID: loginID, Name: name, Email: strings.TrimSpace(nu.Email),
		Grade: nu.Grade, Active: true, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", invalid("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return "", invalid("password must be at most %d bytes", MaxPasswordBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var grade string
	if err := row.Scan(&u.ID, &u.LoginID, &u.Name, &u.Email, &grade, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Grade = models.Grade(grade)
	return u, nil
}

// GetUserByID returns the user with the given ID, or nil if not found.
func (db *DB) GetUserByID(id string) (*models.User, error) {
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByLogin returns the user with the given login id (case-insensitive), or nil.
func (db *DB) GetUserByLogin(loginID string) (*models.User, error) {
	loginID = strings.ToLower(strings.TrimSpace(loginID))
	u, err := scanUser(db.conn.QueryRow(`SELECT `+userColumns+` FROM users WHERE login_id = ?`, loginID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return u, nil
}

// Authenticate checks a login id and password. It returns nil, nil when the
// account does not exist, is inactive, or the password does not match.
func (db *DB) Authenticate(loginID, password string) (*models.User, error) {
	loginID = strings.ToLower(strings.TrimSpace(loginID))
	var hash string
	var active bool
	var id string
	err := db.conn.QueryRow(`SELECT id, password_hash, active FROM users WHERE login_id = ?`, loginID).Scan(&id, &hash, &active)
	if err == sql.ErrNoRows {
		compareDummy(password)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, nil
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !active {
		return nil, nil
	}
	return db.GetUserByID(id)
}

// ListUsers returns all users ordered by name. If activeOnly is set, deactivated
// accounts are skipped.
func (db *DB) ListUsers(activeOnly bool) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name, login_id`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: iterate: %w", err)
	}
	return users, nil
}

// UserUpdate carries optional account changes; nil fields are left unchanged.
type UserUpdate struct {
	Name   *string
	Email  *string
	Grade  *models.Grade
	Active *bool
}

// UpdateUser applies changes to an account. Demoting or deactivating the last
// active admin fails with ErrLastAdmin. Deactivation revokes all sessions.
func (db *DB) UpdateUser(id string, upd UserUpdate) (*models.User, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanUser(tx.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	next := *current
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("name cannot be empty")
		}
		next.Name = name
	}
	if upd.Email != nil {
		next.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Grade != nil {
		if !upd.Grade.Valid() {
			return nil, invalid("unknown grade %q", *upd.Grade)
		}
		next.Grade = *upd.Grade
	}
	if upd.Active != nil {
		next.Active = *upd.Active
	}

	losingAdmin := current.Grade == models.GradeAdmin && current.Active &&
		(next.Grade != models.GradeAdmin || !next.Active)
	if losingAdmin {
		var admins int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM users WHERE grade = 'admin' AND active = 1`).Scan(&admins); err != nil {
			return nil, fmt.Errorf("count admins: %w", err)
		}
		if admins <= 1 {
			return nil, ErrLastAdmin
		}
	}

	next.UpdatedAt = db.now()
	_, err = tx.Exec(
		`UPDATE users SET name = ?, email = ?, grade = ?, active = ?, updated_at = ? WHERE id = ?`,
		next.Name, next.Email, string(next.Grade), next.Active, next.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if !next.Active {
		if _, err := tx.Exec(`DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

// ChangePassword verifies the current password and stores a new one.
func (db *DB) ChangePassword(id, current, next string) error {
	var hash string
	err := db.conn.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)); err != nil {
		return invalid("current password does not match")
	}
	return db.SetPassword(id, next)
}

// SetPassword replaces a user's password without checking the old one.
func (db *DB) SetPassword(id, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	res, err := db.conn.Exec(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, db.now(), id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountAdmins returns the number of active admins.
func (db *DB) CountAdmins() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM users WHERE grade = 'admin' AND active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}
