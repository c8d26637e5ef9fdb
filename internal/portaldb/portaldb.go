// Package portaldb is the SQLite-backed store for the team portal: accounts,
// sessions, notices, posts, vacations, equipment, tools, weekly reports, HR
// records and the audit log.
package portaldb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors returned by write operations. Callers test them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
	ErrVacationOverlap = fmt.Errorf("%w: vacation overlaps an existing request", ErrConflict)
	ErrDuplicateReport = fmt.Errorf("%w: report already exists for this week", ErrConflict)
	ErrLastAdmin       = fmt.Errorf("%w: cannot remove the last active admin", ErrConflict)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// DB wraps the portal database connection.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
	loc  *time.Location
}

// Open opens the portal database and runs any pending migrations.
// If the database file does not exist, it is created and initialized.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	if _, err := conn.Exec(portalSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &DB{conn: conn, path: dbPath, now: func() time.Time { return time.Now().UTC() }, loc: time.UTC}

	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// SetClock overrides the time source. Used by tests and the scheduler.
func (db *DB) SetClock(now func() time.Time) {
	db.now = func() time.Time { return now().UTC() }
}

// SetLocation sets the calendar zone in which "today" is resolved. Stored
// timestamps stay UTC.
func (db *DB) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	db.loc = loc
}

// Now returns the store's current time in its calendar zone.
func (db *DB) Now() time.Time {
	return db.now().In(db.loc)
}

// Today returns the current date in the calendar zone as YYYY-MM-DD.
func (db *DB) Today() string {
	return db.Now().Format("2006-01-02")
}

// Ping checks the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (db *DB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// SchemaVersion returns the applied schema version.
func (db *DB) SchemaVersion() int {
	return db.getSchemaVersion()
}

// RunMigrations runs any pending database migrations.
func (db *DB) RunMigrations() (int, error) {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	currentVersion := db.getSchemaVersion()
	if currentVersion >= SchemaVersion {
		return 0, nil
	}

	migrationsRun := 0
	for _, m := range Migrations {
		if m.Version > currentVersion {
			if _, err := db.conn.Exec(m.SQL); err != nil {
				return migrationsRun, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
			if err := db.setSchemaVersion(m.Version); err != nil {
				return migrationsRun, fmt.Errorf("set version %d: %w", m.Version, err)
			}
			migrationsRun++
		}
	}

	if currentVersion == 0 {
		if err := db.setSchemaVersion(SchemaVersion); err != nil {
			return migrationsRun, err
		}
	}

	return migrationsRun, nil
}

func (db *DB) getSchemaVersion() int {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// generateID creates a prefixed ID with 16 random hex chars.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s", prefix, hex.EncodeToString(b)), nil
}

// mustID is generateID for call sites where crypto/rand failure is fatal.
func mustID(prefix string) string {
	id, err := generateID(prefix)
	if err != nil {
		panic("generate id: " + err.Error())
	}
	return id
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
