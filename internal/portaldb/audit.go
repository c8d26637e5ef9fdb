package portaldb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fitteam/fitlib/internal/models"
)

// RecordAudit appends an entry to the audit log.
func (db *DB) RecordAudit(actorID, action, entityType, entityID string) error {
	_, err := db.conn.Exec(
		`INSERT INTO audit_log (actor_id, action, entity_type, entity_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		actorID, action, entityType, entityID, db.now(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditFilter narrows QueryAudit. Empty fields are ignored.
type AuditFilter struct {
	ActorID    string
	EntityType string
	Action     string
	From       *time.Time
	To         *time.Time
}

// QueryAudit returns audit entries newest first.
func (db *DB) QueryAudit(f AuditFilter, limit int, cursor string) (*PaginatedResult[models.AuditEntry], error) {
	var conditions []string
	var args []any
	if f.ActorID != "" {
		conditions = append(conditions, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, f.Action)
	}
	if f.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT id, actor_id, action, entity_type, entity_id, created_at FROM audit_log` +
		where(conditions) + ` ORDER BY id DESC`

	return paginatedQuery(db.conn, query, args, limit, cursor, func(rows *sql.Rows) (models.AuditEntry, error) {
		var e models.AuditEntry
		err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.CreatedAt)
		return e, err
	})
}

// CleanupAudit deletes entries older than the given duration.
// Returns the number of rows deleted.
func (db *DB) CleanupAudit(olderThan time.Duration) (int64, error) {
	cutoff := db.now().Add(-olderThan)
	res, err := db.conn.Exec(`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
