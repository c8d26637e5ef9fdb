package portaldb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fitteam/fitlib/internal/models"
)

// EquipmentInput holds the writable fields of an equipment record. Status
// may move between available, repair and retired; assignment goes through
// AssignEquipment and ReturnEquipment.
type EquipmentInput struct {
	Name        string
	Category    string
	SerialNo    string
	Status      models.EquipmentStatus
	PurchasedAt string
	Note        string
}

// EquipmentFilter narrows ListEquipment.
type EquipmentFilter struct {
	Status     models.EquipmentStatus
	Category   string
	AssigneeID string
}

const equipmentSelect = `SELECT e.id, e.name, e.category, e.serial_no, e.status, COALESCE(e.assignee_id, ''), COALESCE(u.name, ''),
	e.purchased_at, e.note, e.created_at, e.updated_at
	FROM equipment e LEFT JOIN users u ON u.id = e.assignee_id`

func scanEquipment(row interface{ Scan(...any) error }) (*models.Equipment, error) {
	e := &models.Equipment{}
	var status string
	err := row.Scan(&e.ID, &e.Name, &e.Category, &e.SerialNo, &status, &e.AssigneeID, &e.AssigneeName,
		&e.PurchasedAt, &e.Note, &e.CreatedAt, &e.UpdatedAt)
	e.Status = models.EquipmentStatus(status)
	return e, err
}

func (in *EquipmentInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.SerialNo = strings.TrimSpace(in.SerialNo)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.SerialNo == "" {
		return invalid("serial_no is required")
	}
	if in.PurchasedAt != "" {
		if _, err := time.Parse("2006-01-02", in.PurchasedAt); err != nil {
			return invalid("purchased_at must be YYYY-MM-DD")
		}
	}
	return nil
}

// CreateEquipment registers a new asset in the available state.
func (db *DB) CreateEquipment(in EquipmentInput, actorID string) (*models.Equipment, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := db.checkSerialFree(in.SerialNo, ""); err != nil {
		return nil, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := mustID("eq_")
	now := db.now()
	_, err = tx.Exec(
		`INSERT INTO equipment (id, name, category, serial_no, status, purchased_at, note, created_at, updated_at) VALUES (?, ?, ?, ?, 'available', ?, ?, ?, ?)`,
		id, in.Name, in.Category, in.SerialNo, in.PurchasedAt, in.Note, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert equipment: %w", err)
	}
	if err := db.recordEquipmentEvent(tx, id, "create", "", models.EquipmentAvailable, "", actorID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetEquipment(id)
}

func (db *DB) checkSerialFree(serial, ignoreID string) error {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM equipment WHERE serial_no = ?`, serial).Scan(&id)
	if err == sql.ErrNoRows || id == ignoreID {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check serial: %w", err)
	}
	return fmt.Errorf("%w: serial_no %q already registered", ErrConflict, serial)
}

// GetEquipment returns equipment by ID, or nil if not found.
func (db *DB) GetEquipment(id string) (*models.Equipment, error) {
	e, err := scanEquipment(db.conn.QueryRow(equipmentSelect+` WHERE e.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get equipment: %w", err)
	}
	return e, nil
}

// ListEquipment returns equipment ordered by category then name.
func (db *DB) ListEquipment(f EquipmentFilter, limit int, cursor string) (*PaginatedResult[*models.Equipment], error) {
	var conditions []string
	var args []any
	if f.Status != "" {
		conditions = append(conditions, "e.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conditions = append(conditions, "e.category = ?")
		args = append(args, f.Category)
	}
	if f.AssigneeID != "" {
		conditions = append(conditions, "e.assignee_id = ?")
		args = append(args, f.AssigneeID)
	}
	query := equipmentSelect + where(conditions) + ` ORDER BY e.category, e.name, e.id`
	return paginatedQuery(db.conn, query, args, limit, cursor, func(rows *sql.Rows) (*models.Equipment, error) {
		return scanEquipment(rows)
	})
}

// UpdateEquipment replaces descriptive fields and optionally moves the
// status between available, repair and retired. Assigned equipment must be
// returned before its status can change.
func (db *DB) UpdateEquipment(id string, in EquipmentInput, actorID string) (*models.Equipment, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	current, err := db.GetEquipment(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("equipment %s: %w", id, ErrNotFound)
	}
	if err := db.checkSerialFree(in.SerialNo, id); err != nil {
		return nil, err
	}

	status := current.Status
	if in.Status != "" && in.Status != current.Status {
		if !in.Status.Valid() {
			return nil, invalid("unknown equipment status %q", in.Status)
		}
		if in.Status == models.EquipmentAssigned {
			return nil, invalid("use the assign action to hand out equipment")
		}
		if current.Status == models.EquipmentAssigned {
			return nil, fmt.Errorf("%w: equipment is assigned; return it first", ErrConflict)
		}
		status = in.Status
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE equipment SET name = ?, category = ?, serial_no = ?, status = ?, purchased_at = ?, note = ?, updated_at = ? WHERE id = ?`,
		in.Name, in.Category, in.SerialNo, string(status), in.PurchasedAt, in.Note, db.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update equipment: %w", err)
	}
	if status != current.Status {
		if err := db.recordEquipmentEvent(tx, id, "status", current.Status, status, "", actorID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetEquipment(id)
}

// AssignEquipment hands available equipment to userID.
func (db *DB) AssignEquipment(id, userID, actorID string) (*models.Equipment, error) {
	u, err := db.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Active {
		return nil, invalid("user %s is not an active account", userID)
	}
	return db.transitionEquipment(id, "assign", models.EquipmentAvailable, models.EquipmentAssigned, userID, actorID)
}

// ReturnEquipment takes assigned equipment back into the available pool.
func (db *DB) ReturnEquipment(id, actorID string) (*models.Equipment, error) {
	return db.transitionEquipment(id, "return", models.EquipmentAssigned, models.EquipmentAvailable, "", actorID)
}

func (db *DB) transitionEquipment(id, action string, from, to models.EquipmentStatus, assigneeID, actorID string) (*models.Equipment, error) {
	current, err := db.GetEquipment(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("equipment %s: %w", id, ErrNotFound)
	}
	if current.Status != from {
		return nil, fmt.Errorf("%w: cannot %s equipment in status %s", ErrConflict, action, current.Status)
	}
	historyUser := assigneeID
	if historyUser == "" {
		historyUser = current.AssigneeID
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE equipment SET status = ?, assignee_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), nullString(assigneeID), db.now(), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("%s equipment: %w", action, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: equipment changed concurrently", ErrConflict)
	}
	if err := db.recordEquipmentEvent(tx, id, action, from, to, historyUser, actorID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetEquipment(id)
}

// DeleteEquipment removes an asset and its history.
func (db *DB) DeleteEquipment(id string) error {
	return db.deleteByID("equipment", "equipment", id)
}

func (db *DB) recordEquipmentEvent(tx *sql.Tx, equipmentID, action string, from, to models.EquipmentStatus, userID, actorID string) error {
	_, err := tx.Exec(
		`INSERT INTO equipment_history (equipment_id, action, from_status, to_status, user_id, actor_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		equipmentID, action, string(from), string(to), userID, actorID, db.now(),
	)
	if err != nil {
		return fmt.Errorf("record equipment history: %w", err)
	}
	return nil
}

// EquipmentHistory returns an asset's transitions, oldest first.
func (db *DB) EquipmentHistory(id string) ([]models.EquipmentEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, equipment_id, action, from_status, to_status, user_id, actor_id, created_at FROM equipment_history WHERE equipment_id = ? ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("equipment history: %w", err)
	}
	defer rows.Close()

	events := []models.EquipmentEvent{}
	for rows.Next() {
		var ev models.EquipmentEvent
		var from, to string
		if err := rows.Scan(&ev.ID, &ev.EquipmentID, &ev.Action, &from, &to, &ev.UserID, &ev.ActorID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan equipment event: %w", err)
		}
		ev.FromStatus = models.EquipmentStatus(from)
		ev.ToStatus = models.EquipmentStatus(to)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EquipmentStatusCounts returns how many assets are in each status. Every
// known status is present, zero when empty.
func (db *DB) EquipmentStatusCounts() (map[models.EquipmentStatus]int, error) {
	counts := map[models.EquipmentStatus]int{
		models.EquipmentAvailable: 0,
		models.EquipmentAssigned:  0,
		models.EquipmentRepair:    0,
		models.EquipmentRetired:   0,
	}
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM equipment GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count equipment: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan equipment count: %w", err)
		}
		counts[models.EquipmentStatus(status)] = n
	}
	return counts, rows.Err()
}
