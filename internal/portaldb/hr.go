package portaldb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fitteam/fitlib/internal/models"
)

// EmployeeInput holds the writable fields of an HR record.
type EmployeeInput struct {
	UserID         string
	Name           string
	Department     string
	Position       string
	EmploymentType string
	Status         models.EmploymentStatus
	JoinedOn       string
	ResignedOn     string
	Phone          string
	Email          string
	Memo           string
}

// EmployeeFilter narrows ListEmployees.
type EmployeeFilter struct {
	Department string
	Status     models.EmploymentStatus
	Query      string
}

const employeeSelect = `SELECT id, COALESCE(user_id, ''), name, department, position, employment_type, status, joined_on, resigned_on,
	phone, email, memo, created_at, updated_at FROM employees`

func scanEmployee(row interface{ Scan(...any) error }) (*models.Employee, error) {
	e := &models.Employee{}
	var status string
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Department, &e.Position, &e.EmploymentType, &status, &e.JoinedOn, &e.ResignedOn,
		&e.Phone, &e.Email, &e.Memo, &e.CreatedAt, &e.UpdatedAt)
	e.Status = models.EmploymentStatus(status)
	return e, err
}

func (in *EmployeeInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.Status == "" {
		in.Status = models.EmploymentActive
	}
	if !in.Status.Valid() {
		return invalid("unknown employment status %q", in.Status)
	}
	joined, err := time.Parse("2006-01-02", in.JoinedOn)
	if err != nil {
		return invalid("joined_on must be YYYY-MM-DD")
	}
	if in.Status != models.EmploymentResigned {
		in.ResignedOn = ""
		return nil
	}
	if in.ResignedOn == "" {
		return invalid("resigned_on is required when status is resigned")
	}
	resigned, err := time.Parse("2006-01-02", in.ResignedOn)
	if err != nil {
		return invalid("resigned_on must be YYYY-MM-DD")
	}
	if resigned.Before(joined) {
		return invalid("resigned_on %s is before joined_on %s", in.ResignedOn, in.JoinedOn)
	}
	return nil
}

// CreateEmployee adds an HR record.
func (db *DB) CreateEmployee(in EmployeeInput) (*models.Employee, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	id := mustID("hr_")
	now := db.now()
	_, err := db.conn.Exec(
		`INSERT INTO employees (id, user_id, name, department, position, employment_type, status, joined_on, resigned_on, phone, email, memo, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullString(in.UserID), in.Name, in.Department, in.Position, in.EmploymentType, string(in.Status), in.JoinedOn, in.ResignedOn,
		in.Phone, in.Email, in.Memo, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert employee: %w", err)
	}
	return db.GetEmployee(id)
}

// GetEmployee returns an HR record by ID, or nil if not found.
func (db *DB) GetEmployee(id string) (*models.Employee, error) {
	e, err := scanEmployee(db.conn.QueryRow(employeeSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// ListEmployees returns HR records ordered by department then name.
func (db *DB) ListEmployees(f EmployeeFilter, limit int, cursor string) (*PaginatedResult[*models.Employee], error) {
	var conditions []string
	var args []any
	if f.Department != "" {
		conditions = append(conditions, "department = ?")
		args = append(args, f.Department)
	}
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		conditions = append(conditions, "(name LIKE ? OR position LIKE ? OR email LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like, like)
	}
	query := employeeSelect + where(conditions) + ` ORDER BY department, name, id`
	return paginatedQuery(db.conn, query, args, limit, cursor, func(rows *sql.Rows) (*models.Employee, error) {
		return scanEmployee(rows)
	})
}

// UpdateEmployee replaces an HR record's writable fields.
func (db *DB) UpdateEmployee(id string, in EmployeeInput) (*models.Employee, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	res, err := db.conn.Exec(
		`UPDATE employees SET user_id = ?, name = ?, department = ?, position = ?, employment_type = ?, status = ?, joined_on = ?, resigned_on = ?,
		 phone = ?, email = ?, memo = ?, updated_at = ? WHERE id = ?`,
		nullString(in.UserID), in.Name, in.Department, in.Position, in.EmploymentType, string(in.Status), in.JoinedOn, in.ResignedOn,
		in.Phone, in.Email, in.Memo, db.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update employee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	return db.GetEmployee(id)
}

// DeleteEmployee removes an HR record.
func (db *DB) DeleteEmployee(id string) error {
	return db.deleteByID("employees", "employee", id)
}

// Counts is the dashboard summary of record totals.
type Counts struct {
	Users             int `json:"users"`
	Employees         int `json:"employees"`
	EquipmentAssigned int `json:"equipment_assigned"`
	PendingVacations  int `json:"pending_vacations"`
}

// CountRecords returns headline totals for the dashboard.
func (db *DB) CountRecords() (Counts, error) {
	var c Counts
	err := db.conn.QueryRow(`SELECT
		(SELECT COUNT(*) FROM users WHERE active = 1),
		(SELECT COUNT(*) FROM employees WHERE status != 'resigned'),
		(SELECT COUNT(*) FROM equipment WHERE status = 'assigned'),
		(SELECT COUNT(*) FROM vacations WHERE status = 'pending')`).
		Scan(&c.Users, &c.Employees, &c.EquipmentAssigned, &c.PendingVacations)
	if err != nil {
		return c, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}
