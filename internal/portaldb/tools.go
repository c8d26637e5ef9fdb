package portaldb

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/fitteam/fitlib/internal/models"
)

// ToolInput holds the writable fields of a directory entry.
type ToolInput struct {
	Name        string
	Category    string
	URL         string
	Description string
	OwnerName   string
	OrderNo     int
}

// ToolGroup is one category of the directory.
type ToolGroup struct {
	Category string         `json:"category"`
	Tools    []*models.Tool `json:"tools"`
}

const toolSelect = `SELECT id, name, category, url, description, owner_name, order_no, created_at, updated_at FROM tools`

func scanTool(row interface{ Scan(...any) error }) (*models.Tool, error) {
	t := &models.Tool{}
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.URL, &t.Description, &t.OwnerName, &t.OrderNo, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (in *ToolInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.URL = strings.TrimSpace(in.URL)
	if in.Name == "" {
		return invalid("name is required")
	}
	u, err := url.Parse(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url must be an absolute http or https URL")
	}
	return nil
}

// CreateTool adds a directory entry.
func (db *DB) CreateTool(in ToolInput) (*models.Tool, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	id := mustID("tl_")
	now := db.now()
	_, err := db.conn.Exec(
		`INSERT INTO tools (id, name, category, url, description, owner_name, order_no, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Name, in.Category, in.URL, in.Description, in.OwnerName, in.OrderNo, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert tool: %w", err)
	}
	return db.GetTool(id)
}

// GetTool returns a tool by ID, or nil if not found.
func (db *DB) GetTool(id string) (*models.Tool, error) {
	t, err := scanTool(db.conn.QueryRow(toolSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tool: %w", err)
	}
	return t, nil
}

// ListTools returns the directory grouped by category. Groups are ordered by
// category name; tools within a group by order_no then name.
func (db *DB) ListTools(category string) ([]ToolGroup, error) {
	query := toolSelect
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	rows, err := db.conn.Query(query+` ORDER BY category, order_no, name`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	groups := []ToolGroup{}
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tool: %w", err)
		}
		if n := len(groups); n == 0 || groups[n-1].Category != t.Category {
			groups = append(groups, ToolGroup{Category: t.Category})
		}
		g := &groups[len(groups)-1]
		g.Tools = append(g.Tools, t)
	}
	return groups, rows.Err()
}

// UpdateTool replaces a tool's writable fields.
func (db *DB) UpdateTool(id string, in ToolInput) (*models.Tool, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	res, err := db.conn.Exec(
		`UPDATE tools SET name = ?, category = ?, url = ?, description = ?, owner_name = ?, order_no = ?, updated_at = ? WHERE id = ?`,
		in.Name, in.Category, in.URL, in.Description, in.OwnerName, in.OrderNo, db.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update tool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("tool %s: %w", id, ErrNotFound)
	}
	return db.GetTool(id)
}

// DeleteTool removes a directory entry.
func (db *DB) DeleteTool(id string) error {
	return db.deleteByID("tools", "tool", id)
}
