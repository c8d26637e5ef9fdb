package portaldb

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fitteam/fitlib/internal/models"
)

// NoticeInput holds the writable fields of a notice. ContentHTML is the
// rendered form of Content, produced by the caller.
type NoticeInput struct {
	Title       string
	Content     string
	ContentHTML string
	Important   bool
}

const noticeSelect = `SELECT n.id, n.title, n.content, n.content_html, n.important, n.author_id, COALESCE(u.name, ''), n.views, n.created_at, n.updated_at
	FROM notices n LEFT JOIN users u ON u.id = n.author_id`

func scanNotice(row interface{ Scan(...any) error }) (*models.Notice, error) {
	n := &models.Notice{}
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.ContentHTML, &n.Important, &n.AuthorID, &n.AuthorName, &n.Views, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// CreateNotice inserts a notice authored by authorID.
func (db *DB) CreateNotice(in NoticeInput, authorID string) (*models.Notice, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	id := mustID("n_")
	now := db.now()
	_, err := db.conn.Exec(
		`INSERT INTO notices (id, title, content, content_html, important, author_id, views, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, in.Title, in.Content, in.ContentHTML, in.Important, authorID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notice: %w", err)
	}
	return db.GetNotice(id)
}

// GetNotice returns a notice by ID, or nil if not found.
func (db *DB) GetNotice(id string) (*models.Notice, error) {
	n, err := scanNotice(db.conn.QueryRow(noticeSelect+` WHERE n.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notice: %w", err)
	}
	return n, nil
}

// ViewNotice increments the view counter and returns the updated notice,
// or nil if not found.
func (db *DB) ViewNotice(id string) (*models.Notice, error) {
	res, err := db.conn.Exec(`UPDATE notices SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("count notice view: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return db.GetNotice(id)
}

// ListNotices returns notices with important ones first, then newest first.
// q filters by a substring of the title or content.
func (db *DB) ListNotices(q string, limit int, cursor string) (*PaginatedResult[*models.Notice], error) {
	var conditions []string
	var args []any
	if q = strings.TrimSpace(q); q != "" {
		conditions = append(conditions, "(n.title LIKE ? OR n.content LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like)
	}
	query := noticeSelect + where(conditions) + ` ORDER BY n.important DESC, n.created_at DESC, n.id DESC`
	return paginatedQuery(db.conn, query, args, limit, cursor, func(rows *sql.Rows) (*models.Notice, error) {
		return scanNotice(rows)
	})
}

// UpdateNotice replaces a notice's writable fields.
func (db *DB) UpdateNotice(id string, in NoticeInput) (*models.Notice, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title cannot be empty")
	}
	res, err := db.conn.Exec(
		`UPDATE notices SET title = ?, content = ?, content_html = ?, important = ?, updated_at = ? WHERE id = ?`,
		in.Title, in.Content, in.ContentHTML, in.Important, db.now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update notice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("notice %s: %w", id, ErrNotFound)
	}
	return db.GetNotice(id)
}

// DeleteNotice removes a notice.
func (db *DB) DeleteNotice(id string) error {
	return db.deleteByID("notices", "notice", id)
}

// deleteByID deletes one row of table by primary key, mapping a miss to ErrNotFound.
func (db *DB) deleteByID(table, noun, id string) error {
	res, err := db.conn.Exec(`DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", noun, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", noun, id, ErrNotFound)
	}
	return nil
}
