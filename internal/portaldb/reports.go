package portaldb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/models"
)

// ReportInput holds the writable fields of a weekly report. WeekStart may be
// any YYYY-MM-DD date; it is normalised to the Monday of its week.
type ReportInput struct {
	WeekStart string
	Done      string
	Plan      string
	Issues    string
}

// WeekListing is the submission state of one week.
type WeekListing struct {
	WeekStart string           `json:"week_start"`
	Reports   []*models.Report `json:"reports"`
	Missing   []*models.User   `json:"missing"`
}

const reportSelect = `SELECT r.id, r.user_id, COALESCE(u.name, ''), r.week_start, r.done, r.plan, r.issues, r.created_at, r.updated_at
	FROM reports r LEFT JOIN users u ON u.id = r.user_id`

func scanReport(row interface{ Scan(...any) error }) (*models.Report, error) {
	r := &models.Report{}
	err := row.Scan(&r.ID, &r.UserID, &r.UserName, &r.WeekStart, &r.Done, &r.Plan, &r.Issues, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// NormalizeWeek returns the Monday of the week containing date (YYYY-MM-DD).
func NormalizeWeek(date string) (string, error) {
	d, err := time.Parse(dateparse.Layout, date)
	if err != nil {
		return "", invalid("week_start must be YYYY-MM-DD")
	}
	return dateparse.WeekStart(d).Format(dateparse.Layout), nil
}

// CreateReport files userID's report for a week. A second report for the
// same week fails with ErrDuplicateReport.
func (db *DB) CreateReport(userID string, in ReportInput) (*models.Report, error) {
	week, err := NormalizeWeek(in.WeekStart)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Done) == "" && strings.TrimSpace(in.Plan) == "" {
		return nil, invalid("done or plan is required")
	}

	var existing string
	err = db.conn.QueryRow(`SELECT id FROM reports WHERE user_id = ? AND week_start = ?`, userID, week).Scan(&existing)
	if err == nil {
		return nil, fmt.Errorf("%w (%s, week of %s)", ErrDuplicateReport, existing, week)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check report: %w", err)
	}

	id := mustID("r_")
	now := db.now()
	_, err = db.conn.Exec(
		`INSERT INTO reports (id, user_id, week_start, done, plan, issues, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, week, in.Done, in.Plan, in.Issues, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w (week of %s)", ErrDuplicateReport, week)
		}
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return db.GetReport(id)
}

// GetReport returns a report without replies, or nil if not found.
func (db *DB) GetReport(id string) (*models.Report, error) {
	r, err := scanReport(db.conn.QueryRow(reportSelect+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

// GetReportThread returns a report with its replies assembled into a tree,
// or nil if not found.
func (db *DB) GetReportThread(id string) (*models.Report, error) {
	r, err := db.GetReport(id)
	if err != nil || r == nil {
		return r, err
	}
	replies, err := db.listReplies(id)
	if err != nil {
		return nil, err
	}
	r.Replies = BuildReplyTree(replies)
	return r, nil
}

// UpdateReport replaces a report's body. The week cannot change.
func (db *DB) UpdateReport(id string, in ReportInput) (*models.Report, error) {
	if strings.TrimSpace(in.Done) == "" && strings.TrimSpace(in.Plan) == "" {
		return nil, invalid("done or plan is required")
	}
	res, err := db.conn.Exec(`UPDATE reports SET done = ?, plan = ?, issues = ?, updated_at = ? WHERE id = ?`,
		in.Done, in.Plan, in.Issues, db.now(), id)
	if err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return db.GetReport(id)
}

// DeleteReport removes a report and its thread.
func (db *DB) DeleteReport(id string) error {
	return db.deleteByID("reports", "report", id)
}

// ListReportsForWeek returns the reports filed for the week containing date,
// ordered by author name, plus the active non-guest users who have not filed.
func (db *DB) ListReportsForWeek(date string) (*WeekListing, error) {
	week, err := NormalizeWeek(date)
	if err != nil {
		return nil, err
	}
	listing := &WeekListing{WeekStart: week, Reports: []*models.Report{}, Missing: []*models.User{}}

	rows, err := db.conn.Query(reportSelect+` WHERE r.week_start = ? ORDER BY u.name, r.created_at`, week)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	submitted := make(map[string]bool)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan report: %w", err)
		}
		submitted[r.UserID] = true
		listing.Reports = append(listing.Reports, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("list reports: iterate: %w", err)
	}

	users, err := db.ListUsers(true)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Grade != models.GradeGuest && !submitted[u.ID] {
			listing.Missing = append(listing.Missing, u)
		}
	}
	return listing, nil
}

// ListReportsByUser returns a user's reports, newest week first.
func (db *DB) ListReportsByUser(userID string, limit int, cursor string) (*PaginatedResult[*models.Report], error) {
	query := reportSelect + ` WHERE r.user_id = ? ORDER BY r.week_start DESC`
	return paginatedQuery(db.conn, query, []any{userID}, limit, cursor, func(rows *sql.Rows) (*models.Report, error) {
		return scanReport(rows)
	})
}

const replySelect = `SELECT p.id, p.report_id, COALESCE(p.parent_id, ''), p.author_id, COALESCE(u.name, ''), p.body, p.deleted, p.created_at
	FROM report_replies p LEFT JOIN users u ON u.id = p.author_id`

func scanReply(row interface{ Scan(...any) error }) (*models.ReportReply, error) {
	r := &models.ReportReply{}
	err := row.Scan(&r.ID, &r.ReportID, &r.ParentID, &r.AuthorID, &r.AuthorName, &r.Body, &r.Deleted, &r.CreatedAt)
	return r, err
}

// AddReply posts a reply to a report. A non-empty parentID must name a live
// reply of the same report.
func (db *DB) AddReply(reportID, parentID, authorID, body string) (*models.ReportReply, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalid("body is required")
	}
	r, err := db.GetReport(reportID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if parentID != "" {
		parent, err := db.GetReply(parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.ReportID != reportID {
			return nil, invalid("parent reply %s does not belong to report %s", parentID, reportID)
		}
		if parent.Deleted {
			return nil, invalid("cannot reply to a deleted reply")
		}
	}

	id := mustID("rr_")
	_, err = db.conn.Exec(
		`INSERT INTO report_replies (id, report_id, parent_id, author_id, body, deleted, created_at) VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, reportID, nullString(parentID), authorID, body, db.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reply: %w", err)
	}
	return db.GetReply(id)
}

// GetReply returns a reply by ID, or nil if not found.
func (db *DB) GetReply(id string) (*models.ReportReply, error) {
	r, err := scanReply(db.conn.QueryRow(replySelect+` WHERE p.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reply: %w", err)
	}
	return r, nil
}

// DeleteReply removes a reply. A reply that still has children is kept as a
// tombstone with its body blanked; removing the last child of a tombstone
// removes the tombstone too, up the chain.
func (db *DB) DeleteReply(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parentID sql.NullString
	err = tx.QueryRow(`SELECT parent_id FROM report_replies WHERE id = ?`, id).Scan(&parentID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("reply %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get reply: %w", err)
	}

	children, err := countChildReplies(tx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		if _, err := tx.Exec(`UPDATE report_replies SET body = '', deleted = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("tombstone reply: %w", err)
		}
		return tx.Commit()
	}

	if _, err := tx.Exec(`DELETE FROM report_replies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reply: %w", err)
	}
	for parentID.Valid {
		var deleted bool
		var grandparent sql.NullString
		err := tx.QueryRow(`SELECT deleted, parent_id FROM report_replies WHERE id = ?`, parentID.String).Scan(&deleted, &grandparent)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return fmt.Errorf("get parent reply: %w", err)
		}
		if !deleted {
			break
		}
		n, err := countChildReplies(tx, parentID.String)
		if err != nil {
			return err
		}
		if n > 0 {
			break
		}
		if _, err := tx.Exec(`DELETE FROM report_replies WHERE id = ?`, parentID.String); err != nil {
			return fmt.Errorf("prune tombstone: %w", err)
		}
		parentID = grandparent
	}
	return tx.Commit()
}

func countChildReplies(tx *sql.Tx, id string) (int, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM report_replies WHERE parent_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}
	return n, nil
}

func (db *DB) listReplies(reportID string) ([]*models.ReportReply, error) {
	rows, err := db.conn.Query(replySelect+` WHERE p.report_id = ? ORDER BY p.created_at, p.id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()
	var out []*models.ReportReply
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BuildReplyTree nests replies under their parents. Input order is kept at
// every level, so callers pass replies sorted by created_at. Replies whose
// parent is missing are promoted to the root.
func BuildReplyTree(replies []*models.ReportReply) []*models.ReportReply {
	byID := make(map[string]*models.ReportReply, len(replies))
	for _, r := range replies {
		r.Children = nil
		byID[r.ID] = r
	}
	roots := []*models.ReportReply{}
	for _, r := range replies {
		if parent, ok := byID[r.ParentID]; ok && r.ParentID != "" && parent != r {
			parent.Children = append(parent.Children, r)
			continue
		}
		roots = append(roots, r)
	}
	return roots
}
