package portaldb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/vacation"
)

// VacationInput describes a leave request. Dates are canonical YYYY-MM-DD.
type VacationInput struct {
	Kind      models.VacationKind
	StartDate string
	EndDate   string
	Reason    string
}

// VacationFilter narrows ListVacations. Empty fields are ignored.
type VacationFilter struct {
	UserID string
	Status models.VacationStatus
	From   string // inclusive, YYYY-MM-DD; matches requests ending on or after From
	To     string // inclusive, YYYY-MM-DD; matches requests starting on or before To
}

const vacationSelect = `SELECT v.id, v.user_id, COALESCE(u.name, ''), v.kind, v.start_date, v.end_date, v.days, v.reason,
	v.status, COALESCE(v.approver_id, ''), v.decided_at, v.created_at, v.updated_at
	FROM vacations v LEFT JOIN users u ON u.id = v.user_id`

func scanVacation(row interface{ Scan(...any) error }) (*models.Vacation, error) {
	v := &models.Vacation{}
	var kind, status string
	err := row.Scan(&v.ID, &v.UserID, &v.UserName, &kind, &v.StartDate, &v.EndDate, &v.Days, &v.Reason,
		&status, &v.ApproverID, &v.DecidedAt, &v.CreatedAt, &v.UpdatedAt)
	v.Kind = models.VacationKind(kind)
	v.Status = models.VacationStatus(status)
	return v, err
}

func queryVacations(q interface {
	Query(string, ...any) (*sql.Rows, error)
}, query string, args ...any) ([]*models.Vacation, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vacations: %w", err)
	}
	defer rows.Close()

	out := []*models.Vacation{}
	for rows.Next() {
		v, err := scanVacation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vacation: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vacations: iterate: %w", err)
	}
	return out, nil
}

// checkVacation validates a request for userID against the calendar rules,
// the user's other active requests and the annual allowance. It returns the
// number of leave days the request consumes.
func (db *DB) checkVacation(tx *sql.Tx, userID string, in VacationInput, allowance float64, ignoreID string) (float64, error) {
	if in.EndDate == "" {
		in.EndDate = in.StartDate
	}
	r, err := parseStoredRange(in.StartDate, in.EndDate)
	if err != nil {
		return 0, err
	}
	if err := vacation.Validate(in.Kind, r); err != nil {
		return 0, invalid("%v", err)
	}

	holidays, err := loadHolidays(tx, r)
	if err != nil {
		return 0, err
	}
	days := vacation.WorkingDays(in.Kind, r, holidays)
	if days == 0 {
		return 0, invalid("request covers no working days")
	}

	existing, err := queryVacations(tx, vacationSelect+
		` WHERE v.user_id = ? AND v.status IN ('pending', 'approved') AND v.start_date <= ? AND v.end_date >= ?`,
		userID, r.EndString(), r.StartString())
	if err != nil {
		return 0, err
	}
	if clash := vacation.FindConflict(in.Kind, r, existing, ignoreID); clash != nil {
		return 0, fmt.Errorf("%w (%s %s~%s)", ErrVacationOverlap, clash.ID, clash.StartDate, clash.EndDate)
	}

	if in.Kind.ConsumesAllowance() {
		year := r.Start.Year()
		sameYear, err := queryVacations(tx, vacationSelect+
			` WHERE v.user_id = ? AND v.status IN ('pending', 'approved') AND v.start_date LIKE ?`,
			userID, fmt.Sprintf("%04d-%%", year))
		if err != nil {
			return 0, err
		}
		var others []*models.Vacation
		for _, v := range sameYear {
			if v.ID != ignoreID {
				others = append(others, v)
			}
		}
		bal := vacation.ComputeBalance(year, allowance, others)
		if bal.Remaining < days {
			return 0, fmt.Errorf("%w: request needs %.1f days but only %.1f remain in %d", ErrConflict, days, bal.Remaining, year)
		}
	}
	return days, nil
}

func parseStoredRange(start, end string) (vacation.Range, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return vacation.Range{}, invalid("start_date must be YYYY-MM-DD")
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return vacation.Range{}, invalid("end_date must be YYYY-MM-DD")
	}
	return vacation.Range{Start: s, End: e}, nil
}

// CreateVacation files a pending leave request for userID. A request that
// overlaps the user's active requests fails with ErrVacationOverlap; one that
// exceeds the remaining allowance fails with ErrConflict.
func (db *DB) CreateVacation(userID string, in VacationInput, allowance float64) (*models.Vacation, error) {
	if in.EndDate == "" {
		in.EndDate = in.StartDate
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	days, err := db.checkVacation(tx, userID, in, allowance, "")
	if err != nil {
		return nil, err
	}

	id := mustID("v_")
	now := db.now()
	_, err = tx.Exec(
		`INSERT INTO vacations (id, user_id, kind, start_date, end_date, days, reason, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		id, userID, string(in.Kind), in.StartDate, in.EndDate, days, strings.TrimSpace(in.Reason), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vacation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetVacation(id)
}

// UpdateVacation edits a pending request. Only pending requests can change.
func (db *DB) UpdateVacation(id string, in VacationInput, allowance float64) (*models.Vacation, error) {
	if in.EndDate == "" {
		in.EndDate = in.StartDate
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanVacation(tx.QueryRow(vacationSelect+` WHERE v.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vacation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vacation: %w", err)
	}
	if current.Status != models.VacationPending {
		return nil, fmt.Errorf("%w: only pending requests can be edited (status %s)", ErrConflict, current.Status)
	}

	days, err := db.checkVacation(tx, current.UserID, in, allowance, id)
	if err != nil {
		return nil, err
	}
	if err := editPendingVacation(tx, id, in, days, db.now()); err != nil {
		if errors.Is(err, errNotPending) {
			tx.Rollback()
			return nil, db.vacationTransitionError(id, "edited")
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return db.GetVacation(id)
}

var errNotPending = errors.New("vacation is no longer pending")

// editPendingVacation rewrites a request that is still pending. It reports
// errNotPending when a decision or cancellation got there first.
func editPendingVacation(tx *sql.Tx, id string, in VacationInput, days float64, now time.Time) error {
	res, err := tx.Exec(
		`UPDATE vacations SET kind = ?, start_date = ?, end_date = ?, days = ?, reason = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(in.Kind), in.StartDate, in.EndDate, days, strings.TrimSpace(in.Reason), now, id,
	)
	if err != nil {
		return fmt.Errorf("update vacation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update vacation: %w", err)
	}
	if n == 0 {
		return errNotPending
	}
	return nil
}

// GetVacation returns a vacation by ID, or nil if not found.
func (db *DB) GetVacation(id string) (*models.Vacation, error) {
	v, err := scanVacation(db.conn.QueryRow(vacationSelect+` WHERE v.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vacation: %w", err)
	}
	return v, nil
}

// ListVacations returns requests ordered by start date.
func (db *DB) ListVacations(f VacationFilter) ([]*models.Vacation, error) {
	var conditions []string
	var args []any
	if f.UserID != "" {
		conditions = append(conditions, "v.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conditions = append(conditions, "v.status = ?")
		args = append(args, string(f.Status))
	}
	if f.From != "" {
		conditions = append(conditions, "v.end_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		conditions = append(conditions, "v.start_date <= ?")
		args = append(args, f.To)
	}
	return queryVacations(db.conn, vacationSelect+where(conditions)+` ORDER BY v.start_date, v.created_at`, args...)
}

// DecideVacation approves or rejects a pending request.
func (db *DB) DecideVacation(id, approverID string, approve bool) (*models.Vacation, error) {
	status := models.VacationRejected
	if approve {
		status = models.VacationApproved
	}
	now := db.now()
	res, err := db.conn.Exec(
		`UPDATE vacations SET status = ?, approver_id = ?, decided_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), approverID, now, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("decide vacation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, db.vacationTransitionError(id, "decided")
	}
	return db.GetVacation(id)
}

// CancelVacation withdraws a request. Pending requests can always be
// cancelled; approved ones only before they start.
func (db *DB) CancelVacation(id string) (*models.Vacation, error) {
	today := db.Today()
	res, err := db.conn.Exec(
		`UPDATE vacations SET status = 'cancelled', updated_at = ?
		 WHERE id = ? AND (status = 'pending' OR (status = 'approved' AND start_date > ?))`,
		db.now(), id, today,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel vacation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, db.vacationTransitionError(id, "cancelled")
	}
	return db.GetVacation(id)
}

func (db *DB) vacationTransitionError(id, verb string) error {
	v, err := db.GetVacation(id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("vacation %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("%w: vacation in status %s starting %s cannot be %s", ErrConflict, v.Status, v.StartDate, verb)
}

// AddHoliday registers a non-working date.
func (db *DB) AddHoliday(date, name string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return invalid("holiday date must be YYYY-MM-DD")
	}
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO holidays (date, name, created_at) VALUES (?, ?, ?)`, date, strings.TrimSpace(name), db.now())
	if err != nil {
		return fmt.Errorf("insert holiday: %w", err)
	}
	return nil
}

// Holiday is a registered non-working date.
type Holiday struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// ListHolidays returns holidays within r, ordered by date.
func (db *DB) ListHolidays(r vacation.Range) ([]Holiday, error) {
	rows, err := db.conn.Query(`SELECT date, name FROM holidays WHERE date >= ? AND date <= ? ORDER BY date`, r.StartString(), r.EndString())
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	defer rows.Close()
	out := []Holiday{}
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.Date, &h.Name); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list holidays: iterate: %w", err)
	}
	return out, nil
}

// HolidaySet returns holidays within r as a lookup set.
func (db *DB) HolidaySet(r vacation.Range) (vacation.Holidays, error) {
	return loadHolidays(db.conn, r)
}

// DeleteHoliday removes a registered holiday.
func (db *DB) DeleteHoliday(date string) error {
	res, err := db.conn.Exec(`DELETE FROM holidays WHERE date = ?`, date)
	if err != nil {
		return fmt.Errorf("delete holiday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("holiday %s: %w", date, ErrNotFound)
	}
	return nil
}

func loadHolidays(q interface {
	Query(string, ...any) (*sql.Rows, error)
}, r vacation.Range) (vacation.Holidays, error) {
	rows, err := q.Query(`SELECT date FROM holidays WHERE date >= ? AND date <= ?`, r.StartString(), r.EndString())
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	defer rows.Close()
	set := vacation.Holidays{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		set[d] = true
	}
	return set, rows.Err()
}
