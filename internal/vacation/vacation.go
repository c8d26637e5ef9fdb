// Package vacation holds the calendar rules for leave requests: range
// validation, working-day counting, overlap detection, annual balance and the
// monthly team calendar.
package vacation

import (
	"fmt"
	"sort"
	"time"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/models"
)

// Range is an inclusive span of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseRange parses start and end inputs (any dateparse form) relative to now.
// An empty end means a single-day range.
func ParseRange(start, end string, now time.Time) (Range, error) {
	s, err := dateparse.ParseDayFrom(start, now)
	if err != nil {
		return Range{}, fmt.Errorf("start_date: %w", err)
	}
	e := s
	if end != "" {
		e, err = dateparse.ParseDayFrom(end, now)
		if err != nil {
			return Range{}, fmt.Errorf("end_date: %w", err)
		}
	}
	return Range{Start: s, End: e}, nil
}

// MustRange builds a Range from canonical YYYY-MM-DD strings, panicking on
// malformed input. Stored rows always hold canonical dates.
func MustRange(start, end string) Range {
	s, err := time.Parse(dateparse.Layout, start)
	if err != nil {
		panic(err)
	}
	e, err := time.Parse(dateparse.Layout, end)
	if err != nil {
		panic(err)
	}
	return Range{Start: s, End: e}
}

// StartString returns the canonical start date.
func (r Range) StartString() string { return r.Start.Format(dateparse.Layout) }

// EndString returns the canonical end date.
func (r Range) EndString() string { return r.End.Format(dateparse.Layout) }

// Intersects reports whether r and o share at least one day.
func (r Range) Intersects(o Range) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Contains reports whether day falls inside r.
func (r Range) Contains(day time.Time) bool {
	d := dateparse.Day(day)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Validate checks the shape of a request: known kind, start <= end, and
// half-day kinds spanning exactly one day.
func Validate(kind models.VacationKind, r Range) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown vacation kind %q", kind)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("start_date %s is after end_date %s", r.StartString(), r.EndString())
	}
	if kind.HalfDay() && !r.Start.Equal(r.End) {
		return fmt.Errorf("%s must start and end on the same day", kind)
	}
	return nil
}

// Holidays is a set of non-working dates keyed by YYYY-MM-DD.
type Holidays map[string]bool

// IsWorkingDay reports whether day is a weekday that is not a holiday.
func (h Holidays) IsWorkingDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !h[day.Format(dateparse.Layout)]
}

// WorkingDays counts the leave days a request consumes: working days in the
// range, or 0.5 for a half-day kind on a working day.
func WorkingDays(kind models.VacationKind, r Range, holidays Holidays) float64 {
	var n float64
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if holidays.IsWorkingDay(d) {
			n++
		}
	}
	if kind.HalfDay() && n > 0 {
		return 0.5
	}
	return n
}

// Conflicts reports whether a candidate request clashes with an existing one.
// Only active (pending/approved) requests occupy the calendar, and a morning
// and an afternoon half-day on the same date can coexist.
func Conflicts(kind models.VacationKind, r Range, existing *models.Vacation) bool {
	if !existing.Status.Active() {
		return false
	}
	er := MustRange(existing.StartDate, existing.EndDate)
	if !r.Intersects(er) {
		return false
	}
	if kind.HalfDay() && existing.Kind.HalfDay() && kind != existing.Kind {
		return false
	}
	return true
}

// FindConflict returns the first of existing that conflicts with the candidate,
// skipping the request identified by ignoreID (used when editing).
func FindConflict(kind models.VacationKind, r Range, existing []*models.Vacation, ignoreID string) *models.Vacation {
	for _, v := range existing {
		if v.ID == ignoreID {
			continue
		}
		if Conflicts(kind, r, v) {
			return v
		}
	}
	return nil
}

// Balance summarises annual-leave usage for one year.
type Balance struct {
	Year      int     `json:"year"`
	Allowance float64 `json:"allowance"`
	Used      float64 `json:"used"`
	Pending   float64 `json:"pending"`
	Remaining float64 `json:"remaining"`
}

// ComputeBalance sums allowance-consuming requests starting in year.
func ComputeBalance(year int, allowance float64, vacations []*models.Vacation) Balance {
	b := Balance{Year: year, Allowance: allowance}
	for _, v := range vacations {
		if !v.Kind.ConsumesAllowance() || len(v.StartDate) < 4 || v.StartDate[:4] != fmt.Sprintf("%04d", year) {
			continue
		}
		switch v.Status {
		case models.VacationApproved:
			b.Used += v.Days
		case models.VacationPending:
			b.Pending += v.Days
		}
	}
	b.Remaining = b.Allowance - b.Used - b.Pending
	return b
}

// CalendarEntry is one person's leave on a calendar day.
type CalendarEntry struct {
	VacationID string                `json:"vacation_id"`
	UserID     string                `json:"user_id"`
	UserName   string                `json:"user_name"`
	Kind       models.VacationKind   `json:"kind"`
	Status     models.VacationStatus `json:"status"`
}

// CalendarDay groups the entries of one date.
type CalendarDay struct {
	Date    string          `json:"date"`
	Weekday string          `json:"weekday"`
	Working bool            `json:"working"`
	Entries []CalendarEntry `json:"entries"`
}

var koreanWeekdays = [...]string{"일", "월", "화", "수", "목", "금", "토"}

// MonthRange returns the inclusive range covering the month that starts at first.
func MonthRange(first time.Time) Range {
	return Range{Start: first, End: first.AddDate(0, 1, -1)}
}

// BuildCalendar lays out every day of the month starting at first with the
// active vacations that cover it, entries sorted by user name.
func BuildCalendar(first time.Time, vacations []*models.Vacation, holidays Holidays) []CalendarDay {
	month := MonthRange(first)
	var days []CalendarDay
	for d := month.Start; !d.After(month.End); d = d.AddDate(0, 0, 1) {
		day := CalendarDay{
			Date:    d.Format(dateparse.Layout),
			Weekday: koreanWeekdays[d.Weekday()],
			Working: holidays.IsWorkingDay(d),
			Entries: []CalendarEntry{},
		}
		for _, v := range vacations {
			if !v.Status.Active() || !MustRange(v.StartDate, v.EndDate).Contains(d) {
				continue
			}
			day.Entries = append(day.Entries, CalendarEntry{
				VacationID: v.ID,
				UserID:     v.UserID,
				UserName:   v.UserName,
				Kind:       v.Kind,
				Status:     v.Status,
			})
		}
		sort.SliceStable(day.Entries, func(i, j int) bool {
			return day.Entries[i].UserName < day.Entries[j].UserName
		})
		days = append(days, day)
	}
	return days
}
