// Package dateparse parses the date forms accepted by vacation requests,
// report weeks and calendar queries into ISO 8601 (YYYY-MM-DD) days and
// YYYY-MM months.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical day format.
const Layout = "2006-01-02"

// MonthLayout is the canonical month format.
const MonthLayout = "2006-01"

// ParseDate parses a date input string and returns an ISO 8601 date (YYYY-MM-DD).
// Uses the current time as the reference point.
//
// Supported formats:
//   - Exact dates: "2026-03-01", "2026.03.01", "2026/03/01"
//   - Relative days: "+7d", "-1d"
//   - Relative weeks: "+2w"
//   - Day names: "monday", "월요일", ... (next occurrence)
//   - Keywords: "today"/"오늘", "tomorrow"/"내일", "yesterday"/"어제", "next-week"/"다음주"
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom parses a date input string relative to the given reference time.
func ParseDateFrom(input string, now time.Time) (string, error) {
	t, err := ParseDayFrom(input, now)
	if err != nil {
		return "", err
	}
	return t.Format(Layout), nil
}

// ParseDayFrom is ParseDateFrom returning the day at UTC midnight.
func ParseDayFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date input")
	}
	today := Day(now)

	normalized := strings.NewReplacer(".", "-", "/", "-").Replace(input)
	if t, err := time.Parse(Layout, normalized); err == nil {
		return t, nil
	}

	switch input {
	case "today", "오늘":
		return today, nil
	case "tomorrow", "내일":
		return today.AddDate(0, 0, 1), nil
	case "yesterday", "어제":
		return today.AddDate(0, 0, -1), nil
	case "next-week", "다음주":
		daysUntilMonday := (int(time.Monday) - int(today.Weekday()) + 7) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		return today.AddDate(0, 0, daysUntilMonday), nil
	}

	// Relative offsets: +Nd, -Nd, +Nw
	if (input[0] == '+' || input[0] == '-') && len(input) >= 3 {
		suffix := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			if input[0] == '-' {
				n = -n
			}
			switch suffix {
			case 'd':
				return today.AddDate(0, 0, n), nil
			case 'w':
				return today.AddDate(0, 0, n*7), nil
			default:
				return time.Time{}, fmt.Errorf("unknown relative unit %q in %q (use d or w)", string(suffix), input)
			}
		}
	}

	if target, ok := dayNames[input]; ok {
		daysAhead := (int(target) - int(today.Weekday()) + 7) % 7
		if daysAhead == 0 {
			daysAhead = 7
		}
		return today.AddDate(0, 0, daysAhead), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"일요일":       time.Sunday,
	"월요일":       time.Monday,
	"화요일":       time.Tuesday,
	"수요일":       time.Wednesday,
	"목요일":       time.Thursday,
	"금요일":       time.Friday,
	"토요일":       time.Saturday,
}

// ParseMonthFrom parses "YYYY-MM", "this-month" or "next-month" and returns the
// first day of that month at UTC midnight.
func ParseMonthFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	today := Day(now)
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch input {
	case "", "this-month", "이번달":
		return first, nil
	case "next-month", "다음달":
		return first.AddDate(0, 1, 0), nil
	case "last-month", "지난달":
		return first.AddDate(0, -1, 0), nil
	}
	t, err := time.Parse(MonthLayout, strings.ReplaceAll(input, ".", "-"))
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized month format: %q", input)
	}
	return t, nil
}

// Day truncates t to midnight UTC of its calendar date (in t's location).
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of the week containing t.
func WeekStart(t time.Time) time.Time {
	d := Day(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
