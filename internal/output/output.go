// Package output provides styled terminal output helpers (success, error,
// warning, user and vacation formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/permission"
)

// Out is where every helper writes. Tests swap it for a buffer.
var Out io.Writer = os.Stdout

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	gradeStyles  = map[models.Grade]lipgloss.Style{
		models.GradeAdmin:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.GradeLeader: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.GradeMember: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.GradeGuest:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	vacationStyles = map[models.VacationStatus]lipgloss.Style{
		models.VacationPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.VacationApproved:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.VacationRejected:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.VacationCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...any) {
	fmt.Fprintln(Out, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...any) {
	fmt.Fprintln(Out, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...any) {
	fmt.Fprintln(Out, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...any) {
	fmt.Fprintln(Out, fmt.Sprintf(format, args...))
}

// JSON outputs data as indented JSON
func JSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeDatabaseError = "database_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Fprintln(Out, string(data))
}

// FormatGrade formats a grade with color
func FormatGrade(g models.Grade) string {
	style, ok := gradeStyles[g]
	if !ok {
		return string(g)
	}
	return style.Render(fmt.Sprintf("[%s]", g))
}

// FormatVacationStatus formats a vacation status with color
func FormatVacationStatus(s models.VacationStatus) string {
	style, ok := vacationStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatTimeAgo formats t relative to now, e.g. "3 hours ago". Times more
// than a week old are shown as a date.
func FormatTimeAgo(t, now time.Time) string {
	if now.Sub(t) < time.Minute && !t.After(now) {
		return "just now"
	}
	if now.Sub(t) >= 7*24*time.Hour {
		return t.Format("2006-01-02")
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatDays prints a leave-day count without trailing zeros: 1, 0.5, 2.5.
func FormatDays(days float64) string {
	return humanize.Ftoa(days) + "d"
}

// UserLine formats a user in one line.
func UserLine(u *models.User) string {
	parts := []string{
		titleStyle.Render(u.ID),
		u.LoginID,
		u.Name,
		FormatGrade(u.Grade),
	}
	if u.Email != "" {
		parts = append(parts, subtleStyle.Render(u.Email))
	}
	if !u.Active {
		parts = append(parts, errorStyle.Render("[inactive]"))
	}
	return strings.Join(parts, "  ")
}

// VacationLine formats a leave request in one line.
func VacationLine(v *models.Vacation) string {
	span := v.StartDate
	if v.EndDate != v.StartDate {
		span += " ~ " + v.EndDate
	}
	parts := []string{
		titleStyle.Render(v.ID),
		v.UserName,
		string(v.Kind),
		span,
		subtleStyle.Render(FormatDays(v.Days)),
		FormatVacationStatus(v.Status),
	}
	return strings.Join(parts, "  ")
}

// MenuTree renders menu items as an indented tree, one item per line.
func MenuTree(items []permission.Item) string {
	var sb strings.Builder
	writeMenu(&sb, items, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func writeMenu(sb *strings.Builder, items []permission.Item, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, it := range items {
		line := fmt.Sprintf("%s%s %s", indent, titleStyle.Render(it.Key), it.Title)
		if it.Path != "" {
			line += "  " + subtleStyle.Render(it.Path)
		}
		access := "read " + string(it.ReadGrade)
		if it.WriteGrade != "" {
			access += ", write " + string(it.WriteGrade)
		}
		sb.WriteString(line + "  " + subtleStyle.Render("("+access+")") + "\n")
		writeMenu(sb, it.Children, depth+1)
	}
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nVACATIONS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// Truncate shortens s to fit width cells, marking the cut with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
