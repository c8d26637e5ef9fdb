package portaldb

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// PaginatedResult is one page of a list query.
type PaginatedResult[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// NormalizeLimit clamps a requested page size into [1, maxPageLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

// encodeCursor turns a row offset into an opaque cursor.
func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

// decodeCursor parses a cursor produced by encodeCursor. Empty means offset 0.
func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, invalid("malformed cursor")
	}
	s, ok := strings.CutPrefix(string(raw), "o:")
	if !ok {
		return 0, invalid("malformed cursor")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, invalid("malformed cursor")
	}
	return n, nil
}

// paginatedQuery runs query (which must already carry its ORDER BY) with
// LIMIT/OFFSET derived from limit and cursor, fetching one extra row to decide
// HasMore.
func paginatedQuery[T any](conn *sql.DB, query string, args []any, limit int, cursor string, scanRow func(*sql.Rows) (T, error)) (*PaginatedResult[T], error) {
	limit = NormalizeLimit(limit)
	offset, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit+1, offset)
	rows, err := conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("paginated query: %w", err)
	}
	defer rows.Close()

	result := &PaginatedResult[T]{Data: make([]T, 0, limit)}
	for rows.Next() {
		item, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result.Data = append(result.Data, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("paginated query: iterate: %w", err)
	}

	if len(result.Data) > limit {
		result.Data = result.Data[:limit]
		result.HasMore = true
		result.NextCursor = encodeCursor(offset + limit)
	}
	return result, nil
}

// where joins conditions into a WHERE clause; it returns "" for none.
func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
