package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fitteam/fitlib/internal/portaldb"
)

// Error code constants for structured API error responses.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination state on list responses.
type Meta struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// Envelope is the shape of every JSON response body.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Meta    *Meta     `json:"meta,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// writeError writes an error envelope with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &APIError{Code: code, Message: message}})
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writePage writes a paginated success envelope.
func writePage[T any](w http.ResponseWriter, page *portaldb.PaginatedResult[T]) {
	writeJSON(w, http.StatusOK, Envelope{
		Success: true,
		Data:    page.Data,
		Meta:    &Meta{NextCursor: page.NextCursor, HasMore: page.HasMore},
	})
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

// writeStoreError maps store errors onto the envelope. Unexpected errors are
// logged and reported as internal without detail.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, portaldb.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, portaldb.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, strings.TrimPrefix(err.Error(), portaldb.ErrInvalidInput.Error()+": "))
	case errors.Is(err, portaldb.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, strings.TrimPrefix(err.Error(), portaldb.ErrConflict.Error()+": "))
	default:
		logFor(r.Context()).Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to "+op)
	}
}

// writeNotFound writes a 404 for a missing entity.
func writeNotFound(w http.ResponseWriter, noun string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, noun+" not found")
}

// decodeJSON decodes the request body into dst, rejecting unknown fields and
// trailing data. The body may be prefilled, in which case absent fields keep
// their current values.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body: "+err.Error())
		}
		return false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "request body must be a single json object")
		return false
	}
	return true
}
