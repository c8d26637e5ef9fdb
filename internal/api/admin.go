package api

import (
	"net/http"
	"time"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// createUserRequest is the JSON body for POST /v1/admin/users.
type createUserRequest struct {
	LoginID  string       `json:"login_id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
	Grade    models.Grade `json:"grade"`
}

// updateUserRequest is the JSON body for PATCH /v1/admin/users/{id}.
// Omitted fields are left unchanged.
type updateUserRequest struct {
	Name   *string       `json:"name"`
	Email  *string       `json:"email"`
	Grade  *models.Grade `json:"grade"`
	Active *bool         `json:"active"`
}

// setPasswordRequest is the JSON body for POST /v1/admin/users/{id}/password.
type setPasswordRequest struct {
	Password string `json:"password"`
}

// holidayRequest is the JSON body for POST /v1/admin/holidays.
type holidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// handleAdminListUsers handles GET /v1/admin/users. ?active=true hides
// deactivated accounts.
func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	users, err := s.store.ListUsers(activeOnly)
	if err != nil {
		writeStoreError(w, r, "list users", err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeData(w, http.StatusOK, users)
}

// handleAdminCreateUser handles POST /v1/admin/users.
func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.store.CreateUser(portaldb.NewUser{
		LoginID:  req.LoginID,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Grade:    req.Grade,
	})
	if err != nil {
		writeStoreError(w, r, "create user", err)
		return
	}
	s.audit(r, "create", "user", u.ID)
	writeData(w, http.StatusCreated, u)
}

// handleAdminGetUser handles GET /v1/admin/users/{id}.
func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUserByID(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get user", err)
		return
	}
	if u == nil {
		writeNotFound(w, "user")
		return
	}
	writeData(w, http.StatusOK, u)
}

// handleAdminUpdateUser handles PATCH /v1/admin/users/{id}.
func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := s.store.UpdateUser(r.PathValue("id"), portaldb.UserUpdate{
		Name:   req.Name,
		Email:  req.Email,
		Grade:  req.Grade,
		Active: req.Active,
	})
	if err != nil {
		writeStoreError(w, r, "update user", err)
		return
	}
	action := "update"
	if req.Active != nil && !*req.Active {
		action = "deactivate"
	}
	s.audit(r, action, "user", u.ID)
	writeData(w, http.StatusOK, u)
}

// handleAdminSetPassword handles POST /v1/admin/users/{id}/password.
func (s *Server) handleAdminSetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := s.store.SetPassword(id, req.Password); err != nil {
		writeStoreError(w, r, "set password", err)
		return
	}
	s.audit(r, "password", "user", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminAddHoliday handles POST /v1/admin/holidays.
func (s *Server) handleAdminAddHoliday(w http.ResponseWriter, r *http.Request) {
	var req holidayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := dateparse.ParseDateFrom(req.Date, s.store.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "date: "+err.Error())
		return
	}
	if err := s.store.AddHoliday(date, req.Name); err != nil {
		writeStoreError(w, r, "add holiday", err)
		return
	}
	s.audit(r, "create", "holiday", date)
	writeData(w, http.StatusCreated, portaldb.Holiday{Date: date, Name: req.Name})
}

// handleAdminDeleteHoliday handles DELETE /v1/admin/holidays/{date}.
func (s *Server) handleAdminDeleteHoliday(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if err := s.store.DeleteHoliday(date); err != nil {
		writeStoreError(w, r, "delete holiday", err)
		return
	}
	s.audit(r, "delete", "holiday", date)
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminAudit handles GET /v1/admin/audit. from and to accept RFC 3339
// timestamps or any dateparse day (to is then inclusive of the whole day).
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := portaldb.AuditFilter{
		ActorID:    q.Get("actor_id"),
		EntityType: q.Get("entity_type"),
		Action:     q.Get("action"),
	}
	var err error
	if f.From, err = s.parseAuditTime(q.Get("from"), false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "from: "+err.Error())
		return
	}
	if f.To, err = s.parseAuditTime(q.Get("to"), true); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "to: "+err.Error())
		return
	}

	page, err := s.store.QueryAudit(f, limit, cursor)
	if err != nil {
		writeStoreError(w, r, "query audit log", err)
		return
	}
	writePage(w, page)
}

func (s *Server) parseAuditTime(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	now := s.store.Now()
	day, err := dateparse.ParseDayFrom(v, now)
	if err != nil {
		return nil, err
	}
	// Day boundaries follow the portal's calendar zone.
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
