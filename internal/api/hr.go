package api

import (
	"net/http"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// employeeRequest is the JSON body for creating or patching an HR record.
type employeeRequest struct {
	UserID         string                  `json:"user_id"`
	Name           string                  `json:"name"`
	Department     string                  `json:"department"`
	Position       string                  `json:"position"`
	EmploymentType string                  `json:"employment_type"`
	Status         models.EmploymentStatus `json:"status"`
	JoinedOn       string                  `json:"joined_on"`
	ResignedOn     string                  `json:"resigned_on"`
	Phone          string                  `json:"phone"`
	Email          string                  `json:"email"`
	Memo           string                  `json:"memo"`
}

func (req employeeRequest) input() portaldb.EmployeeInput {
	return portaldb.EmployeeInput{
		UserID:         req.UserID,
		Name:           req.Name,
		Department:     req.Department,
		Position:       req.Position,
		EmploymentType: req.EmploymentType,
		Status:         req.Status,
		JoinedOn:       req.JoinedOn,
		ResignedOn:     req.ResignedOn,
		Phone:          req.Phone,
		Email:          req.Email,
		Memo:           req.Memo,
	}
}

// handleListEmployees handles GET /v1/hr/employees.
func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := s.store.ListEmployees(portaldb.EmployeeFilter{
		Department: q.Get("department"),
		Status:     models.EmploymentStatus(q.Get("status")),
		Query:      q.Get("q"),
	}, limit, cursor)
	if err != nil {
		writeStoreError(w, r, "list employees", err)
		return
	}
	writePage(w, page)
}

// handleCreateEmployee handles POST /v1/hr/employees.
func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := s.store.CreateEmployee(req.input())
	if err != nil {
		writeStoreError(w, r, "create employee", err)
		return
	}
	s.audit(r, "create", "employee", e.ID)
	writeData(w, http.StatusCreated, e)
}

// handleGetEmployee handles GET /v1/hr/employees/{id}.
func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEmployee(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get employee", err)
		return
	}
	if e == nil {
		writeNotFound(w, "employee")
		return
	}
	writeData(w, http.StatusOK, e)
}

// handleUpdateEmployee handles PATCH /v1/hr/employees/{id}.
func (s *Server) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.GetEmployee(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get employee", err)
		return
	}
	if current == nil {
		writeNotFound(w, "employee")
		return
	}
	req := employeeRequest{
		UserID:         current.UserID,
		Name:           current.Name,
		Department:     current.Department,
		Position:       current.Position,
		EmploymentType: current.EmploymentType,
		Status:         current.Status,
		JoinedOn:       current.JoinedOn,
		ResignedOn:     current.ResignedOn,
		Phone:          current.Phone,
		Email:          current.Email,
		Memo:           current.Memo,
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := s.store.UpdateEmployee(current.ID, req.input())
	if err != nil {
		writeStoreError(w, r, "update employee", err)
		return
	}
	s.audit(r, "update", "employee", e.ID)
	writeData(w, http.StatusOK, e)
}

// handleDeleteEmployee handles DELETE /v1/hr/employees/{id}.
func (s *Server) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteEmployee(id); err != nil {
		writeStoreError(w, r, "delete employee", err)
		return
	}
	s.audit(r, "delete", "employee", id)
	w.WriteHeader(http.StatusNoContent)
}
