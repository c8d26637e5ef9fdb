package api

import (
	"net/http"

	"github.com/fitteam/fitlib/internal/portaldb"
)

// toolRequest is the JSON body for adding or patching a directory entry.
type toolRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	URL         string `json:"url"`
	Description string `json:"description"`
	OwnerName   string `json:"owner_name"`
	OrderNo     int    `json:"order_no"`
}

func (req toolRequest) input() portaldb.ToolInput {
	return portaldb.ToolInput{
		Name:        req.Name,
		Category:    req.Category,
		URL:         req.URL,
		Description: req.Description,
		OwnerName:   req.OwnerName,
		OrderNo:     req.OrderNo,
	}
}

// handleListTools handles GET /v1/tools, grouped by category.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListTools(r.URL.Query().Get("category"))
	if err != nil {
		writeStoreError(w, r, "list tools", err)
		return
	}
	writeData(w, http.StatusOK, groups)
}

// handleCreateTool handles POST /v1/tools.
func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.store.CreateTool(req.input())
	if err != nil {
		writeStoreError(w, r, "create tool", err)
		return
	}
	s.audit(r, "create", "tool", t.ID)
	writeData(w, http.StatusCreated, t)
}

// handleGetTool handles GET /v1/tools/{id}.
func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTool(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get tool", err)
		return
	}
	if t == nil {
		writeNotFound(w, "tool")
		return
	}
	writeData(w, http.StatusOK, t)
}

// handleUpdateTool handles PATCH /v1/tools/{id}.
func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.GetTool(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get tool", err)
		return
	}
	if current == nil {
		writeNotFound(w, "tool")
		return
	}
	req := toolRequest{
		Name:        current.Name,
		Category:    current.Category,
		URL:         current.URL,
		Description: current.Description,
		OwnerName:   current.OwnerName,
		OrderNo:     current.OrderNo,
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := s.store.UpdateTool(current.ID, req.input())
	if err != nil {
		writeStoreError(w, r, "update tool", err)
		return
	}
	s.audit(r, "update", "tool", t.ID)
	writeData(w, http.StatusOK, t)
}

// handleDeleteTool handles DELETE /v1/tools/{id}.
func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteTool(id); err != nil {
		writeStoreError(w, r, "delete tool", err)
		return
	}
	s.audit(r, "delete", "tool", id)
	w.WriteHeader(http.StatusNoContent)
}
