package api

import (
	"net/http"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// equipmentRequest is the JSON body for registering or patching equipment.
// Status may only move between available, repair and retired.
type equipmentRequest struct {
	Name        string                 `json:"name"`
	Category    string                 `json:"category"`
	SerialNo    string                 `json:"serial_no"`
	Status      models.EquipmentStatus `json:"status"`
	PurchasedAt string                 `json:"purchased_at"`
	Note        string                 `json:"note"`
}

func (req equipmentRequest) input() portaldb.EquipmentInput {
	return portaldb.EquipmentInput{
		Name:        req.Name,
		Category:    req.Category,
		SerialNo:    req.SerialNo,
		Status:      req.Status,
		PurchasedAt: req.PurchasedAt,
		Note:        req.Note,
	}
}

// assignRequest is the JSON body for POST /v1/equipment/{id}/assign.
type assignRequest struct {
	UserID string `json:"user_id"`
}

// handleListEquipment handles GET /v1/equipment.
func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := s.store.ListEquipment(portaldb.EquipmentFilter{
		Status:     models.EquipmentStatus(q.Get("status")),
		Category:   q.Get("category"),
		AssigneeID: q.Get("assignee_id"),
	}, limit, cursor)
	if err != nil {
		writeStoreError(w, r, "list equipment", err)
		return
	}
	writePage(w, page)
}

// handleCreateEquipment handles POST /v1/equipment.
func (s *Server) handleCreateEquipment(w http.ResponseWriter, r *http.Request) {
	var req equipmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := getUserFromContext(r.Context())
	e, err := s.store.CreateEquipment(req.input(), user.ID)
	if err != nil {
		writeStoreError(w, r, "create equipment", err)
		return
	}
	s.audit(r, "create", "equipment", e.ID)
	writeData(w, http.StatusCreated, e)
}

// handleGetEquipment handles GET /v1/equipment/{id}.
func (s *Server) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEquipment(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get equipment", err)
		return
	}
	if e == nil {
		writeNotFound(w, "equipment")
		return
	}
	writeData(w, http.StatusOK, e)
}

// handleUpdateEquipment handles PATCH /v1/equipment/{id}.
func (s *Server) handleUpdateEquipment(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.GetEquipment(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get equipment", err)
		return
	}
	if current == nil {
		writeNotFound(w, "equipment")
		return
	}
	req := equipmentRequest{
		Name:        current.Name,
		Category:    current.Category,
		SerialNo:    current.SerialNo,
		Status:      current.Status,
		PurchasedAt: current.PurchasedAt,
		Note:        current.Note,
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	user := getUserFromContext(r.Context())
	e, err := s.store.UpdateEquipment(current.ID, req.input(), user.ID)
	if err != nil {
		writeStoreError(w, r, "update equipment", err)
		return
	}
	s.audit(r, "update", "equipment", e.ID)
	writeData(w, http.StatusOK, e)
}

// handleDeleteEquipment handles DELETE /v1/equipment/{id}.
func (s *Server) handleDeleteEquipment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteEquipment(id); err != nil {
		writeStoreError(w, r, "delete equipment", err)
		return
	}
	s.audit(r, "delete", "equipment", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleAssignEquipment handles POST /v1/equipment/{id}/assign.
func (s *Server) handleAssignEquipment(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	user := getUserFromContext(r.Context())
	e, err := s.store.AssignEquipment(r.PathValue("id"), req.UserID, user.ID)
	if err != nil {
		writeStoreError(w, r, "assign equipment", err)
		return
	}
	s.audit(r, "assign", "equipment", e.ID)
	s.publish(r, notify.Event{
		Type:       notify.EquipmentAssigned,
		EntityType: "equipment",
		EntityID:   e.ID,
		Summary:    e.Name + " (" + e.SerialNo + ") 지급: " + e.AssigneeName,
		Recipients: []string{e.AssigneeID},
	})
	writeData(w, http.StatusOK, e)
}

// handleReturnEquipment handles POST /v1/equipment/{id}/return.
func (s *Server) handleReturnEquipment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	before, err := s.store.GetEquipment(id)
	if err != nil {
		writeStoreError(w, r, "get equipment", err)
		return
	}
	if before == nil {
		writeNotFound(w, "equipment")
		return
	}
	user := getUserFromContext(r.Context())
	e, err := s.store.ReturnEquipment(id, user.ID)
	if err != nil {
		writeStoreError(w, r, "return equipment", err)
		return
	}
	s.audit(r, "return", "equipment", e.ID)
	ev := notify.Event{
		Type:       notify.EquipmentReturned,
		EntityType: "equipment",
		EntityID:   e.ID,
		Summary:    e.Name + " (" + e.SerialNo + ") 반납: " + before.AssigneeName,
	}
	if before.AssigneeID != "" {
		ev.Recipients = []string{before.AssigneeID}
	}
	s.publish(r, ev)
	writeData(w, http.StatusOK, e)
}

// handleEquipmentHistory handles GET /v1/equipment/{id}/history.
func (s *Server) handleEquipmentHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := s.store.GetEquipment(id)
	if err != nil {
		writeStoreError(w, r, "get equipment", err)
		return
	}
	if e == nil {
		writeNotFound(w, "equipment")
		return
	}
	events, err := s.store.EquipmentHistory(id)
	if err != nil {
		writeStoreError(w, r, "equipment history", err)
		return
	}
	writeData(w, http.StatusOK, events)
}
