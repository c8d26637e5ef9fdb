package api

import (
	"net/http"

	"github.com/fitteam/fitlib/internal/markdown"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// noticeRequest is the JSON body for creating or patching a notice.
type noticeRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Important bool   `json:"important"`
}

func (req noticeRequest) input() (portaldb.NoticeInput, error) {
	html, err := markdown.Render(req.Content)
	if err != nil {
		return portaldb.NoticeInput{}, err
	}
	return portaldb.NoticeInput{Title: req.Title, Content: req.Content, ContentHTML: html, Important: req.Important}, nil
}

// handleListNotices handles GET /v1/notices.
func (s *Server) handleListNotices(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	page, err := s.store.ListNotices(r.URL.Query().Get("q"), limit, cursor)
	if err != nil {
		writeStoreError(w, r, "list notices", err)
		return
	}
	writePage(w, page)
}

// handleCreateNotice handles POST /v1/notices.
func (s *Server) handleCreateNotice(w http.ResponseWriter, r *http.Request) {
	var req noticeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeStoreError(w, r, "render notice", err)
		return
	}
	user := getUserFromContext(r.Context())
	n, err := s.store.CreateNotice(in, user.ID)
	if err != nil {
		writeStoreError(w, r, "create notice", err)
		return
	}
	s.audit(r, "create", "notice", n.ID)
	if n.Important {
		s.publishImportantNotice(r, n.ID, n.Title, n.Content)
	}
	writeData(w, http.StatusCreated, n)
}

func (s *Server) publishImportantNotice(r *http.Request, id, title, content string) {
	summary := "[중요 공지] " + title
	if ex := markdown.Excerpt(content, 80); ex != "" {
		summary += ": " + ex
	}
	s.publish(r, notify.Event{
		Type:       notify.NoticeImportant,
		EntityType: "notice",
		EntityID:   id,
		Summary:    summary,
	})
}

// handleGetNotice handles GET /v1/notices/{id}. Each read counts as a view.
func (s *Server) handleGetNotice(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ViewNotice(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get notice", err)
		return
	}
	if n == nil {
		writeNotFound(w, "notice")
		return
	}
	writeData(w, http.StatusOK, n)
}

// handleUpdateNotice handles PATCH /v1/notices/{id}.
func (s *Server) handleUpdateNotice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := s.store.GetNotice(id)
	if err != nil {
		writeStoreError(w, r, "get notice", err)
		return
	}
	if current == nil {
		writeNotFound(w, "notice")
		return
	}

	req := noticeRequest{Title: current.Title, Content: current.Content, Important: current.Important}
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeStoreError(w, r, "render notice", err)
		return
	}
	n, err := s.store.UpdateNotice(id, in)
	if err != nil {
		writeStoreError(w, r, "update notice", err)
		return
	}
	s.audit(r, "update", "notice", n.ID)
	if n.Important && !current.Important {
		s.publishImportantNotice(r, n.ID, n.Title, n.Content)
	}
	writeData(w, http.StatusOK, n)
}

// handleDeleteNotice handles DELETE /v1/notices/{id}.
func (s *Server) handleDeleteNotice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteNotice(id); err != nil {
		writeStoreError(w, r, "delete notice", err)
		return
	}
	s.audit(r, "delete", "notice", id)
	w.WriteHeader(http.StatusNoContent)
}
