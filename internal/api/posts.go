package api

import (
	"net/http"

	"github.com/fitteam/fitlib/internal/markdown"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// postRequest is the JSON body for creating or patching a blog post.
type postRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// commentRequest is the JSON body for POST /v1/posts/{id}/comments.
type commentRequest struct {
	Body string `json:"body"`
}

// canModify reports whether the caller authored the entity or is an admin.
func canModify(user *AuthUser, authorID string) bool {
	return user.ID == authorID || user.Grade == models.GradeAdmin
}

// handleListPosts handles GET /v1/posts.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, cursor, ok := pageParams(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := s.store.ListPosts(portaldb.PostFilter{
		Tag:      q.Get("tag"),
		AuthorID: q.Get("author_id"),
		Query:    q.Get("q"),
	}, limit, cursor)
	if err != nil {
		writeStoreError(w, r, "list posts", err)
		return
	}
	writePage(w, page)
}

// handleCreatePost handles POST /v1/posts.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	html, err := markdown.Render(req.Content)
	if err != nil {
		writeStoreError(w, r, "render post", err)
		return
	}
	user := getUserFromContext(r.Context())
	p, err := s.store.CreatePost(portaldb.PostInput{Title: req.Title, Content: req.Content, ContentHTML: html, Tags: req.Tags}, user.ID)
	if err != nil {
		writeStoreError(w, r, "create post", err)
		return
	}
	s.audit(r, "create", "post", p.ID)
	writeData(w, http.StatusCreated, p)
}

// handleGetPost handles GET /v1/posts/{id}.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get post", err)
		return
	}
	if p == nil {
		writeNotFound(w, "post")
		return
	}
	writeData(w, http.StatusOK, p)
}

// loadOwnPost fetches a post and checks the caller may modify it. It writes
// the error response and returns nil when not.
func (s *Server) loadOwnPost(w http.ResponseWriter, r *http.Request) *models.Post {
	p, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get post", err)
		return nil
	}
	if p == nil {
		writeNotFound(w, "post")
		return nil
	}
	if !canModify(getUserFromContext(r.Context()), p.AuthorID) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the author or an admin can modify this post")
		return nil
	}
	return p
}

// handleUpdatePost handles PATCH /v1/posts/{id}.
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	current := s.loadOwnPost(w, r)
	if current == nil {
		return
	}
	req := postRequest{Title: current.Title, Content: current.Content, Tags: current.Tags}
	if !decodeJSON(w, r, &req) {
		return
	}
	html, err := markdown.Render(req.Content)
	if err != nil {
		writeStoreError(w, r, "render post", err)
		return
	}
	p, err := s.store.UpdatePost(current.ID, portaldb.PostInput{Title: req.Title, Content: req.Content, ContentHTML: html, Tags: req.Tags})
	if err != nil {
		writeStoreError(w, r, "update post", err)
		return
	}
	s.audit(r, "update", "post", p.ID)
	writeData(w, http.StatusOK, p)
}

// handleDeletePost handles DELETE /v1/posts/{id}.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	p := s.loadOwnPost(w, r)
	if p == nil {
		return
	}
	if err := s.store.DeletePost(p.ID); err != nil {
		writeStoreError(w, r, "delete post", err)
		return
	}
	s.audit(r, "delete", "post", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListComments handles GET /v1/posts/{id}/comments.
func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetPost(id)
	if err != nil {
		writeStoreError(w, r, "get post", err)
		return
	}
	if p == nil {
		writeNotFound(w, "post")
		return
	}
	comments, err := s.store.ListComments(id)
	if err != nil {
		writeStoreError(w, r, "list comments", err)
		return
	}
	writeData(w, http.StatusOK, comments)
}

// handleAddComment handles POST /v1/posts/{id}/comments.
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := getUserFromContext(r.Context())
	c, err := s.store.AddComment(r.PathValue("id"), user.ID, req.Body)
	if err != nil {
		writeStoreError(w, r, "add comment", err)
		return
	}
	s.audit(r, "create", "comment", c.ID)
	writeData(w, http.StatusCreated, c)
}

// handleDeleteComment handles DELETE /v1/posts/{id}/comments/{commentID}.
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetComment(r.PathValue("commentID"))
	if err != nil {
		writeStoreError(w, r, "get comment", err)
		return
	}
	if c == nil || c.PostID != r.PathValue("id") {
		writeNotFound(w, "comment")
		return
	}
	if !canModify(getUserFromContext(r.Context()), c.AuthorID) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the author or an admin can delete this comment")
		return
	}
	if err := s.store.DeleteComment(c.ID); err != nil {
		writeStoreError(w, r, "delete comment", err)
		return
	}
	s.audit(r, "delete", "comment", c.ID)
	w.WriteHeader(http.StatusNoContent)
}
