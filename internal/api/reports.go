package api

import (
	"net/http"
	"slices"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/markdown"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
)

// reportRequest is the JSON body for filing or patching a weekly report.
// week_start accepts any dateparse form and is moved to its Monday.
type reportRequest struct {
	WeekStart string `json:"week_start"`
	Done      string `json:"done"`
	Plan      string `json:"plan"`
	Issues    string `json:"issues"`
}

// replyRequest is the JSON body for POST /v1/reports/{id}/replies.
type replyRequest struct {
	ParentID string `json:"parent_id"`
	Body     string `json:"body"`
}

// handleListReports handles GET /v1/reports. With user_id it pages through
// one person's reports; otherwise it lists the week given by ?week= (default
// this week) together with the members who have not filed.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if userID := q.Get("user_id"); userID != "" {
		limit, cursor, ok := pageParams(w, r)
		if !ok {
			return
		}
		page, err := s.store.ListReportsByUser(userID, limit, cursor)
		if err != nil {
			writeStoreError(w, r, "list reports", err)
			return
		}
		writePage(w, page)
		return
	}

	week := q.Get("week")
	if week == "" {
		week = "today"
	}
	day, err := dateparse.ParseDateFrom(week, s.store.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "week: "+err.Error())
		return
	}
	listing, err := s.store.ListReportsForWeek(day)
	if err != nil {
		writeStoreError(w, r, "list reports", err)
		return
	}
	writeData(w, http.StatusOK, listing)
}

// handleCreateReport handles POST /v1/reports.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WeekStart == "" {
		req.WeekStart = "today"
	}
	day, err := dateparse.ParseDateFrom(req.WeekStart, s.store.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "week_start: "+err.Error())
		return
	}
	user := getUserFromContext(r.Context())
	rep, err := s.store.CreateReport(user.ID, portaldb.ReportInput{WeekStart: day, Done: req.Done, Plan: req.Plan, Issues: req.Issues})
	if err != nil {
		writeStoreError(w, r, "create report", err)
		return
	}
	s.audit(r, "create", "report", rep.ID)
	writeData(w, http.StatusCreated, rep)
}

// handleGetReport handles GET /v1/reports/{id}, returning the reply tree.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.GetReportThread(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get report", err)
		return
	}
	if rep == nil {
		writeNotFound(w, "report")
		return
	}
	writeData(w, http.StatusOK, rep)
}

func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) *models.Report {
	rep, err := s.store.GetReport(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get report", err)
		return nil
	}
	if rep == nil {
		writeNotFound(w, "report")
		return nil
	}
	return rep
}

// handleUpdateReport handles PATCH /v1/reports/{id}. Only the author edits.
func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	current := s.loadReport(w, r)
	if current == nil {
		return
	}
	user := getUserFromContext(r.Context())
	if current.UserID != user.ID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the author can edit this report")
		return
	}
	req := reportRequest{WeekStart: current.WeekStart, Done: current.Done, Plan: current.Plan, Issues: current.Issues}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WeekStart != current.WeekStart {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "week_start cannot be changed")
		return
	}
	rep, err := s.store.UpdateReport(current.ID, portaldb.ReportInput{Done: req.Done, Plan: req.Plan, Issues: req.Issues})
	if err != nil {
		writeStoreError(w, r, "update report", err)
		return
	}
	s.audit(r, "update", "report", rep.ID)
	writeData(w, http.StatusOK, rep)
}

// handleDeleteReport handles DELETE /v1/reports/{id}.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	current := s.loadReport(w, r)
	if current == nil {
		return
	}
	if !canModify(getUserFromContext(r.Context()), current.UserID) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the author or an admin can delete this report")
		return
	}
	if err := s.store.DeleteReport(current.ID); err != nil {
		writeStoreError(w, r, "delete report", err)
		return
	}
	s.audit(r, "delete", "report", current.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleAddReply handles POST /v1/reports/{id}/replies. The report author
// and the author of the parent reply are notified, never the replier.
func (s *Server) handleAddReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := getUserFromContext(r.Context())
	reply, err := s.store.AddReply(r.PathValue("id"), req.ParentID, user.ID, req.Body)
	if err != nil {
		writeStoreError(w, r, "add reply", err)
		return
	}
	s.audit(r, "create", "reply", reply.ID)

	rep, err := s.store.GetReport(reply.ReportID)
	if err != nil {
		logFor(r.Context()).Warn("load report for notification", "report_id", reply.ReportID, "err", err)
	}
	var recipients []string
	if rep != nil && rep.UserID != user.ID {
		recipients = append(recipients, rep.UserID)
	}
	if reply.ParentID != "" {
		if parent, err := s.store.GetReply(reply.ParentID); err == nil && parent != nil &&
			parent.AuthorID != user.ID && !slices.Contains(recipients, parent.AuthorID) {
			recipients = append(recipients, parent.AuthorID)
		}
	}
	if len(recipients) > 0 && rep != nil {
		s.publish(r, notify.Event{
			Type:       notify.ReportReplied,
			EntityType: "report",
			EntityID:   rep.ID,
			Summary:    user.Name + "님이 " + rep.WeekStart + " 주간보고에 댓글을 남겼습니다: " + markdown.Excerpt(reply.Body, 60),
			Recipients: recipients,
		})
	}
	writeData(w, http.StatusCreated, reply)
}

// handleDeleteReply handles DELETE /v1/reports/{id}/replies/{replyID}.
func (s *Server) handleDeleteReply(w http.ResponseWriter, r *http.Request) {
	reply, err := s.store.GetReply(r.PathValue("replyID"))
	if err != nil {
		writeStoreError(w, r, "get reply", err)
		return
	}
	if reply == nil || reply.ReportID != r.PathValue("id") {
		writeNotFound(w, "reply")
		return
	}
	if !canModify(getUserFromContext(r.Context()), reply.AuthorID) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the author or an admin can delete this reply")
		return
	}
	if err := s.store.DeleteReply(reply.ID); err != nil {
		writeStoreError(w, r, "delete reply", err)
		return
	}
	s.audit(r, "delete", "reply", reply.ID)
	w.WriteHeader(http.StatusNoContent)
}
