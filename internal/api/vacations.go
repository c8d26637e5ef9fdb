package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/fitteam/fitlib/internal/vacation"
)

// vacationRequest is the JSON body for filing or editing a leave request.
// Dates accept every dateparse form.
type vacationRequest struct {
	Kind      models.VacationKind `json:"kind"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Reason    string              `json:"reason"`
}

// calendarResponse is the data of GET /v1/vacations/calendar.
type calendarResponse struct {
	Month string                 `json:"month"`
	Days  []vacation.CalendarDay `json:"days"`
}

var kindLabels = map[models.VacationKind]string{
	models.VacationAnnual:  "연차",
	models.VacationHalfAM:  "오전 반차",
	models.VacationHalfPM:  "오후 반차",
	models.VacationSick:    "병가",
	models.VacationSpecial: "특별휴가",
}

func (req vacationRequest) input(now time.Time) (portaldb.VacationInput, error) {
	if req.Kind == "" {
		req.Kind = models.VacationAnnual
	}
	rng, err := vacation.ParseRange(req.StartDate, req.EndDate, now)
	if err != nil {
		return portaldb.VacationInput{}, err
	}
	return portaldb.VacationInput{
		Kind:      req.Kind,
		StartDate: rng.StartString(),
		EndDate:   rng.EndString(),
		Reason:    req.Reason,
	}, nil
}

func vacationSummary(v *models.Vacation, verb string) string {
	span := v.StartDate
	if v.EndDate != v.StartDate {
		span += "~" + v.EndDate
	}
	return fmt.Sprintf("%s %s %s %s (%s일)", v.UserName, kindLabels[v.Kind], span, verb, strconv.FormatFloat(v.Days, 'f', -1, 64))
}

// handleListVacations handles GET /v1/vacations with optional user_id,
// status, from and to filters.
func (s *Server) handleListVacations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := portaldb.VacationFilter{UserID: q.Get("user_id"), Status: models.VacationStatus(q.Get("status"))}
	now := s.store.Now()
	for _, p := range []struct {
		name string
		dst  *string
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		d, err := dateparse.ParseDateFrom(v, now)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, p.name+": "+err.Error())
			return
		}
		*p.dst = d
	}

	list, err := s.store.ListVacations(f)
	if err != nil {
		writeStoreError(w, r, "list vacations", err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// handleCreateVacation handles POST /v1/vacations.
func (s *Server) handleCreateVacation(w http.ResponseWriter, r *http.Request) {
	var req vacationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input(s.store.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	user := getUserFromContext(r.Context())
	v, err := s.store.CreateVacation(user.ID, in, s.config.Vacation.AnnualAllowance)
	if err != nil {
		writeStoreError(w, r, "create vacation", err)
		return
	}
	s.audit(r, "create", "vacation", v.ID)
	s.publish(r, notify.Event{
		Type:       notify.VacationRequested,
		EntityType: "vacation",
		EntityID:   v.ID,
		Summary:    vacationSummary(v, "신청"),
	})
	writeData(w, http.StatusCreated, v)
}

// handleGetVacation handles GET /v1/vacations/{id}.
func (s *Server) handleGetVacation(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVacation(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get vacation", err)
		return
	}
	if v == nil {
		writeNotFound(w, "vacation")
		return
	}
	writeData(w, http.StatusOK, v)
}

// loadOwnVacation fetches a request and checks the caller owns it (admins
// may act on anyone's). It writes the error response and returns nil when not.
func (s *Server) loadOwnVacation(w http.ResponseWriter, r *http.Request) *models.Vacation {
	v, err := s.store.GetVacation(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, "get vacation", err)
		return nil
	}
	if v == nil {
		writeNotFound(w, "vacation")
		return nil
	}
	if !canModify(getUserFromContext(r.Context()), v.UserID) {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the requester can change this vacation")
		return nil
	}
	return v
}

// handleUpdateVacation handles PATCH /v1/vacations/{id}.
func (s *Server) handleUpdateVacation(w http.ResponseWriter, r *http.Request) {
	current := s.loadOwnVacation(w, r)
	if current == nil {
		return
	}
	req := vacationRequest{Kind: current.Kind, StartDate: current.StartDate, EndDate: current.EndDate, Reason: current.Reason}
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.input(s.store.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	v, err := s.store.UpdateVacation(current.ID, in, s.config.Vacation.AnnualAllowance)
	if err != nil {
		writeStoreError(w, r, "update vacation", err)
		return
	}
	s.audit(r, "update", "vacation", v.ID)
	writeData(w, http.StatusOK, v)
}

// handleApproveVacation handles POST /v1/vacations/{id}/approve.
func (s *Server) handleApproveVacation(w http.ResponseWriter, r *http.Request) {
	s.decideVacation(w, r, true)
}

// handleRejectVacation handles POST /v1/vacations/{id}/reject.
func (s *Server) handleRejectVacation(w http.ResponseWriter, r *http.Request) {
	s.decideVacation(w, r, false)
}

func (s *Server) decideVacation(w http.ResponseWriter, r *http.Request, approve bool) {
	user := getUserFromContext(r.Context())
	id := r.PathValue("id")

	current, err := s.store.GetVacation(id)
	if err != nil {
		writeStoreError(w, r, "get vacation", err)
		return
	}
	if current == nil {
		writeNotFound(w, "vacation")
		return
	}
	if current.UserID == user.ID && user.Grade != models.GradeAdmin {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "cannot decide your own vacation")
		return
	}

	v, err := s.store.DecideVacation(id, user.ID, approve)
	if err != nil {
		writeStoreError(w, r, "decide vacation", err)
		return
	}
	action, verb := "reject", "반려"
	if approve {
		action, verb = "approve", "승인"
	}
	s.audit(r, action, "vacation", v.ID)
	s.publish(r, notify.Event{
		Type:       notify.VacationDecided,
		EntityType: "vacation",
		EntityID:   v.ID,
		Summary:    vacationSummary(v, verb),
		Recipients: []string{v.UserID},
	})
	writeData(w, http.StatusOK, v)
}

// handleCancelVacation handles POST /v1/vacations/{id}/cancel.
func (s *Server) handleCancelVacation(w http.ResponseWriter, r *http.Request) {
	current := s.loadOwnVacation(w, r)
	if current == nil {
		return
	}
	v, err := s.store.CancelVacation(current.ID)
	if err != nil {
		writeStoreError(w, r, "cancel vacation", err)
		return
	}
	s.audit(r, "cancel", "vacation", v.ID)
	writeData(w, http.StatusOK, v)
}

// handleVacationCalendar handles GET /v1/vacations/calendar?month=YYYY-MM.
func (s *Server) handleVacationCalendar(w http.ResponseWriter, r *http.Request) {
	first, err := dateparse.ParseMonthFrom(r.URL.Query().Get("month"), s.store.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	month := vacation.MonthRange(first)
	list, err := s.store.ListVacations(portaldb.VacationFilter{From: month.StartString(), To: month.EndString()})
	if err != nil {
		writeStoreError(w, r, "list vacations", err)
		return
	}
	holidays, err := s.store.HolidaySet(month)
	if err != nil {
		writeStoreError(w, r, "load holidays", err)
		return
	}
	writeData(w, http.StatusOK, calendarResponse{
		Month: first.Format(dateparse.MonthLayout),
		Days:  vacation.BuildCalendar(first, list, holidays),
	})
}

// handleVacationBalance handles GET /v1/vacations/balance?year=&user_id=.
// Leaders may look up other users; everyone else sees their own balance.
func (s *Server) handleVacationBalance(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	q := r.URL.Query()

	year := s.store.Now().Year()
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1900 || n > 9999 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "year must be a four-digit year")
			return
		}
		year = n
	}
	userID := user.ID
	if v := q.Get("user_id"); v != "" && v != user.ID {
		if !user.Grade.AtLeast(models.GradeLeader) {
			writeError(w, http.StatusForbidden, ErrCodeForbidden, "only leaders can view other balances")
			return
		}
		userID = v
	}

	yr := yearRange(year)
	list, err := s.store.ListVacations(portaldb.VacationFilter{UserID: userID, From: yr.StartString(), To: yr.EndString()})
	if err != nil {
		writeStoreError(w, r, "list vacations", err)
		return
	}
	writeData(w, http.StatusOK, vacation.ComputeBalance(year, s.config.Vacation.AnnualAllowance, list))
}

// handleListHolidays handles GET /v1/holidays?year=.
func (s *Server) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	year := s.store.Now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1900 || n > 9999 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "year must be a four-digit year")
			return
		}
		year = n
	}
	list, err := s.store.ListHolidays(yearRange(year))
	if err != nil {
		writeStoreError(w, r, "list holidays", err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func yearRange(year int) vacation.Range {
	return vacation.Range{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}
