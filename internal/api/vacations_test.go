package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/fitteam/fitlib/internal/vacation"
)

func TestCreateVacationRelativeDates(t *testing.T) {
	srv, store, pub := newTestServerWithConfig(t, nil)
	_, member := createTestUser(t, store, "kim", models.GradeMember)

	// testNow is Wednesday 2026-10-14; "monday" is the 19th.
	v := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{
		StartDate: "monday", EndDate: "+9d", Reason: "가족 여행",
	}), http.StatusCreated)
	if v.Kind != models.VacationAnnual || v.StartDate != "2026-10-19" || v.EndDate != "2026-10-23" {
		t.Fatalf("vacation = %+v", v)
	}
	if v.Days != 5 || v.Status != models.VacationPending {
		t.Errorf("days = %v status = %s", v.Days, v.Status)
	}

	events := pub.ofType(notify.VacationRequested)
	if len(events) != 1 || !strings.Contains(events[0].Summary, "연차") {
		t.Fatalf("events = %+v", events)
	}

	w := doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "someday"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{Kind: models.VacationHalfAM, StartDate: "2026-10-26", EndDate: "2026-10-27"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	// Saturday only covers no working days.
	w = doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-17"})
	expectError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}

func TestVacationOverlapConflict(t *testing.T) {
	srv, store := newTestServer(t)
	_, member := createTestUser(t, store, "kim", models.GradeMember)
	_, colleague := createTestUser(t, store, "lee", models.GradeMember)

	first := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-19", EndDate: "2026-10-21"}), http.StatusCreated)

	apiErr := expectError(t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-21", EndDate: "2026-10-22"}), http.StatusConflict, ErrCodeConflict)
	if !strings.Contains(apiErr.Message, first.ID) {
		t.Errorf("conflict message %q does not name %s", apiErr.Message, first.ID)
	}

	// Another user's calendar is independent.
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", colleague, vacationRequest{StartDate: "2026-10-21"}), http.StatusCreated)

	// Morning and afternoon halves of the same day coexist.
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{Kind: models.VacationHalfAM, StartDate: "2026-10-26"}), http.StatusCreated)
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{Kind: models.VacationHalfPM, StartDate: "2026-10-26"}), http.StatusCreated)
	expectError(t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{Kind: models.VacationHalfPM, StartDate: "2026-10-26"}), http.StatusConflict, ErrCodeConflict)

	// Cancelled requests free the calendar.
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations/"+first.ID+"/cancel", member, nil), http.StatusOK)
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-21"}), http.StatusCreated)
}

func TestVacationAllowanceExceeded(t *testing.T) {
	srv, store, _ := newTestServerWithConfig(t, func(c *Config) { c.Vacation.AnnualAllowance = 3 })
	_, member := createTestUser(t, store, "kim", models.GradeMember)

	expectError(t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-19", EndDate: "2026-10-22"}), http.StatusConflict, ErrCodeConflict)

	// Sick leave does not draw on the allowance.
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{Kind: models.VacationSick, StartDate: "2026-10-19", EndDate: "2026-10-22"}), http.StatusCreated)
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-11-02", EndDate: "2026-11-04"}), http.StatusCreated)

	bal := decodeData[vacation.Balance](t, doRequest(srv, "GET", "/v1/vacations/balance", member, nil), http.StatusOK)
	if bal.Year != 2026 || bal.Allowance != 3 || bal.Pending != 3 || bal.Remaining != 0 {
		t.Errorf("balance = %+v", bal)
	}
}

func TestVacationDecisions(t *testing.T) {
	srv, store, pub := newTestServerWithConfig(t, nil)
	memberID, member := createTestUser(t, store, "kim", models.GradeMember)
	_, other := createTestUser(t, store, "lee", models.GradeMember)
	_, leader := createTestUser(t, store, "boss", models.GradeLeader)

	v := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-19"}), http.StatusCreated)

	expectError(t, doRequest(srv, "POST", "/v1/vacations/"+v.ID+"/approve", member, nil), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, doRequest(srv, "POST", "/v1/vacations/"+v.ID+"/cancel", other, nil), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, doRawRequest(srv, "PATCH", "/v1/vacations/"+v.ID, other, `{"reason":"x"}`), http.StatusForbidden, ErrCodeForbidden)

	edited := decodeData[models.Vacation](t, doRawRequest(srv, "PATCH", "/v1/vacations/"+v.ID, member, `{"end_date":"2026-10-20"}`), http.StatusOK)
	if edited.StartDate != "2026-10-19" || edited.EndDate != "2026-10-20" || edited.Days != 2 {
		t.Fatalf("edited = %+v", edited)
	}

	approved := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations/"+v.ID+"/approve", leader, nil), http.StatusOK)
	if approved.Status != models.VacationApproved || approved.DecidedAt == nil || approved.ApproverID == "" {
		t.Fatalf("approved = %+v", approved)
	}
	events := pub.ofType(notify.VacationDecided)
	if len(events) != 1 || len(events[0].Recipients) != 1 || events[0].Recipients[0] != memberID {
		t.Fatalf("decided events = %+v", events)
	}

	expectError(t, doRequest(srv, "POST", "/v1/vacations/"+v.ID+"/reject", leader, nil), http.StatusConflict, ErrCodeConflict)
	expectError(t, doRawRequest(srv, "PATCH", "/v1/vacations/"+v.ID, member, `{"reason":"x"}`), http.StatusConflict, ErrCodeConflict)

	// Approved in the future can still be cancelled by its owner.
	cancelled := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations/"+v.ID+"/cancel", member, nil), http.StatusOK)
	if cancelled.Status != models.VacationCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}

	own := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", leader, vacationRequest{StartDate: "2026-10-28"}), http.StatusCreated)
	expectError(t, doRequest(srv, "POST", "/v1/vacations/"+own.ID+"/approve", leader, nil), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, doRequest(srv, "POST", "/v1/vacations/v_missing/approve", leader, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestVacationCalendarAndHolidays(t *testing.T) {
	srv, store := newTestServer(t)
	_, member := createTestUser(t, store, "kim", models.GradeMember)
	_, admin := createTestUser(t, store, "admin", models.GradeAdmin)

	w := doRequest(srv, "POST", "/v1/admin/holidays", member, holidayRequest{Date: "2026-10-09", Name: "한글날"})
	expectError(t, w, http.StatusForbidden, ErrCodeForbidden)
	decodeData[portaldb.Holiday](t, doRequest(srv, "POST", "/v1/admin/holidays", admin, holidayRequest{Date: "2026-10-09", Name: "한글날"}), http.StatusCreated)

	v := decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "2026-10-08", EndDate: "2026-10-12"}), http.StatusCreated)
	if v.Days != 2 {
		t.Fatalf("days across holiday and weekend = %v, want 2", v.Days)
	}

	cal := decodeData[calendarResponse](t, doRequest(srv, "GET", "/v1/vacations/calendar?month=2026-10", member, nil), http.StatusOK)
	if cal.Month != "2026-10" || len(cal.Days) != 31 {
		t.Fatalf("calendar month=%s days=%d", cal.Month, len(cal.Days))
	}
	oct9 := cal.Days[8]
	if oct9.Date != "2026-10-09" || oct9.Working || len(oct9.Entries) != 1 || oct9.Weekday != "금" {
		t.Errorf("oct 9 = %+v", oct9)
	}
	if len(cal.Days[12].Entries) != 0 {
		t.Errorf("oct 13 entries = %+v", cal.Days[12].Entries)
	}

	expectError(t, doRequest(srv, "GET", "/v1/vacations/calendar?month=october", member, nil), http.StatusBadRequest, ErrCodeBadRequest)

	holidays := decodeData[[]portaldb.Holiday](t, doRequest(srv, "GET", "/v1/holidays?year=2026", member, nil), http.StatusOK)
	if len(holidays) != 1 || holidays[0].Name != "한글날" {
		t.Errorf("holidays = %+v", holidays)
	}

	if w := doRequest(srv, "DELETE", "/v1/admin/holidays/2026-10-09", admin, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete holiday: %d", w.Code)
	}
	expectError(t, doRequest(srv, "DELETE", "/v1/admin/holidays/2026-10-09", admin, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestVacationBalanceOfOthers(t *testing.T) {
	srv, store := newTestServer(t)
	memberID, member := createTestUser(t, store, "kim", models.GradeMember)
	_, other := createTestUser(t, store, "lee", models.GradeMember)
	_, leader := createTestUser(t, store, "boss", models.GradeLeader)

	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{Kind: models.VacationHalfPM, StartDate: "2026-10-19"}), http.StatusCreated)

	expectError(t, doRequest(srv, "GET", "/v1/vacations/balance?user_id="+memberID, other, nil), http.StatusForbidden, ErrCodeForbidden)
	bal := decodeData[vacation.Balance](t, doRequest(srv, "GET", "/v1/vacations/balance?user_id="+memberID, leader, nil), http.StatusOK)
	if bal.Pending != 0.5 || bal.Remaining != 14.5 {
		t.Errorf("balance = %+v", bal)
	}
	bal = decodeData[vacation.Balance](t, doRequest(srv, "GET", "/v1/vacations/balance?year=2027", member, nil), http.StatusOK)
	if bal.Year != 2027 || bal.Pending != 0 {
		t.Errorf("2027 balance = %+v", bal)
	}
	expectError(t, doRequest(srv, "GET", "/v1/vacations/balance?year=soon", member, nil), http.StatusBadRequest, ErrCodeBadRequest)

	list := decodeData[[]models.Vacation](t, doRequest(srv, "GET", "/v1/vacations?user_id="+memberID+"&from=2026-10-01&to=2026-10-31", other, nil), http.StatusOK)
	if len(list) != 1 || list[0].UserName != "kim" {
		t.Errorf("list = %+v", list)
	}
}
