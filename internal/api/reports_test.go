package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
)

func TestWeeklyReportSubmission(t *testing.T) {
	srv, store := newTestServer(t)
	_, kim := createTestUser(t, store, "kim", models.GradeMember)
	leeID, lee := createTestUser(t, store, "lee", models.GradeMember)
	createTestUser(t, store, "visitor", models.GradeGuest)

	rep := decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", kim, reportRequest{Done: "- API 설계", Plan: "- 구현"}), http.StatusCreated)
	if rep.WeekStart != "2026-10-12" || rep.UserName != "kim" {
		t.Fatalf("report = %+v", rep)
	}
	expectError(t, doRequest(srv, "POST", "/v1/reports", kim, reportRequest{WeekStart: "2026-10-16", Done: "again"}), http.StatusConflict, ErrCodeConflict)
	expectError(t, doRequest(srv, "POST", "/v1/reports", lee, reportRequest{}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, doRequest(srv, "POST", "/v1/reports", lee, reportRequest{WeekStart: "whenever", Done: "x"}), http.StatusBadRequest, ErrCodeBadRequest)

	listing := decodeData[portaldb.WeekListing](t, doRequest(srv, "GET", "/v1/reports", lee, nil), http.StatusOK)
	if listing.WeekStart != "2026-10-12" || len(listing.Reports) != 1 {
		t.Fatalf("listing = %+v", listing)
	}
	if len(listing.Missing) != 1 || listing.Missing[0].ID != leeID {
		t.Errorf("missing = %+v, want only lee", listing.Missing)
	}

	// Last week had nobody file.
	prev := decodeData[portaldb.WeekListing](t, doRequest(srv, "GET", "/v1/reports?week=-7d", lee, nil), http.StatusOK)
	if prev.WeekStart != "2026-10-05" || len(prev.Reports) != 0 || len(prev.Missing) != 2 {
		t.Errorf("previous week = %+v", prev)
	}

	decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", kim, reportRequest{WeekStart: "-7d", Done: "지난주"}), http.StatusCreated)
	mine, meta := decodePage[models.Report](t, doRequest(srv, "GET", "/v1/reports?user_id="+rep.UserID+"&limit=1", lee, nil))
	if len(mine) != 1 || mine[0].WeekStart != "2026-10-12" || !meta.HasMore {
		t.Errorf("by user page = %+v meta=%+v", mine, meta)
	}
}

func TestWeeklyReportUsesCalendarZone(t *testing.T) {
	srv, store := newTestServer(t)
	// Monday 07:30 in Seoul is still Sunday in UTC.
	store.SetClock(func() time.Time { return time.Date(2026, 10, 18, 22, 30, 0, 0, time.UTC) })
	_, kim := createTestUser(t, store, "kim", models.GradeMember)

	rep := decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", kim, reportRequest{Done: "월요일 아침"}), http.StatusCreated)
	if rep.WeekStart != "2026-10-19" {
		t.Fatalf("week_start = %q, want 2026-10-19", rep.WeekStart)
	}
	dash := decodeData[dashboardResponse](t, doRequest(srv, "GET", "/v1/dashboard", kim, nil), http.StatusOK)
	if dash.Date != "2026-10-19" {
		t.Errorf("dashboard date = %q, want 2026-10-19", dash.Date)
	}
}

func TestWeeklyReportEditing(t *testing.T) {
	srv, store := newTestServer(t)
	_, kim := createTestUser(t, store, "kim", models.GradeMember)
	_, lee := createTestUser(t, store, "lee", models.GradeMember)
	_, admin := createTestUser(t, store, "admin", models.GradeAdmin)

	rep := decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", kim, reportRequest{Done: "작업", Plan: "계획"}), http.StatusCreated)

	expectError(t, doRawRequest(srv, "PATCH", "/v1/reports/"+rep.ID, lee, `{"issues":"x"}`), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, doRawRequest(srv, "PATCH", "/v1/reports/"+rep.ID, admin, `{"issues":"x"}`), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, doRawRequest(srv, "PATCH", "/v1/reports/"+rep.ID, kim, `{"week_start":"2026-10-19"}`), http.StatusBadRequest, ErrCodeBadRequest)

	edited := decodeData[models.Report](t, doRawRequest(srv, "PATCH", "/v1/reports/"+rep.ID, kim, `{"issues":"서버 장애"}`), http.StatusOK)
	if edited.Done != "작업" || edited.Plan != "계획" || edited.Issues != "서버 장애" {
		t.Errorf("edited = %+v", edited)
	}

	expectError(t, doRequest(srv, "DELETE", "/v1/reports/"+rep.ID, lee, nil), http.StatusForbidden, ErrCodeForbidden)
	if w := doRequest(srv, "DELETE", "/v1/reports/"+rep.ID, admin, nil); w.Code != http.StatusNoContent {
		t.Fatalf("admin delete: %d", w.Code)
	}
	expectError(t, doRequest(srv, "GET", "/v1/reports/"+rep.ID, kim, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestReportReplyThread(t *testing.T) {
	srv, store, pub := newTestServerWithConfig(t, nil)
	kimID, kim := createTestUser(t, store, "kim", models.GradeMember)
	leeID, lee := createTestUser(t, store, "lee", models.GradeMember)
	_, park := createTestUser(t, store, "park", models.GradeLeader)

	rep := decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", kim, reportRequest{Done: "작업"}), http.StatusCreated)
	path := "/v1/reports/" + rep.ID + "/replies"

	first := decodeData[models.ReportReply](t, doRequest(srv, "POST", path, lee, replyRequest{Body: "수고하셨습니다"}), http.StatusCreated)
	events := pub.ofType(notify.ReportReplied)
	if len(events) != 1 || strings.Join(events[0].Recipients, ",") != kimID {
		t.Fatalf("first reply events = %+v", events)
	}

	// The author answering on their own report notifies only the parent's author.
	answer := decodeData[models.ReportReply](t, doRequest(srv, "POST", path, kim, replyRequest{ParentID: first.ID, Body: "감사합니다"}), http.StatusCreated)
	events = pub.ofType(notify.ReportReplied)
	if len(events) != 2 || strings.Join(events[1].Recipients, ",") != leeID {
		t.Fatalf("answer events = %+v", events)
	}

	decodeData[models.ReportReply](t, doRequest(srv, "POST", path, park, replyRequest{ParentID: answer.ID, Body: "확인"}), http.StatusCreated)
	events = pub.ofType(notify.ReportReplied)
	if len(events) != 3 || strings.Join(events[2].Recipients, ",") != kimID {
		t.Fatalf("nested events = %+v", events)
	}

	expectError(t, doRequest(srv, "POST", path, lee, replyRequest{ParentID: "rr_missing", Body: "x"}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, doRequest(srv, "POST", path, lee, replyRequest{Body: "  "}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, doRequest(srv, "POST", "/v1/reports/r_missing/replies", lee, replyRequest{Body: "x"}), http.StatusNotFound, ErrCodeNotFound)

	thread := decodeData[models.Report](t, doRequest(srv, "GET", "/v1/reports/"+rep.ID, lee, nil), http.StatusOK)
	if len(thread.Replies) != 1 || len(thread.Replies[0].Children) != 1 || len(thread.Replies[0].Children[0].Children) != 1 {
		t.Fatalf("thread = %+v", thread.Replies)
	}

	// Deleting a reply with children leaves a tombstone.
	expectError(t, doRequest(srv, "DELETE", path+"/"+first.ID, kim, nil), http.StatusForbidden, ErrCodeForbidden)
	if w := doRequest(srv, "DELETE", path+"/"+first.ID, lee, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete reply: %d", w.Code)
	}
	thread = decodeData[models.Report](t, doRequest(srv, "GET", "/v1/reports/"+rep.ID, lee, nil), http.StatusOK)
	if root := thread.Replies[0]; !root.Deleted || root.Body != "" || len(root.Children) != 1 {
		t.Errorf("tombstone = %+v", root)
	}
	expectError(t, doRequest(srv, "POST", path, park, replyRequest{ParentID: first.ID, Body: "x"}), http.StatusBadRequest, ErrCodeBadRequest)

	other := decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", lee, reportRequest{Done: "다른 보고"}), http.StatusCreated)
	expectError(t, doRequest(srv, "DELETE", "/v1/reports/"+other.ID+"/replies/"+answer.ID, kim, nil), http.StatusNotFound, ErrCodeNotFound)
}
