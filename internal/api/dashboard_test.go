package api

import (
	"net/http"
	"testing"

	"github.com/fitteam/fitlib/internal/models"
)

func TestDashboardSectionsByGrade(t *testing.T) {
	srv, store := newTestServer(t)
	_, guest := createTestUser(t, store, "visitor", models.GradeGuest)
	_, member := createTestUser(t, store, "kim", models.GradeMember)
	_, leader := createTestUser(t, store, "boss", models.GradeLeader)

	decodeData[models.Notice](t, doRequest(srv, "POST", "/v1/notices", leader, noticeRequest{Title: "전체 회의"}), http.StatusCreated)
	decodeData[models.Vacation](t, doRequest(srv, "POST", "/v1/vacations", member, vacationRequest{StartDate: "today"}), http.StatusCreated)
	decodeData[models.Post](t, doRequest(srv, "POST", "/v1/posts", member, postRequest{Title: "회고"}), http.StatusCreated)
	decodeData[models.Equipment](t, doRequest(srv, "POST", "/v1/equipment", leader, equipmentRequest{Name: "iPad", SerialNo: "IP-1"}), http.StatusCreated)
	rep := decodeData[models.Report](t, doRequest(srv, "POST", "/v1/reports", member, reportRequest{Done: "작업"}), http.StatusCreated)

	g := decodeData[dashboardResponse](t, doRequest(srv, "GET", "/v1/dashboard", guest, nil), http.StatusOK)
	if g.Date != "2026-10-14" || len(g.Notices) != 1 {
		t.Fatalf("guest dashboard = %+v", g)
	}
	if g.Absentees != nil || g.MyReport != nil || g.Equipment != nil || g.Posts != nil || g.Counts != nil {
		t.Errorf("guest sees member sections: %+v", g)
	}

	m := decodeData[dashboardResponse](t, doRequest(srv, "GET", "/v1/dashboard", member, nil), http.StatusOK)
	if len(m.Absentees) != 1 || m.Absentees[0].UserName != "kim" {
		t.Errorf("absentees = %+v", m.Absentees)
	}
	if m.MyReport == nil || !m.MyReport.Submitted || m.MyReport.ReportID != rep.ID || m.MyReport.WeekStart != "2026-10-12" {
		t.Errorf("my report = %+v", m.MyReport)
	}
	if m.Equipment[models.EquipmentAvailable] != 1 || m.Equipment[models.EquipmentAssigned] != 0 {
		t.Errorf("equipment = %+v", m.Equipment)
	}
	if len(m.Posts) != 1 || m.Counts != nil {
		t.Errorf("member posts=%d counts=%+v", len(m.Posts), m.Counts)
	}

	l := decodeData[dashboardResponse](t, doRequest(srv, "GET", "/v1/dashboard", leader, nil), http.StatusOK)
	if l.MyReport == nil || l.MyReport.Submitted {
		t.Errorf("leader report = %+v", l.MyReport)
	}
	if l.Counts == nil || l.Counts.Users != 3 || l.Counts.PendingVacations != 1 {
		t.Errorf("counts = %+v", l.Counts)
	}
}
