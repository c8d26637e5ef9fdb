package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/portaldb"
)

func TestToolDirectory(t *testing.T) {
	srv, store := newTestServer(t)
	_, guest := createTestUser(t, store, "visitor", models.GradeGuest)
	_, leader := createTestUser(t, store, "boss", models.GradeLeader)

	expectError(t, doRequest(srv, "POST", "/v1/tools", guest, toolRequest{Name: "Slack", URL: "https://slack.com"}), http.StatusForbidden, ErrCodeForbidden)
	expectError(t, doRequest(srv, "POST", "/v1/tools", leader, toolRequest{Name: "Slack", URL: "slack.com"}), http.StatusBadRequest, ErrCodeBadRequest)

	for _, req := range []toolRequest{
		{Name: "Slack", Category: "메신저", URL: "https://slack.com", OrderNo: 2},
		{Name: "Jira", Category: "이슈관리", URL: "https://jira.example.com"},
		{Name: "Kakao Work", Category: "메신저", URL: "https://kakaowork.com", OrderNo: 1},
	} {
		decodeData[models.Tool](t, doRequest(srv, "POST", "/v1/tools", leader, req), http.StatusCreated)
	}

	groups := decodeData[[]portaldb.ToolGroup](t, doRequest(srv, "GET", "/v1/tools", guest, nil), http.StatusOK)
	if len(groups) != 2 || groups[0].Category != "메신저" || groups[1].Category != "이슈관리" {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[0].Tools[0].Name != "Kakao Work" || groups[0].Tools[1].Name != "Slack" {
		t.Errorf("messenger order = %s, %s", groups[0].Tools[0].Name, groups[0].Tools[1].Name)
	}

	filtered := decodeData[[]portaldb.ToolGroup](t, doRequest(srv, "GET", "/v1/tools?category="+url.QueryEscape("이슈관리"), guest, nil), http.StatusOK)
	if len(filtered) != 1 || len(filtered[0].Tools) != 1 {
		t.Fatalf("filtered = %+v", filtered)
	}
	jira := filtered[0].Tools[0]

	patched := decodeData[models.Tool](t, doRawRequest(srv, "PATCH", "/v1/tools/"+jira.ID, leader, `{"description":"스프린트 보드"}`), http.StatusOK)
	if patched.URL != "https://jira.example.com" || patched.Description != "스프린트 보드" {
		t.Errorf("patched = %+v", patched)
	}

	if w := doRequest(srv, "DELETE", "/v1/tools/"+jira.ID, leader, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	expectError(t, doRequest(srv, "GET", "/v1/tools/"+jira.ID, guest, nil), http.StatusNotFound, ErrCodeNotFound)
}
