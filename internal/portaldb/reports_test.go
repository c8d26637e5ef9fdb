package portaldb

import (
	"errors"
	"testing"
	"time"

	"github.com/fitteam/fitlib/internal/models"
)

func TestCreateReportNormalisesWeek(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "kim", models.GradeMember)

	r, err := db.CreateReport(u.ID, ReportInput{WeekStart: "2026-10-14", Done: "API", Plan: "tests"})
	if err != nil {
		t.Fatal(err)
	}
	if r.WeekStart != "2026-10-12" {
		t.Errorf("week_start = %s, want Monday 2026-10-12", r.WeekStart)
	}

	_, err = db.CreateReport(u.ID, ReportInput{WeekStart: "2026-10-18", Done: "again"})
	if !errors.Is(err, ErrDuplicateReport) || !errors.Is(err, ErrConflict) {
		t.Fatalf("second report same week: err = %v", err)
	}
	if _, err := db.CreateReport(u.ID, ReportInput{WeekStart: "2026-10-19"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty report: err = %v", err)
	}
	if _, err := db.CreateReport(u.ID, ReportInput{WeekStart: "this week", Done: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad week: err = %v", err)
	}
}

func TestListReportsForWeekMissing(t *testing.T) {
	db := newTestDB(t)
	alice := newTestUser(t, db, "alice", models.GradeMember)
	bob := newTestUser(t, db, "bob", models.GradeLeader)
	newTestUser(t, db, "visitor", models.GradeGuest)

	if _, err := db.CreateReport(alice.ID, ReportInput{WeekStart: "2026-10-12", Done: "x"}); err != nil {
		t.Fatal(err)
	}

	listing, err := db.ListReportsForWeek("2026-10-16")
	if err != nil {
		t.Fatal(err)
	}
	if listing.WeekStart != "2026-10-12" || len(listing.Reports) != 1 {
		t.Fatalf("listing = %+v", listing)
	}
	if len(listing.Missing) != 1 || listing.Missing[0].ID != bob.ID {
		t.Errorf("missing = %+v, want only bob", listing.Missing)
	}
}

func TestReportThread(t *testing.T) {
	db := newTestDB(t)
	db.SetClock(steppingClock(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)))
	author := newTestUser(t, db, "kim", models.GradeMember)
	leader := newTestUser(t, db, "boss", models.GradeLeader)

	r, _ := db.CreateReport(author.ID, ReportInput{WeekStart: "2026-10-12", Done: "x"})
	other, _ := db.CreateReport(leader.ID, ReportInput{WeekStart: "2026-10-12", Done: "y"})

	root, err := db.AddReply(r.ID, "", leader.ID, "좋습니다")
	if err != nil {
		t.Fatal(err)
	}
	child, err := db.AddReply(r.ID, root.ID, author.ID, "감사합니다")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := db.AddReply(r.ID, "", author.ID, "추가 공유")

	if _, err := db.AddReply(other.ID, root.ID, leader.ID, "wrong thread"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("cross-report parent: err = %v", err)
	}

	thread, err := db.GetReportThread(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(thread.Replies) != 2 || thread.Replies[0].ID != root.ID || thread.Replies[1].ID != second.ID {
		t.Fatalf("roots = %+v", thread.Replies)
	}
	if len(thread.Replies[0].Children) != 1 || thread.Replies[0].Children[0].ID != child.ID {
		t.Fatalf("children = %+v", thread.Replies[0].Children)
	}

	// Deleting a reply with children leaves a tombstone.
	if err := db.DeleteReply(root.ID); err != nil {
		t.Fatal(err)
	}
	tomb, _ := db.GetReply(root.ID)
	if tomb == nil || !tomb.Deleted || tomb.Body != "" {
		t.Errorf("tombstone = %+v", tomb)
	}
	if _, err := db.AddReply(r.ID, root.ID, author.ID, "late"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("reply to tombstone: err = %v", err)
	}

	// A leaf is removed outright.
	if err := db.DeleteReply(second.ID); err != nil {
		t.Fatal(err)
	}
	if gone, _ := db.GetReply(second.ID); gone != nil {
		t.Error("leaf reply should be deleted")
	}

	// Removing the tombstone's last child removes the tombstone as well.
	if err := db.DeleteReply(child.ID); err != nil {
		t.Fatal(err)
	}
	if gone, _ := db.GetReply(root.ID); gone != nil {
		t.Errorf("childless tombstone kept: %+v", gone)
	}
	thread, err = db.GetReportThread(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(thread.Replies) != 0 {
		t.Errorf("thread after pruning = %+v", thread.Replies)
	}
	if err := db.DeleteReply(child.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete twice: err = %v", err)
	}
}

func TestDeleteReplyPrunesTombstoneChain(t *testing.T) {
	db := newTestDB(t)
	db.SetClock(steppingClock(time.Date(2026, 10, 14, 1, 0, 0, 0, time.UTC)))
	author := newTestUser(t, db, "kim", models.GradeMember)
	r, _ := db.CreateReport(author.ID, ReportInput{WeekStart: "2026-10-12", Done: "x"})

	top, _ := db.AddReply(r.ID, "", author.ID, "1")
	mid, _ := db.AddReply(r.ID, top.ID, author.ID, "2")
	low, _ := db.AddReply(r.ID, mid.ID, author.ID, "3")
	leaf, _ := db.AddReply(r.ID, low.ID, author.ID, "4")

	// mid and low become tombstones; top stays live.
	for _, id := range []string{mid.ID, low.ID} {
		if err := db.DeleteReply(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.DeleteReply(leaf.ID); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{leaf.ID, low.ID, mid.ID} {
		if gone, _ := db.GetReply(id); gone != nil {
			t.Errorf("reply %s should be pruned: %+v", id, gone)
		}
	}
	kept, _ := db.GetReply(top.ID)
	if kept == nil || kept.Deleted || kept.Body != "1" {
		t.Errorf("live ancestor = %+v", kept)
	}
}

func TestBuildReplyTreeOrphans(t *testing.T) {
	replies := []*models.ReportReply{
		{ID: "a"},
		{ID: "b", ParentID: "a"},
		{ID: "c", ParentID: "gone"},
		{ID: "d", ParentID: "b"},
	}
	roots := BuildReplyTree(replies)
	if len(roots) != 2 || roots[0].ID != "a" || roots[1].ID != "c" {
		t.Fatalf("roots = %+v", roots)
	}
	if roots[0].Children[0].Children[0].ID != "d" {
		t.Errorf("grandchild not nested")
	}
}

func TestUpdateReport(t *testing.T) {
	db := newTestDB(t)
	u := newTestUser(t, db, "kim", models.GradeMember)
	r, _ := db.CreateReport(u.ID, ReportInput{WeekStart: "2026-10-12", Done: "x"})

	updated, err := db.UpdateReport(r.ID, ReportInput{Done: "x", Plan: "y", Issues: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Plan != "y" || updated.WeekStart != "2026-10-12" {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := db.UpdateReport("r_missing", ReportInput{Done: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v", err)
	}
}
