package api

import (
	"net/http"

	"github.com/fitteam/fitlib/internal/dateparse"
	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/permission"
	"github.com/fitteam/fitlib/internal/portaldb"
	"golang.org/x/sync/errgroup"
)

const dashboardListSize = 5

// dashboardResponse is the data of GET /v1/dashboard. Sections the caller
// cannot read are omitted.
type dashboardResponse struct {
	Date      string                         `json:"date"`
	Notices   []*models.Notice               `json:"notices,omitempty"`
	Absentees []*models.Vacation             `json:"absentees,omitempty"`
	MyReport  *weeklyReportStatus            `json:"my_report,omitempty"`
	Equipment map[models.EquipmentStatus]int `json:"equipment,omitempty"`
	Posts     []*models.Post                 `json:"posts,omitempty"`
	Counts    *portaldb.Counts               `json:"counts,omitempty"`
}

// weeklyReportStatus tells the caller whether this week's report is in.
type weeklyReportStatus struct {
	WeekStart string `json:"week_start"`
	Submitted bool   `json:"submitted"`
	ReportID  string `json:"report_id,omitempty"`
}

// handleDashboard handles GET /v1/dashboard, gathering each section
// concurrently.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	table := s.menus.Table()
	can := func(menu string) bool { return table.Allowed(menu, permission.Read, user.Grade) }

	today := dateparse.Day(s.store.Now()).Format(dateparse.Layout)
	resp := dashboardResponse{Date: today}

	var g errgroup.Group
	if can("notices") {
		g.Go(func() error {
			page, err := s.store.ListNotices("", dashboardListSize, "")
			if err != nil {
				return err
			}
			resp.Notices = page.Data
			return nil
		})
	}
	if can("vacations") {
		g.Go(func() error {
			list, err := s.store.ListVacations(portaldb.VacationFilter{From: today, To: today})
			if err != nil {
				return err
			}
			resp.Absentees = []*models.Vacation{}
			for _, v := range list {
				if v.Status.Active() {
					resp.Absentees = append(resp.Absentees, v)
				}
			}
			return nil
		})
	}
	if can("reports") {
		g.Go(func() error {
			week, err := portaldb.NormalizeWeek(today)
			if err != nil {
				return err
			}
			status := &weeklyReportStatus{WeekStart: week}
			page, err := s.store.ListReportsByUser(user.ID, 1, "")
			if err != nil {
				return err
			}
			if len(page.Data) > 0 && page.Data[0].WeekStart == week {
				status.Submitted = true
				status.ReportID = page.Data[0].ID
			}
			resp.MyReport = status
			return nil
		})
	}
	if can("equipment") {
		g.Go(func() error {
			counts, err := s.store.EquipmentStatusCounts()
			if err != nil {
				return err
			}
			resp.Equipment = counts
			return nil
		})
	}
	if can("blog") {
		g.Go(func() error {
			page, err := s.store.ListPosts(portaldb.PostFilter{}, dashboardListSize, "")
			if err != nil {
				return err
			}
			resp.Posts = page.Data
			return nil
		})
	}
	if user.Grade.AtLeast(models.GradeLeader) {
		g.Go(func() error {
			c, err := s.store.CountRecords()
			if err != nil {
				return err
			}
			resp.Counts = &c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		writeStoreError(w, r, "load dashboard", err)
		return
	}
	writeData(w, http.StatusOK, resp)
}
