// Package jobs runs the portal's periodic maintenance and reminder tasks on a
// cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/portaldb"
	"github.com/robfig/cron/v3"
)

// Store is the subset of the portal store the jobs need.
type Store interface {
	CleanupExpiredSessions() (int64, error)
	CleanupAudit(olderThan time.Duration) (int64, error)
	ListReportsForWeek(date string) (*portaldb.WeekListing, error)
	Now() time.Time
}

// Config holds the job schedules. Empty specs disable a job.
type Config struct {
	SessionPurgeSpec   string
	AuditPurgeSpec     string
	ReportReminderSpec string
	AuditRetention     time.Duration
	Location           *time.Location
}

// DefaultConfig returns the stock schedules.
func DefaultConfig() Config {
	return Config{
		SessionPurgeSpec:   "@every 10m",
		AuditPurgeSpec:     "@daily",
		ReportReminderSpec: "0 16 * * FRI",
		AuditRetention:     180 * 24 * time.Hour,
		Location:           time.Local,
	}
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	store  Store
	pub    notify.Publisher
	cfg    Config
	logger *slog.Logger
}

// New registers the configured jobs. It fails on an invalid cron spec.
func New(cfg Config, store Store, pub notify.Publisher, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Scheduler{store: store, pub: pub, cfg: cfg, logger: logger}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"session-purge", cfg.SessionPurgeSpec, s.purgeSessions},
		{"audit-purge", cfg.AuditPurgeSpec, s.purgeAudit},
		{"report-reminder", cfg.ReportReminderSpec, s.remindReports},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		logger.Info("job scheduled", "job", j.name, "spec", j.spec)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) purgeSessions() {
	n, err := s.store.CleanupExpiredSessions()
	if err != nil {
		s.logger.Error("session purge", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions purged", "count", n)
	}
}

func (s *Scheduler) purgeAudit() {
	if s.cfg.AuditRetention <= 0 {
		return
	}
	n, err := s.store.CleanupAudit(s.cfg.AuditRetention)
	if err != nil {
		s.logger.Error("audit purge", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("audit entries purged", "count", n, "retention", s.cfg.AuditRetention)
	}
}

func (s *Scheduler) remindReports() {
	today := s.store.Now().In(s.cfg.Location).Format("2006-01-02")
	listing, err := s.store.ListReportsForWeek(today)
	if err != nil {
		s.logger.Error("report reminder", "err", err)
		return
	}
	if len(listing.Missing) == 0 {
		return
	}
	ids := make([]string, 0, len(listing.Missing))
	names := make([]string, 0, len(listing.Missing))
	for _, u := range listing.Missing {
		ids = append(ids, u.ID)
		names = append(names, u.Name)
	}
	s.pub.Publish(notify.Event{
		Type:       notify.ReportReminder,
		EntityType: "report_week",
		EntityID:   listing.WeekStart,
		Summary:    fmt.Sprintf("%s 주간보고 미제출: %s", listing.WeekStart, strings.Join(names, ", ")),
		Recipients: ids,
	})
	s.logger.Info("report reminder sent", "week", listing.WeekStart, "missing", len(ids))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
