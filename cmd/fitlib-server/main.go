package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/fitteam/fitlib/internal/api"
	"github.com/fitteam/fitlib/internal/jobs"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/permission"
	"github.com/fitteam/fitlib/internal/portaldb"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $FITLIB_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("fitlib-server", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg api.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// newDispatcher builds the notification pipeline from the configured sinks.
func newDispatcher(cfg api.NotifyConfig, logger *slog.Logger) (*notify.Dispatcher, error) {
	var sinks []notify.Sink
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.NATSURL != "" {
		sink, err := notify.NewNATSSink(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	for _, s := range sinks {
		logger.Info("notify sink enabled", "sink", s.Name())
	}
	return notify.NewDispatcher(cfg.QueueSize, logger, sinks...), nil
}

func run(configPath string) error {
	cfg, err := api.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	store, err := portaldb.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open portal db: %w", err)
	}
	defer store.Close()

	menus, err := permission.NewStore(cfg.MenusFile, logger)
	if err != nil {
		return fmt.Errorf("load menus: %w", err)
	}

	dispatcher, err := newDispatcher(cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		loc, _ := cfg.Location()
		jc := jobs.DefaultConfig()
		jc.ReportReminderSpec = cfg.Jobs.ReportReminderSpec
		jc.AuditRetention = cfg.AuditRetention
		jc.Location = loc
		if scheduler, err = jobs.New(jc, store, dispatcher, logger); err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
	}

	srv, err := api.NewServer(cfg, store, menus, dispatcher)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("server started", "addr", cfg.ListenAddr, "db", cfg.DBPath, "schema", store.SchemaVersion())
	if scheduler != nil {
		scheduler.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return menus.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop jobs: %w", err))
			}
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
