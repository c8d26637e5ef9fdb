package api

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration. Values come from DefaultConfig,
// then an optional YAML file, then FITLIB_* environment variables.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"`
	DBPath          string        `yaml:"db_path"`
	BaseURL         string        `yaml:"base_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	MenusFile       string        `yaml:"menus_file"`

	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"` // empty = disabled

	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For header is
	// honoured. Empty means client IPs always come from the socket.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// Timezone is the portal's calendar zone: "today", the current week and
	// scheduled jobs are resolved in it.
	Timezone string `yaml:"timezone"`

	Vacation VacationConfig `yaml:"vacation"`
	Notify   NotifyConfig   `yaml:"notify"`
	Jobs     JobsConfig     `yaml:"jobs"`

	AuditRetention time.Duration `yaml:"audit_retention"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Format string `yaml:"format"` // "json" (default) or "text"
	Level  string `yaml:"level"`  // "debug", "info" (default), "warn", "error"
}

// RateLimitConfig holds per-minute request budgets.
type RateLimitConfig struct {
	Login int `yaml:"login"` // POST /v1/auth/login per IP
	Write int `yaml:"write"` // mutating requests per user
	Read  int `yaml:"read"`  // GET requests per user
}

// VacationConfig holds leave policy.
type VacationConfig struct {
	AnnualAllowance float64 `yaml:"annual_allowance"`
}

// NotifyConfig configures event sinks. Empty URLs disable a sink.
type NotifyConfig struct {
	WebhookURL        string `yaml:"webhook_url"`
	WebhookSecret     string `yaml:"webhook_secret"`
	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
	QueueSize         int    `yaml:"queue_size"`
}

// JobsConfig configures the background scheduler.
type JobsConfig struct {
	Enabled            bool   `yaml:"enabled"`
	ReportReminderSpec string `yaml:"report_reminder_spec"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/fitlib.db",
		BaseURL:         "http://localhost:8080",
		ShutdownTimeout: 30 * time.Second,
		SessionTTL:      12 * time.Hour,
		Log:             LogConfig{Format: "json", Level: "info"},
		RateLimit:       RateLimitConfig{Login: 10, Write: 120, Read: 600},
		Vacation:        VacationConfig{AnnualAllowance: 15},
		Notify:          NotifyConfig{NATSSubjectPrefix: "fitlib", QueueSize: 256},
		Jobs:            JobsConfig{Enabled: true, ReportReminderSpec: "0 16 * * FRI"},
		Timezone:        "Local",
		AuditRetention:  180 * 24 * time.Hour,
	}
}

// LoadConfig builds the configuration. path may be empty, in which case
// FITLIB_CONFIG is consulted; a missing file named explicitly is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("FITLIB_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	positive := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	list := func(key string, dst *[]string) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		*dst = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				*dst = append(*dst, o)
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d := parseDaysDuration(v); d > 0 {
				*dst = d
			}
		}
	}

	str("FITLIB_LISTEN_ADDR", &cfg.ListenAddr)
	str("FITLIB_DB_PATH", &cfg.DBPath)
	str("FITLIB_BASE_URL", &cfg.BaseURL)
	str("FITLIB_MENUS_FILE", &cfg.MenusFile)
	duration("FITLIB_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	duration("FITLIB_SESSION_TTL", &cfg.SessionTTL)
	duration("FITLIB_AUDIT_RETENTION", &cfg.AuditRetention)

	str("FITLIB_LOG_FORMAT", &cfg.Log.Format)
	str("FITLIB_LOG_LEVEL", &cfg.Log.Level)

	positive("FITLIB_RATE_LIMIT_LOGIN", &cfg.RateLimit.Login)
	positive("FITLIB_RATE_LIMIT_WRITE", &cfg.RateLimit.Write)
	positive("FITLIB_RATE_LIMIT_READ", &cfg.RateLimit.Read)

	if v := os.Getenv("FITLIB_ANNUAL_ALLOWANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Vacation.AnnualAllowance = f
		}
	}

	str("FITLIB_WEBHOOK_URL", &cfg.Notify.WebhookURL)
	str("FITLIB_WEBHOOK_SECRET", &cfg.Notify.WebhookSecret)
	str("FITLIB_NATS_URL", &cfg.Notify.NATSURL)
	str("FITLIB_NATS_SUBJECT_PREFIX", &cfg.Notify.NATSSubjectPrefix)

	if v := os.Getenv("FITLIB_JOBS_ENABLED"); v == "false" || v == "0" {
		cfg.Jobs.Enabled = false
	}
	str("FITLIB_REPORT_REMINDER_SPEC", &cfg.Jobs.ReportReminderSpec)
	str("FITLIB_TIMEZONE", &cfg.Timezone)

	list("FITLIB_CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)
	list("FITLIB_TRUSTED_PROXIES", &cfg.TrustedProxies)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a level", c.Log.Level))
	}
	if c.RateLimit.Login <= 0 || c.RateLimit.Write <= 0 || c.RateLimit.Read <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.Vacation.AnnualAllowance < 0 {
		errs = append(errs, errors.New("vacation.annual_allowance cannot be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// parseDaysDuration parses a string like "90d", "30d" into a time.Duration.
// Falls back to time.ParseDuration for standard Go durations.
func parseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}
