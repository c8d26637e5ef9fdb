package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/fitteam/fitlib/internal/models"
	"github.com/fitteam/fitlib/internal/notify"
	"github.com/fitteam/fitlib/internal/permission"
	"github.com/fitteam/fitlib/internal/portaldb"
)

const maxRequestBody = 1 << 20

// Server is the HTTP API server for the team portal.
type Server struct {
	config      Config
	http        *http.Server
	store       *portaldb.DB
	menus       *permission.Store
	notifier    notify.Publisher
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc

	trustedProxies []netip.Prefix
}

// NewServer creates a new Server. menus and pub may be nil, in which case the
// embedded menu table and a discarding publisher are used. The store's
// calendar zone is set to cfg.Timezone.
func NewServer(cfg Config, store *portaldb.DB, menus *permission.Store, pub notify.Publisher) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("new server: store is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("new server: %w", err)
	}
	store.SetLocation(loc)
	trusted, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("new server: %w", err)
	}
	if menus == nil {
		if menus, err = permission.NewStore("", slog.Default()); err != nil {
			return nil, fmt.Errorf("new server: %w", err)
		}
	}
	if pub == nil {
		pub = notify.Discard{}
	}

	var stats func() notify.Stats
	if sp, ok := pub.(interface{ Stats() notify.Stats }); ok {
		stats = sp.Stats
	}

	s := &Server{
		config:      cfg,
		store:       store,
		menus:       menus,
		notifier:    pub,
		metrics:     NewMetrics(stats),
		rateLimiter: NewRateLimiter(),

		trustedProxies: trusted,
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.rateLimiter.Run(ctx)

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Auth
	mux.HandleFunc("POST /v1/auth/login", s.withLoginRateLimit(s.handleLogin))
	mux.HandleFunc("POST /v1/auth/logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("GET /v1/me", s.requireAuth(s.withRateLimit(s.handleMe, permission.Read)))
	mux.HandleFunc("PATCH /v1/me/password", s.requireAuth(s.withRateLimit(s.handleChangePassword, permission.Write)))
	mux.HandleFunc("GET /v1/me/sessions", s.requireAuth(s.withRateLimit(s.handleListSessions, permission.Read)))
	mux.HandleFunc("DELETE /v1/me/sessions/{id}", s.requireAuth(s.withRateLimit(s.handleRevokeSession, permission.Write)))

	// Dashboard
	mux.HandleFunc("GET /v1/dashboard", s.requireMenu("dashboard", permission.Read, s.handleDashboard))

	// Notices
	mux.HandleFunc("GET /v1/notices", s.requireMenu("notices", permission.Read, s.handleListNotices))
	mux.HandleFunc("POST /v1/notices", s.requireMenu("notices", permission.Write, s.handleCreateNotice))
	mux.HandleFunc("GET /v1/notices/{id}", s.requireMenu("notices", permission.Read, s.handleGetNotice))
	mux.HandleFunc("PATCH /v1/notices/{id}", s.requireMenu("notices", permission.Write, s.handleUpdateNotice))
	mux.HandleFunc("DELETE /v1/notices/{id}", s.requireMenu("notices", permission.Write, s.handleDeleteNotice))

	// Blog
	mux.HandleFunc("GET /v1/posts", s.requireMenu("blog", permission.Read, s.handleListPosts))
	mux.HandleFunc("POST /v1/posts", s.requireMenu("blog", permission.Write, s.handleCreatePost))
	mux.HandleFunc("GET /v1/posts/{id}", s.requireMenu("blog", permission.Read, s.handleGetPost))
	mux.HandleFunc("PATCH /v1/posts/{id}", s.requireMenu("blog", permission.Write, s.handleUpdatePost))
	mux.HandleFunc("DELETE /v1/posts/{id}", s.requireMenu("blog", permission.Write, s.handleDeletePost))
	mux.HandleFunc("GET /v1/posts/{id}/comments", s.requireMenu("blog", permission.Read, s.handleListComments))
	mux.HandleFunc("POST /v1/posts/{id}/comments", s.requireMenu("blog", permission.Write, s.handleAddComment))
	mux.HandleFunc("DELETE /v1/posts/{id}/comments/{commentID}", s.requireMenu("blog", permission.Write, s.handleDeleteComment))

	// Vacations
	mux.HandleFunc("GET /v1/vacations", s.requireMenu("vacations", permission.Read, s.handleListVacations))
	mux.HandleFunc("POST /v1/vacations", s.requireMenu("vacations", permission.Write, s.handleCreateVacation))
	mux.HandleFunc("GET /v1/vacations/calendar", s.requireMenu("vacations", permission.Read, s.handleVacationCalendar))
	mux.HandleFunc("GET /v1/vacations/balance", s.requireMenu("vacations", permission.Read, s.handleVacationBalance))
	mux.HandleFunc("GET /v1/vacations/{id}", s.requireMenu("vacations", permission.Read, s.handleGetVacation))
	mux.HandleFunc("PATCH /v1/vacations/{id}", s.requireMenu("vacations", permission.Write, s.handleUpdateVacation))
	mux.HandleFunc("POST /v1/vacations/{id}/approve", s.requireGrade(models.GradeLeader, s.handleApproveVacation))
	mux.HandleFunc("POST /v1/vacations/{id}/reject", s.requireGrade(models.GradeLeader, s.handleRejectVacation))
	mux.HandleFunc("POST /v1/vacations/{id}/cancel", s.requireMenu("vacations", permission.Write, s.handleCancelVacation))
	mux.HandleFunc("GET /v1/holidays", s.requireMenu("vacations", permission.Read, s.handleListHolidays))

	// Equipment
	mux.HandleFunc("GET /v1/equipment", s.requireMenu("equipment", permission.Read, s.handleListEquipment))
	mux.HandleFunc("POST /v1/equipment", s.requireMenu("equipment", permission.Write, s.handleCreateEquipment))
	mux.HandleFunc("GET /v1/equipment/{id}", s.requireMenu("equipment", permission.Read, s.handleGetEquipment))
	mux.HandleFunc("PATCH /v1/equipment/{id}", s.requireMenu("equipment", permission.Write, s.handleUpdateEquipment))
	mux.HandleFunc("DELETE /v1/equipment/{id}", s.requireMenu("equipment", permission.Write, s.handleDeleteEquipment))
	mux.HandleFunc("POST /v1/equipment/{id}/assign", s.requireMenu("equipment", permission.Write, s.handleAssignEquipment))
	mux.HandleFunc("POST /v1/equipment/{id}/return", s.requireMenu("equipment", permission.Write, s.handleReturnEquipment))
	mux.HandleFunc("GET /v1/equipment/{id}/history", s.requireMenu("equipment", permission.Read, s.handleEquipmentHistory))

	// Collaboration tools
	mux.HandleFunc("GET /v1/tools", s.requireMenu("tools", permission.Read, s.handleListTools))
	mux.HandleFunc("POST /v1/tools", s.requireMenu("tools", permission.Write, s.handleCreateTool))
	mux.HandleFunc("GET /v1/tools/{id}", s.requireMenu("tools", permission.Read, s.handleGetTool))
	mux.HandleFunc("PATCH /v1/tools/{id}", s.requireMenu("tools", permission.Write, s.handleUpdateTool))
	mux.HandleFunc("DELETE /v1/tools/{id}", s.requireMenu("tools", permission.Write, s.handleDeleteTool))

	// Weekly reports
	mux.HandleFunc("GET /v1/reports", s.requireMenu("reports", permission.Read, s.handleListReports))
	mux.HandleFunc("POST /v1/reports", s.requireMenu("reports", permission.Write, s.handleCreateReport))
	mux.HandleFunc("GET /v1/reports/{id}", s.requireMenu("reports", permission.Read, s.handleGetReport))
	mux.HandleFunc("PATCH /v1/reports/{id}", s.requireMenu("reports", permission.Write, s.handleUpdateReport))
	mux.HandleFunc("DELETE /v1/reports/{id}", s.requireMenu("reports", permission.Write, s.handleDeleteReport))
	mux.HandleFunc("POST /v1/reports/{id}/replies", s.requireMenu("reports", permission.Write, s.handleAddReply))
	mux.HandleFunc("DELETE /v1/reports/{id}/replies/{replyID}", s.requireMenu("reports", permission.Write, s.handleDeleteReply))

	// HR
	mux.HandleFunc("GET /v1/hr/employees", s.requireMenu("hr", permission.Read, s.handleListEmployees))
	mux.HandleFunc("POST /v1/hr/employees", s.requireMenu("hr", permission.Write, s.handleCreateEmployee))
	mux.HandleFunc("GET /v1/hr/employees/{id}", s.requireMenu("hr", permission.Read, s.handleGetEmployee))
	mux.HandleFunc("PATCH /v1/hr/employees/{id}", s.requireMenu("hr", permission.Write, s.handleUpdateEmployee))
	mux.HandleFunc("DELETE /v1/hr/employees/{id}", s.requireMenu("hr", permission.Write, s.handleDeleteEmployee))

	// Admin
	mux.HandleFunc("GET /v1/admin/users", s.requireMenu("admin.users", permission.Read, s.handleAdminListUsers))
	mux.HandleFunc("POST /v1/admin/users", s.requireMenu("admin.users", permission.Write, s.handleAdminCreateUser))
	mux.HandleFunc("GET /v1/admin/users/{id}", s.requireMenu("admin.users", permission.Read, s.handleAdminGetUser))
	mux.HandleFunc("PATCH /v1/admin/users/{id}", s.requireMenu("admin.users", permission.Write, s.handleAdminUpdateUser))
	mux.HandleFunc("POST /v1/admin/users/{id}/password", s.requireMenu("admin.users", permission.Write, s.handleAdminSetPassword))
	mux.HandleFunc("POST /v1/admin/holidays", s.requireMenu("admin.holidays", permission.Write, s.handleAdminAddHoliday))
	mux.HandleFunc("DELETE /v1/admin/holidays/{date}", s.requireMenu("admin.holidays", permission.Write, s.handleAdminDeleteHoliday))
	mux.HandleFunc("GET /v1/admin/audit", s.requireMenu("admin.audit", permission.Read, s.handleAdminAudit))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		metricsMiddleware(s.metrics, mux),
		loggingMiddleware,
		s.corsMiddleware,
		maxBytesMiddleware(maxRequestBody),
	)
}

// handleHealth returns a health check response, pinging the portal DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// audit records a successful mutation. Failures are logged, not surfaced:
// the mutation itself has already been committed.
func (s *Server) audit(r *http.Request, action, entityType, entityID string) {
	actor := ""
	if u := getUserFromContext(r.Context()); u != nil {
		actor = u.ID
	}
	if err := s.store.RecordAudit(actor, action, entityType, entityID); err != nil {
		logFor(r.Context()).Warn("record audit", "action", action, "entity_type", entityType, "entity_id", entityID, "err", err)
	}
}

// publish stamps ev with the caller and time and hands it to the notifier.
func (s *Server) publish(r *http.Request, ev notify.Event) {
	if u := getUserFromContext(r.Context()); u != nil && ev.Actor == "" {
		ev.Actor = u.ID
	}
	if ev.At.IsZero() {
		ev.At = s.store.Now()
	}
	if !s.notifier.Publish(ev) {
		logFor(r.Context()).Warn("notification dropped", "type", ev.Type, "entity_id", ev.EntityID)
	}
}

// pageParams reads ?limit= and ?cursor=.
func pageParams(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return 0, "", false
		}
		limit = n
	}
	return limit, r.URL.Query().Get("cursor"), true
}
