package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fitteam/fitlib/internal/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects server metrics: atomic counters for the /metricz JSON
// snapshot and a Prometheus registry for /metrics.
type Metrics struct {
	startTime    time.Time
	requests     atomic.Int64
	serverErrors atomic.Int64
	clientErrors atomic.Int64
	logins       atomic.Int64
	loginFails   atomic.Int64

	registry *prometheus.Registry
	reqTotal *prometheus.CounterVec
	reqDur   *prometheus.HistogramVec
	notify   func() notify.Stats
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Requests       int64   `json:"requests"`
	ServerErrors   int64   `json:"server_errors"`
	ClientErrors   int64   `json:"client_errors"`
	Logins         int64   `json:"logins"`
	LoginFailures  int64   `json:"login_failures"`
	NotifySent     uint64  `json:"notify_published"`
	NotifyDropped  uint64  `json:"notify_dropped"`
	NotifyFailures uint64  `json:"notify_failures"`
}

// NewMetrics creates a Metrics instance. notifyStats may be nil.
func NewMetrics(notifyStats func() notify.Stats) *Metrics {
	if notifyStats == nil {
		notifyStats = func() notify.Stats { return notify.Stats{} }
	}
	m := &Metrics{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		notify:    notifyStats,
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fitlib",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fitlib",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.reqTotal,
		m.reqDur,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fitlib", Name: "notify_published_total", Help: "Events accepted by the notification queue.",
		}, func() float64 { return float64(m.notify().Published) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fitlib", Name: "notify_dropped_total", Help: "Events dropped because the notification queue was full.",
		}, func() float64 { return float64(m.notify().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fitlib", Name: "notify_failures_total", Help: "Failed sink deliveries.",
		}, func() float64 { return float64(m.notify().Failed) }),
	)
	return m
}

// Observe records one finished request.
func (m *Metrics) Observe(route string, code int, dur time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.Add(1)
	switch {
	case code >= 500:
		m.serverErrors.Add(1)
	case code >= 400:
		m.clientErrors.Add(1)
	}
	m.reqTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.reqDur.WithLabelValues(route).Observe(dur.Seconds())
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(ok bool) {
	if ok {
		m.logins.Add(1)
		return
	}
	m.loginFails.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	ns := m.notify()
	return MetricsSnapshot{
		UptimeSeconds:  time.Since(m.startTime).Seconds(),
		Requests:       m.requests.Load(),
		ServerErrors:   m.serverErrors.Load(),
		ClientErrors:   m.clientErrors.Load(),
		Logins:         m.logins.Load(),
		LoginFailures:  m.loginFails.Load(),
		NotifySent:     ns.Published,
		NotifyDropped:  ns.Dropped,
		NotifyFailures: ns.Failed,
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
