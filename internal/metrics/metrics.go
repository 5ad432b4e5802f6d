// Package metrics holds the Prometheus collectors of both binaries. Each
// Metrics owns its registry so tests can build as many as they need.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "txadmin"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	sessionsExpired    prometheus.Counter
	loginAttempts      *prometheus.CounterVec
	draftsSubmitted    *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	auditRows          *prometheus.CounterVec
	suspiciousRequests prometheus.Counter
	staleResponses     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		apiRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Calls to the remote transaction API, by endpoint and status code",
			},
			[]string{"method", "endpoint", "code"},
		),
		apiDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Remote API call duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"method", "endpoint"},
		),
		sessionsExpired: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_expired_total",
				Help:      "Sessions whose token was cleared after an authorization failure",
			},
		),
		loginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		draftsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drafts_submitted_total",
				Help:      "Transaction drafts submitted, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		eventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Transaction events published, by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		auditRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_rows_appended_total",
				Help:      "Rows appended to the audit sheet by the worker",
			},
			[]string{"outcome"},
		),
		suspiciousRequests: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suspicious_requests_total",
				Help:      "Requests rejected by the scan detector",
			},
		),
		staleResponses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "table_stale_responses_total",
				Help:      "Table fetch responses dropped because a newer fetch had started",
			},
			[]string{"view"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveAPI records one remote call. status is 0 when no response arrived.
func (m *Metrics) ObserveAPI(method, endpoint string, status int, d time.Duration) {
	m.apiRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (m *Metrics) SessionExpired() { m.sessionsExpired.Inc() }

func (m *Metrics) LoginAttempt(outcome string) {
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DraftSubmitted(mode, outcome string) {
	m.draftsSubmitted.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) EventPublished(action, outcome string) {
	m.eventsPublished.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) AuditRowsAppended(outcome string, n int) {
	m.auditRows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) SuspiciousRequest() { m.suspiciousRequests.Inc() }

func (m *Metrics) StaleResponses(view string, n int) {
	if n > 0 {
		m.staleResponses.WithLabelValues(view).Add(float64(n))
	}
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	)
}
