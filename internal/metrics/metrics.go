// Package metrics holds the Prometheus instruments for the linking service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/mclink/internal/model"
)

const namespace = "mclink"

// Metrics is registered against an explicit registry so tests and multiple
// apps in one process never collide. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	connectionAttempts *prometheus.CounterVec
	whitelistDrift     *prometheus.CounterVec
	codesIssued        prometheus.Counter
	codesConfirmed     prometheus.Counter
	decisions          *prometheus.CounterVec
	revocations        *prometheus.CounterVec
	restorations       prometheus.Counter
	roleSyncs          *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers all instruments with reg
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		connectionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Connection attempts by returned action",
		}, []string{"action"}),
		whitelistDrift: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_drift_total",
			Help:      "Joins where the game server's whitelist disagreed with the decision",
		}, []string{"direction"}),
		codesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_codes_issued_total",
			Help:      "Auth codes issued",
		}),
		codesConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_codes_confirmed_total",
			Help:      "Auth codes confirmed from the chat platform",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staff_decisions_total",
			Help:      "Staff approvals and rejections",
		}, []string{"decision"}),
		revocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocations_total",
			Help:      "Whitelist revocations by reason",
		}, []string{"reason"}),
		restorations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restorations_total",
			Help:      "Whitelists restored after a member rejoined",
		}),
		roleSyncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_syncs_total",
			Help:      "Role sync calculations by result",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status",
		}, []string{"method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionAttempt(action model.ConnectionAction) {
	if m == nil {
		return
	}
	m.connectionAttempts.WithLabelValues(string(action)).Inc()
}

// WhitelistDrift counts a join whose reported whitelist state was wrong:
// "missing" when the player should be whitelisted, "stale" when not.
func (m *Metrics) WhitelistDrift(direction string) {
	if m == nil {
		return
	}
	m.whitelistDrift.WithLabelValues(direction).Inc()
}

func (m *Metrics) CodeIssued() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) CodeConfirmed() {
	if m == nil {
		return
	}
	m.codesConfirmed.Inc()
}

func (m *Metrics) Approved() {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues("approved").Inc()
}

func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues("rejected").Inc()
}

func (m *Metrics) Revoked(reason model.RevocationReason) {
	if m == nil {
		return
	}
	m.revocations.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) Restored() {
	if m == nil {
		return
	}
	m.restorations.Inc()
}

// RoleSync records one calculation: "changed", "unchanged", "disabled" or "failed"
func (m *Metrics) RoleSync(result string) {
	if m == nil {
		return
	}
	m.roleSyncs.WithLabelValues(result).Inc()
}

// HTTPRequest records a completed request
func (m *Metrics) HTTPRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
