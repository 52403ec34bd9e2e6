// Package metrics holds the Prometheus collectors of the gateway.
// Every recording method is safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "websession"

// Metrics is the set of gateway collectors
type Metrics struct {
	LoginsTotal            *prometheus.CounterVec
	RefreshesTotal         *prometheus.CounterVec
	LogoutsTotal           prometheus.Counter
	CorruptedEntriesTotal  prometheus.Counter
	StorageErrorsTotal     *prometheus.CounterVec
	GuardDecisionsTotal    *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	SessionStores          prometheus.Gauge
}

// New creates the collectors without registering them
func New() *Metrics {
	return &Metrics{
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login and registration attempts by outcome",
		}, []string{"kind", "outcome"}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Token refreshes by outcome",
		}, []string{"outcome"}),
		LogoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Completed logouts",
		}),
		CorruptedEntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "corrupted_entries_total",
			Help:      "Stored token entries removed because they could not be decrypted or validated",
		}),
		StorageErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Storage medium failures by operation",
		}, []string{"op"}),
		GuardDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard decisions",
		}, []string{"decision"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Backend API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		SessionStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_stores",
			Help:      "Browser session stores held in memory",
		}),
	}
}

// Register registers every collector with reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.LoginsTotal,
		m.RefreshesTotal,
		m.LogoutsTotal,
		m.CorruptedEntriesTotal,
		m.StorageErrorsTotal,
		m.GuardDecisionsTotal,
		m.BackendRequestDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionStores,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// RecordLogin counts a login or registration attempt
func (m *Metrics) RecordLogin(kind string, success bool) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(kind, outcome(success)).Inc()
}

// RecordRefresh counts a refresh attempt
func (m *Metrics) RecordRefresh(success bool) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordLogout counts a logout
func (m *Metrics) RecordLogout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

// RecordCorruptedEntry counts a self-healed token entry
func (m *Metrics) RecordCorruptedEntry() {
	if m == nil {
		return
	}
	m.CorruptedEntriesTotal.Inc()
}

// RecordStorageError counts a storage medium failure
func (m *Metrics) RecordStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrorsTotal.WithLabelValues(op).Inc()
}

// RecordGuardDecision counts a route guard decision
func (m *Metrics) RecordGuardDecision(decision string) {
	if m == nil {
		return
	}
	m.GuardDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveBackendRequest records one backend call
func (m *Metrics) ObserveBackendRequest(operation string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.BackendRequestDuration.WithLabelValues(operation, fmt.Sprint(status)).Observe(seconds)
}

// ObserveHTTPRequest records one served request
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// SetSessionStores updates the live store gauge
func (m *Metrics) SetSessionStores(n int) {
	if m == nil {
		return
	}
	m.SessionStores.Set(float64(n))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
