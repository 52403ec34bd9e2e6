package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()

	require.NoError(t, m.Register(reg))
	// A second registration of the same collectors fails
	assert.Error(t, m.Register(reg))
}

func TestMetrics_Recording(t *testing.T) {
	m := New()

	m.RecordLogin("login", true)
	m.RecordLogin("login", false)
	m.RecordLogin("login", false)
	m.RecordRefresh(true)
	m.RecordCorruptedEntry()
	m.RecordGuardDecision("redirect_login")
	m.SetSessionStores(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("login", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("login", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptedEntriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardDecisionsTotal.WithLabelValues("redirect_login")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionStores))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordLogin("login", true)
		m.RecordRefresh(false)
		m.RecordLogout()
		m.RecordCorruptedEntry()
		m.RecordStorageError("save")
		m.RecordGuardDecision("allow")
		m.ObserveBackendRequest("login", 200, 0.1)
		m.ObserveHTTPRequest("GET", "/health", 200, 0.01)
		m.SetSessionStores(1)
	})
}
