package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.IncWebhookEvent("follow", "dispatched")
	m.ObserveSweep("ticker", 1, 1, 0, 0, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSweepCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveSweep("ticker", 3, 2, 1, 1, 10*time.Millisecond)
	m.ObserveSweep("manual", 1, 1, 0, 0, time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.sweepFlows.WithLabelValues("due")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepFlows.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns.WithLabelValues("manual")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lf_sweep_flows_total")
}
