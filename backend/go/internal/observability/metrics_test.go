package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Query("sync")
	m.Query("sync")
	m.Verification("unavailable", time.Second)
	m.Conflict("high")
	m.ReconcileAction("delete", "scraper")
	m.TaskStarted()
	m.TaskStarted()
	m.TaskDone()
	m.BreakerState("closed", "open")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queries.WithLabelValues("sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileActions.WithLabelValues("delete", "scraper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backgroundTasks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerState.WithLabelValues("closed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Query("none")
		m.Verification("ok", time.Millisecond)
		m.Conflict("low")
		m.ReconcileAction("add", "manual")
		m.TaskStarted()
		m.TaskDone()
		m.BreakerState("closed", "open")
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Query("background")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `esilv_knowledge_queries_total{mode="background"} 1`)
}
