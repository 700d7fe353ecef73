// Package observability 定义知识编排相关的 Prometheus 指标。
// 所有方法都可以在 nil *Metrics 上调用，便于在测试中省略指标。
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "esilv"
	subsystem = "knowledge"
)

// Metrics 持有所有指标和它们注册到的 registry。
type Metrics struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	verifyDuration   prometheus.Histogram
	conflicts        *prometheus.CounterVec
	reconcileActions *prometheus.CounterVec
	backgroundTasks  prometheus.Gauge
	breakerState     *prometheus.GaugeVec
}

// New 在新的 registry 上创建指标，并附带 Go 运行时和进程指标。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		// Labels: mode (none, background, sync)
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "queries_total",
			Help: "Knowledge queries by verification mode",
		}, []string{"mode"}),
		// Labels: outcome (ok, empty, unavailable)
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "verifications_total",
			Help: "Live verification calls by outcome",
		}, []string{"outcome"}),
		verifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "verification_duration_seconds",
			Help:    "Live verification latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		// Labels: tier (none, low, medium, high)
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "conflicts_total",
			Help: "Conflict verdicts by tier",
		}, []string{"tier"}),
		// Labels: type (delete, add, update, verify), trigger (scraper, manual, scheduled)
		reconcileActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "reconciliation_actions_total",
			Help: "Knowledge base changes written by reconciliation",
		}, []string{"type", "trigger"}),
		backgroundTasks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "background_tasks_inflight",
			Help: "Background verification tasks currently running",
		}),
		// Labels: state (closed, open, half-open)
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "verifier_breaker_state",
			Help: "1 for the current state of the crawler circuit breaker",
		}, []string{"state"}),
	}
}

// Registry 返回底层 registry。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 的处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Query(mode string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(mode).Inc()
}

func (m *Metrics) Verification(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
	m.verifyDuration.Observe(d.Seconds())
}

func (m *Metrics) Conflict(tier string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(tier).Inc()
}

func (m *Metrics) ReconcileAction(kind, trigger string) {
	if m == nil {
		return
	}
	m.reconcileActions.WithLabelValues(kind, trigger).Inc()
}

// TaskStarted 和 TaskDone 成对调用。
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.backgroundTasks.Inc()
}

func (m *Metrics) TaskDone() {
	if m == nil {
		return
	}
	m.backgroundTasks.Dec()
}

// BreakerState 记录熔断器切换到的状态。
func (m *Metrics) BreakerState(from, to string) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(from).Set(0)
	m.breakerState.WithLabelValues(to).Set(1)
}
