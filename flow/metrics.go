package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is an optional Prometheus collector for run and step telemetry.
// All series are namespaced "flow_". Attach one to a Runner with
// WithMetrics; a nil Metrics disables collection.
//
//	registry := prometheus.NewRegistry()
//	runner := flow.NewRunner(flow.WithMetrics(flow.NewMetrics(registry)))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	runs        *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	rollbacks   *prometheus.CounterVec
	inflight    prometheus.Gauge
}

// NewMetrics creates and registers the collector with registry
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flow",
			Name:      "runs_total",
			Help:      "Workflow runs by terminal result",
		}, []string{"workflow", "result"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flow",
			Name:      "steps_total",
			Help:      "Step executions by result",
		}, []string{"workflow", "kind", "result"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flow",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds across attempts",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"workflow", "step", "result"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flow",
			Name:      "retries_total",
			Help:      "Retry attempts by step",
		}, []string{"workflow", "step"}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flow",
			Name:      "rollbacks_total",
			Help:      "Compensations invoked by result",
		}, []string{"workflow", "step", "result"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "flow",
			Name:      "inflight_steps",
			Help:      "Steps currently executing, parallel substeps included",
		}),
	}
}

func (m *Metrics) recordRun(workflow, result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(workflow, result).Inc()
}

func (m *Metrics) recordStep(workflow string, kind Kind, step, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(workflow, string(kind), result).Inc()
	m.stepLatency.WithLabelValues(workflow, step, result).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) recordRetry(workflow, step string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(workflow, step).Inc()
}

func (m *Metrics) recordRollback(workflow, step, result string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(workflow, step, result).Inc()
}

func (m *Metrics) stepStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) stepFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
