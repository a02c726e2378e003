// Package metrics exposes Prometheus instrumentation for the monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes recorded against the refresh counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics owns the process registry. A nil *Metrics records nothing, so
// callers that do not serve metrics can skip wiring it entirely.
type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastSuccess   prometheus.Gauge
	gpuNodes      prometheus.Gauge
	queuedJobs    prometheus.Gauge
	sinkErrors    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gpumon",
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gpumon",
			Name:      "refresh_cycle_duration_seconds",
			Help:      "Wall time of a full collect and publish cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gpumon",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful collection.",
		}),
		gpuNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gpumon",
			Name:      "gpu_nodes",
			Help:      "GPU nodes in the current snapshot.",
		}),
		queuedJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gpumon",
			Name:      "queued_gpu_jobs",
			Help:      "Pending GPU jobs in the current snapshot.",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gpumon",
			Name:      "sink_errors_total",
			Help:      "Snapshot deliveries dropped by a sink.",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles,
		m.cycleDuration,
		m.lastSuccess,
		m.gpuNodes,
		m.queuedJobs,
		m.sinkErrors,
	)
	return m
}

// ObserveCycle records one refresh cycle.
func (m *Metrics) ObserveCycle(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess {
		m.lastSuccess.SetToCurrentTime()
	}
}

// SetSnapshot updates the gauges describing the published snapshot.
func (m *Metrics) SetSnapshot(gpuNodes, queuedJobs int) {
	if m == nil {
		return
	}
	m.gpuNodes.Set(float64(gpuNodes))
	m.queuedJobs.Set(float64(queuedJobs))
}

// SinkError counts a failed delivery for the named sink.
func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
