// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records all service metrics. It satisfies
// the gateway call observer and the pipeline stage observer.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec

	stageRunsTotal *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	runsTotal       *prometheus.CounterVec
	activeRunsGauge prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers all metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests inject their own
// registry to avoid duplicate-registration panics.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.llmCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of upstream model calls",
		},
		[]string{"model", "status"},
	)

	c.llmCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Upstream model call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	c.stageRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"stage", "status"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliberation_runs_total",
			Help:      "Total number of deliberation runs",
		},
		[]string{"status"},
	)

	c.activeRunsGauge = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deliberation_runs_active",
			Help:      "Number of deliberation runs in flight",
		},
	)

	return c
}

// ObserveLLMCall records one upstream model call.
func (c *Collector) ObserveLLMCall(model, status string, duration time.Duration) {
	c.llmCallsTotal.WithLabelValues(model, status).Inc()
	c.llmCallDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveStage records one pipeline stage execution.
func (c *Collector) ObserveStage(stage, status string, duration time.Duration) {
	c.stageRunsTotal.WithLabelValues(stage, status).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one HTTP request.
func (c *Collector) ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RunStarted marks a deliberation run in flight.
func (c *Collector) RunStarted() {
	c.activeRunsGauge.Inc()
}

// RunFinished records a completed run with the given status.
func (c *Collector) RunFinished(status string) {
	c.activeRunsGauge.Dec()
	c.runsTotal.WithLabelValues(status).Inc()
}
