package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all LoomDB metrics
const (
	Namespace = "loomdb"
)

// MetricsCollector aggregates all metrics for a LoomDB component
type MetricsCollector struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Optimizer metrics
	OptimizeRequestsTotal     *prometheus.CounterVec
	OptimizeDuration          prometheus.Histogram
	OptimizerPasses           prometheus.Histogram
	OptimizerRuleApplications *prometheus.CounterVec
	OptimizerFailures         *prometheus.CounterVec
	PlanNodes                 *prometheus.HistogramVec
}

// NewMetricsCollector creates a new metrics collector for a component.
// Metrics register against the default registry; create one collector per
// process.
func NewMetricsCollector(component string) *MetricsCollector {
	return &MetricsCollector{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		OptimizeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimize_requests_total",
				Help:      "Total number of plan optimization requests",
			},
			[]string{"status"},
		),
		OptimizeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimize_duration_seconds",
				Help:      "Plan optimization duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		OptimizerPasses: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimizer_passes",
				Help:      "Rewrite passes needed to reach a fixpoint",
				Buckets:   []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
			},
		),
		OptimizerRuleApplications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimizer_rule_applications_total",
				Help:      "Total number of rule applications by rule name",
			},
			[]string{"rule"},
		),
		OptimizerFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "optimizer_failures_total",
				Help:      "Total number of failed optimizations by failure kind",
			},
			[]string{"kind"},
		),
		PlanNodes: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: component,
				Name:      "plan_nodes",
				Help:      "Plan tree size in nodes, before and after optimization",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"phase"},
		),
	}
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOptimize records the outcome of one optimization request
func (m *MetricsCollector) RecordOptimize(status string, duration time.Duration, passes int, inputNodes, outputNodes int) {
	if m == nil {
		return
	}
	m.OptimizeRequestsTotal.WithLabelValues(status).Inc()
	m.OptimizeDuration.Observe(duration.Seconds())
	if passes > 0 {
		m.OptimizerPasses.Observe(float64(passes))
	}
	m.PlanNodes.WithLabelValues("input").Observe(float64(inputNodes))
	if outputNodes > 0 {
		m.PlanNodes.WithLabelValues("output").Observe(float64(outputNodes))
	}
}

// RecordRuleApplication records one successful rule application
func (m *MetricsCollector) RecordRuleApplication(rule string) {
	if m == nil {
		return
	}
	m.OptimizerRuleApplications.WithLabelValues(rule).Inc()
}

// RecordOptimizerFailure records a failed optimization by failure kind
func (m *MetricsCollector) RecordOptimizerFailure(kind string) {
	if m == nil {
		return
	}
	m.OptimizerFailures.WithLabelValues(kind).Inc()
}

func statusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
