package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide metrics logger C9 owns (spec §4.9). Scoped to
// what Shammah itself produces: routing decisions, provider/tool latency,
// generator state, and training queue depth.
type Metrics struct {
	RouteDecisions  *prometheus.CounterVec
	RouteConfidence *prometheus.HistogramVec

	ProviderRequestDuration *prometheus.HistogramVec
	ProviderRequestTotal    *prometheus.CounterVec

	ToolExecutionDuration *prometheus.HistogramVec
	ToolExecutionTotal    *prometheus.CounterVec

	GeneratorState *prometheus.GaugeVec

	ActiveSessions prometheus.Gauge

	TrainingQueueDepth prometheus.Gauge

	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every metric with Prometheus's default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RouteDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shammah_route_decisions_total",
				Help: "Total routing decisions by outcome (local|forward) and reason",
			},
			[]string{"outcome", "reason"},
		),
		RouteConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shammah_route_confidence",
				Help:    "Heuristic confidence score observed at routing time",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
			[]string{"outcome"},
		),
		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shammah_provider_request_duration_seconds",
				Help:    "Duration of remote provider requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ProviderRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shammah_provider_requests_total",
				Help: "Total remote provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shammah_tool_execution_duration_seconds",
				Help:    "Duration of tool executions",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		ToolExecutionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shammah_tool_executions_total",
				Help: "Total tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		GeneratorState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shammah_generator_state",
				Help: "1 for the generator's current phase, 0 otherwise",
			},
			[]string{"phase"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shammah_active_sessions",
				Help: "Current number of sessions held in the session map",
			},
		),
		TrainingQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shammah_training_queue_depth",
				Help: "Approximate number of examples buffered in the training channel",
			},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shammah_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by path and status code",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"path", "status_code"},
		),
	}
}

func (m *Metrics) observeGeneratorPhase(phase string) {
	for _, p := range []string{"initializing", "downloading", "loading", "ready", "failed", "not_available"} {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		m.GeneratorState.WithLabelValues(p).Set(v)
	}
}
