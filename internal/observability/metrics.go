package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects application metrics for the agent engine.
//
// Tracked concerns:
//   - Query throughput and end-to-end turn latency
//   - LLM request performance and token consumption
//   - Tool execution counts and latencies by status
//   - Rate-limit denials for capacity planning
//   - Active session counts
type Metrics struct {
	// QueryCounter counts turns by outcome.
	// Labels: outcome (completed|error|cancelled)
	QueryCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error|permission_denied)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// RateLimitDenials counts denied admissions per principal bucket.
	RateLimitDenials prometheus.Counter

	// ActiveSessions gauges current active sessions.
	ActiveSessions prometheus.Gauge

	// AuditWriteFailures counts swallowed audit persistence errors.
	AuditWriteFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sage_queries_total",
				Help: "Total number of conversational turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sage_turn_duration_seconds",
				Help:    "End-to-end turn latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sage_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sage_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sage_llm_tokens_total",
				Help: "Total number of tokens used by provider and model",
			},
			[]string{"provider", "model"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sage_tool_executions_total",
				Help: "Total number of tool invocations by name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sage_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		RateLimitDenials: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sage_rate_limit_denials_total",
				Help: "Total number of denied rate-limit admissions",
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sage_active_sessions",
				Help: "Current number of active sessions",
			},
		),
		AuditWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sage_audit_write_failures_total",
				Help: "Audit persistence errors recovered locally",
			},
		),
	}
}
