package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn throughput and outcomes per route
//   - Per-phase pipeline latency against budgets
//   - Tool execution patterns, retries, and circuit state
//   - Event bus traffic and rate-limit drops
//   - Reminder scheduler activity
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: route, outcome (reply|ask|pending_confirmation|error)
	TurnCounter *prometheus.CounterVec

	// PhaseDuration measures pipeline phase latency in seconds.
	// Labels: phase (asr|router|tool|finalizer|tts)
	PhaseDuration *prometheus.HistogramVec

	// PhaseBudgetExceeded counts budget violations per phase.
	// Labels: phase
	PhaseBudgetExceeded *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolRetries counts retry attempts per tool.
	// Labels: tool
	ToolRetries *prometheus.CounterVec

	// CircuitOpen counts short-circuited calls per breaker domain.
	// Labels: domain
	CircuitOpen *prometheus.CounterVec

	// EventsPublished counts bus events by type.
	// Labels: type
	EventsPublished *prometheus.CounterVec

	// EventsDropped counts events dropped by middleware.
	// Labels: middleware (rate_limit|custom)
	EventsDropped *prometheus.CounterVec

	// RemindersFired counts reminder deliveries.
	// Labels: recurring (true|false)
	RemindersFired *prometheus.CounterVec

	// ActiveSessions tracks live conversation sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the
// given registerer. Pass prometheus.DefaultRegisterer in production;
// tests use a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_turns_total",
				Help: "Total number of processed turns by route and outcome",
			},
			[]string{"route", "outcome"},
		),

		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bantz_phase_duration_seconds",
				Help:    "Pipeline phase latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"phase"},
		),

		PhaseBudgetExceeded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_phase_budget_exceeded_total",
				Help: "Pipeline phases that exceeded their latency budget",
			},
			[]string{"phase"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_tool_executions_total",
				Help: "Total tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bantz_tool_execution_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),

		ToolRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_tool_retries_total",
				Help: "Tool retry attempts",
			},
			[]string{"tool"},
		),

		CircuitOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_circuit_open_total",
				Help: "Calls short-circuited by an open breaker",
			},
			[]string{"domain"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_events_published_total",
				Help: "Events published on the internal bus by type",
			},
			[]string{"type"},
		),

		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_events_dropped_total",
				Help: "Events dropped by bus middleware",
			},
			[]string{"middleware"},
		),

		RemindersFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantz_reminders_fired_total",
				Help: "Reminders delivered by the scheduler",
			},
			[]string{"recurring"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bantz_active_sessions",
				Help: "Currently open conversation sessions",
			},
		),
	}
}
