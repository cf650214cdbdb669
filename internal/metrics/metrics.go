package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Controller counters and gauges, partitioned by tuned parameter (and route where it matters).

var (
	// Controller ticks
	ControllerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "controller",
		Name:      "ticks_total",
		Help:      "Total evaluation ticks by outcome",
	}, []string{"parameter", "outcome"})

	ControllerTickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "armctl",
		Subsystem: "controller",
		Name:      "tick_duration_seconds",
		Help:      "Evaluation tick duration including metric query and setpoint pushes",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"parameter"})

	ControllerTicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "controller",
		Name:      "ticks_skipped_total",
		Help:      "Ticks skipped because the previous tick was still running",
	}, []string{"parameter"})

	ControllerReady = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "controller",
		Name:      "ready",
		Help:      "1 once the controller seeded its baseline, 0 before",
	}, []string{"parameter"})

	ControllerTrackedResources = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "controller",
		Name:      "tracked_resources",
		Help:      "Number of routes with controller state",
	}, []string{"parameter"})

	ControllerConsecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "controller",
		Name:      "consecutive_failures",
		Help:      "Failed ticks in a row, reset by the next successful tick",
	}, []string{"parameter"})

	// Decisions
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "decision",
		Name:      "total",
		Help:      "Decisions by proposed action and sample region",
	}, []string{"parameter", "action", "region"})

	DecisionsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "decision",
		Name:      "cooldown_suppressed_total",
		Help:      "Non-noop decisions suppressed by the cooldown gate",
	}, []string{"parameter", "action"})

	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "decision",
		Name:      "samples_dropped_total",
		Help:      "Metric samples dropped before reaching the decision engine",
	}, []string{"parameter", "reason"})

	// Setpoints
	SetpointChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "setpoint",
		Name:      "changes_total",
		Help:      "Setpoint changes pushed to the gateway",
	}, []string{"parameter", "direction"})

	SetpointApplyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "setpoint",
		Name:      "apply_failures_total",
		Help:      "Setpoint pushes rejected or failed at the gateway",
	}, []string{"parameter"})

	SetpointValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "setpoint",
		Name:      "value",
		Help:      "Current setpoint as known to the controller",
	}, []string{"parameter", "route_id"})

	StableStreak = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "setpoint",
		Name:      "stable_streak",
		Help:      "Consecutive below-band samples observed for a route",
	}, []string{"parameter", "route_id"})

	GuardSignal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "setpoint",
		Name:      "guard_signal",
		Help:      "Latest guard signal value observed for a route",
	}, []string{"parameter", "route_id", "signal"})

	// Outbound calls
	UpstreamCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "Outbound calls by target, operation and status class",
	}, []string{"target", "operation", "status"})

	UpstreamCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "armctl",
		Subsystem: "upstream",
		Name:      "call_duration_seconds",
		Help:      "Outbound call duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"target", "operation"})

	UpstreamRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "upstream",
		Name:      "rate_limit_waits_total",
		Help:      "Outbound calls delayed by the client-side rate limiter",
	}, []string{"target"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "armctl",
		Subsystem: "upstream",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"target"})

	// Journal
	JournalWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "journal",
		Name:      "writes_total",
		Help:      "Setpoint change events written to journal sinks",
	}, []string{"sink", "status"})

	// Runtime policy
	PolicyWatcherErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "policy",
		Name:      "watcher_errors_total",
		Help:      "Runtime policy poll failures",
	}, []string{"parameter"})

	PolicyUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "policy",
		Name:      "updates_total",
		Help:      "Runtime policy replacements by result",
	}, []string{"parameter", "result"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "armctl",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the per-key cooldown",
	}, []string{"channel", "type"})
)
