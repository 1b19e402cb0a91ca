// Package metrics holds the Prometheus collectors exported by the control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for governance, webhook dispatch and audit.
type Metrics struct {
	// Governance
	Evaluations     *prometheus.CounterVec
	ConfidenceScore *prometheus.GaugeVec
	AgentGated      *prometheus.GaugeVec
	TokensConsumed  *prometheus.CounterVec
	Reservations    *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	InvocationCost  *prometheus.CounterVec

	// Webhooks
	HandlersRegistered prometheus.Gauge
	Dispatches         *prometheus.CounterVec
	DispatchDuration   *prometheus.HistogramVec

	// Audit
	AuditDropped prometheus.Counter
	AuditFailed  prometheus.Counter
	AuditWritten prometheus.Counter
	AuditPurged  prometheus.Counter
}

// New creates all metrics and registers them with reg. A nil registerer
// uses a fresh private registry, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		Evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_evaluations_total",
				Help: "Confidence evaluations recorded, by gate outcome",
			},
			[]string{"outcome"}, // gated, open
		),
		ConfidenceScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governor_agent_confidence_score",
				Help: "Last recorded confidence score per agent",
			},
			[]string{"agent_id"},
		),
		AgentGated: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governor_agent_gated",
				Help: "1 when the agent is gated, 0 otherwise",
			},
			[]string{"agent_id"},
		),
		TokensConsumed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_tokens_consumed_total",
				Help: "Tokens deducted from agent budgets",
			},
			[]string{"agent_id"},
		),
		Reservations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_budget_reservations_total",
				Help: "Atomic budget reservations, by result",
			},
			[]string{"result"}, // allowed, denied
		),
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_cache_hits_total",
				Help: "Cache hits recorded against agent budgets",
			},
			[]string{"agent_id"},
		),
		InvocationCost: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_invocation_cost_usd_total",
				Help: "Accumulated invocation cost in USD",
			},
			[]string{"source"},
		),
		HandlersRegistered: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "governor_webhook_handlers",
				Help: "Currently registered webhook handlers",
			},
		),
		Dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_webhook_dispatches_total",
				Help: "Handler invocations, by subscribed event type (\"*\" for wildcard handlers) and status",
			},
			[]string{"event_type", "status"},
		),
		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_webhook_dispatch_duration_seconds",
				Help:    "Duration of a single handler invocation, by subscribed event type",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		AuditDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_audit_dropped_total",
				Help: "Audit records dropped because the outbox was full or closed",
			},
		),
		AuditFailed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_audit_failed_total",
				Help: "Audit records the sink failed to persist",
			},
		),
		AuditWritten: f.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_audit_written_total",
				Help: "Audit records persisted by the sink",
			},
		),
		AuditPurged: f.NewCounter(
			prometheus.CounterOpts{
				Name: "governor_audit_purged_total",
				Help: "In-memory audit records removed by the retention janitor",
			},
		),
	}
}
