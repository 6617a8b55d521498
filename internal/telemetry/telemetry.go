// Package telemetry centralizes the Prometheus collectors emitted by the
// swarm core: a dedicated prometheus.Registry (not the global default, so
// an embedding binary can expose it on its own /metrics path without
// colliding with its own collectors), namespace/subsystem-scoped metric
// names, and one package-level var block per collector rather than
// metrics constructed ad hoc at call sites.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every collector this package registers. An embedding
// binary wires it to promhttp.HandlerFor(telemetry.Registry, ...).
var Registry = prometheus.NewRegistry()

const namespace = "swarmcore"

var (
	// HealthTransitions counts health monitor state transitions by
	// from/to state, the Prometheus analog of the Alert stream in
	// internal/health.
	HealthTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "transitions_total",
			Help:      "Total number of agent health state transitions observed by sweeps.",
		},
		[]string{"from", "to"},
	)

	// AgentsByHealth gauges the current population count in each health
	// state, refreshed on every sweep.
	AgentsByHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "agents",
			Help:      "Current number of registered agents in each health state.",
		},
		[]string{"state"},
	)

	// BottleneckFindings counts findings emitted by the bottleneck
	// detector, by kind and severity.
	BottleneckFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bottleneck",
			Name:      "findings_total",
			Help:      "Total number of bottleneck findings emitted, by kind and severity.",
		},
		[]string{"kind", "severity"},
	)

	// BottleneckImpact gauges the most recent impact score observed for
	// each finding kind.
	BottleneckImpact = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bottleneck",
			Name:      "impact_score",
			Help:      "Most recent impact score ([0,1]) observed for each bottleneck finding kind.",
		},
		[]string{"kind"},
	)

	// HealingActions histograms self-healer action durations by strategy
	// and outcome.
	HealingActions = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "healer",
			Name:      "action_duration_seconds",
			Help:      "Duration of self-healer recovery actions, by strategy and success.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"strategy", "success"},
	)

	// ConsensusDecisions counts consensus outcomes by algorithm and
	// decision.
	ConsensusDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "decisions_total",
			Help:      "Total number of consensus decisions reached, by algorithm and decision.",
		},
		[]string{"algorithm", "decision"},
	)

	// MailboxOverflows counts enqueues rejected by a full mailbox, by
	// agent, as seen by the messaging substrate. Drop-oldest evictions
	// are not counted here; Mailbox.Overflow reports those.
	MailboxOverflows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "mailbox_overflow_total",
			Help:      "Total number of mailbox overflow events observed, by agent.",
		},
		[]string{"agent_id"},
	)
)

func init() {
	Registry.MustRegister(
		HealthTransitions,
		AgentsByHealth,
		BottleneckFindings,
		BottleneckImpact,
		HealingActions,
		ConsensusDecisions,
		MailboxOverflows,
	)
}
