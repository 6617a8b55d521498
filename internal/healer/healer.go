// Package healer implements the self-healer: a closed-loop controller
// that turns health alerts, bottleneck findings, and external failure
// reports into recovery actions selected from a data-driven strategy
// table. It records a bounded outcome history per strategy and computes
// effectiveness trends so strategy preference can be retuned, and
// supports a preventive mode gated on prediction confidence.
package healer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/telemetry"
)

var log = logging.WithComponent("healer")

// FailureKind discriminates the incident categories the strategy table
// maps to recovery actions.
type FailureKind string

const (
	FailureAgentFailed        FailureKind = "agent-failed"
	FailureTaskTimeout        FailureKind = "task-timeout"
	FailureResourceExhaustion FailureKind = "resource-exhaustion"
	FailureQuorumLoss         FailureKind = "quorum-loss"
	FailureSlowAgent          FailureKind = "slow-agent"
)

// StrategyName is the chosen recovery action's name.
type StrategyName string

const (
	StrategyRestartAgent       StrategyName = "restart-agent"
	StrategyRetryTask          StrategyName = "retry-task"
	StrategyRebalanceResources StrategyName = "rebalance-resources"
	StrategyQuorumRecovery     StrategyName = "quorum-recovery"
	StrategyGradualDegradation StrategyName = "gradual-degradation"
)

// defaultStrategyFor is the default strategy table, the one place the
// failure-kind-to-strategy mapping is decided; WithStrategyOverride lets
// a caller retune it per the effectiveness feedback this package exposes.
func defaultStrategyFor(kind FailureKind) StrategyName {
	switch kind {
	case FailureAgentFailed:
		return StrategyRestartAgent
	case FailureTaskTimeout:
		return StrategyRetryTask
	case FailureResourceExhaustion:
		return StrategyRebalanceResources
	case FailureQuorumLoss:
		return StrategyQuorumRecovery
	case FailureSlowAgent:
		return StrategyGradualDegradation
	default:
		return ""
	}
}

// Incident is one detected or reported failure requiring a decision.
type Incident struct {
	Kind     FailureKind
	AgentID  string
	Metadata map[string]any
}

// ActionFunc performs one strategy's effect and reports what happened.
// Errors are recorded as a failed outcome, not propagated as a crash:
// the self-healer consumes errors as signals.
type ActionFunc func(incident Incident) (observedEffect string, err error)

// HealingAction is the record of one attempted recovery.
type HealingAction struct {
	Kind           FailureKind
	Strategy       StrategyName
	StartedAt      time.Time
	EndedAt        time.Time
	Success        bool
	ObservedEffect string
	Metadata       map[string]any
	Preventive     bool
}

// Duration returns how long the action took.
func (a HealingAction) Duration() time.Duration { return a.EndedAt.Sub(a.StartedAt) }

const defaultMaxHistory = 1000
const defaultPreventiveThreshold = 0.7

// Healer is the closed-loop controller. Each strategy is attempted once
// per incident; it is safe for concurrent Handle calls.
type Healer struct {
	mu                  sync.Mutex
	overrides           map[FailureKind]StrategyName
	actions             map[StrategyName]ActionFunc
	history             []HealingAction
	maxHistory          int
	preventiveThreshold float64

	predictionsConfirmed int
	predictionsRefuted   int
}

// Option configures a Healer at construction.
type Option func(*Healer)

// WithMaxHistory overrides the default 1000-entry bounded history.
func WithMaxHistory(n int) Option {
	return func(h *Healer) {
		if n > 0 {
			h.maxHistory = n
		}
	}
}

// WithPreventiveThreshold overrides the default 0.7 confidence threshold
// for preventive action.
func WithPreventiveThreshold(t float64) Option {
	return func(h *Healer) { h.preventiveThreshold = t }
}

// WithStrategyOverride retunes which strategy handles a failure kind,
// away from the default table.
func WithStrategyOverride(kind FailureKind, strategy StrategyName) Option {
	return func(h *Healer) { h.overrides[kind] = strategy }
}

// New builds a Healer. Action implementations are wired with
// RegisterAction; a Healer with none registered records every incident
// as a no-op failure (observed effect "no action registered"), which is
// still a valid signal for the effectiveness/telemetry surface.
func New(opts ...Option) *Healer {
	h := &Healer{
		overrides:           map[FailureKind]StrategyName{},
		actions:             map[StrategyName]ActionFunc{},
		maxHistory:          defaultMaxHistory,
		preventiveThreshold: defaultPreventiveThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAction wires the concrete effect for a strategy. The swarm
// coordinator facade is the usual caller, since the effects (restart an
// agent, rerun consensus, reweight quotas) need registry/topology/
// consensus access this package deliberately does not import.
func (h *Healer) RegisterAction(strategy StrategyName, fn ActionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[strategy] = fn
}

func (h *Healer) strategyFor(kind FailureKind) StrategyName {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.overrides[kind]; ok {
		return s
	}
	return defaultStrategyFor(kind)
}

// Handle selects and runs the strategy for incident.Kind, recording the
// outcome in the bounded history. It never panics on a missing or
// failing action; both surface as a recorded failure.
func (h *Healer) Handle(incident Incident) HealingAction {
	return h.run(incident, false)
}

// HandlePreventive applies the strategy for a predicted failure before
// it occurs, gated on confidence >= the configured threshold. It returns
// (action, true) if the threshold was met and the action ran, or
// (HealingAction{}, false) otherwise.
func (h *Healer) HandlePreventive(incident Incident, confidence float64) (HealingAction, bool) {
	h.mu.Lock()
	threshold := h.preventiveThreshold
	h.mu.Unlock()
	if confidence < threshold {
		return HealingAction{}, false
	}
	return h.run(incident, true), true
}

// RecordPredictionOutcome reports whether a failure handled preventively
// actually materialized afterward, calibrating future predictions.
func (h *Healer) RecordPredictionOutcome(occurred bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if occurred {
		h.predictionsConfirmed++
	} else {
		h.predictionsRefuted++
	}
}

// PredictionAccuracy returns the fraction of recorded preventive
// predictions that were confirmed, and the number recorded. Zero records
// yields (0, 0); callers treat that as "no calibration data yet".
func (h *Healer) PredictionAccuracy() (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := h.predictionsConfirmed + h.predictionsRefuted
	if total == 0 {
		return 0, 0
	}
	return float64(h.predictionsConfirmed) / float64(total), total
}

func (h *Healer) run(incident Incident, preventive bool) HealingAction {
	strategy := h.strategyFor(incident.Kind)

	h.mu.Lock()
	fn := h.actions[strategy]
	h.mu.Unlock()

	start := time.Now().UTC()
	var (
		effect string
		err    error
	)
	if fn == nil {
		err = fmt.Errorf("healer: no action registered for strategy %q", strategy)
	} else {
		effect, err = fn(incident)
	}
	end := time.Now().UTC()

	action := HealingAction{
		Kind: incident.Kind, Strategy: strategy, StartedAt: start, EndedAt: end,
		Success: err == nil, ObservedEffect: effect, Metadata: incident.Metadata, Preventive: preventive,
	}
	if err != nil {
		action.ObservedEffect = err.Error()
		log.Warn().Err(err).Str("kind", string(incident.Kind)).Str("strategy", string(strategy)).Msg("healing action failed")
	} else {
		log.Info().Str("kind", string(incident.Kind)).Str("strategy", string(strategy)).Str("effect", effect).Msg("healing action applied")
	}

	telemetry.HealingActions.WithLabelValues(string(strategy), fmt.Sprint(action.Success)).Observe(action.Duration().Seconds())

	h.mu.Lock()
	h.history = append(h.history, action)
	if len(h.history) > h.maxHistory {
		h.history = h.history[len(h.history)-h.maxHistory:]
	}
	h.mu.Unlock()

	return action
}

// History returns a snapshot of recorded actions, oldest first.
func (h *Healer) History() []HealingAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HealingAction(nil), h.history...)
}

// Effectiveness summarizes one strategy's track record.
type Effectiveness struct {
	Strategy          StrategyName
	Attempts          int
	SuccessRate       float64
	MeanTimeToRecover time.Duration
	Trend             Trend
}

// Trend compares the last third of a strategy's records against the
// earlier two-thirds.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendUnknown   Trend = "unknown" // too few records to call a trend
)

// EffectivenessFor computes the effectiveness summary for one strategy
// from the current history.
func (h *Healer) EffectivenessFor(strategy StrategyName) Effectiveness {
	h.mu.Lock()
	var records []HealingAction
	for _, a := range h.history {
		if a.Strategy == strategy {
			records = append(records, a)
		}
	}
	h.mu.Unlock()

	if len(records) == 0 {
		return Effectiveness{Strategy: strategy, Trend: TrendUnknown}
	}

	var successes int
	var totalDuration time.Duration
	for _, r := range records {
		if r.Success {
			successes++
		}
		totalDuration += r.Duration()
	}

	eff := Effectiveness{
		Strategy:          strategy,
		Attempts:          len(records),
		SuccessRate:       float64(successes) / float64(len(records)),
		MeanTimeToRecover: totalDuration / time.Duration(len(records)),
	}

	if len(records) < 3 {
		eff.Trend = TrendUnknown
		return eff
	}

	splitAt := len(records) - len(records)/3
	earlier := records[:splitAt]
	recent := records[splitAt:]
	earlierRate := successRate(earlier)
	recentRate := successRate(recent)

	const epsilon = 0.05
	switch {
	case recentRate-earlierRate > epsilon:
		eff.Trend = TrendImproving
	case earlierRate-recentRate > epsilon:
		eff.Trend = TrendDeclining
	default:
		eff.Trend = TrendStable
	}
	return eff
}

func successRate(records []HealingAction) float64 {
	if len(records) == 0 {
		return 0
	}
	successes := 0
	for _, r := range records {
		if r.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(records))
}
