// Package health implements the Health Monitor: a periodic sweep that
// classifies every registered agent's health from its last-heartbeat age
// and writes the result back through the registry. It is the one
// component permitted to call registry.SetHealthState; the registry
// itself never decides a transition.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/registry"
	"github.com/dreamware/swarmcore/internal/telemetry"
)

var log = logging.WithComponent("health")

// Severity classifies an emitted Alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert reports one agent's state transition during a sweep.
type Alert struct {
	AgentID  string
	From     registry.HealthState
	To       registry.HealthState
	Severity Severity
	At       time.Time
}

func severityFor(to registry.HealthState) Severity {
	switch to {
	case registry.Degraded:
		return SeverityInfo
	case registry.Critical:
		return SeverityWarning
	case registry.Failed:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Record is the derived, non-canonical HealthRecord snapshot for one
// agent: last-heartbeat age, classified state, consecutive missed
// heartbeats, and last transition time.
type Record struct {
	AgentID                     string
	Age                         time.Duration
	State                       registry.HealthState
	ConsecutiveMissedHeartbeats int
	LastTransitionAt            time.Time
}

// Monitor sweeps the registry on a fixed interval, classifying each
// agent's health from heartbeat age against three configurable
// thresholds. Sweep cost is linear in registered-agent count and
// independent of the sweep interval.
type Monitor struct {
	reg *registry.Registry

	healthyMax  time.Duration
	degradedMax time.Duration
	criticalMax time.Duration
	interval    time.Duration

	onAlert func(Alert)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Monitor at construction.
type Option func(*Monitor)

func WithHealthyMax(d time.Duration) Option  { return func(m *Monitor) { m.healthyMax = d } }
func WithDegradedMax(d time.Duration) Option { return func(m *Monitor) { m.degradedMax = d } }
func WithCriticalMax(d time.Duration) Option { return func(m *Monitor) { m.criticalMax = d } }
func WithSweepInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithAlertHandler registers a callback invoked for every state
// transition observed during a sweep (feeds the self-healer).
func WithAlertHandler(fn func(Alert)) Option {
	return func(m *Monitor) { m.onAlert = fn }
}

// NewMonitor builds a Monitor with the default thresholds: healthy up
// to 10s of heartbeat age, degraded up to 20s, critical up to 30s,
// failed beyond that, swept every 5s.
func NewMonitor(reg *registry.Registry, opts ...Option) *Monitor {
	m := &Monitor{
		reg:         reg,
		healthyMax:  10 * time.Second,
		degradedMax: 20 * time.Second,
		criticalMax: 30 * time.Second,
		interval:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// classify maps a heartbeat age to a health state. A fresh heartbeat at
// any age returns the agent to Healthy on the next sweep.
func (m *Monitor) classify(age time.Duration) registry.HealthState {
	switch {
	case age <= m.healthyMax:
		return registry.Healthy
	case age <= m.degradedMax:
		return registry.Degraded
	case age <= m.criticalMax:
		return registry.Critical
	default:
		return registry.Failed
	}
}

// Start launches the sweep loop in a background goroutine. An initial
// sweep runs synchronously before Start returns, so callers observe
// up-to-date health immediately rather than one interval later.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.sweep()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-ctx.Done():
				log.Debug().Msg("health monitor stopping")
				return
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// sweep classifies every registered agent and writes transitions back
// through the registry, emitting an Alert for each actual state change.
func (m *Monitor) sweep() {
	now := time.Now().UTC()
	all := m.reg.ListAll()

	tally := map[registry.HealthState]int{}
	for _, a := range all {
		age := now.Sub(a.LastHeartbeat)
		next := m.classify(age)
		tally[next]++
		if next == a.Health {
			continue
		}

		missed := a.ConsecutiveMissedHeartbeats
		if next != registry.Healthy {
			missed++
		} else {
			missed = 0
		}

		if err := m.reg.SetHealthState(a.ID, next, missed); err != nil {
			log.Warn().Err(err).Str("agent_id", a.ID).Msg("failed to record health transition")
			continue
		}

		telemetry.HealthTransitions.WithLabelValues(string(a.Health), string(next)).Inc()
		log.Info().Str("agent_id", a.ID).Str("from", string(a.Health)).Str("to", string(next)).Msg("health transition")
		if m.onAlert != nil {
			m.onAlert(Alert{AgentID: a.ID, From: a.Health, To: next, Severity: severityFor(next), At: now})
		}
	}

	for _, state := range []registry.HealthState{registry.Healthy, registry.Degraded, registry.Critical, registry.Failed} {
		telemetry.AgentsByHealth.WithLabelValues(string(state)).Set(float64(tally[state]))
	}
}

// RecordFor returns the derived HealthRecord for one agent.
func (m *Monitor) RecordFor(id string) (Record, error) {
	a, err := m.reg.Lookup(id)
	if err != nil {
		return Record{}, err
	}
	return Record{
		AgentID:                     a.ID,
		Age:                         time.Since(a.LastHeartbeat),
		State:                       a.Health,
		ConsecutiveMissedHeartbeats: a.ConsecutiveMissedHeartbeats,
		LastTransitionAt:            a.LastTransitionAt,
	}, nil
}

// Uptime computes the fraction of [since, now] that the agent's last
// transition implies it spent in the healthy state. Because the registry
// only retains the current state and its last transition time (not a
// full history), this is a lower-bound estimate: time before the window
// start is assumed to share the state observed at window start.
func (m *Monitor) Uptime(id string, since time.Time) (float64, error) {
	a, err := m.reg.Lookup(id)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	windowStart := since
	total := now.Sub(windowStart)
	if total <= 0 {
		return 0, nil
	}

	transitionedAt := a.LastTransitionAt
	if transitionedAt.Before(windowStart) {
		transitionedAt = windowStart
	}

	var healthyDuration time.Duration
	if a.Health == registry.Healthy {
		healthyDuration = now.Sub(transitionedAt)
	}
	// Time before the last transition, within the window, is attributed
	// to whatever state preceded it; since that state is not retained,
	// treat it conservatively as not-healthy unless the agent has not
	// transitioned at all within the window (i.e. stayed healthy the
	// whole time).
	if a.Health == registry.Healthy && transitionedAt.Equal(windowStart) {
		healthyDuration = total
	}

	ratio := float64(healthyDuration) / float64(total)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio, nil
}
