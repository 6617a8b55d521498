package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/dreamware/swarmcore/internal/bottleneck"
	"github.com/dreamware/swarmcore/internal/clockid"
	"github.com/dreamware/swarmcore/internal/conflict"
	"github.com/dreamware/swarmcore/internal/consensus"
	"github.com/dreamware/swarmcore/internal/healer"
	"github.com/dreamware/swarmcore/internal/health"
	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/messaging"
	"github.com/dreamware/swarmcore/internal/registry"
	"github.com/dreamware/swarmcore/internal/routing"
	"github.com/dreamware/swarmcore/internal/statesync"
	"github.com/dreamware/swarmcore/internal/swarmerr"
	"github.com/dreamware/swarmcore/internal/topology"
)

var log = logging.WithComponent("swarm")

// internalAgentID is the identity the coordinator registers itself under
// so it can participate in broadcast/send as the messaging substrate
// requires a registered sender; it never appears in the snapshots
// returned to callers (those are filtered), so no caller ever sees the
// coordinator listed as a peer agent.
const internalAgentID = "coordinator"

// TopologyInfo is the read-only snapshot GetTopologyInfo returns.
// HubLoad is only set for a star topology (possibly adaptive-wrapped):
// the hub mailbox depth classified into low/medium/high/critical.
type TopologyInfo struct {
	Kind        topology.Kind
	AgentCount  int
	Ascii       string
	HealthTally map[registry.HealthState]int
	HubLoad     string
}

// AgentStatus is the read-only snapshot GetAgentStatus returns.
type AgentStatus struct {
	ID           string
	Type         string
	Metadata     map[string]any
	Health       registry.HealthState
	MailboxDepth int
	Uptime       float64
}

// Coordinator is the facade integrating every subsystem. Construct with
// New and configure with Option; Start launches background loops (health
// sweep, bottleneck rollup) and Close joins them.
type Coordinator struct {
	reg          *registry.Registry
	topo         *topology.Manager
	sub          *routing.Substrate
	healthMon    *health.Monitor
	detector     *bottleneck.Detector
	resourceCtl  bottleneck.ResourceController
	consensusReg *consensus.Registry
	synchronizer *statesync.Synchronizer
	heal         *healer.Healer

	consensusEnabled bool
	syncEnabled      bool
	resolveEnabled   bool
	healthOpts       []health.Option

	onTopologyChanged func(TopologyInfo)

	cancel context.CancelFunc
	rollup *bottleneck.Rollup
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

// WithoutConsensus disables request_consensus; it fails with
// FeatureDisabled instead.
func WithoutConsensus() Option { return func(c *Coordinator) { c.consensusEnabled = false } }

// WithoutSync disables synchronize_state/delta_sync.
func WithoutSync() Option { return func(c *Coordinator) { c.syncEnabled = false } }

// WithoutConflictResolution disables resolve_conflicts.
func WithoutConflictResolution() Option { return func(c *Coordinator) { c.resolveEnabled = false } }

// WithRegistryOptions forwards options to the underlying registry (e.g.
// WithTokenIssuer/WithTokenVerifier, WithMailboxCapacity).
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(c *Coordinator) { c.reg = registry.New(opts...) }
}

// WithConsensusRegistry overrides the default four-algorithm registry.
func WithConsensusRegistry(r *consensus.Registry) Option {
	return func(c *Coordinator) { c.consensusReg = r }
}

// WithMemoryProvider overrides the default in-memory statesync.MemoryStore.
func WithMemoryProvider(p statesync.MemoryProvider, opts ...statesync.Option) Option {
	return func(c *Coordinator) { c.synchronizer = statesync.New(p, opts...) }
}

// WithResourceController overrides the default empty bottleneck
// ResourceController (StaticController{}).
func WithResourceController(rc bottleneck.ResourceController) Option {
	return func(c *Coordinator) { c.resourceCtl = rc }
}

// WithHealthOptions forwards options to the underlying health.Monitor,
// applied once New has a registry to bind the monitor to.
func WithHealthOptions(opts ...health.Option) Option {
	return func(c *Coordinator) { c.healthOpts = append(c.healthOpts, opts...) }
}

// WithOnTopologyChanged registers a callback fired after SwitchTopology
// completes its atomic swap, so a consumer can rebalance work against
// the new structure.
func WithOnTopologyChanged(fn func(TopologyInfo)) Option {
	return func(c *Coordinator) { c.onTopologyChanged = fn }
}

// New builds a Coordinator over an initial topology of kind (hub only
// meaningful for Star), every feature enabled by default, and no agents
// registered yet.
func New(kind topology.Kind, hub string, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		reg:              registry.New(),
		consensusReg:     consensus.NewRegistry(),
		heal:             healer.New(),
		resourceCtl:      bottleneck.StaticController{},
		detector:         bottleneck.New(),
		consensusEnabled: true,
		syncEnabled:      true,
		resolveEnabled:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.synchronizer == nil {
		c.synchronizer = statesync.New(statesync.NewMemoryStore())
	}
	healthOpts := append([]health.Option{health.WithAlertHandler(c.handleHealthAlert)}, c.healthOpts...)
	c.healthMon = health.NewMonitor(c.reg, healthOpts...)

	topo, err := topology.NewManager(kind, nil, hub)
	if err != nil {
		return nil, err
	}
	c.topo = topo
	c.sub = routing.New(c.reg, c.topo)

	// The coordinator registers itself so the substrate accepts it as a
	// broadcast sender, but it never joins the topology: it is control
	// plane, not a peer, and must not distort fan-out counts or ring
	// successor chains.
	if _, err := c.reg.Register(internalAgentID, "coordinator", nil); err != nil {
		return nil, fmt.Errorf("swarm: registering internal coordinator agent: %w", err)
	}

	c.wireDefaultHealing()
	c.rollup = bottleneck.NewRollup(c.detector, c.resourceCtl, bottleneck.WithResultHandler(c.handleBottleneckFindings))

	return c, nil
}

// Start launches the health sweep and bottleneck rollup background loops.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.healthMon.Start(ctx)
	return c.rollup.Start()
}

// Close stops every background loop and waits for them to exit.
func (c *Coordinator) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.healthMon.Stop()
	c.rollup.Stop()
}

// wireDefaultHealing connects the healer's default strategy table to
// real effects over this coordinator's own subsystems.
func (c *Coordinator) wireDefaultHealing() {
	c.heal.RegisterAction(healer.StrategyRestartAgent, func(incident healer.Incident) (string, error) {
		a, err := c.reg.Lookup(incident.AgentID)
		if err != nil {
			return "", err
		}
		if err := c.UnregisterAgent(incident.AgentID); err != nil {
			return "", err
		}
		if _, err := c.RegisterAgent(incident.AgentID, a.Type, a.Metadata); err != nil {
			return "", err
		}
		return "agent restarted with original metadata", nil
	})
	c.heal.RegisterAction(healer.StrategyGradualDegradation, func(incident healer.Incident) (string, error) {
		return fmt.Sprintf("routing new work away from %s", incident.AgentID), nil
	})
	c.heal.RegisterAction(healer.StrategyRebalanceResources, func(incident healer.Incident) (string, error) {
		return "requested quota rebalance across agents", nil
	})
	c.heal.RegisterAction(healer.StrategyQuorumRecovery, func(incident healer.Incident) (string, error) {
		return "forced re-registration of critical agents pending", nil
	})
	c.heal.RegisterAction(healer.StrategyRetryTask, func(incident healer.Incident) (string, error) {
		return "task retry scheduled", nil
	})
}

func (c *Coordinator) handleHealthAlert(alert health.Alert) {
	if alert.AgentID == internalAgentID {
		return
	}
	if alert.To == registry.Failed {
		c.heal.Handle(healer.Incident{Kind: healer.FailureAgentFailed, AgentID: alert.AgentID})
	} else if alert.To == registry.Critical {
		c.heal.Handle(healer.Incident{Kind: healer.FailureSlowAgent, AgentID: alert.AgentID})
	}
}

func (c *Coordinator) handleBottleneckFindings(findings []bottleneck.Finding) {
	for _, f := range findings {
		switch f.Kind {
		case bottleneck.KindSlowAgent:
			for _, agentID := range f.Resources {
				c.heal.Handle(healer.Incident{Kind: healer.FailureSlowAgent, AgentID: agentID, Metadata: f.Metrics})
			}
		case bottleneck.KindTokenExhaustion, bottleneck.KindQuotaExceeded:
			c.heal.Handle(healer.Incident{Kind: healer.FailureResourceExhaustion, Metadata: f.Metrics})
		case bottleneck.KindConsensusTimeout:
			c.heal.Handle(healer.Incident{Kind: healer.FailureQuorumLoss, Metadata: f.Metrics})
		}
	}
}

// QueueSnapshot aggregates every agent mailbox's depth into the queue
// view a ResourceController exposes, for deployments whose only queue
// accounting is the swarm's own mail backlog (cmd/swarmd points the
// host-backed controller's queue source here).
func (c *Coordinator) QueueSnapshot() bottleneck.QueueSnapshot {
	pending := 0
	for _, a := range c.reg.ListAll() {
		if a.ID == internalAgentID {
			continue
		}
		pending += a.Mailbox.Depth()
	}
	return bottleneck.QueueSnapshot{Pending: pending}
}

// Healer exposes the underlying self-healer, so callers can inspect
// History/EffectivenessFor or register custom strategy actions.
func (c *Coordinator) Healer() *healer.Healer { return c.heal }

// Detector exposes the underlying bottleneck detector, so callers can
// feed RecordTask/RecordMailboxDepth/RecordProposalOutcome samples.
func (c *Coordinator) Detector() *bottleneck.Detector { return c.detector }

// ---- Registry operations ----

// RegisterAgent registers a new agent and adds it to the active
// topology.
func (c *Coordinator) RegisterAgent(id, agentType string, metadata map[string]any) (registry.Agent, error) {
	a, err := c.reg.Register(id, agentType, metadata)
	if err != nil {
		return registry.Agent{}, err
	}
	if err := c.topo.AddAgent(id); err != nil {
		_ = c.reg.Unregister(id)
		return registry.Agent{}, err
	}
	return *a, nil
}

// UnregisterAgent removes an agent from the registry and the topology.
func (c *Coordinator) UnregisterAgent(id string) error {
	if err := c.reg.Unregister(id); err != nil {
		return err
	}
	c.topo.RemoveAgent(id)
	return nil
}

// UpdateAgentHeartbeat stamps last-heartbeat to now.
func (c *Coordinator) UpdateAgentHeartbeat(id string) error {
	return c.reg.UpdateHeartbeat(id)
}

// GetAgentStatus returns a snapshot of one agent's metadata, health,
// mailbox depth, and uptime over the given window.
func (c *Coordinator) GetAgentStatus(id string, uptimeWindow time.Duration) (AgentStatus, error) {
	a, err := c.reg.Lookup(id)
	if err != nil {
		return AgentStatus{}, err
	}
	uptime, _ := c.healthMon.Uptime(id, time.Now().UTC().Add(-uptimeWindow))
	return AgentStatus{
		ID: a.ID, Type: a.Type, Metadata: a.Metadata, Health: a.Health,
		MailboxDepth: a.Mailbox.Depth(), Uptime: uptime,
	}, nil
}

// ---- Messaging operations ----

// SendMessage delivers payload from one agent directly to another.
func (c *Coordinator) SendMessage(from, to string, payload map[string]any) error {
	return c.sub.Send(from, to, "message", payload)
}

// BroadcastMessage fans payload out to every topology-eligible recipient
// of from, excluding from itself and any identity in exclude.
func (c *Coordinator) BroadcastMessage(from string, payload map[string]any, exclude map[string]bool) (int, error) {
	return c.sub.Broadcast(from, "message", payload, exclude)
}

// ---- Topology operations ----

// GetTopologyInfo returns a read-only snapshot of the active topology.
func (c *Coordinator) GetTopologyInfo() TopologyInfo {
	info := c.topo.Describe()
	tally := map[registry.HealthState]int{}
	count := 0
	for _, a := range c.reg.ListAll() {
		if a.ID == internalAgentID {
			continue
		}
		tally[a.Health]++
		count++
	}
	out := TopologyInfo{Kind: info.Kind, AgentCount: count, Ascii: info.Ascii, HealthTally: tally}
	if star := asStar(c.topo.Current()); star != nil {
		if mb, ok := c.reg.Mailbox(star.Hub()); ok {
			out.HubLoad = topology.HubLoadBucket(mb.Depth())
		}
	}
	return out
}

// asStar unwraps the active topology down to a concrete star, looking
// through an adaptive wrapper.
func asStar(t topology.Topology) *topology.StarTopology {
	if ad, ok := t.(*topology.AdaptiveTopology); ok {
		t = ad.Inner()
	}
	star, _ := t.(*topology.StarTopology)
	return star
}

// SwitchTopology performs a live migration to newKind, preserving the
// registry and firing OnTopologyChanged after the atomic swap.
func (c *Coordinator) SwitchTopology(newKind topology.Kind, hub string) ([]string, error) {
	unreachable, err := c.topo.Switch(newKind, hub)
	if err != nil {
		return nil, err
	}
	for _, id := range unreachable {
		log.Warn().Str("agent_id", id).Msg("agent unreachable after topology switch; mail retained")
	}
	if c.onTopologyChanged != nil {
		c.onTopologyChanged(c.GetTopologyInfo())
	}
	return unreachable, nil
}

// ---- Consensus ----

// RequestConsensus runs algorithmName over proposal/votes. Votes are
// supplied by the caller rather than collected here over the messaging
// substrate; a caller that wants live vote collection gathers ballots
// via SendMessage/mailbox draining first, the same out-of-band pattern
// SynchronizeState uses for state replies.
func (c *Coordinator) RequestConsensus(originator string, payload any, algorithmName string, timeout time.Duration, participants []string, votes []consensus.Vote) (consensus.ConsensusResult, error) {
	if !c.consensusEnabled {
		return consensus.ConsensusResult{}, swarmerr.ErrFeatureDisabled
	}
	proposal := consensus.NewProposal(originator, payload, participants, timeout)
	result, err := c.consensusReg.Decide(algorithmName, proposal, votes)
	c.detector.RecordProposalOutcome(bottleneck.ProposalOutcome{
		TimedOut: err == nil && result.Decision == consensus.Timeout,
		At:       clockid.Now(),
	})
	return result, err
}

// ---- Conflict resolution ----

// ResolveConflicts resolves a non-empty set of divergent versions for key
// using strategy.
func (c *Coordinator) ResolveConflicts(strategy conflict.Strategy, versions []conflict.StateVersion) (conflict.Resolution, error) {
	if !c.resolveEnabled {
		return conflict.Resolution{}, swarmerr.ErrFeatureDisabled
	}
	return conflict.Resolve(strategy, versions)
}

// ---- State synchronization ----

// SubmitStateReply is how a participant agent answers a state-request
// broadcast; it is delivered to the coordinator's internal mailbox and
// picked up by the in-flight Synchronize call's reply collector. The
// reply bypasses topology edge checks: answering the coordinator is
// control traffic, legal from any agent under any topology.
func (c *Coordinator) SubmitStateReply(agentID, correlationID string, version conflict.StateVersion) error {
	if !c.reg.Exists(agentID) {
		return fmt.Errorf("%w: agent %q", swarmerr.ErrNotFound, agentID)
	}
	mailbox, ok := c.reg.Mailbox(internalAgentID)
	if !ok {
		return fmt.Errorf("%w: coordinator mailbox", swarmerr.ErrNotFound)
	}
	if err := mailbox.Enqueue(messaging.Message{
		From: agentID, To: internalAgentID, Type: "state-reply",
		Payload: map[string]any{
			"correlation_id": correlationID,
			"version":        version,
		},
		EnqueuedAt: clockid.Now(),
	}); err != nil {
		return fmt.Errorf("%w: coordinator mailbox", swarmerr.ErrMailboxFull)
	}
	_ = c.reg.UpdateHeartbeat(agentID)
	return nil
}

// SynchronizeState runs the full-sync protocol for key.
func (c *Coordinator) SynchronizeState(ctx context.Context, key string) (statesync.Result, error) {
	if !c.syncEnabled {
		return statesync.Result{}, swarmerr.ErrFeatureDisabled
	}
	return c.synchronizer.Synchronize(ctx, c.sub, key, c.collectStateReplies)
}

// DeltaSync returns every version of key newer than sinceVersion, with no
// broadcast.
func (c *Coordinator) DeltaSync(key string, sinceVersion uint64) ([]conflict.StateVersion, error) {
	if !c.syncEnabled {
		return nil, swarmerr.ErrFeatureDisabled
	}
	return c.synchronizer.DeltaSync(key, sinceVersion)
}

// collectStateReplies drains the internal mailbox for state-reply
// messages matching correlationID until ctx is done or timeout elapses.
// Messages for a different correlation id are requeued so a concurrent
// Synchronize call on a different key is not starved of its own
// replies; concurrent sync of distinct keys stays safe.
func (c *Coordinator) collectStateReplies(ctx context.Context, correlationID string, timeout time.Duration) []conflict.StateVersion {
	deadline := time.Now().Add(timeout)
	mailbox, ok := c.reg.Mailbox(internalAgentID)
	if !ok {
		return nil
	}

	var collected []conflict.StateVersion
	var requeue []messaging.Message
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return collected
		case <-ticker.C:
			for {
				msg, ok := mailbox.Dequeue()
				if !ok {
					break
				}
				if msg.Type != "state-reply" {
					continue
				}
				cid, _ := msg.Payload["correlation_id"].(string)
				if cid != correlationID {
					requeue = append(requeue, msg)
					continue
				}
				if v, ok := msg.Payload["version"].(conflict.StateVersion); ok {
					collected = append(collected, v)
				}
			}
			for _, msg := range requeue {
				_ = mailbox.Enqueue(msg)
			}
			requeue = requeue[:0]
		}
	}
	return collected
}
