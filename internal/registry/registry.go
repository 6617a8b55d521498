// Package registry implements the Agent Registry: the single source of
// truth for which agents exist, their metadata, and their current health
// state, consulted by every other subsystem. The registry does not decide
// health (the health monitor assigns it) and does not route messages (the
// messaging substrate does); it only owns agents and their mailboxes.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/dreamware/swarmcore/internal/authtoken"
	"github.com/dreamware/swarmcore/internal/clockid"
	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/messaging"
	"github.com/dreamware/swarmcore/internal/swarmerr"
)

var log = logging.WithComponent("registry")

// HealthState is one of the four states an agent can occupy. The zero
// value is never used; Register always initializes an agent to Healthy.
type HealthState string

const (
	Healthy  HealthState = "healthy"
	Degraded HealthState = "degraded"
	Critical HealthState = "critical"
	Failed   HealthState = "failed"
)

// Agent is the registry's owned record for one swarm member. Agent values
// returned to callers are copies (except the Mailbox, which is a shared
// pointer to the live queue, and LogicalClock, likewise shared) so that
// external mutation of the returned struct cannot corrupt registry state.
type Agent struct {
	ID            string
	Type          string
	Metadata      map[string]any
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Health        HealthState

	ConsecutiveMissedHeartbeats int
	LastTransitionAt            time.Time

	Mailbox      *messaging.Mailbox
	LogicalClock *clockid.LogicalClock

	// CapabilityToken is the signed bearer credential issued at
	// registration when the registry is constructed WithTokenIssuer.
	// Empty when token auth is disabled.
	CapabilityToken string
}

func (a Agent) copy() Agent {
	md := make(map[string]any, len(a.Metadata))
	for k, v := range a.Metadata {
		md[k] = v
	}
	a.Metadata = md
	return a
}

// Registry is the exclusive owner of the agent set. Reads take the
// read-lock and return copies; writes take the exclusive lock.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]*Agent
	mailboxDepth int

	tokenIssuer   *authtoken.Issuer
	tokenVerifier *authtoken.Verifier
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithMailboxCapacity overrides the default mailbox capacity for agents
// registered afterward.
func WithMailboxCapacity(capacity int) Option {
	return func(r *Registry) { r.mailboxDepth = capacity }
}

// WithTokenIssuer enables capability-token issuance on Register. When
// unset (the default), Register behaves exactly as before this package
// existed and Agent.CapabilityToken is always empty.
func WithTokenIssuer(issuer *authtoken.Issuer) Option {
	return func(r *Registry) { r.tokenIssuer = issuer }
}

// WithTokenVerifier enables capability-token verification via
// VerifyCapability. Neither the messaging substrate nor the coordinator
// facade calls VerifyCapability; Register, Unregister, and direct
// metadata/heartbeat updates on the registry never require a token.
func WithTokenVerifier(verifier *authtoken.Verifier) Option {
	return func(r *Registry) { r.tokenVerifier = verifier }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{agents: map[string]*Agent{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts a new agent, initializing health to Healthy, the
// heartbeat to now, and a fresh mailbox. Fails with ErrAlreadyRegistered
// if the identity is taken.
func (r *Registry) Register(id, agentType string, metadata map[string]any) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; exists {
		return nil, fmt.Errorf("%w: %q", swarmerr.ErrAlreadyRegistered, id)
	}

	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	now := clockid.Now()
	var token string
	if r.tokenIssuer != nil {
		issued, err := r.tokenIssuer.Issue(id, now)
		if err != nil {
			return nil, fmt.Errorf("registry: issuing capability token: %w", err)
		}
		token = issued
	}

	agent := &Agent{
		ID:               id,
		Type:             agentType,
		Metadata:         md,
		RegisteredAt:     now,
		LastHeartbeat:    now,
		Health:           Healthy,
		LastTransitionAt: now,
		Mailbox:          messaging.NewMailbox(r.mailboxDepth),
		LogicalClock:     clockid.NewLogicalClock(id),
		CapabilityToken:  token,
	}
	r.agents[id] = agent
	log.Info().Str("agent_id", id).Str("agent_type", agentType).Msg("agent registered")
	out := agent.copy()
	return &out, nil
}

// VerifyCapability checks a bearer token against the configured
// Verifier. It
// returns true (no-op success) if the registry was not constructed with
// a Verifier, since token auth is opt-in.
func (r *Registry) VerifyCapability(id, token string) bool {
	if r.tokenVerifier == nil {
		return true
	}
	_, err := r.tokenVerifier.Verify(token, id)
	return err == nil
}

// Unregister removes an agent and releases its mailbox. In-flight
// messages addressed to it are dropped best-effort; there is no retry.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; !exists {
		return fmt.Errorf("%w: %q", swarmerr.ErrNotFound, id)
	}
	delete(r.agents, id)
	log.Info().Str("agent_id", id).Msg("agent unregistered")
	return nil
}

// Lookup returns a copy of the agent's record, or ErrNotFound.
func (r *Registry) Lookup(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %q", swarmerr.ErrNotFound, id)
	}
	return a.copy(), nil
}

// mailboxOf returns the live mailbox pointer for internal use by the
// messaging substrate; it bypasses the copy-on-read contract because
// Mailbox itself is already safe for concurrent use.
func (r *Registry) mailboxOf(id string) (*messaging.Mailbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return a.Mailbox, true
}

// Mailbox exposes the live mailbox for id, for the messaging substrate.
func (r *Registry) Mailbox(id string) (*messaging.Mailbox, bool) {
	return r.mailboxOf(id)
}

// LogicalClockOf exposes the live logical clock for id.
func (r *Registry) LogicalClockOf(id string) (*clockid.LogicalClock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return a.LogicalClock, true
}

// Exists reports whether id is currently registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// UpdateMetadata replaces the metadata map for an existing agent.
func (r *Registry) UpdateMetadata(id string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %q", swarmerr.ErrNotFound, id)
	}
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	a.Metadata = md
	return nil
}

// UpdateHeartbeat stamps last-heartbeat to now and resets the consecutive
// missed-heartbeat counter. Any send also counts as liveness (the
// messaging substrate calls this for the sender of every message).
func (r *Registry) UpdateHeartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %q", swarmerr.ErrNotFound, id)
	}
	a.LastHeartbeat = clockid.Now()
	a.ConsecutiveMissedHeartbeats = 0
	return nil
}

// SetHealthState is called exclusively by the Health Monitor; the
// registry itself never computes health transitions.
func (r *Registry) SetHealthState(id string, state HealthState, missedHeartbeats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: %q", swarmerr.ErrNotFound, id)
	}
	if a.Health != state {
		a.LastTransitionAt = clockid.Now()
	}
	a.Health = state
	a.ConsecutiveMissedHeartbeats = missedHeartbeats
	return nil
}

// ListActive returns agents whose health is not Failed.
func (r *Registry) ListActive() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if a.Health != Failed {
			out = append(out, a.copy())
		}
	}
	return out
}

// ListAll returns every registered agent regardless of health.
func (r *Registry) ListAll() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.copy())
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
