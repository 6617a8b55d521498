package topology

import (
	"fmt"
	"sync"

	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/swarmerr"
)

var log = logging.WithComponent("topology")

// Manager owns the single active topology structure and performs live
// switches under a readers-writer lock: switch_topology takes the writer
// lock and completes before any new send observes the new topology,
// satisfying the atomic-barrier invariant in the concurrency model.
type Manager struct {
	mu      sync.RWMutex
	current Topology
	hub     string // remembered for star, so re-switching back to star keeps the same hub
}

// NewManager builds a Manager with an initial topology of the given kind
// over the provided agent identities. hub is only meaningful for Star.
func NewManager(kind Kind, agents []string, hub string) (*Manager, error) {
	m := &Manager{hub: hub}
	t, err := build(kind, agents, hub, nil)
	if err != nil {
		return nil, err
	}
	m.current = t
	return m, nil
}

// build constructs a fresh topology of the given kind and populates it
// with agents in order. inheritFrom, when non-nil, is used as the
// initial inner topology for an Adaptive switch: the prior concrete
// structure carries over unless the caller overrides it.
func build(kind Kind, agents []string, hub string, inheritFrom Topology) (Topology, error) {
	var t Topology
	switch kind {
	case Mesh:
		t = NewMesh()
	case Hierarchical:
		t = NewHierarchical()
	case Star:
		t = NewStar(hub)
	case Ring:
		t = NewRing()
	case Adaptive:
		inner := inheritFrom
		if inner == nil {
			inner = NewMesh()
		}
		return NewAdaptive(inner), nil
	default:
		return nil, fmt.Errorf("%w: %q", swarmerr.ErrUnsupportedKind, kind)
	}
	for _, a := range agents {
		if err := t.AddAgent(a); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Current returns the active topology. Callers must not mutate it
// directly; use AddAgent/RemoveAgent/Switch.
func (m *Manager) Current() Topology {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Kind returns the kind of the active topology.
func (m *Manager) Kind() Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Kind()
}

// AddAgent inserts a newly registered agent into the active topology.
func (m *Manager) AddAgent(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.AddAgent(id)
}

// RemoveAgent removes an unregistered agent from the active topology.
func (m *Manager) RemoveAgent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.RemoveAgent(id)
}

// Switch atomically replaces the active topology with a freshly built one
// of newKind, re-registering every agent currently known (preserving
// metadata is the registry's job; this only rebuilds the routing
// structure). It returns the set of agents that did not make it into the
// new structure (none, in this implementation: every concrete topology
// here accepts any agent count, so nobody becomes unreachable; the
// return value is kept so callers can still wire a warning event if a
// future topology variant introduces a capacity limit).
func (m *Manager) Switch(newKind Kind, hub string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agents := m.current.Agents()
	var inheritFrom Topology
	if newKind == Adaptive {
		inheritFrom = m.current
		if ad, ok := m.current.(*AdaptiveTopology); ok {
			inheritFrom = ad.snapshot()
		}
	}
	if hub == "" {
		hub = m.hub
	}

	next, err := build(newKind, agents, hub, inheritFrom)
	if err != nil {
		return nil, err
	}

	got := map[string]struct{}{}
	for _, a := range next.Agents() {
		got[a] = struct{}{}
	}
	var unreachable []string
	for _, a := range agents {
		if _, ok := got[a]; !ok {
			unreachable = append(unreachable, a)
		}
	}

	m.current = next
	if newKind == Star {
		m.hub = hub
	}
	log.Info().Str("new_kind", string(newKind)).Int("agents", len(agents)).Int("unreachable", len(unreachable)).Msg("topology switched")
	return unreachable, nil
}

// Info is a read-only snapshot used by get_topology_info.
type Info struct {
	Kind       Kind
	AgentCount int
	Ascii      string
}

// Describe returns a read-only snapshot of the active topology.
func (m *Manager) Describe() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		Kind:       m.current.Kind(),
		AgentCount: len(m.current.Agents()),
		Ascii:      m.current.Ascii(),
	}
}
