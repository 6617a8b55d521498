// Package routing implements the Messaging Substrate: point-to-point send
// and topology-aware broadcast over the agent registry's mailboxes. It is
// the layer where the registry (who exists) and the topology engine
// (which edges are legal) meet; neither of those packages knows about the
// other; routing wires them together.
package routing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dreamware/swarmcore/internal/clockid"
	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/messaging"
	"github.com/dreamware/swarmcore/internal/registry"
	"github.com/dreamware/swarmcore/internal/swarmerr"
	"github.com/dreamware/swarmcore/internal/telemetry"
	"github.com/dreamware/swarmcore/internal/topology"
)

var log = logging.WithComponent("routing")

// Substrate delivers messages subject to the active topology's rules. It
// holds no agent or topology state of its own; both are injected, and it
// reads the manager's current topology on every call, so a live switch
// inside the manager takes effect without recreating the substrate.
type Substrate struct {
	registry *registry.Registry
	topo     *topology.Manager

	mu   sync.Mutex
	seqs map[string]*clockid.SequenceGenerator
}

// New builds a substrate over the given registry and topology manager.
func New(reg *registry.Registry, topo *topology.Manager) *Substrate {
	return &Substrate{registry: reg, topo: topo, seqs: map[string]*clockid.SequenceGenerator{}}
}

func (s *Substrate) sequenceFor(sender string) *clockid.SequenceGenerator {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.seqs[sender]
	if !ok {
		sg = &clockid.SequenceGenerator{}
		s.seqs[sender] = sg
	}
	return sg
}

// Send delivers payload from one agent directly to another, subject to
// the active topology's edge rules. A successful send also updates the
// sender's heartbeat, since any send counts as liveness.
func (s *Substrate) Send(from, to, msgType string, payload map[string]any) error {
	if !s.registry.Exists(from) {
		return fmt.Errorf("%w: sender %q", swarmerr.ErrNotFound, from)
	}
	if !s.registry.Exists(to) {
		return fmt.Errorf("%w: recipient %q", swarmerr.ErrNotFound, to)
	}
	if !s.topo.Current().Edge(from, to) {
		return fmt.Errorf("%w: %s -> %s not permitted by %s topology", swarmerr.ErrTopologyViolation, from, to, s.topo.Kind())
	}

	mailbox, ok := s.registry.Mailbox(to)
	if !ok {
		return fmt.Errorf("%w: recipient %q", swarmerr.ErrNotFound, to)
	}

	seq := s.sequenceFor(from).Next()
	err := mailbox.Enqueue(messaging.Message{
		From: from, To: to, Type: msgType, Payload: payload,
		Sequence: seq, EnqueuedAt: clockid.Now(),
	})
	if errors.Is(err, messaging.ErrMailboxFull) {
		telemetry.MailboxOverflows.WithLabelValues(to).Inc()
		return fmt.Errorf("%w: recipient %q", swarmerr.ErrMailboxFull, to)
	}
	_ = s.registry.UpdateHeartbeat(from)
	return nil
}

// Broadcast fans a message out to every topology-eligible recipient of
// from, excluding from itself and any identity in exclude. It returns the
// number of messages actually delivered.
func (s *Substrate) Broadcast(from, msgType string, payload map[string]any, exclude map[string]bool) (int, error) {
	if !s.registry.Exists(from) {
		return 0, fmt.Errorf("%w: sender %q", swarmerr.ErrNotFound, from)
	}

	current := s.topo.Current()
	if ring := asRing(current); ring != nil {
		return s.ringBroadcast(ring, from, msgType, payload, exclude)
	}

	recipients := current.Recipients(from, exclude)
	seq := s.sequenceFor(from).Next()
	now := clockid.Now()

	delivered := 0
	for _, to := range recipients {
		mailbox, ok := s.registry.Mailbox(to)
		if !ok {
			continue
		}
		if err := mailbox.Enqueue(messaging.Message{
			From: from, To: to, Broadcast: true, Type: msgType, Payload: payload,
			Sequence: seq, EnqueuedAt: now,
		}); err != nil {
			telemetry.MailboxOverflows.WithLabelValues(to).Inc()
			log.Warn().Str("from", from).Str("to", to).Msg("broadcast recipient mailbox full, skipped")
			continue
		}
		delivered++
	}
	_ = s.registry.UpdateHeartbeat(from)
	log.Debug().Str("from", from).Int("delivered", delivered).Msg("broadcast")
	return delivered, nil
}

// asRing unwraps the active topology down to a concrete ring, looking
// through an adaptive wrapper, or returns nil if the structure is not a
// ring.
func asRing(t topology.Topology) *topology.RingTopology {
	if ad, ok := t.(*topology.AdaptiveTopology); ok {
		t = ad.Inner()
	}
	ring, _ := t.(*topology.RingTopology)
	return ring
}

// ringBroadcast relays a broadcast around the cycle one successor hop at
// a time until it arrives back at the sender, so every member receives
// it exactly once. A sender outside the ring (the coordinator's own
// control traffic) is relayed to every member instead. Excluded agents
// still relay (the walk continues past them) but nothing is enqueued to
// their mailbox.
func (s *Substrate) ringBroadcast(ring *topology.RingTopology, from, msgType string, payload map[string]any, exclude map[string]bool) (int, error) {
	var targets []string
	if start, ok := ring.Successor(from); ok {
		for cur := start; cur != from; {
			targets = append(targets, cur)
			next, ok := ring.Successor(cur)
			if !ok {
				break
			}
			cur = next
		}
	} else {
		for _, member := range ring.Agents() {
			if member != from {
				targets = append(targets, member)
			}
		}
	}

	seq := s.sequenceFor(from).Next()
	now := clockid.Now()

	delivered := 0
	for _, to := range targets {
		if exclude[to] {
			continue
		}
		mailbox, ok := s.registry.Mailbox(to)
		if !ok {
			continue
		}
		if err := mailbox.Enqueue(messaging.Message{
			From: from, To: to, Broadcast: true, Type: msgType, Payload: payload,
			Sequence: seq, EnqueuedAt: now,
		}); err != nil {
			telemetry.MailboxOverflows.WithLabelValues(to).Inc()
			log.Warn().Str("from", from).Str("to", to).Msg("broadcast recipient mailbox full, skipped")
			continue
		}
		delivered++
	}
	_ = s.registry.UpdateHeartbeat(from)
	log.Debug().Str("from", from).Int("delivered", delivered).Msg("ring broadcast")
	return delivered, nil
}

// RelaySpokeBroadcast is Broadcast(from, msgType, payload, nil). In a
// star, a spoke's broadcast is enqueued in one step into the hub's and
// every other spoke's mailbox, with From set to the spoke; the hub does
// not receive and re-send it as a separate hop.
func (s *Substrate) RelaySpokeBroadcast(from, msgType string, payload map[string]any) (int, error) {
	return s.Broadcast(from, msgType, payload, nil)
}
