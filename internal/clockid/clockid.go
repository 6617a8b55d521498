// Package clockid provides the monotonic timestamps, identity helpers, and
// per-agent logical clocks that every higher layer of the swarm core depends
// on. It sits at the bottom of the dependency order described in the
// coordination design: this package imports no other internal package.
package clockid

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Now returns the current wall-clock time in UTC. All timestamps recorded
// by the core flow through this function so that a future switch to an
// injected clock (for deterministic tests) only touches one call site.
func Now() time.Time {
	return time.Now().UTC()
}

// NewID generates a new opaque, globally unique identifier suitable for
// proposal IDs, correlation IDs, and as a fallback agent identity when a
// caller does not want to choose one explicitly.
func NewID() string {
	return uuid.NewString()
}

// VectorClock is a per-agent logical clock used to detect causal ordering
// versus concurrency between two StateVersions, per the data model's
// vector-clock invariant: two versions are only totally ordered if one's
// entry for every agent is >= the other's.
type VectorClock map[string]uint64

// Clone returns an independent copy so callers can mutate the result
// without affecting the version it was read from (StateVersions are
// immutable).
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	for k, v := range vc {
		out[k] = v
	}
	return out
}

// Dominates reports whether vc causally dominates other: every entry of vc
// is >= the corresponding entry of other, and at least one is strictly
// greater. Missing entries are treated as zero.
func (vc VectorClock) Dominates(other VectorClock) bool {
	strictlyGreater := false
	keys := make(map[string]struct{}, len(vc)+len(other))
	for k := range vc {
		keys[k] = struct{}{}
	}
	for k := range other {
		keys[k] = struct{}{}
	}
	for k := range keys {
		a, b := vc[k], other[k]
		if a < b {
			return false
		}
		if a > b {
			strictlyGreater = true
		}
	}
	return strictlyGreater
}

// Concurrent reports whether neither clock dominates the other.
func (vc VectorClock) Concurrent(other VectorClock) bool {
	return !vc.Dominates(other) && !other.Dominates(vc)
}

// Merge returns the entry-wise maximum of vc and other, the standard vector
// clock join used when a version is accepted as the latest known state.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Clone()
	for k, v := range other {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// LogicalClock is a per-agent monotonic counter generator. Each agent that
// writes a StateVersion owns one; Tick increments the agent's own entry and
// returns the resulting VectorClock snapshot to stamp onto the version.
type LogicalClock struct {
	mu    sync.Mutex
	owner string
	clock VectorClock
}

// NewLogicalClock creates a clock for the given owning agent identity.
func NewLogicalClock(owner string) *LogicalClock {
	return &LogicalClock{owner: owner, clock: VectorClock{}}
}

// Tick advances the owner's own entry by one and returns a snapshot of the
// full vector clock to attach to the value being written.
func (l *LogicalClock) Tick() VectorClock {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock[l.owner]++
	return l.clock.Clone()
}

// Observe merges an externally-seen vector clock into this one without
// advancing the owner's own counter, the usual action when receiving a
// message that carries a peer's clock.
func (l *LogicalClock) Observe(seen VectorClock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = l.clock.Merge(seen)
}

// Snapshot returns the current vector clock without advancing it.
func (l *LogicalClock) Snapshot() VectorClock {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock.Clone()
}

// SequenceGenerator hands out strictly increasing per-sender sequence
// numbers for messages, and strictly increasing per-(key,owner) version
// numbers for state versions. Both uses share the same small monotonic
// counter abstraction.
type SequenceGenerator struct {
	mu      sync.Mutex
	counter uint64
}

// Next returns the next value in the sequence, starting at 1.
func (s *SequenceGenerator) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

// Current returns the most recently issued value without advancing it.
func (s *SequenceGenerator) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}
