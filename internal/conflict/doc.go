// Package conflict implements the conflict resolver: a pure function
// mapping a state key's divergent versions, plus a chosen strategy, to
// one winning version and explanation metadata.
//
// # Overview
//
// Resolve performs no I/O and holds no state between calls. Given the
// same input set it always returns the same winner, which is what lets
// the state synchronizer treat resolution as a deterministic step in an
// otherwise concurrent protocol.
//
// # Strategies
//
//	lww            greatest timestamp wins; ties broken by greatest
//	               owning-agent identity
//	vector-clock   a version whose vector clock dominates every other
//	               wins; a fully concurrent set falls back to LWW, and
//	               the result records which rule decided
//	crdt           type-directed merge from the version's CRDT tag
//
// # CRDT merge rules
//
//	counter     sum of per-replica maxima (grow-only)
//	pn-counter  sum of positive parts minus sum of negative parts
//	register    LWW rule
//	g-set       union of elements
//	or-set      add union minus remove union; add-wins on overlap
//	lww-map     key-wise LWW across all contributing versions
//
// Every CRDT merge is commutative, associative, and idempotent: merge
// order never changes the outcome, and merging a version with itself is
// a no-op. Counter and pn-counter rollups are stamped with the reserved
// MergedOwner identity and carry their per-replica contribution shares,
// so a persisted rollup fed back into a later merge re-enters the
// per-replica maximum instead of being counted as one replica's own
// contribution on top of the raw entries it was built from.
package conflict
