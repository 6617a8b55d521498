// Package topology implements the five topology variants that govern
// which agent pairs may exchange messages directly, plus the Manager
// that owns the active topology, performs atomic live switches, and
// renders an ASCII visualization.
//
// # Overview
//
// A topology is a pure routing structure over agent identities: it knows
// which edges exist and who a broadcast from a given sender fans out to.
// Metadata, mailboxes, and health all live elsewhere; the only state
// here is graph shape.
//
// # Variants
//
//	mesh           every pair adjacent; broadcast reaches all others
//	hierarchical   rooted tree; any pair sendable, logical path is
//	               tree-shaped; binary-tree default placement
//	star           one hub; direct edges only hub<->spoke; spoke-to-spoke
//	               must relay through the hub
//	ring           unidirectional cycle; send only to successor;
//	               broadcast relays around the cycle hop by hop
//	adaptive       wraps one of the other four and may hot-switch
//
//	        mesh                star               ring
//	      a ─── b            s1   s2           a1 ──▶ a2
//	      │ ╲ ╱ │              ╲ ╱              ▲       │
//	      │ ╱ ╲ │              hub              │       ▼
//	      c ─── d            ╱   ╲             a4 ◀── a3
//	                        s3   s4
//
// # Live switching
//
// Manager.Switch atomically replaces the active structure under a
// writer lock: the new topology is rebuilt deterministically from the
// current agent set, every agent is re-registered into it, and no send
// or broadcast ever observes a half-migrated structure. Switching to
// the adaptive kind inherits the prior concrete topology as the initial
// inner choice; the star hub is remembered across switches away and
// back.
//
// # Broadcast ordering
//
// Mesh and star fan-out iterates recipients in FNV-1a hash order rather
// than map or lexical order, so repeated broadcasts over an unchanged
// agent set produce identical delivery order.
package topology
