// Package swarm implements the swarm coordinator: the top-level facade
// integrating agent lifecycle, messaging, topology, health, consensus,
// conflict resolution, state synchronization, bottleneck detection, and
// self-healing behind one unified surface.
//
// # Overview
//
// A Coordinator owns one instance of every subsystem and is the only
// package permitted to depend on all of them at once. Every other
// internal package depends strictly on packages below it in the
// dependency order, so the layering is acyclic by construction: the
// registry knows nothing about topology, the topology engine knows
// nothing about mailboxes, and the conflict resolver knows nothing about
// anything but version values.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          COORDINATOR                │
//	├─────────────────────────────────────┤
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │  Agent Registry              │   │
//	│  │  - identity, metadata        │   │
//	│  │  - health state, heartbeat   │   │
//	│  │  - mailbox ownership         │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │  Topology Manager            │   │
//	│  │  - active routing structure  │   │
//	│  │  - atomic live switch        │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │  Messaging Substrate         │   │
//	│  │  - topology-checked send     │   │
//	│  │  - broadcast fan-out/relay   │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	│  ┌──────────────────────────────┐   │
//	│  │  Background loops            │   │
//	│  │  - health sweep              │   │
//	│  │  - bottleneck rollup         │   │
//	│  │    (both feed the healer)    │   │
//	│  └──────────────────────────────┘   │
//	│                                     │
//	└─────────────────────────────────────┘
//
// # Lifecycle
//
// New builds the Coordinator and wires the default healing strategies.
// Start launches the health sweep and bottleneck rollup loops under a
// cancellable context; Close cancels and joins them. Both loops feed the
// self-healer: health alerts for failed/critical agents, bottleneck
// findings for resource pressure.
//
// # Control plane identity
//
// The Coordinator registers itself in the agent registry under a
// reserved identity so the messaging substrate accepts it as a broadcast
// sender for state synchronization. It never joins the topology and is
// filtered out of every caller-facing snapshot, so it does not distort
// fan-out counts, ring successor chains, or health tallies.
package swarm
