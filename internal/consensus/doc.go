// Package consensus implements the consensus algorithm registry: a set
// of named algorithms sharing one propose/decide contract, selected by
// name at call time.
//
// # Overview
//
// Each algorithm is stateful only for the duration of one Decide call
// and stateless between proposals. The Registry enforces the shared
// preconditions (known name, minimum participant count) before
// dispatching, so individual algorithms only implement their decision
// rule.
//
// # Algorithms
//
//	quorum      single round; approved iff for-votes exceed
//	            threshold x participants (default 0.51)
//	weighted    approved iff weighted-for / (weighted-for +
//	            weighted-against) >= 0.5; unknown voters weigh 1.0
//	byzantine   tolerates up to F faulty voters across >= 3 rounds;
//	            a voter whose choice differs between rounds is flagged
//	            malicious and excluded; decision needs 2F+1 honest
//	            agreement, otherwise the result is a timeout
//	gossip      epidemic opinion propagation with a fanout per round;
//	            approved when the swarm converges on "for" at or above
//	            the convergence threshold (default 0.95) within the
//	            round cap
//
// # Result shape
//
// Every algorithm returns the same ConsensusResult shape: decision,
// tallies, threshold, and participant set, plus algorithm-specific
// extensions (detected-malicious set and round history for byzantine,
// round history and convergence ratio for gossip) that stay zero-valued
// elsewhere. Timeout is a decision, not an error: only caller mistakes
// (unknown algorithm, too few participants) surface as errors.
package consensus
