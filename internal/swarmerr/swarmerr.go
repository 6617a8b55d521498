// Package swarmerr defines the typed error taxonomy shared across the
// swarm core. Every fallible operation in the coordinator facade surfaces
// one of these sentinels (optionally wrapped with context via
// fmt.Errorf("%w", ...)) so callers can classify failures with errors.Is
// instead of string matching, and so the distinction between a caller
// mistake, a transient condition, and a recorded-but-non-fatal integrity
// issue is explicit in the type system rather than in prose.
package swarmerr

import "errors"

// InputError: caller supplied bad or conflicting input. Not retryable
// without changing the call.
var (
	ErrAlreadyRegistered = errors.New("swarmerr: agent already registered")
	ErrNotFound          = errors.New("swarmerr: not found")
	ErrEmptyInput        = errors.New("swarmerr: empty input")
	ErrInvalidArgument   = errors.New("swarmerr: invalid argument")
)

// TopologyError: the requested edge or topology kind is not permitted.
var (
	ErrTopologyViolation = errors.New("swarmerr: topology violation")
	ErrUnsupportedKind   = errors.New("swarmerr: unsupported topology kind")
)

// CapacityError: resource limits reached; transient, safe to retry later.
var (
	ErrMailboxFull              = errors.New("swarmerr: mailbox full")
	ErrInsufficientParticipants = errors.New("swarmerr: insufficient participants")
)

// StateError: the requested feature or algorithm is not available.
var (
	ErrFeatureDisabled  = errors.New("swarmerr: feature disabled")
	ErrUnknownAlgorithm = errors.New("swarmerr: unknown consensus algorithm")
)

// TimeoutError: an awaited operation's deadline elapsed. For consensus and
// sync this is normally folded into the result's decision/partial-success
// value rather than returned as an error; it is only returned where the
// operation cannot be partially successful.
var ErrTimeout = errors.New("swarmerr: timeout")

// IntegrityError: divergent or irreconcilable state detected. Recorded in
// result metadata by the caller; not necessarily fatal to the operation.
var ErrIrreconcilable = errors.New("swarmerr: irreconcilable divergent versions")

// MemoryUnavailable: the external memory provider collaborator could not
// be reached or returned an error.
var ErrMemoryUnavailable = errors.New("swarmerr: memory provider unavailable")
