// Package statesync implements the state synchronizer: convergence of a
// named state key across the swarm by gathering versions, resolving
// conflicts, persisting the winner, and rebroadcasting it.
package statesync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/dreamware/swarmcore/internal/clockid"
	"github.com/dreamware/swarmcore/internal/conflict"
	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/swarmerr"
)

var log = logging.WithComponent("sync")

// MemoryProvider is the sole persistence boundary consumed by the
// synchronizer. Puts are assumed durable on return; nothing beyond that
// is assumed about the provider. The in-memory implementation below is
// a reference, not the deploying application's durability story.
type MemoryProvider interface {
	Put(key string, version conflict.StateVersion) error
	Get(key string) (conflict.StateVersion, error)
	Delta(key string, sinceVersion uint64) ([]conflict.StateVersion, error)
	ListKeys(prefix string) []string
}

// ErrKeyNotFound reports that Get found no version for a key.
var ErrKeyNotFound = errors.New("sync: key not found")

// MemoryStore is the reference in-memory MemoryProvider implementation:
// one RWMutex-guarded map holding each key's version history in append
// order.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]conflict.StateVersion
}

// NewMemoryStore creates an empty in-memory provider.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]conflict.StateVersion{}}
}

func (s *MemoryStore) Put(key string, version conflict.StateVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append(s.data[key], version)
	return nil
}

func (s *MemoryStore) Get(key string) (conflict.StateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions, ok := s.data[key]
	if !ok || len(versions) == 0 {
		return conflict.StateVersion{}, ErrKeyNotFound
	}
	return versions[len(versions)-1], nil
}

func (s *MemoryStore) Delta(key string, sinceVersion uint64) ([]conflict.StateVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []conflict.StateVersion
	for _, v := range s.data[key] {
		if v.Version > sinceVersion {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) ListKeys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.data {
		if prefix == "" || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Broadcaster is the subset of the messaging substrate the synchronizer
// needs: fan a message out and collect replies. Kept as a narrow
// interface here rather than importing internal/routing directly, so
// the synchronizer can be tested without a live topology/registry pair.
type Broadcaster interface {
	Broadcast(from, msgType string, payload map[string]any, exclude map[string]bool) (int, error)
}

// Result is returned by Synchronize: the resolved version and whether
// any replies were collected at all.
type Result struct {
	Key            string
	Resolved       conflict.StateVersion
	RepliesCount   int
	NoParticipants bool
}

// Synchronizer runs the full-sync and delta-sync protocols over an
// injected MemoryProvider and Broadcaster. Concurrent sync of distinct
// keys is safe; concurrent sync of the same key must be serialized by
// the caller.
type Synchronizer struct {
	provider MemoryProvider
	strategy conflict.Strategy
	timeout  time.Duration
}

// Option configures a Synchronizer at construction.
type Option func(*Synchronizer)

func WithStrategy(s conflict.Strategy) Option { return func(s2 *Synchronizer) { s2.strategy = s } }
func WithTimeout(d time.Duration) Option      { return func(s *Synchronizer) { s.timeout = d } }

// New builds a Synchronizer with the documented 10s default full-sync
// timeout and LWW as the default resolution strategy.
func New(provider MemoryProvider, opts ...Option) *Synchronizer {
	s := &Synchronizer{provider: provider, strategy: conflict.StrategyLWW, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReplyCollector gathers state-reply versions for one in-flight
// synchronize call. The coordinator facade wires this to whatever
// mailbox-draining loop observes reply messages tagged with the
// correlation id; Synchronize itself does not touch mailboxes directly,
// keeping this package free of a routing/registry dependency.
type ReplyCollector func(ctx context.Context, correlationID string, timeout time.Duration) []conflict.StateVersion

// Synchronize runs the full-sync protocol for key: broadcast a
// state-request, collect replies until timeout (or ctx cancellation),
// resolve via the configured strategy, persist the winner, and broadcast
// a state-update. Zero replies is non-fatal ("no participants").
func (s *Synchronizer) Synchronize(ctx context.Context, b Broadcaster, key string, collect ReplyCollector) (Result, error) {
	correlationID := clockid.NewID()

	if _, err := b.Broadcast("coordinator", "state-request", map[string]any{"key": key, "correlation_id": correlationID}, nil); err != nil {
		return Result{}, fmt.Errorf("%w: %v", swarmerr.ErrMemoryUnavailable, err)
	}

	replies := collect(ctx, correlationID, s.timeout)

	cached, err := s.provider.Get(key)
	haveCached := err == nil
	if haveCached {
		replies = append(replies, cached)
	} else if !errors.Is(err, ErrKeyNotFound) {
		return Result{}, fmt.Errorf("%w: %v", swarmerr.ErrMemoryUnavailable, err)
	}

	if len(replies) == 0 {
		return Result{Key: key, NoParticipants: true}, nil
	}

	resolution, err := conflict.Resolve(s.strategy, replies)
	if err != nil {
		return Result{}, err
	}

	// If resolution lands on what is already persisted, return the
	// cached version unchanged: back-to-back syncs with no intervening
	// writes must produce the same resolved version, not an ever-growing
	// version number.
	resolved := resolution.Winner
	if haveCached && sameObservation(resolved, cached) {
		return Result{Key: key, Resolved: cached, RepliesCount: len(replies)}, nil
	}

	resolved.Version = highestVersion(replies) + 1
	resolved.Timestamp = clockid.Now()

	if err := s.provider.Put(key, resolved); err != nil {
		return Result{}, fmt.Errorf("%w: %v", swarmerr.ErrMemoryUnavailable, err)
	}

	if _, err := b.Broadcast("coordinator", "state-update", map[string]any{"key": key, "version": resolved.Version}, nil); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("state-update broadcast failed after persist")
	}

	return Result{Key: key, Resolved: resolved, RepliesCount: len(replies)}, nil
}

// DeltaSync returns every version of key newer than sinceVersion, with no
// broadcast and no resolution: the reconnection fast path.
func (s *Synchronizer) DeltaSync(key string, sinceVersion uint64) ([]conflict.StateVersion, error) {
	return s.provider.Delta(key, sinceVersion)
}

// sameObservation reports whether two versions carry the same resolved
// observation, ignoring the version counter and timestamp the persist
// step stamps.
func sameObservation(a, b conflict.StateVersion) bool {
	return a.Key == b.Key && a.Owner == b.Owner && a.CRDTType == b.CRDTType &&
		reflect.DeepEqual(a.Value, b.Value)
}

func highestVersion(versions []conflict.StateVersion) uint64 {
	var max uint64
	for _, v := range versions {
		if v.Version > max {
			max = v.Version
		}
	}
	return max
}
