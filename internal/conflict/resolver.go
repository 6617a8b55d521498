package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/dreamware/swarmcore/internal/clockid"
	"github.com/dreamware/swarmcore/internal/swarmerr"
)

// CRDTType tags which merge rule a StateVersion's Value follows when the
// CRDT strategy is selected.
type CRDTType string

const (
	CRDTCounter   CRDTType = "counter"
	CRDTPNCounter CRDTType = "pn-counter"
	CRDTRegister  CRDTType = "register"
	CRDTORSet     CRDTType = "or-set"
	CRDTGSet      CRDTType = "g-set"
	CRDTLWWMap    CRDTType = "lww-map"
)

// PNValue is the Value shape a pn-counter StateVersion carries: its own
// positive and negative contribution.
type PNValue struct {
	Pos float64
	Neg float64
}

// ORSetDelta is the Value shape an or-set StateVersion carries: the
// element identifiers this version adds or removes.
type ORSetDelta struct {
	Added   []string
	Removed []string
}

// MergedOwner is the owner identity stamped onto counter and pn-counter
// rollups produced by Resolve. It is reserved: no real agent may write
// under it. Keying rollups off a sentinel rather than a real agent's
// identity is what keeps re-merging a persisted rollup from being
// mistaken for that agent's own contribution.
const MergedOwner = "~merged"

// StateVersion is one agent's immutable observation of a state key.
// Version is strictly increasing per (Key, Owner); resolution produces
// new versions, never mutates old ones.
type StateVersion struct {
	Key         string
	Value       any
	Version     uint64
	Timestamp   time.Time
	Owner       string
	VectorClock clockid.VectorClock // nil if the caller does not track causal order
	CRDTType    CRDTType            // empty unless Strategy is CRDT

	// CounterShares records, on a counter/pn-counter rollup produced by
	// Resolve, each replica's contribution to the rolled-up Value. When
	// a rollup is fed back into a later merge, its shares re-enter the
	// per-replica maximum alongside fresh raw replies, so the rollup's
	// total is never double-counted against the contributions it was
	// built from. Nil on raw per-replica versions.
	CounterShares map[string]PNValue
}

// Strategy selects the resolution rule.
type Strategy string

const (
	StrategyLWW         Strategy = "lww"
	StrategyVectorClock Strategy = "vector-clock"
	StrategyCRDT        Strategy = "crdt"
)

// Basis records which rule inside a strategy actually decided the
// winner, for callers that want to surface why a version won.
type Basis string

const (
	BasisTimestamp  Basis = "timestamp"
	BasisDominance  Basis = "causal-dominance"
	BasisConcurrent Basis = "concurrent-lww-fallback"
	BasisCRDTMerge  Basis = "crdt-merge"
)

// Resolution is the explanation metadata accompanying a resolved
// version.
type Resolution struct {
	Winner StateVersion
	Basis  Basis
	Detail string
}

// Resolve maps (non-empty version set, strategy) to one winning version.
// Fails with ErrEmptyInput if versions is empty.
func Resolve(strategy Strategy, versions []StateVersion) (Resolution, error) {
	if len(versions) == 0 {
		return Resolution{}, swarmerr.ErrEmptyInput
	}
	switch strategy {
	case StrategyLWW:
		winner := lww(versions)
		return Resolution{Winner: winner, Basis: BasisTimestamp, Detail: "greatest timestamp, ties by owner id"}, nil
	case StrategyVectorClock:
		return resolveVectorClock(versions)
	case StrategyCRDT:
		return resolveCRDT(versions)
	default:
		return Resolution{}, fmt.Errorf("%w: %q", swarmerr.ErrUnknownAlgorithm, strategy)
	}
}

// lww picks the version with the greatest timestamp, breaking ties by
// the greatest owning-agent id lexicographically. Deterministic and
// total over any non-empty set.
func lww(versions []StateVersion) StateVersion {
	best := versions[0]
	for _, v := range versions[1:] {
		if v.Timestamp.After(best.Timestamp) {
			best = v
			continue
		}
		if v.Timestamp.Equal(best.Timestamp) && v.Owner > best.Owner {
			best = v
		}
	}
	return best
}

// resolveVectorClock picks the causally dominant version if one exists;
// otherwise the set is concurrent and it falls back to LWW over that
// concurrent subset.
func resolveVectorClock(versions []StateVersion) (Resolution, error) {
	for _, candidate := range versions {
		dominatesAll := true
		for _, other := range versions {
			if candidate.Owner == other.Owner && candidate.Version == other.Version {
				continue
			}
			if !candidate.VectorClock.Dominates(other.VectorClock) {
				dominatesAll = false
				break
			}
		}
		if dominatesAll {
			return Resolution{Winner: candidate, Basis: BasisDominance, Detail: "vector clock dominates all other versions"}, nil
		}
	}
	var concurrent []StateVersion
	for _, candidate := range versions {
		dominated := false
		for _, other := range versions {
			if other.VectorClock.Dominates(candidate.VectorClock) {
				dominated = true
				break
			}
		}
		if !dominated {
			concurrent = append(concurrent, candidate)
		}
	}
	winner := lww(concurrent)
	return Resolution{Winner: winner, Basis: BasisConcurrent, Detail: "versions are concurrent; fell back to LWW"}, nil
}

// resolveCRDT dispatches on the CRDT type tag carried by the versions.
// Mixed or missing tags are treated as the first version's tag, since a
// resolver call is always scoped to one state key with one declared
// CRDT type.
func resolveCRDT(versions []StateVersion) (Resolution, error) {
	crdtType := versions[0].CRDTType
	switch crdtType {
	case CRDTCounter:
		return resolveCounter(versions)
	case CRDTPNCounter:
		return resolvePNCounter(versions)
	case CRDTGSet:
		return resolveGSet(versions)
	case CRDTORSet:
		return resolveORSet(versions)
	case CRDTLWWMap:
		return resolveLWWMap(versions)
	case CRDTRegister, "":
		winner := lww(versions)
		return Resolution{Winner: winner, Basis: BasisTimestamp, Detail: "register/tiebreak: LWW rule"}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: crdt type %q", swarmerr.ErrInvalidArgument, crdtType)
	}
}

func latestMeta(versions []StateVersion) (maxVersion uint64, ts time.Time, owner string) {
	for _, v := range versions {
		if v.Version > maxVersion {
			maxVersion = v.Version
		}
		if v.Timestamp.After(ts) {
			ts = v.Timestamp
			owner = v.Owner
		}
	}
	return
}

// counterContributions folds the input set down to one PNValue per
// replica: a raw version contributes under its own owner, a rollup
// contributes its recorded shares under their original owners, and each
// replica's entry is the entry-wise maximum of everything seen for it.
// A counter's per-replica parts are monotonically non-decreasing, so
// max-per-replica is what makes the merge idempotent no matter how many
// times the same replica's state (or a rollup built from it) appears in
// the input.
func counterContributions(versions []StateVersion, parse func(any) (PNValue, error)) (map[string]PNValue, error) {
	contrib := map[string]PNValue{}
	note := func(owner string, share PNValue) {
		cur := contrib[owner]
		if share.Pos > cur.Pos {
			cur.Pos = share.Pos
		}
		if share.Neg > cur.Neg {
			cur.Neg = share.Neg
		}
		contrib[owner] = cur
	}
	for _, v := range versions {
		if len(v.CounterShares) > 0 {
			for owner, share := range v.CounterShares {
				note(owner, share)
			}
			continue
		}
		share, err := parse(v.Value)
		if err != nil {
			return nil, err
		}
		note(v.Owner, share)
	}
	return contrib, nil
}

func resolveCounter(versions []StateVersion) (Resolution, error) {
	contrib, err := counterContributions(versions, func(value any) (PNValue, error) {
		f, err := toFloat(value)
		if err != nil {
			return PNValue{}, err
		}
		return PNValue{Pos: f}, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	var sum float64
	for _, share := range contrib {
		sum += share.Pos
	}
	maxVer, ts, _ := latestMeta(versions)
	winner := StateVersion{
		Key: versions[0].Key, Value: sum, Version: maxVer + 1,
		Timestamp: ts, Owner: MergedOwner, CRDTType: CRDTCounter,
		CounterShares: contrib,
	}
	return Resolution{Winner: winner, Basis: BasisCRDTMerge, Detail: "grow-only counter: sum of per-replica maxima"}, nil
}

func resolvePNCounter(versions []StateVersion) (Resolution, error) {
	contrib, err := counterContributions(versions, func(value any) (PNValue, error) {
		pn, ok := value.(PNValue)
		if !ok {
			return PNValue{}, fmt.Errorf("%w: pn-counter version with non-PNValue value", swarmerr.ErrInvalidArgument)
		}
		return pn, nil
	})
	if err != nil {
		return Resolution{}, err
	}
	var pos, neg float64
	for _, share := range contrib {
		pos += share.Pos
		neg += share.Neg
	}
	maxVer, ts, _ := latestMeta(versions)
	winner := StateVersion{
		Key: versions[0].Key, Value: pos - neg, Version: maxVer + 1,
		Timestamp: ts, Owner: MergedOwner, CRDTType: CRDTPNCounter,
		CounterShares: contrib,
	}
	return Resolution{Winner: winner, Basis: BasisCRDTMerge, Detail: "pn-counter: sum(pos) - sum(neg) over per-replica maxima"}, nil
}

func resolveGSet(versions []StateVersion) (Resolution, error) {
	set := map[string]struct{}{}
	for _, v := range versions {
		elems, ok := v.Value.([]string)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: g-set version with non-[]string value", swarmerr.ErrInvalidArgument)
		}
		for _, e := range elems {
			set[e] = struct{}{}
		}
	}
	maxVer, ts, owner := latestMeta(versions)
	winner := StateVersion{
		Key: versions[0].Key, Value: sortedKeys(set), Version: maxVer + 1,
		Timestamp: ts, Owner: owner, CRDTType: CRDTGSet,
	}
	return Resolution{Winner: winner, Basis: BasisCRDTMerge, Detail: "g-set: union of elements"}, nil
}

// resolveORSet unions every observed add-identifier across versions,
// then subtracts the union of observed remove-identifiers. Add-wins when
// an identifier appears in both sets: the remove union cannot
// distinguish a remove that preceded a later add from one that postdated
// it without per-element causal tags, so presence takes precedence.
func resolveORSet(versions []StateVersion) (Resolution, error) {
	added := map[string]struct{}{}
	removed := map[string]struct{}{}
	for _, v := range versions {
		d, ok := v.Value.(ORSetDelta)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: or-set version with non-ORSetDelta value", swarmerr.ErrInvalidArgument)
		}
		for _, a := range d.Added {
			added[a] = struct{}{}
		}
		for _, r := range d.Removed {
			removed[r] = struct{}{}
		}
	}
	result := map[string]struct{}{}
	for a := range added {
		result[a] = struct{}{}
	}
	for r := range removed {
		if _, isAdded := added[r]; !isAdded {
			delete(result, r)
		}
		// identifier in both added and removed: add-wins, stays.
	}
	maxVer, ts, owner := latestMeta(versions)
	winner := StateVersion{
		Key: versions[0].Key, Value: sortedKeys(result), Version: maxVer + 1,
		Timestamp: ts, Owner: owner, CRDTType: CRDTORSet,
	}
	return Resolution{Winner: winner, Basis: BasisCRDTMerge, Detail: "or-set: add union minus remove union, add-wins on overlap"}, nil
}

// resolveLWWMap applies the LWW rule key-wise: each contributing
// version's own (Timestamp, Owner) is the tiebreaker for every key it
// carries in its map value.
func resolveLWWMap(versions []StateVersion) (Resolution, error) {
	type entry struct {
		value     any
		timestamp time.Time
		owner     string
	}
	merged := map[string]entry{}
	for _, v := range versions {
		m, ok := v.Value.(map[string]any)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: lww-map version with non-map value", swarmerr.ErrInvalidArgument)
		}
		for k, val := range m {
			existing, present := merged[k]
			if !present || v.Timestamp.After(existing.timestamp) ||
				(v.Timestamp.Equal(existing.timestamp) && v.Owner > existing.owner) {
				merged[k] = entry{value: val, timestamp: v.Timestamp, owner: v.Owner}
			}
		}
	}
	out := make(map[string]any, len(merged))
	for k, e := range merged {
		out[k] = e.value
	}
	maxVer, ts, owner := latestMeta(versions)
	winner := StateVersion{
		Key: versions[0].Key, Value: out, Version: maxVer + 1,
		Timestamp: ts, Owner: owner, CRDTType: CRDTLWWMap,
	}
	return Resolution{Winner: winner, Basis: BasisCRDTMerge, Detail: "lww-map: key-wise LWW"}, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: counter version with non-numeric value", swarmerr.ErrInvalidArgument)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
