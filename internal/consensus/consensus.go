package consensus

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/dreamware/swarmcore/internal/clockid"
	"github.com/dreamware/swarmcore/internal/swarmerr"
	"github.com/dreamware/swarmcore/internal/telemetry"
)

// VoteChoice is one voter's position on a proposal.
type VoteChoice string

const (
	For     VoteChoice = "for"
	Against VoteChoice = "against"
	Abstain VoteChoice = "abstain"
)

// Vote is one participant's ballot. Round distinguishes ballots in
// multi-round protocols (Byzantine, Gossip); single-round algorithms
// ignore it.
type Vote struct {
	ProposalID string
	Voter      string
	Choice     VoteChoice
	Weight     float64
	Timestamp  time.Time
	Round      int
}

// Proposal is the unit of decision: identified by ID, decided once,
// archival afterward.
type Proposal struct {
	ID           string
	Originator   string
	Payload      any
	Participants []string
	CreatedAt    time.Time
	Timeout      time.Duration
}

// NewProposal stamps a fresh proposal ID via the shared ID generator.
func NewProposal(originator string, payload any, participants []string, timeout time.Duration) Proposal {
	return Proposal{
		ID: clockid.NewID(), Originator: originator, Payload: payload,
		Participants: participants, CreatedAt: clockid.Now(), Timeout: timeout,
	}
}

// Decision is a ConsensusResult's outcome.
type Decision string

const (
	Approved Decision = "approved"
	Rejected Decision = "rejected"
	Timeout  Decision = "timeout"
)

// RoundRecord captures one round's tally for multi-round protocols.
type RoundRecord struct {
	Round        int
	ForCount     int
	AgainstCount int
	AbstainCount int
}

// ConsensusResult is the uniform output shape every algorithm produces,
// plus algorithm-specific extensions (DetectedMalicious, RoundHistory,
// ConvergenceRatio) that stay zero-valued for algorithms without them.
type ConsensusResult struct {
	ProposalID        string
	Decision          Decision
	ForTally          float64
	AgainstTally      float64
	AbstainTally      float64
	Threshold         float64
	Participants      []string
	DetectedMalicious []string
	RoundHistory      []RoundRecord
	ConvergenceRatio  float64
}

// Algorithm is the shared contract every named consensus strategy
// implements.
type Algorithm interface {
	Name() string
	MinParticipants() int
	Decide(proposal Proposal, votes []Vote) (ConsensusResult, error)
}

// defaultMaxHistory bounds the archive of decided results.
const defaultMaxHistory = 1000

// Registry holds algorithms by name, selected per Decide call, and an
// archival history of decided results with FIFO eviction.
type Registry struct {
	algorithms map[string]Algorithm

	mu         sync.Mutex
	history    []ConsensusResult
	maxHistory int
}

// NewRegistry builds a registry pre-populated with the four built-in
// algorithms at their defaults. Callers needing non-default parameters
// construct their own Algorithm and call Register.
func NewRegistry() *Registry {
	r := &Registry{algorithms: map[string]Algorithm{}, maxHistory: defaultMaxHistory}
	r.Register(NewQuorum(0.51))
	r.Register(NewWeighted(nil))
	r.Register(NewByzantine(1, 3))
	r.Register(NewGossip(3, 10, 0.95))
	return r
}

// Register adds or replaces an algorithm under its own Name().
func (r *Registry) Register(a Algorithm) {
	r.algorithms[a.Name()] = a
}

// Decide looks up algorithm by name and runs it. Fails with
// ErrUnknownAlgorithm if no algorithm is registered under that name, or
// ErrInsufficientParticipants if the proposal has fewer participants than
// the algorithm's minimum.
func (r *Registry) Decide(name string, proposal Proposal, votes []Vote) (ConsensusResult, error) {
	alg, ok := r.algorithms[name]
	if !ok {
		return ConsensusResult{}, fmt.Errorf("%w: %q", swarmerr.ErrUnknownAlgorithm, name)
	}
	if len(proposal.Participants) < alg.MinParticipants() {
		return ConsensusResult{}, fmt.Errorf("%w: %s requires at least %d participants", swarmerr.ErrInsufficientParticipants, alg.Name(), alg.MinParticipants())
	}
	result, err := alg.Decide(proposal, votes)
	if err != nil {
		return result, err
	}
	telemetry.ConsensusDecisions.WithLabelValues(name, string(result.Decision)).Inc()
	r.archive(result)
	return result, nil
}

func (r *Registry) archive(result ConsensusResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxHistory <= 0 {
		r.maxHistory = defaultMaxHistory
	}
	r.history = append(r.history, result)
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}

// History returns a snapshot of decided results, oldest first. Decided
// proposals are archival: the registry never re-opens or mutates them.
func (r *Registry) History() []ConsensusResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConsensusResult(nil), r.history...)
}

func weightOf(weights map[string]float64, voter string) float64 {
	if w, ok := weights[voter]; ok {
		return w
	}
	return 1.0
}

func tally(votes []Vote, weights map[string]float64) (forW, againstW, abstainW float64) {
	for _, v := range votes {
		w := weightOf(weights, v.Voter)
		switch v.Choice {
		case For:
			forW += w
		case Against:
			againstW += w
		case Abstain:
			abstainW += w
		}
	}
	return
}

// ---- Quorum ----

// Quorum is a single-round simple-majority vote: approved iff
// for > threshold * participants.
type Quorum struct {
	Threshold float64
}

// NewQuorum builds a Quorum algorithm at the given threshold; 0.51 is
// the default for non-positive input.
func NewQuorum(threshold float64) *Quorum {
	if threshold <= 0 {
		threshold = 0.51
	}
	return &Quorum{Threshold: threshold}
}

func (q *Quorum) Name() string         { return "quorum" }
func (q *Quorum) MinParticipants() int { return 1 }

func (q *Quorum) Decide(proposal Proposal, votes []Vote) (ConsensusResult, error) {
	forW, againstW, abstainW := tally(votes, nil)
	needed := q.Threshold * float64(len(proposal.Participants))
	decision := Rejected
	if forW > needed {
		decision = Approved
	}
	return ConsensusResult{
		ProposalID: proposal.ID, Decision: decision,
		ForTally: forW, AgainstTally: againstW, AbstainTally: abstainW,
		Threshold: q.Threshold, Participants: proposal.Participants,
	}, nil
}

// ---- Weighted ----

// Weighted decides by weighted-for / (weighted-for + weighted-against)
// against a 0.5 ratio; unknown voters default to weight 1.0.
type Weighted struct {
	Weights map[string]float64
}

func NewWeighted(weights map[string]float64) *Weighted {
	return &Weighted{Weights: weights}
}

func (w *Weighted) Name() string         { return "weighted" }
func (w *Weighted) MinParticipants() int { return 1 }

func (w *Weighted) Decide(proposal Proposal, votes []Vote) (ConsensusResult, error) {
	forW, againstW, abstainW := tally(votes, w.Weights)
	decision := Rejected
	denom := forW + againstW
	if denom > 0 && forW/denom >= 0.5 {
		decision = Approved
	}
	return ConsensusResult{
		ProposalID: proposal.ID, Decision: decision,
		ForTally: forW, AgainstTally: againstW, AbstainTally: abstainW,
		Threshold: 0.5, Participants: proposal.Participants,
	}, nil
}

// ---- Byzantine ----

// Byzantine tolerates up to F faulty voters across R rounds: a voter
// whose choice differs between any two rounds is flagged malicious and
// excluded from the final tally.
type Byzantine struct {
	F      int
	Rounds int
}

// NewByzantine builds a Byzantine algorithm; Rounds is clamped to at
// least 3 so a changed position always has two rounds to differ across.
func NewByzantine(f, rounds int) *Byzantine {
	if rounds < 3 {
		rounds = 3
	}
	return &Byzantine{F: f, Rounds: rounds}
}

func (b *Byzantine) Name() string         { return "byzantine" }
func (b *Byzantine) MinParticipants() int { return 3*b.F + 1 }

func (b *Byzantine) Decide(proposal Proposal, votes []Vote) (ConsensusResult, error) {
	byVoter := map[string]map[int]VoteChoice{}
	var history []RoundRecord
	roundTallies := map[int]*RoundRecord{}
	for _, v := range votes {
		if byVoter[v.Voter] == nil {
			byVoter[v.Voter] = map[int]VoteChoice{}
		}
		byVoter[v.Voter][v.Round] = v.Choice

		rr, ok := roundTallies[v.Round]
		if !ok {
			rr = &RoundRecord{Round: v.Round}
			roundTallies[v.Round] = rr
		}
		switch v.Choice {
		case For:
			rr.ForCount++
		case Against:
			rr.AgainstCount++
		case Abstain:
			rr.AbstainCount++
		}
	}
	roundNums := make([]int, 0, len(roundTallies))
	for r := range roundTallies {
		roundNums = append(roundNums, r)
	}
	sort.Ints(roundNums)
	for _, r := range roundNums {
		history = append(history, *roundTallies[r])
	}

	var malicious []string
	for voter, rounds := range byVoter {
		seen := map[VoteChoice]bool{}
		for _, choice := range rounds {
			seen[choice] = true
		}
		if len(seen) > 1 {
			malicious = append(malicious, voter)
		}
	}
	sort.Strings(malicious)
	maliciousSet := map[string]bool{}
	for _, m := range malicious {
		maliciousSet[m] = true
	}

	lastRound := 0
	if len(roundNums) > 0 {
		lastRound = roundNums[len(roundNums)-1]
	}
	var honestFor, honestAgainst float64
	for voter, rounds := range byVoter {
		if maliciousSet[voter] {
			continue
		}
		switch rounds[lastRound] {
		case For:
			honestFor++
		case Against:
			honestAgainst++
		}
	}

	threshold := float64(2*b.F + 1)
	decision := Timeout
	if honestFor >= threshold {
		decision = Approved
	} else if honestAgainst >= threshold {
		decision = Rejected
	}

	return ConsensusResult{
		ProposalID: proposal.ID, Decision: decision,
		ForTally: honestFor, AgainstTally: honestAgainst,
		Threshold: threshold, Participants: proposal.Participants,
		DetectedMalicious: malicious, RoundHistory: history,
	}, nil
}

// ---- Gossip (epidemic) ----

// Gossip simulates epidemic opinion propagation: each round, every
// participant draws Fanout random peers and adopts the opinion of the
// last one drawn; participants do not push their opinion to peers.
// Convergence is reached when the majority opinion's share meets
// Threshold, or when MaxRounds elapses.
type Gossip struct {
	Fanout    int
	MaxRounds int
	Threshold float64
	rng       *rand.Rand
}

func NewGossip(fanout, maxRounds int, threshold float64) *Gossip {
	if threshold <= 0 {
		threshold = 0.95
	}
	return &Gossip{Fanout: fanout, MaxRounds: maxRounds, Threshold: threshold, rng: rand.New(rand.NewSource(1))}
}

func (g *Gossip) Name() string         { return "gossip" }
func (g *Gossip) MinParticipants() int { return 2 }

// Decide takes votes as each participant's initial (round 0) opinion and
// simulates fanout forwarding until convergence or MaxRounds elapses.
// Abstain is treated as a distinct opinion bucket, same as for/against.
func (g *Gossip) Decide(proposal Proposal, votes []Vote) (ConsensusResult, error) {
	opinions := map[string]VoteChoice{}
	for _, v := range votes {
		opinions[v.Voter] = v.Choice
	}
	peers := make([]string, 0, len(opinions))
	for voter := range opinions {
		peers = append(peers, voter)
	}
	sort.Strings(peers)

	var history []RoundRecord
	ratio := 0.0
	majority := VoteChoice("")
	round := 0
	for ; round < g.MaxRounds; round++ {
		counts := map[VoteChoice]int{}
		for _, c := range opinions {
			counts[c]++
		}
		majority, ratio = majorityOpinion(counts, len(peers))
		history = append(history, roundRecordFrom(round, counts))
		if ratio >= g.Threshold {
			break
		}
		opinions = g.propagate(peers, opinions)
	}

	// Approved only when the swarm converged on "for"; a converged
	// "against" and a never-converged run both reject.
	decision := Rejected
	if majority == For && ratio >= g.Threshold {
		decision = Approved
	}

	return ConsensusResult{
		ProposalID: proposal.ID, Decision: decision,
		Threshold: g.Threshold, Participants: proposal.Participants,
		RoundHistory: history, ConvergenceRatio: ratio,
	}, nil
}

// majorityOpinion picks the most-held opinion; ties break in the fixed
// for/against/abstain order so repeated runs agree.
func majorityOpinion(counts map[VoteChoice]int, total int) (VoteChoice, float64) {
	var best VoteChoice
	bestCount := -1
	for _, choice := range []VoteChoice{For, Against, Abstain} {
		if n := counts[choice]; n > bestCount {
			best, bestCount = choice, n
		}
	}
	if total == 0 {
		return best, 0
	}
	return best, float64(bestCount) / float64(total)
}

func roundRecordFrom(round int, counts map[VoteChoice]int) RoundRecord {
	return RoundRecord{Round: round, ForCount: counts[For], AgainstCount: counts[Against], AbstainCount: counts[Abstain]}
}

// propagate has each participant adopt the opinion of one randomly
// chosen peer among Fanout candidates, modeling one epidemic round.
func (g *Gossip) propagate(peers []string, opinions map[string]VoteChoice) map[string]VoteChoice {
	next := map[string]VoteChoice{}
	for _, p := range peers {
		adopted := opinions[p]
		fanout := g.Fanout
		if fanout > len(peers) {
			fanout = len(peers)
		}
		for i := 0; i < fanout; i++ {
			peer := peers[g.rng.Intn(len(peers))]
			if counts := opinions[peer]; counts != "" {
				adopted = counts
			}
		}
		next[p] = adopted
	}
	return next
}
