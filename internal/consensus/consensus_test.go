package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participants(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	return ids
}

func TestQuorumApprovedWithMajority(t *testing.T) {
	reg := NewRegistry()
	proposal := Proposal{ID: "p1", Participants: participants(5)}
	votes := []Vote{
		{Voter: "a", Choice: For}, {Voter: "b", Choice: For}, {Voter: "c", Choice: For},
		{Voter: "d", Choice: Against}, {Voter: "e", Choice: Against},
	}
	res, err := reg.Decide("quorum", proposal, votes)
	require.NoError(t, err)
	assert.Equal(t, Approved, res.Decision)
}

func TestWeightedApprovedByWeight(t *testing.T) {
	w := NewWeighted(map[string]float64{"heavy": 10, "light": 1})
	reg := &Registry{algorithms: map[string]Algorithm{}}
	reg.Register(w)
	proposal := Proposal{ID: "p1", Participants: []string{"heavy", "light"}}
	votes := []Vote{{Voter: "heavy", Choice: For}, {Voter: "light", Choice: For}}
	res, err := reg.Decide("weighted", proposal, votes)
	require.NoError(t, err)
	assert.Equal(t, Approved, res.Decision)
	assert.InDelta(t, 1.0, res.ForTally/(res.ForTally+res.AgainstTally), 0.0001)
}

func TestByzantineInsufficientParticipants(t *testing.T) {
	reg := NewRegistry()
	proposal := Proposal{ID: "p1", Participants: []string{"a", "b"}}
	_, err := reg.Decide("byzantine", proposal, nil)
	assert.Error(t, err)
}

func TestByzantineDetectsFlipFlopVoter(t *testing.T) {
	reg := NewRegistry() // f=1, needs >= 4 participants
	proposal := Proposal{ID: "p1", Participants: []string{"a", "b", "c", "d"}}
	votes := []Vote{
		{Voter: "a", Choice: For, Round: 1}, {Voter: "a", Choice: Against, Round: 2}, {Voter: "a", Choice: Against, Round: 3},
		{Voter: "b", Choice: For, Round: 1}, {Voter: "b", Choice: For, Round: 2}, {Voter: "b", Choice: For, Round: 3},
		{Voter: "c", Choice: For, Round: 1}, {Voter: "c", Choice: For, Round: 2}, {Voter: "c", Choice: For, Round: 3},
		{Voter: "d", Choice: For, Round: 1}, {Voter: "d", Choice: For, Round: 2}, {Voter: "d", Choice: For, Round: 3},
	}
	res, err := reg.Decide("byzantine", proposal, votes)
	require.NoError(t, err)
	assert.Contains(t, res.DetectedMalicious, "a")
	assert.Equal(t, Approved, res.Decision)
}

func TestGossipConvergesWhenAllForFromStart(t *testing.T) {
	g := NewGossip(3, 10, 0.95)
	reg := &Registry{algorithms: map[string]Algorithm{}}
	reg.Register(g)
	proposal := Proposal{ID: "p1", Participants: participants(5)}
	votes := []Vote{
		{Voter: "a", Choice: For}, {Voter: "b", Choice: For}, {Voter: "c", Choice: For},
		{Voter: "d", Choice: For}, {Voter: "e", Choice: For},
	}
	res, err := reg.Decide("gossip", proposal, votes)
	require.NoError(t, err)
	assert.Equal(t, Approved, res.Decision)
	assert.InDelta(t, 1.0, res.ConvergenceRatio, 0.0001)
}

func TestHistoryArchivesDecisionsOldestFirst(t *testing.T) {
	reg := NewRegistry()
	proposal := Proposal{ID: "p1", Participants: participants(3)}
	votes := []Vote{{Voter: "a", Choice: For}, {Voter: "b", Choice: For}, {Voter: "c", Choice: For}}

	_, err := reg.Decide("quorum", proposal, votes)
	require.NoError(t, err)
	_, err = reg.Decide("quorum", Proposal{ID: "p2", Participants: participants(3)}, nil)
	require.NoError(t, err)

	history := reg.History()
	require.Len(t, history, 2)
	assert.Equal(t, "p1", history[0].ProposalID)
	assert.Equal(t, "p2", history[1].ProposalID)
}

func TestUnknownAlgorithmFails(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Decide("nonexistent", Proposal{Participants: []string{"a"}}, nil)
	assert.Error(t, err)
}
