package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/swarmcore/internal/conflict"
	"github.com/dreamware/swarmcore/internal/consensus"
	"github.com/dreamware/swarmcore/internal/healer"
	"github.com/dreamware/swarmcore/internal/health"
	"github.com/dreamware/swarmcore/internal/swarmerr"
	"github.com/dreamware/swarmcore/internal/topology"
)

func newTestCoordinator(t *testing.T, kind topology.Kind, hub string, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(kind, hub, opts...)
	require.NoError(t, err)
	return c
}

func registerAgents(t *testing.T, c *Coordinator, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := c.RegisterAgent(id, "worker", nil)
		require.NoError(t, err)
	}
}

func TestRegisterAgentAddsToRegistryAndTopology(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2")

	info := c.GetTopologyInfo()
	assert.Equal(t, 2, info.AgentCount)
	assert.Equal(t, topology.Mesh, info.Kind)
}

func TestRegisterDuplicateAgentFails(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1")
	_, err := c.RegisterAgent("a1", "worker", nil)
	assert.ErrorIs(t, err, swarmerr.ErrAlreadyRegistered)
}

func TestUnregisterAgentRemovesFromTopology(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2")
	require.NoError(t, c.UnregisterAgent("a1"))

	info := c.GetTopologyInfo()
	assert.Equal(t, 1, info.AgentCount)
}

func TestSendMessageDeliversToMailbox(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2")

	require.NoError(t, c.SendMessage("a1", "a2", map[string]any{"hello": "world"}))

	status, err := c.GetAgentStatus("a2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, status.MailboxDepth)
}

func TestBroadcastMessageReachesEveryPeerInMesh(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2", "a3")

	delivered, err := c.BroadcastMessage("a1", map[string]any{"k": "v"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
}

func TestQueueSnapshotAggregatesMailboxDepths(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2", "a3")

	require.NoError(t, c.SendMessage("a1", "a2", map[string]any{"n": 1}))
	require.NoError(t, c.SendMessage("a1", "a3", map[string]any{"n": 2}))

	assert.Equal(t, 2, c.QueueSnapshot().Pending)
}

func TestFiveAgentQuorumMajorityApproves(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2", "a3", "a4", "a5")
	participants := []string{"a1", "a2", "a3", "a4", "a5"}

	votes := []consensus.Vote{
		{Voter: "a1", Choice: consensus.For},
		{Voter: "a2", Choice: consensus.For},
		{Voter: "a3", Choice: consensus.For},
		{Voter: "a4", Choice: consensus.Against},
		{Voter: "a5", Choice: consensus.Against},
	}

	result, err := c.RequestConsensus("a1", map[string]any{"change": "topology"}, "quorum", time.Second, participants, votes)
	require.NoError(t, err)
	assert.Equal(t, consensus.Approved, result.Decision)
}

func TestByzantineConsensusWithTwoMaliciousVoters(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	participants := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	registerAgents(t, c, participants...)

	// Five honest voters approve consistently across 3 rounds; two
	// malicious voters flip their vote between rounds.
	var votes []consensus.Vote
	honestChoice := map[string]consensus.VoteChoice{
		"a1": consensus.For, "a2": consensus.For, "a3": consensus.For,
		"a4": consensus.For, "a5": consensus.For,
	}
	maliciousFlip := map[int]map[string]consensus.VoteChoice{
		0: {"a6": consensus.For, "a7": consensus.Against},
		1: {"a6": consensus.Against, "a7": consensus.For},
		2: {"a6": consensus.For, "a7": consensus.Against},
	}
	for round := 0; round < 3; round++ {
		for voter, choice := range honestChoice {
			votes = append(votes, consensus.Vote{Voter: voter, Choice: choice, Round: round})
		}
		for voter, choice := range maliciousFlip[round] {
			votes = append(votes, consensus.Vote{Voter: voter, Choice: choice, Round: round})
		}
	}

	result, err := c.RequestConsensus("a1", "payload", "byzantine", time.Second, participants, votes)
	require.NoError(t, err)
	assert.Equal(t, consensus.Approved, result.Decision)
	assert.ElementsMatch(t, []string{"a6", "a7"}, result.DetectedMalicious)
}

func TestRequestConsensusRespectsFeatureDisabled(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "", WithoutConsensus())
	registerAgents(t, c, "a1")
	_, err := c.RequestConsensus("a1", nil, "quorum", time.Second, []string{"a1"}, nil)
	assert.ErrorIs(t, err, swarmerr.ErrFeatureDisabled)
}

func TestResolveConflictsMergesCRDTCounter(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	versions := []conflict.StateVersion{
		{Key: "hits", Value: 3.0, Owner: "a1", CRDTType: conflict.CRDTCounter},
		{Key: "hits", Value: 5.0, Owner: "a2", CRDTType: conflict.CRDTCounter},
	}
	resolution, err := c.ResolveConflicts(conflict.StrategyCRDT, versions)
	require.NoError(t, err)
	assert.Equal(t, 8.0, resolution.Winner.Value)
}

func TestResolveConflictsRespectsFeatureDisabled(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "", WithoutConflictResolution())
	_, err := c.ResolveConflicts(conflict.StrategyLWW, []conflict.StateVersion{{Key: "k"}})
	assert.ErrorIs(t, err, swarmerr.ErrFeatureDisabled)
}

func TestSwitchTopologyPreservesRegisteredAgents(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2", "a3")

	var notified TopologyInfo
	c.onTopologyChanged = func(info TopologyInfo) { notified = info }

	_, err := c.SwitchTopology(topology.Star, "a1")
	require.NoError(t, err)

	info := c.GetTopologyInfo()
	assert.Equal(t, topology.Star, info.Kind)
	assert.Equal(t, 3, info.AgentCount)
	assert.Equal(t, topology.Star, notified.Kind)

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := c.GetAgentStatus(id, time.Minute)
		require.NoError(t, err)
	}
}

func TestSynchronizeStateResolvesAcrossReplies(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	registerAgents(t, c, "a1", "a2")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range []string{"a1", "a2"} {
			for {
				status, err := c.GetAgentStatus(id, time.Minute)
				if err == nil && status.MailboxDepth > 0 {
					break
				}
				time.Sleep(2 * time.Millisecond)
			}
			mailbox, _ := c.reg.Mailbox(id)
			msg, ok := mailbox.Dequeue()
			if !ok {
				continue
			}
			cid, _ := msg.Payload["correlation_id"].(string)
			version := conflict.StateVersion{
				Key: "cfg", Value: "v-" + id, Version: 1,
				Timestamp: time.Now().UTC(), Owner: id,
			}
			_ = c.SubmitStateReply(id, cid, version)
		}
	}()

	result, err := c.SynchronizeState(ctx, "cfg")
	<-done
	require.NoError(t, err)
	assert.False(t, result.NoParticipants)
	assert.GreaterOrEqual(t, result.RepliesCount, 1)
}

func TestSynchronizeStateRespectsFeatureDisabled(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "", WithoutSync())
	_, err := c.SynchronizeState(context.Background(), "k")
	assert.ErrorIs(t, err, swarmerr.ErrFeatureDisabled)
}

func TestDeltaSyncOnUnseenKeyReturnsEmpty(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// No registered agents reply, so the sync persists nothing and
	// DeltaSync on the key finds no versions.
	_, _ = c.SynchronizeState(ctx, "unseen-key")

	versions, err := c.DeltaSync("unseen-key", 0)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestHealthDegradationTriggersHealerRestart(t *testing.T) {
	c := newTestCoordinator(t, topology.Mesh, "",
		WithHealthOptions(
			health.WithHealthyMax(1*time.Millisecond),
			health.WithDegradedMax(2*time.Millisecond),
			health.WithCriticalMax(3*time.Millisecond),
			health.WithSweepInterval(2*time.Millisecond),
		),
	)
	registerAgents(t, c, "flaky")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	// The restart runs inside the sweep that marks the agent Failed, so
	// the Failed state is seen through the incident the healer records.
	require.Eventually(t, func() bool {
		for _, action := range c.heal.History() {
			if action.Kind == healer.FailureAgentFailed {
				return true
			}
		}
		return false
	}, 500*time.Millisecond, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, action := range c.heal.History() {
			if action.Strategy == healer.StrategyRestartAgent {
				return true
			}
		}
		return false
	}, 500*time.Millisecond, 5*time.Millisecond)
}
