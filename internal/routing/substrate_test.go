package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/swarmcore/internal/registry"
	"github.com/dreamware/swarmcore/internal/swarmerr"
	"github.com/dreamware/swarmcore/internal/topology"
)

func newSwarm(t *testing.T, kind topology.Kind, hub string, ids ...string) (*registry.Registry, *topology.Manager, *Substrate) {
	t.Helper()
	reg := registry.New()
	for _, id := range ids {
		_, err := reg.Register(id, "worker", nil)
		require.NoError(t, err)
	}
	mgr, err := topology.NewManager(kind, ids, hub)
	require.NoError(t, err)
	return reg, mgr, New(reg, mgr)
}

func TestMeshBroadcastDeliversToAllOthers(t *testing.T) {
	reg, _, sub := newSwarm(t, topology.Mesh, "", "a1", "a2", "a3", "a4")

	delivered, err := sub.Broadcast("a1", "ping", map[string]any{"n": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	for _, id := range []string{"a2", "a3", "a4"} {
		mb, _ := reg.Mailbox(id)
		assert.Equal(t, 1, mb.Depth())
	}
	mb1, _ := reg.Mailbox("a1")
	assert.Equal(t, 0, mb1.Depth())
}

func TestStarSpokeToSpokeSendIsTopologyViolation(t *testing.T) {
	_, _, sub := newSwarm(t, topology.Star, "a1", "a1", "a2", "a3")

	err := sub.Send("a2", "a3", "ping", nil)
	assert.True(t, errors.Is(err, swarmerr.ErrTopologyViolation))
}

func TestRingSendToNonSuccessorIsTopologyViolation(t *testing.T) {
	_, _, sub := newSwarm(t, topology.Ring, "", "a1", "a2", "a3")

	require.NoError(t, sub.Send("a1", "a2", "ping", nil))
	err := sub.Send("a1", "a3", "ping", nil)
	assert.True(t, errors.Is(err, swarmerr.ErrTopologyViolation))
}

func TestRingBroadcastRelaysAroundWholeCycle(t *testing.T) {
	reg, _, sub := newSwarm(t, topology.Ring, "", "a1", "a2", "a3", "a4")

	delivered, err := sub.Broadcast("a2", "ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	for _, id := range []string{"a1", "a3", "a4"} {
		mb, _ := reg.Mailbox(id)
		assert.Equal(t, 1, mb.Depth(), "agent %s", id)
	}
	mb2, _ := reg.Mailbox("a2")
	assert.Equal(t, 0, mb2.Depth())
}

func TestStarBroadcastFromHubReachesAllSpokes(t *testing.T) {
	reg, _, sub := newSwarm(t, topology.Star, "a1", "a1", "a2", "a3", "a4")

	delivered, err := sub.Broadcast("a1", "ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)

	for _, id := range []string{"a2", "a3", "a4"} {
		mb, _ := reg.Mailbox(id)
		assert.Equal(t, 1, mb.Depth(), "agent %s", id)
	}
}

func TestSendToUnknownAgentFails(t *testing.T) {
	_, _, sub := newSwarm(t, topology.Mesh, "", "a1", "a2")

	err := sub.Send("a1", "ghost", "ping", nil)
	assert.True(t, errors.Is(err, swarmerr.ErrNotFound))
}

func TestFIFOOrderingForSameSenderRecipientPair(t *testing.T) {
	reg, _, sub := newSwarm(t, topology.Mesh, "", "a1", "a2")

	require.NoError(t, sub.Send("a1", "a2", "ping", map[string]any{"seq": 1}))
	require.NoError(t, sub.Send("a1", "a2", "ping", map[string]any{"seq": 2}))

	mb, _ := reg.Mailbox("a2")
	first, ok := mb.Dequeue()
	require.True(t, ok)
	second, ok := mb.Dequeue()
	require.True(t, ok)

	assert.Equal(t, 1, first.Payload["seq"])
	assert.Equal(t, 2, second.Payload["seq"])
	assert.Less(t, first.Sequence, second.Sequence)
}

func TestSendUpdatesSenderHeartbeat(t *testing.T) {
	reg, _, sub := newSwarm(t, topology.Mesh, "", "a1", "a2")

	before, err := reg.Lookup("a1")
	require.NoError(t, err)

	require.NoError(t, sub.Send("a1", "a2", "ping", nil))

	after, err := reg.Lookup("a1")
	require.NoError(t, err)
	assert.False(t, after.LastHeartbeat.Before(before.LastHeartbeat))
}
