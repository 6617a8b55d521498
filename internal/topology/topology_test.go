package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeshBroadcastExcludesSender(t *testing.T) {
	m := NewMesh()
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		require.NoError(t, m.AddAgent(id))
	}
	recipients := m.Recipients("a1", nil)
	assert.Len(t, recipients, 3)
	assert.NotContains(t, recipients, "a1")
}

func TestStarSpokeToSpokeIsNotDirectEdge(t *testing.T) {
	s := NewStar("a1")
	for _, id := range []string{"a2", "a3", "a4"} {
		require.NoError(t, s.AddAgent(id))
	}
	assert.False(t, s.Edge("a2", "a3"))
	assert.True(t, s.Edge("a2", "a1"))
	assert.True(t, s.Edge("a1", "a2"))
}

func TestRingSuccessorOnly(t *testing.T) {
	r := NewRing()
	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, r.AddAgent(id))
	}
	succ, ok := r.Successor("a1")
	require.True(t, ok)
	assert.Equal(t, "a2", succ)
	assert.True(t, r.Edge("a1", "a2"))
	assert.False(t, r.Edge("a1", "a3"))
}

func TestHierarchicalBinaryTreePlacement(t *testing.T) {
	h := NewHierarchical()
	for _, id := range []string{"root", "c1", "c2", "c3"} {
		require.NoError(t, h.AddAgent(id))
	}
	p1, _ := h.Parent("c1")
	assert.Equal(t, "root", p1)
	p2, _ := h.Parent("c2")
	assert.Equal(t, "root", p2)
	p3, _ := h.Parent("c3")
	assert.Equal(t, "c1", p3)
}

func TestManagerSwitchPreservesAgents(t *testing.T) {
	mgr, err := NewManager(Mesh, []string{"a1", "a2", "a3", "a4"}, "")
	require.NoError(t, err)

	unreachable, err := mgr.Switch(Star, "a1")
	require.NoError(t, err)
	assert.Empty(t, unreachable)

	agents := mgr.Current().Agents()
	assert.ElementsMatch(t, []string{"a1", "a2", "a3", "a4"}, agents)
	assert.False(t, mgr.Current().Edge("a2", "a3"))
	assert.True(t, mgr.Current().Edge("a2", "a1"))
}

func TestAdaptiveInheritsPriorConcreteTopologyByDefault(t *testing.T) {
	mgr, err := NewManager(Ring, []string{"a1", "a2", "a3"}, "")
	require.NoError(t, err)

	_, err = mgr.Switch(Adaptive, "")
	require.NoError(t, err)

	ad, ok := mgr.Current().(*AdaptiveTopology)
	require.True(t, ok)
	assert.Equal(t, Ring, ad.InnerKind())
}
