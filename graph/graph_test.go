package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLeafEdge_RequiresBothEndpoints(t *testing.T) {
	g := New()
	require.NoError(t, g.AddLeaf("alice"))

	err := g.AddLeafEdge("alice", "admins")
	assert.ErrorIs(t, err, ErrVertexNotFound)

	require.NoError(t, g.AddNonLeaf("admins"))
	assert.NoError(t, g.AddLeafEdge("alice", "admins"))
}

func TestAddLeafEdge_DuplicateRejected(t *testing.T) {
	g := New()
	require.NoError(t, g.AddLeaf("alice"))
	require.NoError(t, g.AddNonLeaf("admins"))
	require.NoError(t, g.AddLeafEdge("alice", "admins"))

	err := g.AddLeafEdge("alice", "admins")
	assert.ErrorIs(t, err, ErrEdgeExists)
}

// TestCycleRejected covers P5 / S2: a->b, b->c, then c->a must fail and
// leave the existing edges untouched.
func TestCycleRejected(t *testing.T) {
	g := New()
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddNonLeaf(v))
	}
	require.NoError(t, g.AddNonLeafEdge("a", "b"))
	require.NoError(t, g.AddNonLeafEdge("b", "c"))

	err := g.AddNonLeafEdge("c", "a")
	assert.ErrorIs(t, err, ErrCircularReference)

	assert.ElementsMatch(t, []string{"b"}, g.OutgoingNonLeafEdges("a"))
	assert.ElementsMatch(t, []string{"c"}, g.OutgoingNonLeafEdges("b"))
	assert.Empty(t, g.OutgoingNonLeafEdges("c"))
}

func TestSelfEdgeRejectedAsCycle(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNonLeaf("a"))
	err := g.AddNonLeafEdge("a", "a")
	assert.ErrorIs(t, err, ErrCircularReference)
}

func TestRemoveNonLeaf_PurgesIncidentEdges(t *testing.T) {
	g := New()
	require.NoError(t, g.AddLeaf("alice"))
	require.NoError(t, g.AddNonLeaf("admins"))
	require.NoError(t, g.AddNonLeaf("superadmins"))
	require.NoError(t, g.AddLeafEdge("alice", "admins"))
	require.NoError(t, g.AddNonLeafEdge("admins", "superadmins"))

	require.NoError(t, g.RemoveNonLeaf("admins"))

	assert.False(t, g.ContainsNonLeaf("admins"))
	assert.Empty(t, g.OutgoingLeafEdges("alice"))
	reachable, err := g.ReachableNonLeaves("alice")
	require.NoError(t, err)
	assert.Empty(t, reachable)
}

func TestTraverseFromLeaf_ShortCircuits(t *testing.T) {
	g := New()
	require.NoError(t, g.AddLeaf("alice"))
	for _, v := range []string{"admins", "billing", "superadmins"} {
		require.NoError(t, g.AddNonLeaf(v))
	}
	require.NoError(t, g.AddLeafEdge("alice", "admins"))
	require.NoError(t, g.AddLeafEdge("alice", "billing"))
	require.NoError(t, g.AddNonLeafEdge("admins", "superadmins"))

	visited := 0
	found := false
	err := g.TraverseFromLeaf("alice", func(nonLeaf string) bool {
		visited++
		if nonLeaf == "billing" {
			found = true
			return false
		}
		return true
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.LessOrEqual(t, visited, 3)
}

func TestTraverseFromLeaf_VisitsEachNonLeafOnce(t *testing.T) {
	g := New()
	require.NoError(t, g.AddLeaf("alice"))
	for _, v := range []string{"a", "b", "top"} {
		require.NoError(t, g.AddNonLeaf(v))
	}
	require.NoError(t, g.AddLeafEdge("alice", "a"))
	require.NoError(t, g.AddLeafEdge("alice", "b"))
	require.NoError(t, g.AddNonLeafEdge("a", "top"))
	require.NoError(t, g.AddNonLeafEdge("b", "top"))

	counts := map[string]int{}
	err := g.TraverseFromLeaf("alice", func(nonLeaf string) bool {
		counts[nonLeaf]++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counts["top"])
}

func TestTraverseFromLeaf_UnknownLeaf(t *testing.T) {
	g := New()
	err := g.TraverseFromLeaf("ghost", func(string) bool { return true })
	assert.ErrorIs(t, err, ErrVertexNotFound)
}
