package validate

import (
	"testing"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/graph"
	"github.com/evalgo/accessctl/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddUserToGroup_FailsWithoutDependencyFree(t *testing.T) {
	m := model.New()
	require.NoError(t, m.AddGroup("engineers"))
	v := New(m, false, nil)

	res := v.AddUserToGroup("alice", "engineers")
	assert.False(t, res.Success)
	assert.Error(t, res.Error)
	assert.False(t, m.HasUser("alice"))
}

// TestAddUserToGroup_DependencyFree_SynthesizesPrerequisite verifies
// dependency-free mode: a missing user is synthesized as its own Add event,
// ordered before the membership edge it was needed for.
func TestAddUserToGroup_DependencyFree_SynthesizesPrerequisite(t *testing.T) {
	m := model.New()
	require.NoError(t, m.AddGroup("engineers"))
	v := New(m, true, nil)

	res := v.AddUserToGroup("alice", "engineers")
	require.True(t, res.Success)
	require.Len(t, res.Synthesized, 1)
	assert.Equal(t, event.FamilyUser, res.Synthesized[0].Family)
	assert.Equal(t, "alice", res.Synthesized[0].Payload)

	assert.True(t, m.HasUser("alice"))
	members, err := m.AccessibleComponents("alice")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAddGroupToGroup_DependencyFree_SynthesizesBothEndpoints(t *testing.T) {
	m := model.New()
	v := New(m, true, nil)

	res := v.AddGroupToGroup("engineers", "admins")
	require.True(t, res.Success)
	assert.Len(t, res.Synthesized, 2)
	assert.True(t, m.HasGroup("engineers"))
	assert.True(t, m.HasGroup("admins"))
}

func TestAddUserEntityAccess_DependencyFree_SynthesizesChain(t *testing.T) {
	m := model.New()
	v := New(m, true, nil)

	res := v.AddUserEntityAccess("alice", "project", "apollo")
	require.True(t, res.Success)
	require.Len(t, res.Synthesized, 3)
	assert.Equal(t, event.FamilyUser, res.Synthesized[0].Family)
	assert.Equal(t, event.FamilyEntityType, res.Synthesized[1].Family)
	assert.Equal(t, event.FamilyEntity, res.Synthesized[2].Family)

	got, err := m.AccessibleEntities("alice", "project")
	require.NoError(t, err)
	assert.Equal(t, []string{"apollo"}, got)
}

// TestValidate_RejectedMutationLeavesModelUntouched covers P5: a rejected
// mutation (here, a cycle) must never mutate the live model, only the clone.
func TestValidate_RejectedMutationLeavesModelUntouched(t *testing.T) {
	m := model.New()
	require.NoError(t, m.AddGroup("a"))
	require.NoError(t, m.AddGroup("b"))
	require.NoError(t, m.AddGroupToGroup("a", "b"))

	v := New(m, false, nil)
	res := v.AddGroupToGroup("b", "a")
	assert.False(t, res.Success)

	// The existing a->b edge must still be exactly one edge: re-adding it
	// must fail with "already exists", not silently succeed as if the
	// rejected mutation had cleared it.
	err := m.AddGroupToGroup("a", "b")
	assert.ErrorIs(t, err, graph.ErrEdgeExists)
}

// Duplicate adds behave differently per mode: strict validators reject them,
// dependency-free validators treat them as idempotent no-ops so replays and
// out-of-order clients never fail on state that already holds.
func TestDuplicateAdd_RejectedInStrictMode(t *testing.T) {
	m := model.New()
	require.NoError(t, m.AddUser("alice"))
	v := New(m, false, nil)

	res := v.AddUser("alice")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, model.ErrAlreadyExists)
}

func TestDuplicateAdd_IdempotentNoOpInDependencyFreeMode(t *testing.T) {
	m := model.New()
	require.NoError(t, m.AddUser("alice"))
	v := New(m, true, nil)

	res := v.AddUser("alice")
	assert.True(t, res.Success)
	assert.True(t, res.NoOp)
	assert.NoError(t, res.Error)
	assert.Empty(t, res.Synthesized)
}
