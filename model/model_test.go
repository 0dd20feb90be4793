package model

import (
	"testing"

	"github.com/evalgo/accessctl/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) *AccessModel {
	t.Helper()
	m := New()
	require.NoError(t, m.AddUser("alice"))
	require.NoError(t, m.AddGroup("engineers"))
	require.NoError(t, m.AddGroup("admins"))
	require.NoError(t, m.AddUserToGroup("alice", "engineers"))
	require.NoError(t, m.AddGroupToGroup("engineers", "admins"))
	require.NoError(t, m.AddEntityType("project"))
	require.NoError(t, m.AddEntity("project", "apollo"))
	return m
}

func TestAccessibleComponents_DirectAndTransitive(t *testing.T) {
	m := newFixture(t)
	require.NoError(t, m.AddUserComponentAccess("alice", ComponentAccess{Component: "billing", Level: "viewer"}))
	require.NoError(t, m.AddGroupComponentAccess("admins", ComponentAccess{Component: "billing", Level: "admin"}))

	got, err := m.AccessibleComponents("alice")
	require.NoError(t, err)
	assert.Equal(t, []ComponentAccess{
		{Component: "billing", Level: "admin"},
		{Component: "billing", Level: "viewer"},
	}, got)
}

func TestHasAccessToComponent_Transitive(t *testing.T) {
	m := newFixture(t)
	require.NoError(t, m.AddGroupComponentAccess("admins", ComponentAccess{Component: "billing", Level: "admin"}))

	ok, err := m.HasAccessToComponent("alice", ComponentAccess{Component: "billing", Level: "admin"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasAccessToComponent("alice", ComponentAccess{Component: "billing", Level: "viewer"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasAccessToComponent_UnknownUser(t *testing.T) {
	m := newFixture(t)
	_, err := m.HasAccessToComponent("ghost", ComponentAccess{Component: "billing", Level: "admin"})
	var notFound *UserNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Identifier())
}

func TestAccessibleEntities_DirectAndTransitive(t *testing.T) {
	m := newFixture(t)
	require.NoError(t, m.AddEntity("project", "zeus"))
	require.NoError(t, m.AddUserEntityAccess("alice", "project", "apollo"))
	require.NoError(t, m.AddGroupEntityAccess("admins", "project", "zeus"))

	got, err := m.AccessibleEntities("alice", "project")
	require.NoError(t, err)
	assert.Equal(t, []string{"apollo", "zeus"}, got)
}

func TestAccessibleEntities_UnknownEntityType(t *testing.T) {
	m := newFixture(t)
	_, err := m.AccessibleEntities("alice", "ghost-type")
	var notFound *EntityTypeNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestAddUserEntityAccess_RequiresRegisteredEntity(t *testing.T) {
	m := newFixture(t)
	err := m.AddUserEntityAccess("alice", "project", "ghost")
	var notFound *EntityNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRemoveEntityType_PurgesMappings(t *testing.T) {
	m := newFixture(t)
	require.NoError(t, m.AddUserEntityAccess("alice", "project", "apollo"))

	require.NoError(t, m.RemoveEntityType("project"))

	_, err := m.AccessibleEntities("alice", "project")
	var notFound *EntityTypeNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestRemoveEntity_PurgesOnlyItsOwnMappings(t *testing.T) {
	m := newFixture(t)
	require.NoError(t, m.AddEntity("project", "zeus"))
	require.NoError(t, m.AddUserEntityAccess("alice", "project", "apollo"))
	require.NoError(t, m.AddUserEntityAccess("alice", "project", "zeus"))

	require.NoError(t, m.RemoveEntity("project", "apollo"))

	got, err := m.AccessibleEntities("alice", "project")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeus"}, got)
}

func TestAddEntityType_RejectsBlank(t *testing.T) {
	m := New()
	err := m.AddEntityType("   ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestAddUserComponentAccess_DuplicateRejected(t *testing.T) {
	m := newFixture(t)
	access := ComponentAccess{Component: "billing", Level: "admin"}
	require.NoError(t, m.AddUserComponentAccess("alice", access))
	err := m.AddUserComponentAccess("alice", access)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRemoveUser_PurgesOwnMappings(t *testing.T) {
	m := newFixture(t)
	require.NoError(t, m.AddUserComponentAccess("alice", ComponentAccess{Component: "billing", Level: "admin"}))
	require.NoError(t, m.RemoveUser("alice"))
	require.NoError(t, m.AddUser("alice"))

	got, err := m.AccessibleComponents("alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestClone_IsIndependent covers the dry-run contract package validate
// relies on: mutating a clone must never affect the source model.
func TestClone_IsIndependent(t *testing.T) {
	m := newFixture(t)
	clone := m.Clone()

	require.NoError(t, clone.AddUserComponentAccess("alice", ComponentAccess{Component: "billing", Level: "admin"}))
	require.NoError(t, clone.AddUser("bob"))

	got, err := m.AccessibleComponents("alice")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, m.HasUser("bob"))
}

func TestAddUserToGroup_DuplicateRejected(t *testing.T) {
	m := newFixture(t)
	err := m.AddUserToGroup("alice", "engineers")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAddGroupToGroup_DuplicateRejected(t *testing.T) {
	m := newFixture(t)
	err := m.AddGroupToGroup("engineers", "admins")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestAddUserToGroup_UnknownEndpointRejected(t *testing.T) {
	m := newFixture(t)
	err := m.AddUserToGroup("ghost", "engineers")
	assert.ErrorIs(t, err, ErrDoesNotExist)
}

func TestAddGroupToGroup_UnknownEndpointRejected(t *testing.T) {
	m := newFixture(t)
	err := m.AddGroupToGroup("engineers", "ghost")
	assert.ErrorIs(t, err, ErrDoesNotExist)
}

func TestClone_PreservesGroupCycleRejection(t *testing.T) {
	m := newFixture(t)
	clone := m.Clone()

	err := clone.AddGroupToGroup("admins", "engineers")
	assert.ErrorIs(t, err, graph.ErrCircularReference)
}
