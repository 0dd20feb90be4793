// Package model implements the access model: the directed graph from
// package graph plus four mapping tables recording, respectively, which
// application components/levels and which (entityType, entity) pairs a user
// or group has been granted. AccessModel itself rejects illegal mutations
// (missing endpoints, duplicates, cycles, blank names, unknown users, groups
// or entity types); package validate uses those rejections to decide
// legality, running each mutation twice: once against a throwaway Clone to
// decide whether it is legal, and, only on success, again against the live
// model.
package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/evalgo/accessctl/graph"
)

// ComponentAccess names one (component, level) grant, e.g. ("billing", "admin").
type ComponentAccess struct {
	Component string
	Level     string
}

// EntityRef names one (entityType, entity) grant, e.g. ("project", "apollo").
type EntityRef struct {
	EntityType string
	Entity     string
}

// ComponentGrant pairs a subject (user or group name) with the component
// access it was given; it is the event payload shape for the
// FamilyUserComponent/FamilyGroupComponent families, used by persisters that
// need to serialize and later replay those events.
type ComponentGrant struct {
	Subject string
	Access  ComponentAccess
}

// EntityGrant pairs a subject (user or group name) with the entity access it
// was given; the event payload shape for FamilyUserEntity/FamilyGroupEntity.
type EntityGrant struct {
	Subject string
	Ref     EntityRef
}

// Edge pairs two vertex names (subject, object); the event payload shape for
// FamilyUserGroup/FamilyGroupGroup membership events.
type Edge struct {
	Subject string
	Object  string
}

// AccessModel owns the membership graph and the four mapping tables. It is
// not safe for concurrent mutation and query; callers serialize access to a
// single instance (the writer does so via package validate's single-writer
// discipline, readers via their own refresh loop).
type AccessModel struct {
	graph *graph.Graph

	entityTypes map[string]struct{}
	entities    map[string]map[string]struct{} // entityType -> set of entity names

	userComponents  map[string]map[ComponentAccess]struct{}
	groupComponents map[string]map[ComponentAccess]struct{}
	userEntities    map[string]map[EntityRef]struct{}
	groupEntities   map[string]map[EntityRef]struct{}
}

// New returns an empty AccessModel.
func New() *AccessModel {
	return &AccessModel{
		graph:           graph.New(),
		entityTypes:     make(map[string]struct{}),
		entities:        make(map[string]map[string]struct{}),
		userComponents:  make(map[string]map[ComponentAccess]struct{}),
		groupComponents: make(map[string]map[ComponentAccess]struct{}),
		userEntities:    make(map[string]map[EntityRef]struct{}),
		groupEntities:   make(map[string]map[EntityRef]struct{}),
	}
}

// Clone returns a deep copy, used by package validate as the dry-run
// sandbox: a mutation rejected against the clone never touches the live
// model, and one accepted against the clone is guaranteed to succeed when
// replayed against the live model, because the two share identical logic.
func (m *AccessModel) Clone() *AccessModel {
	out := New()

	for _, u := range m.graph.Leaves() {
		_ = out.graph.AddLeaf(u)
	}
	for _, g := range m.graph.NonLeaves() {
		_ = out.graph.AddNonLeaf(g)
	}
	for _, u := range m.graph.Leaves() {
		for _, g := range m.graph.OutgoingLeafEdges(u) {
			_ = out.graph.AddLeafEdge(u, g)
		}
	}
	// Any subset of an acyclic edge set is acyclic, so replaying the
	// source's non-leaf edges in any order never trips the cycle probe.
	for _, g := range m.graph.NonLeaves() {
		for _, g2 := range m.graph.OutgoingNonLeafEdges(g) {
			_ = out.graph.AddNonLeafEdge(g, g2)
		}
	}

	for et := range m.entityTypes {
		out.entityTypes[et] = struct{}{}
		out.entities[et] = make(map[string]struct{}, len(m.entities[et]))
		for e := range m.entities[et] {
			out.entities[et][e] = struct{}{}
		}
	}

	out.userComponents = cloneComponentTable(m.userComponents)
	out.groupComponents = cloneComponentTable(m.groupComponents)
	out.userEntities = cloneEntityTable(m.userEntities)
	out.groupEntities = cloneEntityTable(m.groupEntities)

	return out
}

func cloneComponentTable(src map[string]map[ComponentAccess]struct{}) map[string]map[ComponentAccess]struct{} {
	out := make(map[string]map[ComponentAccess]struct{}, len(src))
	for k, set := range src {
		s2 := make(map[ComponentAccess]struct{}, len(set))
		for v := range set {
			s2[v] = struct{}{}
		}
		out[k] = s2
	}
	return out
}

func cloneEntityTable(src map[string]map[EntityRef]struct{}) map[string]map[EntityRef]struct{} {
	out := make(map[string]map[EntityRef]struct{}, len(src))
	for k, set := range src {
		s2 := make(map[EntityRef]struct{}, len(set))
		for v := range set {
			s2[v] = struct{}{}
		}
		out[k] = s2
	}
	return out
}

// --- users and groups ---

// AddUser registers a new user (leaf vertex).
func (m *AccessModel) AddUser(user string) error {
	if err := m.graph.AddLeaf(user); err != nil {
		return fmt.Errorf("add user %q: %w", user, asAlreadyExists(err))
	}
	m.userComponents[user] = make(map[ComponentAccess]struct{})
	m.userEntities[user] = make(map[EntityRef]struct{})
	return nil
}

// RemoveUser removes a user and every mapping that references it.
func (m *AccessModel) RemoveUser(user string) error {
	if err := m.graph.RemoveLeaf(user); err != nil {
		return fmt.Errorf("remove user %q: %w", user, asDoesNotExist(err))
	}
	delete(m.userComponents, user)
	delete(m.userEntities, user)
	return nil
}

// AddGroup registers a new group (non-leaf vertex).
func (m *AccessModel) AddGroup(group string) error {
	if err := m.graph.AddNonLeaf(group); err != nil {
		return fmt.Errorf("add group %q: %w", group, asAlreadyExists(err))
	}
	m.groupComponents[group] = make(map[ComponentAccess]struct{})
	m.groupEntities[group] = make(map[EntityRef]struct{})
	return nil
}

// RemoveGroup removes a group and every mapping and membership edge that
// references it.
func (m *AccessModel) RemoveGroup(group string) error {
	if err := m.graph.RemoveNonLeaf(group); err != nil {
		return fmt.Errorf("remove group %q: %w", group, asDoesNotExist(err))
	}
	delete(m.groupComponents, group)
	delete(m.groupEntities, group)
	return nil
}

// HasUser reports whether user is a known leaf vertex.
func (m *AccessModel) HasUser(user string) bool { return m.graph.ContainsLeaf(user) }

// HasGroup reports whether group is a known non-leaf vertex.
func (m *AccessModel) HasGroup(group string) bool { return m.graph.ContainsNonLeaf(group) }

// HasEntityType reports whether entityType is registered.
func (m *AccessModel) HasEntityType(entityType string) bool {
	_, ok := m.entityTypes[entityType]
	return ok
}

// HasEntity reports whether entity is registered under entityType.
func (m *AccessModel) HasEntity(entityType, entity string) bool {
	_, ok := m.entities[entityType][entity]
	return ok
}

// --- membership edges ---

// AddUserToGroup adds a user->group membership edge.
func (m *AccessModel) AddUserToGroup(user, group string) error {
	if err := m.graph.AddLeafEdge(user, group); err != nil {
		return wrapVertexOrEdgeErr(err, "user", user, "group", group)
	}
	return nil
}

// RemoveUserFromGroup removes a user->group membership edge.
func (m *AccessModel) RemoveUserFromGroup(user, group string) error {
	if err := m.graph.RemoveLeafEdge(user, group); err != nil {
		return fmt.Errorf("user %q in group %q: %w", user, group, asDoesNotExist(err))
	}
	return nil
}

// AddGroupToGroup adds a group->group membership edge, rejected with
// ErrCircularReference (via the underlying graph) when it would create a
// cycle.
func (m *AccessModel) AddGroupToGroup(group, parent string) error {
	if err := m.graph.AddNonLeafEdge(group, parent); err != nil {
		return wrapVertexOrEdgeErr(err, "group", group, "parent group", parent)
	}
	return nil
}

// RemoveGroupFromGroup removes a group->group membership edge.
func (m *AccessModel) RemoveGroupFromGroup(group, parent string) error {
	if err := m.graph.RemoveNonLeafEdge(group, parent); err != nil {
		return fmt.Errorf("group %q in parent %q: %w", group, parent, asDoesNotExist(err))
	}
	return nil
}

// --- component access mappings ---

// AddUserComponentAccess grants user the given (component, level) access.
func (m *AccessModel) AddUserComponentAccess(user string, access ComponentAccess) error {
	if !m.HasUser(user) {
		return &UserNotFoundError{User: user}
	}
	if _, ok := m.userComponents[user][access]; ok {
		return fmt.Errorf("user %q access %+v: %w", user, access, ErrAlreadyExists)
	}
	m.userComponents[user][access] = struct{}{}
	return nil
}

// RemoveUserComponentAccess revokes a previously granted (component, level) access.
func (m *AccessModel) RemoveUserComponentAccess(user string, access ComponentAccess) error {
	if !m.HasUser(user) {
		return &UserNotFoundError{User: user}
	}
	if _, ok := m.userComponents[user][access]; !ok {
		return fmt.Errorf("user %q access %+v: %w", user, access, ErrDoesNotExist)
	}
	delete(m.userComponents[user], access)
	return nil
}

// AddGroupComponentAccess grants group the given (component, level) access.
func (m *AccessModel) AddGroupComponentAccess(group string, access ComponentAccess) error {
	if !m.HasGroup(group) {
		return &GroupNotFoundError{Group: group}
	}
	if _, ok := m.groupComponents[group][access]; ok {
		return fmt.Errorf("group %q access %+v: %w", group, access, ErrAlreadyExists)
	}
	m.groupComponents[group][access] = struct{}{}
	return nil
}

// RemoveGroupComponentAccess revokes a previously granted (component, level) access.
func (m *AccessModel) RemoveGroupComponentAccess(group string, access ComponentAccess) error {
	if !m.HasGroup(group) {
		return &GroupNotFoundError{Group: group}
	}
	if _, ok := m.groupComponents[group][access]; !ok {
		return fmt.Errorf("group %q access %+v: %w", group, access, ErrDoesNotExist)
	}
	delete(m.groupComponents[group], access)
	return nil
}

// --- entity types and entities ---

// AddEntityType registers a new entity type; the name must be non-blank.
func (m *AccessModel) AddEntityType(entityType string) error {
	if isBlank(entityType) {
		return fmt.Errorf("entity type: %w", ErrEmptyString)
	}
	if _, ok := m.entityTypes[entityType]; ok {
		return fmt.Errorf("entity type %q: %w", entityType, ErrAlreadyExists)
	}
	m.entityTypes[entityType] = struct{}{}
	m.entities[entityType] = make(map[string]struct{})
	return nil
}

// RemoveEntityType removes an entity type, every entity registered under it,
// and every mapping referencing it.
func (m *AccessModel) RemoveEntityType(entityType string) error {
	if _, ok := m.entityTypes[entityType]; !ok {
		return fmt.Errorf("entity type %q: %w", entityType, ErrDoesNotExist)
	}
	delete(m.entityTypes, entityType)
	delete(m.entities, entityType)

	for _, set := range m.userEntities {
		purgeEntityType(set, entityType)
	}
	for _, set := range m.groupEntities {
		purgeEntityType(set, entityType)
	}
	return nil
}

// AddEntity registers entity under entityType; the name must be non-blank.
func (m *AccessModel) AddEntity(entityType, entity string) error {
	if _, ok := m.entityTypes[entityType]; !ok {
		return &EntityTypeNotFoundError{EntityType: entityType}
	}
	if isBlank(entity) {
		return fmt.Errorf("entity: %w", ErrEmptyString)
	}
	if _, ok := m.entities[entityType][entity]; ok {
		return fmt.Errorf("entity %q/%q: %w", entityType, entity, ErrAlreadyExists)
	}
	m.entities[entityType][entity] = struct{}{}
	return nil
}

// RemoveEntity removes entity from entityType and every mapping referencing
// it specifically.
func (m *AccessModel) RemoveEntity(entityType, entity string) error {
	if _, ok := m.entityTypes[entityType]; !ok {
		return &EntityTypeNotFoundError{EntityType: entityType}
	}
	if _, ok := m.entities[entityType][entity]; !ok {
		return fmt.Errorf("entity %q/%q: %w", entityType, entity, ErrDoesNotExist)
	}
	delete(m.entities[entityType], entity)

	ref := EntityRef{EntityType: entityType, Entity: entity}
	for _, set := range m.userEntities {
		delete(set, ref)
	}
	for _, set := range m.groupEntities {
		delete(set, ref)
	}
	return nil
}

func purgeEntityType(set map[EntityRef]struct{}, entityType string) {
	for ref := range set {
		if ref.EntityType == entityType {
			delete(set, ref)
		}
	}
}

// --- entity access mappings ---

// AddUserEntityAccess grants user access to a specific (entityType, entity) pair.
func (m *AccessModel) AddUserEntityAccess(user, entityType, entity string) error {
	if !m.HasUser(user) {
		return &UserNotFoundError{User: user}
	}
	if err := m.checkEntityExists(entityType, entity); err != nil {
		return err
	}
	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.userEntities[user][ref]; ok {
		return fmt.Errorf("user %q entity %+v: %w", user, ref, ErrAlreadyExists)
	}
	m.userEntities[user][ref] = struct{}{}
	return nil
}

// RemoveUserEntityAccess revokes a previously granted entity access.
func (m *AccessModel) RemoveUserEntityAccess(user, entityType, entity string) error {
	if !m.HasUser(user) {
		return &UserNotFoundError{User: user}
	}
	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.userEntities[user][ref]; !ok {
		return fmt.Errorf("user %q entity %+v: %w", user, ref, ErrDoesNotExist)
	}
	delete(m.userEntities[user], ref)
	return nil
}

// AddGroupEntityAccess grants group access to a specific (entityType, entity) pair.
func (m *AccessModel) AddGroupEntityAccess(group, entityType, entity string) error {
	if !m.HasGroup(group) {
		return &GroupNotFoundError{Group: group}
	}
	if err := m.checkEntityExists(entityType, entity); err != nil {
		return err
	}
	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.groupEntities[group][ref]; ok {
		return fmt.Errorf("group %q entity %+v: %w", group, ref, ErrAlreadyExists)
	}
	m.groupEntities[group][ref] = struct{}{}
	return nil
}

// RemoveGroupEntityAccess revokes a previously granted entity access.
func (m *AccessModel) RemoveGroupEntityAccess(group, entityType, entity string) error {
	if !m.HasGroup(group) {
		return &GroupNotFoundError{Group: group}
	}
	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.groupEntities[group][ref]; !ok {
		return fmt.Errorf("group %q entity %+v: %w", group, ref, ErrDoesNotExist)
	}
	delete(m.groupEntities[group], ref)
	return nil
}

func (m *AccessModel) checkEntityExists(entityType, entity string) error {
	if _, ok := m.entityTypes[entityType]; !ok {
		return &EntityTypeNotFoundError{EntityType: entityType}
	}
	if _, ok := m.entities[entityType][entity]; !ok {
		return &EntityNotFoundError{EntityType: entityType, Entity: entity}
	}
	return nil
}

// --- queries ---

// HasAccessToComponent reports whether user has been granted access to the
// given (component, level), directly or via any group reachable from user
// through the membership graph.
func (m *AccessModel) HasAccessToComponent(user string, access ComponentAccess) (bool, error) {
	if !m.HasUser(user) {
		return false, &UserNotFoundError{User: user}
	}
	if _, ok := m.userComponents[user][access]; ok {
		return true, nil
	}
	found := false
	err := m.graph.TraverseFromLeaf(user, func(group string) bool {
		if _, ok := m.groupComponents[group][access]; ok {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// AccessibleComponents returns every (component, level) pair user can reach,
// directly or transitively through group membership, deduplicated and
// sorted for deterministic output.
func (m *AccessModel) AccessibleComponents(user string) ([]ComponentAccess, error) {
	if !m.HasUser(user) {
		return nil, &UserNotFoundError{User: user}
	}
	set := make(map[ComponentAccess]struct{})
	for access := range m.userComponents[user] {
		set[access] = struct{}{}
	}
	err := m.graph.TraverseFromLeaf(user, func(group string) bool {
		for access := range m.groupComponents[group] {
			set[access] = struct{}{}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]ComponentAccess, 0, len(set))
	for access := range set {
		out = append(out, access)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Component != out[j].Component {
			return out[i].Component < out[j].Component
		}
		return out[i].Level < out[j].Level
	})
	return out, nil
}

// AccessibleEntities returns every entity of entityType that user can reach,
// directly or transitively through group membership.
func (m *AccessModel) AccessibleEntities(user, entityType string) ([]string, error) {
	if !m.HasUser(user) {
		return nil, &UserNotFoundError{User: user}
	}
	if _, ok := m.entityTypes[entityType]; !ok {
		return nil, &EntityTypeNotFoundError{EntityType: entityType}
	}

	set := make(map[string]struct{})
	for ref := range m.userEntities[user] {
		if ref.EntityType == entityType {
			set[ref.Entity] = struct{}{}
		}
	}
	err := m.graph.TraverseFromLeaf(user, func(group string) bool {
		for ref := range m.groupEntities[group] {
			if ref.EntityType == entityType {
				set[ref.Entity] = struct{}{}
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

func asAlreadyExists(err error) error {
	return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
}

func asDoesNotExist(err error) error {
	return fmt.Errorf("%w: %v", ErrDoesNotExist, err)
}

// wrapVertexOrEdgeErr translates the underlying graph package's own error
// sentinels to this package's, like asAlreadyExists/asDoesNotExist, so
// a duplicate or missing-endpoint edge mutation renders the same way as any
// other already-exists/does-not-exist failure. Unlike those two, it keeps
// the graph sentinel in the chain as well, so errors.Is matches either.
func wrapVertexOrEdgeErr(err error, kindA, a, kindB, b string) error {
	switch {
	case errors.Is(err, graph.ErrEdgeExists):
		err = fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, graph.ErrVertexNotFound):
		err = fmt.Errorf("%w: %w", ErrDoesNotExist, err)
	}
	return fmt.Errorf("%s %q / %s %q: %w", kindA, a, kindB, b, err)
}
