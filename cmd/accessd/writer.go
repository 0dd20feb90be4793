package main

import (
	"sync"
	"time"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/eventbuf"
	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/validate"
	"github.com/evalgo/accessctl/wire"
)

// writerAPI adapts a validate.Validator into a wire.EventProcessor whose
// successful mutations are also durably recorded, so the HTTP layer never
// has to know about eventbuf.Buffer.Record's family/action/payload triple.
// Each method mirrors the Validator call it wraps exactly; see
// validate.Validator for the dependency-synthesis behavior that produces
// Result.Synthesized.
//
// mu serializes validate-then-record as one critical section: sequence
// numbers are allocated in the same order mutations commit to the live
// model, so a dependent event can never be persisted ahead of its
// prerequisite even when the two arrive on different request goroutines.
// Queries take the read side (see writerQuerySource).
type writerAPI struct {
	mu  sync.RWMutex
	v   *validate.Validator
	buf *eventbuf.Buffer
}

func newWriterAPI(v *validate.Validator, buf *eventbuf.Buffer) *writerAPI {
	return &writerAPI{v: v, buf: buf}
}

func (w *writerAPI) record(mutate func() validate.Result, action event.Action, family event.Family, payload any) validate.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	result := mutate()
	if !result.Success {
		return result
	}
	if _, err := w.buf.Record(result, action, family, payload, time.Now().UTC()); err != nil {
		return validate.Result{Error: err}
	}
	return result
}

func (w *writerAPI) AddUser(user string) validate.Result {
	return w.record(func() validate.Result { return w.v.AddUser(user) }, event.Add, event.FamilyUser, user)
}

func (w *writerAPI) RemoveUser(user string) validate.Result {
	return w.record(func() validate.Result { return w.v.RemoveUser(user) }, event.Remove, event.FamilyUser, user)
}

func (w *writerAPI) AddGroup(group string) validate.Result {
	return w.record(func() validate.Result { return w.v.AddGroup(group) }, event.Add, event.FamilyGroup, group)
}

func (w *writerAPI) RemoveGroup(group string) validate.Result {
	return w.record(func() validate.Result { return w.v.RemoveGroup(group) }, event.Remove, event.FamilyGroup, group)
}

func (w *writerAPI) AddUserToGroup(user, group string) validate.Result {
	edge := model.Edge{Subject: user, Object: group}
	return w.record(func() validate.Result { return w.v.AddUserToGroup(user, group) }, event.Add, event.FamilyUserGroup, edge)
}

func (w *writerAPI) RemoveUserFromGroup(user, group string) validate.Result {
	edge := model.Edge{Subject: user, Object: group}
	return w.record(func() validate.Result { return w.v.RemoveUserFromGroup(user, group) }, event.Remove, event.FamilyUserGroup, edge)
}

func (w *writerAPI) AddGroupToGroup(group, parent string) validate.Result {
	edge := model.Edge{Subject: group, Object: parent}
	return w.record(func() validate.Result { return w.v.AddGroupToGroup(group, parent) }, event.Add, event.FamilyGroupGroup, edge)
}

func (w *writerAPI) RemoveGroupFromGroup(group, parent string) validate.Result {
	edge := model.Edge{Subject: group, Object: parent}
	return w.record(func() validate.Result { return w.v.RemoveGroupFromGroup(group, parent) }, event.Remove, event.FamilyGroupGroup, edge)
}

func (w *writerAPI) AddUserComponentAccess(user string, access model.ComponentAccess) validate.Result {
	grant := model.ComponentGrant{Subject: user, Access: access}
	return w.record(func() validate.Result { return w.v.AddUserComponentAccess(user, access) }, event.Add, event.FamilyUserComponent, grant)
}

func (w *writerAPI) RemoveUserComponentAccess(user string, access model.ComponentAccess) validate.Result {
	grant := model.ComponentGrant{Subject: user, Access: access}
	return w.record(func() validate.Result { return w.v.RemoveUserComponentAccess(user, access) }, event.Remove, event.FamilyUserComponent, grant)
}

func (w *writerAPI) AddGroupComponentAccess(group string, access model.ComponentAccess) validate.Result {
	grant := model.ComponentGrant{Subject: group, Access: access}
	return w.record(func() validate.Result { return w.v.AddGroupComponentAccess(group, access) }, event.Add, event.FamilyGroupComponent, grant)
}

func (w *writerAPI) RemoveGroupComponentAccess(group string, access model.ComponentAccess) validate.Result {
	grant := model.ComponentGrant{Subject: group, Access: access}
	return w.record(func() validate.Result { return w.v.RemoveGroupComponentAccess(group, access) }, event.Remove, event.FamilyGroupComponent, grant)
}

func (w *writerAPI) AddEntityType(entityType string) validate.Result {
	return w.record(func() validate.Result { return w.v.AddEntityType(entityType) }, event.Add, event.FamilyEntityType, entityType)
}

func (w *writerAPI) RemoveEntityType(entityType string) validate.Result {
	return w.record(func() validate.Result { return w.v.RemoveEntityType(entityType) }, event.Remove, event.FamilyEntityType, entityType)
}

func (w *writerAPI) AddEntity(entityType, entity string) validate.Result {
	ref := model.EntityRef{EntityType: entityType, Entity: entity}
	return w.record(func() validate.Result { return w.v.AddEntity(entityType, entity) }, event.Add, event.FamilyEntity, ref)
}

func (w *writerAPI) RemoveEntity(entityType, entity string) validate.Result {
	ref := model.EntityRef{EntityType: entityType, Entity: entity}
	return w.record(func() validate.Result { return w.v.RemoveEntity(entityType, entity) }, event.Remove, event.FamilyEntity, ref)
}

func (w *writerAPI) AddUserEntityAccess(user, entityType, entity string) validate.Result {
	grant := model.EntityGrant{Subject: user, Ref: model.EntityRef{EntityType: entityType, Entity: entity}}
	return w.record(func() validate.Result { return w.v.AddUserEntityAccess(user, entityType, entity) }, event.Add, event.FamilyUserEntity, grant)
}

func (w *writerAPI) RemoveUserEntityAccess(user, entityType, entity string) validate.Result {
	grant := model.EntityGrant{Subject: user, Ref: model.EntityRef{EntityType: entityType, Entity: entity}}
	return w.record(func() validate.Result { return w.v.RemoveUserEntityAccess(user, entityType, entity) }, event.Remove, event.FamilyUserEntity, grant)
}

func (w *writerAPI) AddGroupEntityAccess(group, entityType, entity string) validate.Result {
	grant := model.EntityGrant{Subject: group, Ref: model.EntityRef{EntityType: entityType, Entity: entity}}
	return w.record(func() validate.Result { return w.v.AddGroupEntityAccess(group, entityType, entity) }, event.Add, event.FamilyGroupEntity, grant)
}

func (w *writerAPI) RemoveGroupEntityAccess(group, entityType, entity string) validate.Result {
	grant := model.EntityGrant{Subject: group, Ref: model.EntityRef{EntityType: entityType, Entity: entity}}
	return w.record(func() validate.Result { return w.v.RemoveGroupEntityAccess(group, entityType, entity) }, event.Remove, event.FamilyGroupEntity, grant)
}

// writerQuerySource serves queries straight off the live model under the
// writer lock's read side; a writer never stashes a refresh error the way
// reader.RefreshLoop does.
type writerQuerySource struct {
	api *writerAPI
	m   *model.AccessModel
}

func (writerQuerySource) NotifyQueryMethodCalled() error { return nil }
func (w writerQuerySource) Model() wire.QueryModel {
	return lockedQueryModel{mu: &w.api.mu, m: w.m}
}

// lockedQueryModel guards each read against the writer's mutation lock so a
// query never observes the model mid-mutation.
type lockedQueryModel struct {
	mu *sync.RWMutex
	m  *model.AccessModel
}

func (l lockedQueryModel) HasAccessToComponent(user string, access model.ComponentAccess) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.HasAccessToComponent(user, access)
}

func (l lockedQueryModel) AccessibleComponents(user string) ([]model.ComponentAccess, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.AccessibleComponents(user)
}

func (l lockedQueryModel) AccessibleEntities(user, entityType string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.AccessibleEntities(user, entityType)
}
