package main

import (
	"errors"

	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/validate"
)

// errReadOnlyNode is returned by every mutation route a reader node exposes;
// readerd never owns the live model, so it cannot validate or record
// anything, only reject the request informatively instead of panicking on a
// nil EventProcessor.
var errReadOnlyNode = errors.New("readerd: this node is read-only, send mutations to accessd")

func rejected() validate.Result { return validate.Result{Error: errReadOnlyNode} }

// readOnlyEvents satisfies wire.EventProcessor so readerd can reuse the
// same wire.Server mutation routes without exposing a writable model.
type readOnlyEvents struct{}

func (readOnlyEvents) AddUser(string) validate.Result                                    { return rejected() }
func (readOnlyEvents) RemoveUser(string) validate.Result                                 { return rejected() }
func (readOnlyEvents) AddGroup(string) validate.Result                                   { return rejected() }
func (readOnlyEvents) RemoveGroup(string) validate.Result                                { return rejected() }
func (readOnlyEvents) AddUserToGroup(string, string) validate.Result                     { return rejected() }
func (readOnlyEvents) RemoveUserFromGroup(string, string) validate.Result                { return rejected() }
func (readOnlyEvents) AddGroupToGroup(string, string) validate.Result                     { return rejected() }
func (readOnlyEvents) RemoveGroupFromGroup(string, string) validate.Result                { return rejected() }
func (readOnlyEvents) AddUserComponentAccess(string, model.ComponentAccess) validate.Result {
	return rejected()
}
func (readOnlyEvents) RemoveUserComponentAccess(string, model.ComponentAccess) validate.Result {
	return rejected()
}
func (readOnlyEvents) AddGroupComponentAccess(string, model.ComponentAccess) validate.Result {
	return rejected()
}
func (readOnlyEvents) RemoveGroupComponentAccess(string, model.ComponentAccess) validate.Result {
	return rejected()
}
func (readOnlyEvents) AddEntityType(string) validate.Result    { return rejected() }
func (readOnlyEvents) RemoveEntityType(string) validate.Result { return rejected() }
func (readOnlyEvents) AddEntity(string, string) validate.Result {
	return rejected()
}
func (readOnlyEvents) RemoveEntity(string, string) validate.Result {
	return rejected()
}
func (readOnlyEvents) AddUserEntityAccess(string, string, string) validate.Result {
	return rejected()
}
func (readOnlyEvents) RemoveUserEntityAccess(string, string, string) validate.Result {
	return rejected()
}
func (readOnlyEvents) AddGroupEntityAccess(string, string, string) validate.Result {
	return rejected()
}
func (readOnlyEvents) RemoveGroupEntityAccess(string, string, string) validate.Result {
	return rejected()
}
