package model

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned when adding a mapping, user, group, entity
// type or entity that is already present.
var ErrAlreadyExists = errors.New("already exists")

// ErrDoesNotExist is returned when removing a mapping, user, group, entity
// type or entity that is not present.
var ErrDoesNotExist = errors.New("does not exist")

// ErrEmptyString is returned by AddEntityType/AddEntity when the supplied
// string has no non-whitespace character.
var ErrEmptyString = errors.New("must contain at least one non-whitespace character")

// NotFound is implemented by every not-found error family so the
// error-to-status converter (package status) can render ParameterName and
// Identifier without a type switch per error.
type NotFound interface {
	error
	ParameterName() string
	Identifier() string
}

// UserNotFoundError reports a query or mutation referencing an unknown user.
type UserNotFoundError struct{ User string }

func (e *UserNotFoundError) Error() string         { return fmt.Sprintf("user not found: %s", e.User) }
func (e *UserNotFoundError) ParameterName() string { return "user" }
func (e *UserNotFoundError) Identifier() string    { return e.User }

// GroupNotFoundError reports a query or mutation referencing an unknown group.
type GroupNotFoundError struct{ Group string }

func (e *GroupNotFoundError) Error() string         { return fmt.Sprintf("group not found: %s", e.Group) }
func (e *GroupNotFoundError) ParameterName() string { return "group" }
func (e *GroupNotFoundError) Identifier() string    { return e.Group }

// EntityTypeNotFoundError reports a reference to an unregistered entity type.
type EntityTypeNotFoundError struct{ EntityType string }

func (e *EntityTypeNotFoundError) Error() string {
	return fmt.Sprintf("entity type not found: %s", e.EntityType)
}
func (e *EntityTypeNotFoundError) ParameterName() string { return "entityType" }
func (e *EntityTypeNotFoundError) Identifier() string    { return e.EntityType }

// EntityNotFoundError reports a reference to an entity absent from its type.
type EntityNotFoundError struct {
	EntityType string
	Entity     string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity not found: %s/%s", e.EntityType, e.Entity)
}
func (e *EntityNotFoundError) ParameterName() string { return "entity" }
func (e *EntityNotFoundError) Identifier() string    { return e.EntityType + "/" + e.Entity }

var (
	_ NotFound = (*UserNotFoundError)(nil)
	_ NotFound = (*GroupNotFoundError)(nil)
	_ NotFound = (*EntityTypeNotFoundError)(nil)
	_ NotFound = (*EntityNotFoundError)(nil)
)
