// Package validate implements the event validator: given a proposed
// mutation against the access model, it decides whether applying it would
// leave the model in a legal state, and only then commits it. The dry run
// and the real commit share one closure, so the decision that produced the
// event is, by construction, the same decision that changed the model.
package validate

import (
	"errors"
	"fmt"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/model"
	"github.com/sirupsen/logrus"
)

// MutationFunc applies one mutation to an access model, dry-run or real.
type MutationFunc func(*model.AccessModel) error

// Dependency describes one prerequisite a mutation references that may not
// yet exist. In dependency-free mode, a missing prerequisite is synthesized
// as its own Add event (prepended, with its own sequence number) rather than
// failing the mutation outright.
type Dependency struct {
	Missing    func(*model.AccessModel) bool
	Synthesize MutationFunc
	Family     event.Family
	Payload    any
}

// Synthesized records one prerequisite event the validator created on the
// caller's behalf; the eventbuf must allocate it a sequence number strictly
// before the sequence number of the mutation that required it.
type Synthesized struct {
	Family  event.Family
	Payload any
}

// Result is the outcome of a validated mutation.
type Result struct {
	Success     bool
	Error       error
	Synthesized []Synthesized
	// NoOp marks a dependency-free idempotent add: the mutation's effect
	// already holds, the call succeeds, and no event is to be recorded.
	NoOp bool
}

// Validator owns the live access model and runs every mutation against a
// throwaway clone before committing it.
type Validator struct {
	model          *model.AccessModel
	dependencyFree bool
	log            *logrus.Entry
}

// New returns a Validator over model m. When dependencyFree is true, missing
// prerequisites are synthesized instead of rejected.
func New(m *model.AccessModel, dependencyFree bool, log *logrus.Entry) *Validator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Validator{model: m, dependencyFree: dependencyFree, log: log}
}

// DependencyFree reports whether this validator synthesizes prerequisites.
func (v *Validator) DependencyFree() bool { return v.dependencyFree }

// Validate runs mutate against a clone of the live model. On failure it
// returns Result{Success: false} without touching the live model. On
// success it applies any synthesized prerequisites (in order) followed by
// mutate itself to the live model, and reports them in Result.Synthesized
// so the caller (package eventbuf) can record each as its own event, ordered
// before the primary mutation's event.
func (v *Validator) Validate(mutate MutationFunc, deps ...Dependency) Result {
	clone := v.model.Clone()

	var synthesized []Synthesized
	var synthesize []MutationFunc
	if v.dependencyFree {
		for _, d := range deps {
			if !d.Missing(clone) {
				continue
			}
			if err := d.Synthesize(clone); err != nil {
				return Result{Error: fmt.Errorf("synthesize prerequisite %s: %w", d.Family, err)}
			}
			synthesized = append(synthesized, Synthesized{Family: d.Family, Payload: d.Payload})
			synthesize = append(synthesize, d.Synthesize)
		}
	}

	if err := mutate(clone); err != nil {
		// In dependency-free mode an add whose effect already holds is
		// idempotent: succeed without touching the live model or
		// recording an event.
		if v.dependencyFree && errors.Is(err, model.ErrAlreadyExists) {
			return Result{Success: true, NoOp: true}
		}
		return Result{Error: err}
	}

	for _, s := range synthesize {
		if err := s(v.model); err != nil {
			// The clone accepted this exact mutation; the live model
			// diverging here means a concurrent mutation outside the
			// validator's discipline occurred. Surface loudly rather
			// than leave the live model partially updated.
			v.log.WithError(err).Error("synthesized prerequisite rejected by live model after clone accepted it")
			return Result{Error: fmt.Errorf("apply synthesized prerequisite: %w", err)}
		}
	}
	if err := mutate(v.model); err != nil {
		v.log.WithError(err).Error("mutation rejected by live model after clone accepted it")
		return Result{Error: fmt.Errorf("apply mutation: %w", err)}
	}

	return Result{Success: true, Synthesized: synthesized}
}

// --- per-family convenience wrappers, matching the access model's mutation surface 1:1 ---

func (v *Validator) AddUser(user string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.AddUser(user) })
}

func (v *Validator) RemoveUser(user string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveUser(user) })
}

func (v *Validator) AddGroup(group string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.AddGroup(group) })
}

func (v *Validator) RemoveGroup(group string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveGroup(group) })
}

func (v *Validator) AddUserToGroup(user, group string) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddUserToGroup(user, group) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasUser(user) },
			Synthesize: func(m *model.AccessModel) error { return m.AddUser(user) },
			Family:     event.FamilyUser,
			Payload:    user,
		},
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasGroup(group) },
			Synthesize: func(m *model.AccessModel) error { return m.AddGroup(group) },
			Family:     event.FamilyGroup,
			Payload:    group,
		},
	)
}

func (v *Validator) RemoveUserFromGroup(user, group string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveUserFromGroup(user, group) })
}

func (v *Validator) AddGroupToGroup(group, parent string) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddGroupToGroup(group, parent) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasGroup(group) },
			Synthesize: func(m *model.AccessModel) error { return m.AddGroup(group) },
			Family:     event.FamilyGroup,
			Payload:    group,
		},
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasGroup(parent) },
			Synthesize: func(m *model.AccessModel) error { return m.AddGroup(parent) },
			Family:     event.FamilyGroup,
			Payload:    parent,
		},
	)
}

func (v *Validator) RemoveGroupFromGroup(group, parent string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveGroupFromGroup(group, parent) })
}

func (v *Validator) AddUserComponentAccess(user string, access model.ComponentAccess) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddUserComponentAccess(user, access) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasUser(user) },
			Synthesize: func(m *model.AccessModel) error { return m.AddUser(user) },
			Family:     event.FamilyUser,
			Payload:    user,
		},
	)
}

func (v *Validator) RemoveUserComponentAccess(user string, access model.ComponentAccess) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveUserComponentAccess(user, access) })
}

func (v *Validator) AddGroupComponentAccess(group string, access model.ComponentAccess) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddGroupComponentAccess(group, access) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasGroup(group) },
			Synthesize: func(m *model.AccessModel) error { return m.AddGroup(group) },
			Family:     event.FamilyGroup,
			Payload:    group,
		},
	)
}

func (v *Validator) RemoveGroupComponentAccess(group string, access model.ComponentAccess) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveGroupComponentAccess(group, access) })
}

func (v *Validator) AddEntityType(entityType string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.AddEntityType(entityType) })
}

func (v *Validator) RemoveEntityType(entityType string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveEntityType(entityType) })
}

func (v *Validator) AddEntity(entityType, entity string) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddEntity(entityType, entity) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasEntityType(entityType) },
			Synthesize: func(m *model.AccessModel) error { return m.AddEntityType(entityType) },
			Family:     event.FamilyEntityType,
			Payload:    entityType,
		},
	)
}

func (v *Validator) RemoveEntity(entityType, entity string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveEntity(entityType, entity) })
}

func (v *Validator) AddUserEntityAccess(user, entityType, entity string) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddUserEntityAccess(user, entityType, entity) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasUser(user) },
			Synthesize: func(m *model.AccessModel) error { return m.AddUser(user) },
			Family:     event.FamilyUser,
			Payload:    user,
		},
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasEntityType(entityType) },
			Synthesize: func(m *model.AccessModel) error { return m.AddEntityType(entityType) },
			Family:     event.FamilyEntityType,
			Payload:    entityType,
		},
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasEntity(entityType, entity) },
			Synthesize: func(m *model.AccessModel) error { return m.AddEntity(entityType, entity) },
			Family:     event.FamilyEntity,
			Payload:    model.EntityRef{EntityType: entityType, Entity: entity},
		},
	)
}

func (v *Validator) RemoveUserEntityAccess(user, entityType, entity string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveUserEntityAccess(user, entityType, entity) })
}

func (v *Validator) AddGroupEntityAccess(group, entityType, entity string) Result {
	return v.Validate(
		func(m *model.AccessModel) error { return m.AddGroupEntityAccess(group, entityType, entity) },
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasGroup(group) },
			Synthesize: func(m *model.AccessModel) error { return m.AddGroup(group) },
			Family:     event.FamilyGroup,
			Payload:    group,
		},
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasEntityType(entityType) },
			Synthesize: func(m *model.AccessModel) error { return m.AddEntityType(entityType) },
			Family:     event.FamilyEntityType,
			Payload:    entityType,
		},
		Dependency{
			Missing:    func(m *model.AccessModel) bool { return !m.HasEntity(entityType, entity) },
			Synthesize: func(m *model.AccessModel) error { return m.AddEntity(entityType, entity) },
			Family:     event.FamilyEntity,
			Payload:    model.EntityRef{EntityType: entityType, Entity: entity},
		},
	)
}

func (v *Validator) RemoveGroupEntityAccess(group, entityType, entity string) Result {
	return v.Validate(func(m *model.AccessModel) error { return m.RemoveGroupEntityAccess(group, entityType, entity) })
}
