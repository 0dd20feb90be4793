// Package event defines the wire shape of a TemporalEvent and the ten event
// families the writer's mutation surface is partitioned into. It has no
// dependents inside the module other than the types themselves; every other
// package (validate, eventbuf, flush, distribute, eventcache, reader)
// imports it to agree on a single definition of "an event".
package event

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Action names whether an event adds or removes a fact from the access model.
type Action int

const (
	Add Action = iota
	Remove
)

func (a Action) String() string {
	if a == Remove {
		return "remove"
	}
	return "add"
}

// Family names one of the ten independently-buffered mutation categories.
// The ordering here is load-bearing: package eventbuf indexes its
// ten queues by Family, and package flush seeds its merge heap in this order
// when sequence numbers tie (which they never do in practice, since seq is
// globally unique, but a stable family order keeps iteration deterministic).
type Family int

const (
	FamilyUser Family = iota
	FamilyGroup
	FamilyUserGroup
	FamilyGroupGroup
	FamilyUserComponent
	FamilyGroupComponent
	FamilyEntityType
	FamilyEntity
	FamilyUserEntity
	FamilyGroupEntity

	// NumFamilies is the fixed count of event families: ten FIFO queues,
	// one per event family.
	NumFamilies = int(FamilyGroupEntity) + 1
)

func (f Family) String() string {
	switch f {
	case FamilyUser:
		return "user"
	case FamilyGroup:
		return "group"
	case FamilyUserGroup:
		return "user-group"
	case FamilyGroupGroup:
		return "group-group"
	case FamilyUserComponent:
		return "user-component"
	case FamilyGroupComponent:
		return "group-component"
	case FamilyEntityType:
		return "entity-type"
	case FamilyEntity:
		return "entity"
	case FamilyUserEntity:
		return "user-entity"
	case FamilyGroupEntity:
		return "group-entity"
	default:
		return "unknown"
	}
}

// ErrNonUTCTimestamp is returned by New when occurredAt is not UTC.
var ErrNonUTCTimestamp = errors.New("occurredAt must be UTC")

// Event is a single immutable TemporalEvent: an action against one
// family, carrying an opaque payload (the family-specific arguments the
// mutation was invoked with) plus the metadata needed for ordering and
// replication.
type Event struct {
	EventID        uuid.UUID
	Action         Action
	Family         Family
	Payload        any
	OccurredAt     time.Time
	SequenceNumber int64
}

// New constructs an Event with a fresh event id, rejecting non-UTC
// timestamps. SequenceNumber is left zero; it is assigned later by the
// event buffer's atomic counter, not here, since id generation and sequence
// allocation happen at different points in the write path.
func New(action Action, family Family, payload any, occurredAt time.Time) (Event, error) {
	if occurredAt.Location() != time.UTC {
		return Event{}, ErrNonUTCTimestamp
	}
	return Event{
		EventID:    uuid.New(),
		Action:     action,
		Family:     family,
		Payload:    payload,
		OccurredAt: occurredAt,
	}, nil
}
