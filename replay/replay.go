// Package replay applies a recorded event.Event back onto a model.AccessModel.
// It is the one place that knows the mapping from (family, action, payload)
// back to an AccessModel method call, shared by every persister's Load path
// and by reader.RefreshLoop's Applier, so the two never drift apart.
package replay

import (
	"fmt"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/model"
)

// Apply replays ev onto m. Remove actions on families that only ever
// synthesize Add prerequisites (user, group, entity type, entity) are still
// handled, since a durable log may contain an explicit removal alongside
// the add it undoes.
func Apply(m *model.AccessModel, ev event.Event) error {
	switch ev.Family {
	case event.FamilyUser:
		user, ok := ev.Payload.(string)
		if !ok {
			return payloadTypeErr(ev, "string")
		}
		if ev.Action == event.Remove {
			return m.RemoveUser(user)
		}
		return m.AddUser(user)

	case event.FamilyGroup:
		group, ok := ev.Payload.(string)
		if !ok {
			return payloadTypeErr(ev, "string")
		}
		if ev.Action == event.Remove {
			return m.RemoveGroup(group)
		}
		return m.AddGroup(group)

	case event.FamilyUserGroup:
		edge, ok := ev.Payload.(model.Edge)
		if !ok {
			return payloadTypeErr(ev, "model.Edge")
		}
		if ev.Action == event.Remove {
			return m.RemoveUserFromGroup(edge.Subject, edge.Object)
		}
		return m.AddUserToGroup(edge.Subject, edge.Object)

	case event.FamilyGroupGroup:
		edge, ok := ev.Payload.(model.Edge)
		if !ok {
			return payloadTypeErr(ev, "model.Edge")
		}
		if ev.Action == event.Remove {
			return m.RemoveGroupFromGroup(edge.Subject, edge.Object)
		}
		return m.AddGroupToGroup(edge.Subject, edge.Object)

	case event.FamilyUserComponent:
		grant, ok := ev.Payload.(model.ComponentGrant)
		if !ok {
			return payloadTypeErr(ev, "model.ComponentGrant")
		}
		if ev.Action == event.Remove {
			return m.RemoveUserComponentAccess(grant.Subject, grant.Access)
		}
		return m.AddUserComponentAccess(grant.Subject, grant.Access)

	case event.FamilyGroupComponent:
		grant, ok := ev.Payload.(model.ComponentGrant)
		if !ok {
			return payloadTypeErr(ev, "model.ComponentGrant")
		}
		if ev.Action == event.Remove {
			return m.RemoveGroupComponentAccess(grant.Subject, grant.Access)
		}
		return m.AddGroupComponentAccess(grant.Subject, grant.Access)

	case event.FamilyEntityType:
		entityType, ok := ev.Payload.(string)
		if !ok {
			return payloadTypeErr(ev, "string")
		}
		if ev.Action == event.Remove {
			return m.RemoveEntityType(entityType)
		}
		return m.AddEntityType(entityType)

	case event.FamilyEntity:
		ref, ok := ev.Payload.(model.EntityRef)
		if !ok {
			return payloadTypeErr(ev, "model.EntityRef")
		}
		if ev.Action == event.Remove {
			return m.RemoveEntity(ref.EntityType, ref.Entity)
		}
		return m.AddEntity(ref.EntityType, ref.Entity)

	case event.FamilyUserEntity:
		grant, ok := ev.Payload.(model.EntityGrant)
		if !ok {
			return payloadTypeErr(ev, "model.EntityGrant")
		}
		if ev.Action == event.Remove {
			return m.RemoveUserEntityAccess(grant.Subject, grant.Ref.EntityType, grant.Ref.Entity)
		}
		return m.AddUserEntityAccess(grant.Subject, grant.Ref.EntityType, grant.Ref.Entity)

	case event.FamilyGroupEntity:
		grant, ok := ev.Payload.(model.EntityGrant)
		if !ok {
			return payloadTypeErr(ev, "model.EntityGrant")
		}
		if ev.Action == event.Remove {
			return m.RemoveGroupEntityAccess(grant.Subject, grant.Ref.EntityType, grant.Ref.Entity)
		}
		return m.AddGroupEntityAccess(grant.Subject, grant.Ref.EntityType, grant.Ref.Entity)

	default:
		return fmt.Errorf("replay: unknown family %d for event %s", ev.Family, ev.EventID)
	}
}

func payloadTypeErr(ev event.Event, want string) error {
	return fmt.Errorf("replay: event %s family %s: want payload %s, got %T", ev.EventID, ev.Family, want, ev.Payload)
}
