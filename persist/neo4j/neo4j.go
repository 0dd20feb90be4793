// Package neo4j implements an optional distribute.Persister that mirrors the
// graph-shaped half of the access model (users, groups, and the membership
// edges between them) into Neo4j as a live queryable property graph, using
// the neo4j-go-driver session/ExecuteWrite transaction pattern. It ignores
// every event family that carries no graph-structural information
// (component/entity grants); those are durable in persist/bolt or
// persist/postgres, not duplicated here.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/model"
)

// Mirror wraps a neo4j.DriverWithContext and applies graph-shaped events as
// Cypher MERGE statements, so the live graph in Neo4j always reflects the
// same membership structure as the in-process graph.Graph.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
}

// Open connects to the Neo4j instance at uri and verifies connectivity.
func Open(ctx context.Context, uri, username, password, database string) (*Mirror, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: new driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return &Mirror{driver: driver, database: database}, nil
}

// Close releases the driver's connection pool.
func (m *Mirror) Close(ctx context.Context) error { return m.driver.Close(ctx) }

// Apply satisfies distribute.Persister. Only the four graph-structural
// families are mirrored; every other family is a no-op success, since this
// persister's job is structural mirroring, not a second copy of the event
// log.
func (m *Mirror) Apply(ctx context.Context, ev event.Event) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: m.database})
	defer session.Close(ctx)

	switch ev.Family {
	case event.FamilyUser:
		return m.applyVertex(ctx, session, "User", ev)
	case event.FamilyGroup:
		return m.applyVertex(ctx, session, "Group", ev)
	case event.FamilyUserGroup:
		return m.applyEdge(ctx, session, "User", "Group", ev)
	case event.FamilyGroupGroup:
		return m.applyEdge(ctx, session, "Group", "Group", ev)
	default:
		return nil
	}
}

func (m *Mirror) applyVertex(ctx context.Context, session neo4j.SessionWithContext, label string, ev event.Event) error {
	name, ok := ev.Payload.(string)
	if !ok {
		return fmt.Errorf("neo4j: %s event payload is %T, want string", label, ev.Payload)
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var query string
		if ev.Action == event.Add {
			query = `MERGE (n:` + label + ` {name: $name})`
		} else {
			query = `MATCH (n:` + label + ` {name: $name}) DETACH DELETE n`
		}
		_, err := tx.Run(ctx, query, map[string]any{"name": name})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4j: apply %s vertex %q: %w", label, name, err)
	}
	return nil
}

func (m *Mirror) applyEdge(ctx context.Context, session neo4j.SessionWithContext, fromLabel, toLabel string, ev event.Event) error {
	edge, ok := ev.Payload.(model.Edge)
	if !ok {
		return fmt.Errorf("neo4j: membership event payload is %T, want model.Edge", ev.Payload)
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var query string
		if ev.Action == event.Add {
			query = `MATCH (a:` + fromLabel + ` {name: $subject}), (b:` + toLabel + ` {name: $object})
				MERGE (a)-[:MEMBER_OF]->(b)`
		} else {
			query = `MATCH (a:` + fromLabel + ` {name: $subject})-[r:MEMBER_OF]->(b:` + toLabel + ` {name: $object})
				DELETE r`
		}
		_, err := tx.Run(ctx, query, map[string]any{"subject": edge.Subject, "object": edge.Object})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4j: apply edge %s->%s: %w", edge.Subject, edge.Object, err)
	}
	return nil
}
