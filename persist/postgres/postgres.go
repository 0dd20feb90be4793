// Package postgres implements a durable distribute.Persister backed by
// PostgreSQL: gorm.Open against a postgres driver, AutoMigrate for schema
// management, Create for writes, and an ordered Find for replay. Every
// persisted event becomes one append-only eventRecord row in the
// accessctl_events table,
// mirroring the bbolt persister's one-record-per-event shape but backed by a
// relational store for operators who want SQL-native querying/backup.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/model"
)

func parseUUID(s string) (uuid.UUID, error) { return uuid.Parse(s) }

func parseAction(s string) event.Action {
	if s == "remove" {
		return event.Remove
	}
	return event.Add
}

// eventRecord is the GORM model backing the append-only event log table.
type eventRecord struct {
	ID             uint `gorm:"primaryKey"`
	EventID        string
	Action         string
	Family         int
	Payload        string `gorm:"type:text"`
	OccurredAt     time.Time
	SequenceNumber int64 `gorm:"uniqueIndex"`
}

func (eventRecord) TableName() string { return "accessctl_events" }

// DB wraps a *gorm.DB plus a pgx pool used only for lightweight liveness
// checks (Ping): a GORM connection for ORM work and a pgx pool for direct
// low-overhead operations.
type DB struct {
	gorm *gorm.DB
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL at connString, runs the schema migration, and
// establishes a pgx pool for health checks.
func Open(ctx context.Context, connString string) (*DB, error) {
	g, err := gorm.Open(postgres.Open(connString), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := g.AutoMigrate(&eventRecord{}); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &DB{gorm: g, pool: pool}, nil
}

// Close releases both the GORM connection and the pgx pool.
func (d *DB) Close() error {
	d.pool.Close()
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Healthy reports whether the pgx pool can still reach the database,
// suitable for wiring into a /readyz handler alongside tripswitch.Healthy.
func (d *DB) Healthy(ctx context.Context) bool {
	return d.pool.Ping(ctx) == nil
}

// Apply persists ev as one row, satisfying distribute.Persister. Re-applying
// an event with a sequence number already on disk is a conflict, not
// silently ignored, since sequence numbers are assigned exactly once by the
// event buffer and a collision means a persister bug upstream.
func (d *DB) Apply(ctx context.Context, ev event.Event) error {
	if ev.SequenceNumber <= 0 {
		return fmt.Errorf("postgres: event %s: non-positive sequence number %d", ev.EventID, ev.SequenceNumber)
	}
	if ev.OccurredAt.Location() != time.UTC {
		return fmt.Errorf("postgres: event %s: occurredAt must be UTC", ev.EventID)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal payload for event %s: %w", ev.EventID, err)
	}
	rec := eventRecord{
		EventID:        ev.EventID.String(),
		Action:         ev.Action.String(),
		Family:         int(ev.Family),
		Payload:        string(payload),
		OccurredAt:     ev.OccurredAt,
		SequenceNumber: ev.SequenceNumber,
	}
	result := d.gorm.WithContext(ctx).Create(&rec)
	if result.Error != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.EventID, result.Error)
	}
	return nil
}

// Load replays every persisted event in ascending sequence order, handing
// each to apply, and returns the sequence number of the last one applied (0
// if the table was empty).
func Load(ctx context.Context, d *DB, apply func(event.Event) error) (lastSeq int64, err error) {
	var records []eventRecord
	if err := d.gorm.WithContext(ctx).Order("sequence_number asc").Find(&records).Error; err != nil {
		return 0, fmt.Errorf("postgres: load events: %w", err)
	}
	for _, rec := range records {
		ev, err := rec.toEvent()
		if err != nil {
			return lastSeq, err
		}
		if err := apply(ev); err != nil {
			return lastSeq, fmt.Errorf("postgres: replay event %s: %w", ev.EventID, err)
		}
		lastSeq = ev.SequenceNumber
	}
	return lastSeq, nil
}

func (r eventRecord) toEvent() (event.Event, error) {
	id, err := parseUUID(r.EventID)
	if err != nil {
		return event.Event{}, fmt.Errorf("postgres: parse event id %q: %w", r.EventID, err)
	}
	family := event.Family(r.Family)
	payload, err := decodePayload(family, []byte(r.Payload))
	if err != nil {
		return event.Event{}, fmt.Errorf("postgres: decode payload for event %s: %w", r.EventID, err)
	}
	return event.Event{
		EventID:        id,
		Action:         parseAction(r.Action),
		Family:         family,
		Payload:        payload,
		OccurredAt:     r.OccurredAt,
		SequenceNumber: r.SequenceNumber,
	}, nil
}

func decodePayload(family event.Family, raw []byte) (any, error) {
	switch family {
	case event.FamilyUser, event.FamilyGroup, event.FamilyEntityType:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case event.FamilyUserGroup, event.FamilyGroupGroup:
		var edge model.Edge
		if err := json.Unmarshal(raw, &edge); err != nil {
			return nil, err
		}
		return edge, nil
	case event.FamilyUserComponent, event.FamilyGroupComponent:
		var grant model.ComponentGrant
		if err := json.Unmarshal(raw, &grant); err != nil {
			return nil, err
		}
		return grant, nil
	case event.FamilyEntity:
		var ref model.EntityRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			return nil, err
		}
		return ref, nil
	case event.FamilyUserEntity, event.FamilyGroupEntity:
		var grant model.EntityGrant
		if err := json.Unmarshal(raw, &grant); err != nil {
			return nil, err
		}
		return grant, nil
	default:
		return nil, fmt.Errorf("unknown family %d", family)
	}
}
