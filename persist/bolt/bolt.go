// Package bolt implements a durable distribute.Persister backed by
// go.etcd.io/bbolt: one embedded file, one bucket per event family,
// JSON-marshaled values, with keys being the event's sequence number
// zero-padded for lexicographic-equals-numeric ordering, so Load can replay
// an entire family in sequence order with a plain ForEach.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

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

// record is the on-disk shape of one event. Payload is kept as raw JSON
// because event.Event.Payload is family-dependent (string, model.Edge,
// model.ComponentGrant, model.EntityGrant); decodePayload below restores the
// concrete type on Load using the family recorded alongside it.
type record struct {
	EventID        string          `json:"eventId"`
	Action         string          `json:"action"`
	Family         event.Family    `json:"family"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurredAt"`
	SequenceNumber int64           `json:"sequenceNumber"`
}

// DB wraps a *bolt.DB opened against a single file, pre-creating one bucket
// per event.Family so Apply never has to special-case a missing bucket.
type DB struct {
	db *bolt.DB
}

func bucketName(family event.Family) []byte {
	return []byte(family.String())
}

// Open opens (creating if absent) the bbolt file at path and ensures every
// family bucket exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for f := 0; f < event.NumFamilies; f++ {
			if _, err := tx.CreateBucketIfNotExists(bucketName(event.Family(f))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create family buckets: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying file handle.
func (d *DB) Close() error { return d.db.Close() }

func seqKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// Apply persists ev, satisfying distribute.Persister. It is keyed by
// sequence number within the event's family bucket, so a re-applied event
// (same sequence number) simply overwrites its own record rather than
// duplicating it.
func (d *DB) Apply(_ context.Context, ev event.Event) error {
	if ev.SequenceNumber <= 0 {
		return fmt.Errorf("bolt: event %s: non-positive sequence number %d", ev.EventID, ev.SequenceNumber)
	}
	if ev.OccurredAt.Location() != time.UTC {
		return fmt.Errorf("bolt: event %s: occurredAt must be UTC", ev.EventID)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("bolt: marshal payload for event %s: %w", ev.EventID, err)
	}
	rec := record{
		EventID:        ev.EventID.String(),
		Action:         ev.Action.String(),
		Family:         ev.Family,
		Payload:        payload,
		OccurredAt:     ev.OccurredAt,
		SequenceNumber: ev.SequenceNumber,
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bolt: marshal record for event %s: %w", ev.EventID, err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(ev.Family))
		if b == nil {
			return fmt.Errorf("bolt: missing bucket for family %s", ev.Family)
		}
		return b.Put(seqKey(ev.SequenceNumber), buf)
	})
}

// Load replays every persisted event across all families in strict global
// sequence order, handing each to apply (typically a closure calling
// replay.Apply on the target *model.AccessModel). It returns the sequence
// number of the last event applied, or 0 if the store was empty; the writer
// seeds eventbuf.Buffer.Bootstrap with it.
func Load(d *DB, apply func(event.Event) error) (lastSeq int64, err error) {
	all := make([]event.Event, 0)
	err = d.db.View(func(tx *bolt.Tx) error {
		for i := 0; i < event.NumFamilies; i++ {
			f := event.Family(i)
			b := tx.Bucket(bucketName(f))
			if b == nil {
				continue
			}
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var rec record
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("bolt: decode record in family %s: %w", f, err)
				}
				ev, err := rec.toEvent()
				if err != nil {
					return err
				}
				all = append(all, ev)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].SequenceNumber < all[j].SequenceNumber })
	for _, ev := range all {
		if err := apply(ev); err != nil {
			return lastSeq, fmt.Errorf("bolt: replay event %s: %w", ev.EventID, err)
		}
		lastSeq = ev.SequenceNumber
	}
	return lastSeq, nil
}

func (r record) toEvent() (event.Event, error) {
	id, err := parseUUID(r.EventID)
	if err != nil {
		return event.Event{}, fmt.Errorf("bolt: parse event id %q: %w", r.EventID, err)
	}
	payload, err := decodePayload(r.Family, r.Payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("bolt: decode payload for event %s: %w", r.EventID, err)
	}
	return event.Event{
		EventID:        id,
		Action:         parseAction(r.Action),
		Family:         r.Family,
		Payload:        payload,
		OccurredAt:     r.OccurredAt,
		SequenceNumber: r.SequenceNumber,
	}, nil
}

func decodePayload(family event.Family, raw json.RawMessage) (any, error) {
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
