// Package redis implements an alternate backend for the temporal event
// cache, for deployments that run the writer and readers on separate
// hosts and need the cache shared rather than in-process. It uses a
// go-redis/v9 client, a key-prefix convention ("events", "event-index"), and
// JSON-marshaled values. Ordering is maintained with a sorted set scored by
// sequence number, the natural Redis structure for "bounded, ordered, prefix-scan by
// score" — the same role eventcache.Cache's plain slice plays in-process.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

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

const (
	eventsKey = "accessctl:events"
	indexKey  = "accessctl:event-index"
)

var ErrEventNotCached = errors.New("redis: event not found in cache")

// Cache wraps a *redis.Client and implements distribute.Persister via Apply,
// just as eventcache.Cache does, so a Distributor can treat either backend
// identically.
type Cache struct {
	client   *goredis.Client
	capacity int64
}

// Open connects to the Redis/Valkey instance at url and verifies
// connectivity, bounding the cache to at most capacity events.
func Open(url string, capacity int64) (*Cache, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Cache{client: client, capacity: capacity}, nil
}

// Close releases the client's connection pool.
func (c *Cache) Close() error { return c.client.Close() }

type record struct {
	EventID        string          `json:"eventId"`
	Action         string          `json:"action"`
	Family         event.Family    `json:"family"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurredAt"`
	SequenceNumber int64           `json:"sequenceNumber"`
}

// Apply persists ev into the sorted set scored by sequence number and
// trims the set back down to capacity, evicting the oldest entries first —
// the same bounded-FIFO contract eventcache.Cache provides in-process.
// Satisfies distribute.Persister.
func (c *Cache) Apply(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("redis: marshal payload for event %s: %w", ev.EventID, err)
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
		return fmt.Errorf("redis: marshal record for event %s: %w", ev.EventID, err)
	}

	if err := c.client.ZAdd(ctx, eventsKey, goredis.Z{Score: float64(ev.SequenceNumber), Member: buf}).Err(); err != nil {
		return fmt.Errorf("redis: apply event %s: %w", ev.EventID, err)
	}
	if err := c.client.HSet(ctx, indexKey, rec.EventID, ev.SequenceNumber).Err(); err != nil {
		return fmt.Errorf("redis: index event %s: %w", ev.EventID, err)
	}
	return c.evictPastCapacity(ctx)
}

// evictPastCapacity trims the sorted set down to capacity, oldest first,
// and removes the evicted events' index entries so a later lookup by id
// correctly reports ErrEventNotCached rather than a stale sequence number.
func (c *Cache) evictPastCapacity(ctx context.Context) error {
	if c.capacity <= 0 {
		return nil
	}
	total, err := c.client.ZCard(ctx, eventsKey).Result()
	if err != nil {
		return fmt.Errorf("redis: card: %w", err)
	}
	if total <= c.capacity {
		return nil
	}
	stale, err := c.client.ZRange(ctx, eventsKey, 0, total-c.capacity-1).Result()
	if err != nil {
		return fmt.Errorf("redis: list stale: %w", err)
	}
	for _, m := range stale {
		var rec record
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			continue
		}
		if err := c.client.HDel(ctx, indexKey, rec.EventID).Err(); err != nil {
			return fmt.Errorf("redis: evict index entry %s: %w", rec.EventID, err)
		}
	}
	return c.client.ZRemRangeByRank(ctx, eventsKey, 0, total-c.capacity-1).Err()
}

// GetAllEventsSince returns every cached event strictly after id's sequence
// number, in ascending order, mirroring eventcache.Cache.GetAllEventsSince.
// Returns ErrEventNotCached if id is unknown or has already been evicted.
func (c *Cache) GetAllEventsSince(ctx context.Context, id string) ([]event.Event, error) {
	seqStr, err := c.client.HGet(ctx, indexKey, id).Result()
	if err == goredis.Nil {
		return nil, ErrEventNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("redis: lookup event %s: %w", id, err)
	}

	members, err := c.client.ZRangeByScore(ctx, eventsKey, &goredis.ZRangeBy{
		Min: "(" + seqStr,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range since %s: %w", id, err)
	}
	events := make([]event.Event, 0, len(members))
	for _, m := range members {
		ev, err := decodeMember(m)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Latest returns the highest-sequence cached event, if any.
func (c *Cache) Latest(ctx context.Context) (event.Event, bool, error) {
	members, err := c.client.ZRevRangeWithScores(ctx, eventsKey, 0, 0).Result()
	if err != nil {
		return event.Event{}, false, fmt.Errorf("redis: latest: %w", err)
	}
	if len(members) == 0 {
		return event.Event{}, false, nil
	}
	member, ok := members[0].Member.(string)
	if !ok {
		return event.Event{}, false, fmt.Errorf("redis: latest: unexpected member type %T", members[0].Member)
	}
	ev, err := decodeMember(member)
	if err != nil {
		return event.Event{}, false, err
	}
	return ev, true, nil
}

// Len reports the number of events currently cached.
func (c *Cache) Len(ctx context.Context) (int64, error) {
	return c.client.ZCard(ctx, eventsKey).Result()
}

func decodeMember(raw string) (event.Event, error) {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return event.Event{}, fmt.Errorf("redis: decode record: %w", err)
	}
	id, err := parseUUID(rec.EventID)
	if err != nil {
		return event.Event{}, fmt.Errorf("redis: parse event id %q: %w", rec.EventID, err)
	}
	payload, err := decodePayload(rec.Family, rec.Payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("redis: decode payload for event %s: %w", rec.EventID, err)
	}
	return event.Event{
		EventID:        id,
		Action:         parseAction(rec.Action),
		Family:         rec.Family,
		Payload:        payload,
		OccurredAt:     rec.OccurredAt,
		SequenceNumber: rec.SequenceNumber,
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
