// Package eventcache implements the temporal event cache: a bounded
// FIFO of the most recent N events, queryable by "give me everything after
// this event id". It is the replication fabric readers (package reader)
// poll instead of re-reading the durable persister on every tick.
package eventcache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/evalgo/accessctl/event"
	"github.com/google/uuid"
)

// ErrEventNotCached is returned by GetAllEventsSince when id is unknown to
// the cache, either because it never happened or because it has already
// been evicted by capacity. Callers (package reader) treat this as "fall
// back to a full reload".
var ErrEventNotCached = errors.New("event not cached")

// Cache is a capacity-bounded, append-only (until eviction) ordered log of
// the most recently flushed events. A side index maps event id to sequence
// number so GetAllEventsSince never scans the whole ring.
type Cache struct {
	mu       sync.Mutex
	capacity int
	events   []event.Event       // ascending by SequenceNumber, length <= capacity
	index    map[uuid.UUID]int64 // event id -> sequence number
}

// New returns a Cache retaining at most capacity events.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{capacity: capacity, index: make(map[uuid.UUID]int64)}
}

// Apply implements distribute.Persister so a Cache can be registered
// directly with a Distributor alongside durable persisters.
func (c *Cache) Apply(_ context.Context, ev event.Event) error {
	c.Append(ev)
	return nil
}

// Append records ev, evicting the oldest cached event if over capacity.
func (c *Cache) Append(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.index[ev.EventID] = ev.SequenceNumber
	if over := len(c.events) - c.capacity; over > 0 {
		for _, old := range c.events[:over] {
			delete(c.index, old.EventID)
		}
		c.events = append([]event.Event(nil), c.events[over:]...)
	}
}

// GetAllEventsSince returns every cached event with a strictly greater
// sequence number than the event identified by id, in ascending order. It
// returns ErrEventNotCached if id is not currently in the cache.
func (c *Cache) GetAllEventsSince(id uuid.UUID) ([]event.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.index[id]
	if !ok {
		return nil, ErrEventNotCached
	}
	i := sort.Search(len(c.events), func(i int) bool {
		return c.events[i].SequenceNumber > seq
	})
	tail := make([]event.Event, len(c.events)-i)
	copy(tail, c.events[i:])
	return tail, nil
}

// Latest returns the most recently appended event, if any.
func (c *Cache) Latest() (event.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return event.Event{}, false
	}
	return c.events[len(c.events)-1], true
}

// Len reports how many events are currently retained.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
