// Package eventbuf implements the per-category event buffer: ten
// independently-locked FIFO queues, one per event.Family, each holding
// (payload, sequenceNumber) pairs produced by package validate. Sequence
// numbers are allocated from one shared atomic counter so they form a total
// order across every family.
package eventbuf

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/flushctl"
	"github.com/evalgo/accessctl/validate"
	"github.com/sirupsen/logrus"
)

// queue is one family's FIFO, guarded by its own mutex so that queues can be
// swapped out wholesale during flush without themselves being locked by
// identity.
type queue struct {
	mu     sync.Mutex
	events []event.Event
}

// Buffer owns the ten per-family queues and the shared sequence counter.
type Buffer struct {
	queues  [event.NumFamilies]*queue
	lastSeq int64 // atomic
	strat   flushctl.Strategy
	log     *logrus.Entry
}

// New returns an empty Buffer driven by strategy strat.
func New(strat flushctl.Strategy, log *logrus.Entry) *Buffer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	b := &Buffer{strat: strat, log: log}
	for i := range b.queues {
		b.queues[i] = &queue{}
	}
	return b
}

// LastSeq returns the most recently allocated sequence number (0 if none).
func (b *Buffer) LastSeq() int64 { return atomic.LoadInt64(&b.lastSeq) }

// Bootstrap seeds the sequence counter from a persister's replayed watermark
// so a restarted writer resumes numbering after the last durable event
// instead of colliding with it at 1. It must be called before any Record,
// while the buffer is otherwise idle.
func (b *Buffer) Bootstrap(lastSeq int64) { atomic.StoreInt64(&b.lastSeq, lastSeq) }

// Record runs result through the per-family append contract: acquire
// the family's lock, allocate a sequence number, append, update the flush
// strategy's count, unlock. When result carries synthesized prerequisite
// events (dependency-free mode), each is recorded first, in order, each
// getting its own sequence number strictly before the primary event's.
func (b *Buffer) Record(result validate.Result, action event.Action, primaryFamily event.Family, primaryPayload any, now time.Time) ([]event.Event, error) {
	if !result.Success {
		return nil, result.Error
	}
	if result.NoOp {
		return nil, nil
	}

	recorded := make([]event.Event, 0, len(result.Synthesized)+1)
	for _, s := range result.Synthesized {
		ev, err := b.append(event.Add, s.Family, s.Payload, now)
		if err != nil {
			return recorded, err
		}
		recorded = append(recorded, ev)
	}

	ev, err := b.append(action, primaryFamily, primaryPayload, now)
	if err != nil {
		return recorded, err
	}
	recorded = append(recorded, ev)
	return recorded, nil
}

func (b *Buffer) append(action event.Action, family event.Family, payload any, now time.Time) (event.Event, error) {
	ev, err := event.New(action, family, payload, now)
	if err != nil {
		return event.Event{}, err
	}

	q := b.queues[family]
	q.mu.Lock()
	ev.SequenceNumber = atomic.AddInt64(&b.lastSeq, 1)
	q.events = append(q.events, ev)
	b.strat.IncrementFamily(family)
	q.mu.Unlock()

	b.log.WithFields(logrus.Fields{
		"family": family.String(),
		"action": ev.Action.String(),
		"seq":    ev.SequenceNumber,
	}).Debug("event buffered")
	return ev, nil
}

// Snapshot captures, under the family's lock, every queued event for family
// up to and including maxSeq, swapping in a fresh empty queue; events past
// maxSeq are moved back to the front of the (now-empty) live queue in their
// original relative order. This is the per-family half of the K-way merge
// flusher; the heap merge itself lives in package flush to keep this
// package ignorant of the persister.
func (b *Buffer) Snapshot(family event.Family, maxSeq int64) (snapshot []event.Event, movedBack int) {
	q := b.queues[family]
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil, 0
	}
	if q.events[0].SequenceNumber > maxSeq {
		return nil, 0
	}

	taken := q.events
	q.events = nil

	cut := len(taken)
	for i := len(taken) - 1; i >= 0; i-- {
		if taken[i].SequenceNumber > maxSeq {
			cut = i
		} else {
			break
		}
	}
	moveBack := taken[cut:]
	snapshot = taken[:cut]

	if len(moveBack) > 0 {
		q.events = append(append([]event.Event{}, moveBack...), q.events...)
	}
	b.strat.SetFamilyCount(family, len(q.events))
	return snapshot, len(moveBack)
}
