// Package flush implements the k-way merge flusher, the core algorithm
// of the write path: it snapshots all ten per-family buffers up to a
// high-water sequence number and streams the union to the persister
// distributor in strict global sequence order via a container/heap min-heap
// merge.
package flush

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"github.com/evalgo/accessctl/distribute"
	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/eventbuf"
	"github.com/evalgo/accessctl/flushctl"
	"github.com/sirupsen/logrus"
)

// Metrics receives observational counters from each flush cycle. A nil
// Metrics is valid; Flusher skips recording.
type Metrics interface {
	ObserveFlush(duration time.Duration, flushed, movedBack int)
}

// TripSwitch is actuated when a flush cycle cannot guarantee durability. A
// nil TripSwitch is valid; Flusher then only logs the failure.
type TripSwitch interface {
	TripOnError(err error)
}

// Flusher drains Buffer to Distributor whenever Strategy signals.
type Flusher struct {
	buf   *eventbuf.Buffer
	dist  *distribute.Distributor
	strat flushctl.Strategy
	trip  TripSwitch
	log   *logrus.Entry
	mx    Metrics
}

// New returns a Flusher wiring buf's ten queues to dist via strat's signal.
// A failed flush inside Run actuates trip, since the writer can no longer
// guarantee durability of the events it just failed to persist; a direct
// Flush call only returns the error.
func New(buf *eventbuf.Buffer, strat flushctl.Strategy, dist *distribute.Distributor, trip TripSwitch, mx Metrics, log *logrus.Entry) *Flusher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Flusher{buf: buf, dist: dist, strat: strat, trip: trip, log: log, mx: mx}
}

// Run blocks, flushing every time strat signals, until ctx is canceled. A
// flush failure actuates the trip switch, since a failed flush means the
// writer can no longer guarantee the durability of the events it buffered.
func (f *Flusher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.strat.Signal():
			if err := f.Flush(ctx); err != nil {
				f.log.WithError(err).Error("flush failed")
				if f.trip != nil {
					f.trip.TripOnError(err)
				}
			}
		}
	}
}

type heapItem struct {
	family event.Family
	events []event.Event
	idx    int
}

// familyHeap is a container/heap min-heap over the current head of each
// family's temp snapshot, ordered by sequence number.
type familyHeap []*heapItem

func (h familyHeap) Len() int { return len(h) }
func (h familyHeap) Less(i, j int) bool {
	return h[i].events[h[i].idx].SequenceNumber < h[j].events[h[j].idx].SequenceNumber
}
func (h familyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *familyHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *familyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Flush runs one cycle: capture maxSeq, snapshot every family, k-way merge
// by sequence number, dispatch each event to the distributor in order. On
// any distributor error it wraps and returns immediately, without
// attempting to undo events already dispatched this cycle.
func (f *Flusher) Flush(ctx context.Context) error {
	start := time.Now()
	maxSeq := f.buf.LastSeq()

	h := &familyHeap{}
	heap.Init(h)

	flushed := 0
	movedBack := 0
	for fam := 0; fam < event.NumFamilies; fam++ {
		family := event.Family(fam)
		events, moved := f.buf.Snapshot(family, maxSeq)
		movedBack += moved
		if len(events) == 0 {
			continue
		}
		heap.Push(h, &heapItem{family: family, events: events})
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(*heapItem)
		ev := item.events[item.idx]

		if err := f.dist.Distribute(ctx, ev); err != nil {
			return fmt.Errorf("flush cycle (maxSeq=%d, flushed=%d): %w", maxSeq, flushed, err)
		}
		flushed++

		item.idx++
		if item.idx < len(item.events) {
			heap.Push(h, item)
		}
	}

	if f.mx != nil {
		f.mx.ObserveFlush(time.Since(start), flushed, movedBack)
	}
	f.log.WithFields(logrus.Fields{
		"max_seq":    maxSeq,
		"flushed":    flushed,
		"moved_back": movedBack,
		"duration":   time.Since(start),
	}).Info("flush cycle complete")
	return nil
}
