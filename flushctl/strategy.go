// Package flushctl implements the flush strategy: the policy deciding
// *when* a flush should run. Two variants are provided — size-triggered and
// interval-triggered — both satisfying the same Strategy interface so
// package flush never needs to know which one is wired in.
//
// Counts are tracked per family plus a running total. Rather than one
// setter per family, a single SetFamilyCount parameterized over
// event.Family covers all ten.
package flushctl

import (
	"sync"
	"time"

	"github.com/evalgo/accessctl/event"
)

// Strategy decides when buffered events should be flushed and exposes the
// bufferFlushed signal channel the flusher listens on.
type Strategy interface {
	// IncrementFamily records one newly buffered event for family f and
	// may trigger a flush signal as a side effect.
	IncrementFamily(f event.Family)
	// SetFamilyCount overwrites the tracked count for family f, used by
	// the flusher after a snapshot to reconcile for moved-back events.
	SetFamilyCount(f event.Family, n int)
	// Signal is closed-over by the flusher; a send means "flush now".
	Signal() <-chan struct{}
	// Close stops any background worker goroutine.
	Close()
}

type counts struct {
	mu     sync.Mutex
	perFam [event.NumFamilies]int
	total  int
}

func (c *counts) increment(f event.Family) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perFam[f]++
	c.total++
	return c.perFam[f]
}

func (c *counts) set(f event.Family, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	diff := n - c.perFam[f]
	c.perFam[f] = n
	c.total += diff
}

func nonBlockingSignal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// SizeTriggered signals a flush as soon as any single family's buffered
// count exceeds Limit.
type SizeTriggered struct {
	counts
	Limit  int
	signal chan struct{}
}

// NewSizeTriggered returns a Strategy that signals once any family's count
// exceeds limit.
func NewSizeTriggered(limit int) *SizeTriggered {
	return &SizeTriggered{Limit: limit, signal: make(chan struct{}, 1)}
}

func (s *SizeTriggered) IncrementFamily(f event.Family) {
	if n := s.counts.increment(f); n > s.Limit {
		nonBlockingSignal(s.signal)
	}
}

func (s *SizeTriggered) SetFamilyCount(f event.Family, n int) { s.counts.set(f, n) }
func (s *SizeTriggered) Signal() <-chan struct{} { return s.signal }
func (s *SizeTriggered) Close()                  {}

// IntervalTriggered signals a flush every Interval via a background ticker,
// regardless of how many events are currently buffered.
type IntervalTriggered struct {
	counts
	signal chan struct{}
	ticker *time.Ticker
	done   chan struct{}
}

// NewIntervalTriggered starts a background ticker that signals a flush
// every interval.
func NewIntervalTriggered(interval time.Duration) *IntervalTriggered {
	it := &IntervalTriggered{
		signal: make(chan struct{}, 1),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go it.run()
	return it
}

func (it *IntervalTriggered) run() {
	for {
		select {
		case <-it.ticker.C:
			nonBlockingSignal(it.signal)
		case <-it.done:
			return
		}
	}
}

func (it *IntervalTriggered) IncrementFamily(f event.Family)       { it.counts.increment(f) }
func (it *IntervalTriggered) SetFamilyCount(f event.Family, n int) { it.counts.set(f, n) }
func (it *IntervalTriggered) Signal() <-chan struct{}              { return it.signal }
func (it *IntervalTriggered) Close() {
	it.ticker.Stop()
	close(it.done)
}
