package main

import (
	"time"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/flushctl"
)

// compositeStrategy fans the signals of a size-triggered and an
// interval-triggered flushctl.Strategy into one channel, so both
// FlushStrategy.SizeLimit and FlushStrategy.LoopInterval stay meaningful at
// once: whichever fires first drives the next flush, and the other keeps
// counting from wherever the flusher's Snapshot calls leave it.
type compositeStrategy struct {
	size     *flushctl.SizeTriggered
	interval *flushctl.IntervalTriggered
	signal   chan struct{}
	done     chan struct{}
}

func newCompositeStrategy(sizeLimit int, interval time.Duration) *compositeStrategy {
	c := &compositeStrategy{
		size:     flushctl.NewSizeTriggered(sizeLimit),
		interval: flushctl.NewIntervalTriggered(interval),
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go c.fanIn()
	return c
}

func (c *compositeStrategy) fanIn() {
	for {
		select {
		case <-c.size.Signal():
			nonBlockingSend(c.signal)
		case <-c.interval.Signal():
			nonBlockingSend(c.signal)
		case <-c.done:
			return
		}
	}
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (c *compositeStrategy) IncrementFamily(f event.Family) {
	c.size.IncrementFamily(f)
	c.interval.IncrementFamily(f)
}

func (c *compositeStrategy) SetFamilyCount(f event.Family, n int) {
	c.size.SetFamilyCount(f, n)
	c.interval.SetFamilyCount(f, n)
}

func (c *compositeStrategy) Signal() <-chan struct{} { return c.signal }

func (c *compositeStrategy) Close() {
	close(c.done)
	c.size.Close()
	c.interval.Close()
}
