// Package distribute implements the persister distributor: fan-out of
// each flushed event to every registered Persister, in registration order.
// Every registered persister receives every event; the dispatch call lives
// inside the fan-out loop and must stay there.
package distribute

import (
	"context"
	"fmt"

	"github.com/evalgo/accessctl/event"
	"github.com/sirupsen/logrus"
)

// Persister is anything that durably records a single TemporalEvent. The
// temporal event cache (package eventcache) also implements this interface,
// so a Distributor's persister list can include it alongside the durable
// stores without a special case.
type Persister interface {
	Apply(ctx context.Context, ev event.Event) error
}

// Distributor fans each event out to every registered Persister.
type Distributor struct {
	persisters []Persister
	log        *logrus.Entry
}

// New returns a Distributor that dispatches to persisters in order.
func New(log *logrus.Entry, persisters ...Persister) *Distributor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Distributor{persisters: persisters, log: log}
}

// Distribute sends ev to every persister, in order. It stops and returns a
// wrapped error at the first failure, without attempting to unwind
// persisters already applied.
func (d *Distributor) Distribute(ctx context.Context, ev event.Event) error {
	for i, p := range d.persisters {
		if err := p.Apply(ctx, ev); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"event":     ev.EventID,
				"family":    ev.Family.String(),
				"persister": i,
			}).Error("persister rejected event")
			return fmt.Errorf("distribute event %s to persister %d: %w", ev.EventID, i, err)
		}
	}
	return nil
}
