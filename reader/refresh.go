// Package reader implements the reader refresh loop: a periodic tick
// that asks the temporal event cache for everything since the last applied
// event id and replays it onto a local access model replica. On a cache
// miss (the watermark fell off the cache's bounded window) it performs a
// full reload instead of replaying piecemeal.
package reader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/eventcache"
	"github.com/evalgo/accessctl/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FullReloader rebuilds a replica from scratch (snapshot + tail, or a full
// event replay) and reports the event id its state reflects.
type FullReloader func(ctx context.Context) (replica *model.AccessModel, watermark uuid.UUID, err error)

// Applier replays one event onto a replica in place.
type Applier func(replica *model.AccessModel, ev event.Event) error

// RefreshLoop periodically advances a replica from the event cache.
type RefreshLoop struct {
	mu           sync.RWMutex
	replica      *model.AccessModel
	watermarkSet bool
	watermark    uuid.UUID

	cache     *eventcache.Cache
	reload    FullReloader
	apply     Applier
	interval  time.Duration
	log       *logrus.Entry
	refreshed chan struct{}

	pendingErr error
}

// New returns a RefreshLoop with no replica loaded yet; the first Tick
// performs a full reload.
func New(cache *eventcache.Cache, reload FullReloader, apply Applier, interval time.Duration, log *logrus.Entry) *RefreshLoop {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RefreshLoop{
		cache:     cache,
		reload:    reload,
		apply:     apply,
		interval:  interval,
		log:       log,
		refreshed: make(chan struct{}, 1),
	}
}

// Refreshed signals after every successful refresh cycle. Signals coalesce:
// a slow listener observes at least one signal for any number of completed
// cycles since it last received.
func (r *RefreshLoop) Refreshed() <-chan struct{} { return r.refreshed }

func (r *RefreshLoop) signalRefreshed() {
	select {
	case r.refreshed <- struct{}{}:
	default:
	}
}

// Run blocks, calling Tick every interval, until ctx is canceled.
func (r *RefreshLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick advances the replica by one refresh cycle. Any error is stashed in
// the exception slot rather than returned: the refresh loop keeps running on
// a fixed schedule regardless of transient failure, and the error is
// re-raised to the next query instead (see NotifyQueryMethodCalled).
func (r *RefreshLoop) Tick(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watermarkSet {
		tail, err := r.cache.GetAllEventsSince(r.watermark)
		switch {
		case err == nil:
			r.applyTailLocked(tail)
			return
		case errors.Is(err, eventcache.ErrEventNotCached):
			r.log.Warn("refresh watermark fell outside cache window, reloading")
		default:
			r.pendingErr = err
			r.log.WithError(err).Error("refresh loop cache query failed")
			return
		}
	}

	replica, watermark, err := r.reload(ctx)
	if err != nil {
		r.pendingErr = err
		r.log.WithError(err).Error("refresh loop full reload failed")
		return
	}
	r.replica = replica
	r.watermark = watermark
	r.watermarkSet = true
	r.signalRefreshed()
}

func (r *RefreshLoop) applyTailLocked(tail []event.Event) {
	for _, ev := range tail {
		if err := r.apply(r.replica, ev); err != nil {
			r.pendingErr = err
			r.log.WithError(err).WithField("event", ev.EventID).Error("refresh loop failed to apply event")
			return
		}
		r.watermark = ev.EventID
	}
	r.signalRefreshed()
}

// NotifyQueryMethodCalled returns and clears any error stashed by a prior
// failed Tick. Every query entry point calls this before reading Replica so
// that a refresh failure surfaces to the caller exactly once, on the next
// query, rather than being silently swallowed or leaving the replica stale
// without any signal.
func (r *RefreshLoop) NotifyQueryMethodCalled() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.pendingErr
	r.pendingErr = nil
	return err
}

// Replica returns the current replica for querying. Callers must call
// NotifyQueryMethodCalled first and handle a non-nil error before trusting
// the returned replica's freshness.
func (r *RefreshLoop) Replica() *model.AccessModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replica
}

// ErrReplicaNotLoaded is returned by the query methods below before the
// first successful Tick has produced a replica.
var ErrReplicaNotLoaded = errors.New("replica not loaded")

// The query methods hold the read lock for the duration of the read, so a
// concurrent Tick applying the cache tail in place can never be observed
// mid-mutation. They mirror model.AccessModel's read surface so a
// RefreshLoop can be served where a plain model otherwise would.

func (r *RefreshLoop) HasAccessToComponent(user string, access model.ComponentAccess) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.replica == nil {
		return false, ErrReplicaNotLoaded
	}
	return r.replica.HasAccessToComponent(user, access)
}

func (r *RefreshLoop) AccessibleComponents(user string) ([]model.ComponentAccess, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.replica == nil {
		return nil, ErrReplicaNotLoaded
	}
	return r.replica.AccessibleComponents(user)
}

func (r *RefreshLoop) AccessibleEntities(user, entityType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.replica == nil {
		return nil, ErrReplicaNotLoaded
	}
	return r.replica.AccessibleEntities(user, entityType)
}
