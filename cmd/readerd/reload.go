package main

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/eventcache"
	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/persist/bolt"
	"github.com/evalgo/accessctl/persist/postgres"
	"github.com/evalgo/accessctl/reader"
	"github.com/evalgo/accessctl/replay"
)

// reloadGroupKey is the singleflight key every full reload shares: there is
// only ever one replica per process, so any reload in flight is the reload
// every other caller also wants.
const reloadGroupKey = "reload"

// storageSource is whichever durable log this reader node was pointed at;
// exactly one of the two fields is non-nil.
type storageSource struct {
	pg   *postgres.DB
	bolt *bolt.DB
}

type reloadResult struct {
	model     *model.AccessModel
	watermark uuid.UUID
}

// newFullReloader rebuilds a replica from scratch by replaying the entire
// durable log in order, the reader.FullReloader called on startup and
// whenever the event cache's bounded window has already rolled past the
// replica's watermark. A singleflight.Group collapses concurrent
// callers onto one in-flight reload instead of each replaying the whole log
// independently, since RefreshLoop.Run's ticker and a caller that triggers a
// reload out of band would otherwise duplicate the work.
func newFullReloader(src storageSource) reader.FullReloader {
	var group singleflight.Group

	do := func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		m := model.New()
		var lastID uuid.UUID

		apply := func(ev event.Event) error {
			if err := replay.Apply(m, ev); err != nil {
				return err
			}
			lastID = ev.EventID
			return nil
		}

		var err error
		if src.pg != nil {
			_, err = postgres.Load(ctx, src.pg, apply)
		} else {
			_, err = bolt.Load(src.bolt, apply)
		}
		if err != nil {
			return nil, uuid.UUID{}, err
		}
		return m, lastID, nil
	}

	return func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		v, err, _ := group.Do(reloadGroupKey, func() (any, error) {
			m, watermark, err := do(ctx)
			if err != nil {
				return nil, err
			}
			return reloadResult{model: m, watermark: watermark}, nil
		})
		if err != nil {
			return nil, uuid.UUID{}, err
		}
		res := v.(reloadResult)
		return res.model, res.watermark, nil
	}
}

// pollStorage feeds newly persisted events into the local temporal event
// cache so RefreshLoop.Tick's incremental path has something to apply
// between full reloads. It re-walks the whole durable log each call and
// skips everything at or before lastSeq; readerd's nodes are expected to sit
// behind the same storage the writer flushes to, not in front of their own
// copy of it, so this is a polling reader, not a second writer.
func pollStorage(src storageSource, cache *eventcache.Cache, lastSeq *int64) error {
	apply := func(ev event.Event) error {
		if ev.SequenceNumber > *lastSeq {
			cache.Append(ev)
			*lastSeq = ev.SequenceNumber
		}
		return nil
	}

	var err error
	if src.pg != nil {
		_, err = postgres.Load(context.Background(), src.pg, apply)
	} else {
		_, err = bolt.Load(src.bolt, apply)
	}
	return err
}
