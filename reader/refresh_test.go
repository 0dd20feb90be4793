package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/eventcache"
	"github.com/evalgo/accessctl/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyUserAdd(replica *model.AccessModel, ev event.Event) error {
	return replica.AddUser(ev.Payload.(string))
}

func TestTick_FirstCallPerformsFullReload(t *testing.T) {
	cache := eventcache.New(10)
	reloadCalls := 0
	reload := func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		reloadCalls++
		m := model.New()
		require.NoError(t, m.AddUser("alice"))
		return m, uuid.New(), nil
	}
	rl := New(cache, reload, applyUserAdd, time.Hour, nil)

	rl.Tick(context.Background())
	require.NoError(t, rl.NotifyQueryMethodCalled())
	assert.Equal(t, 1, reloadCalls)
	assert.True(t, rl.Replica().HasUser("alice"))
}

func TestTick_AppliesTailWithoutFullReload(t *testing.T) {
	cache := eventcache.New(10)
	first := event.Event{EventID: uuid.New(), SequenceNumber: 1}
	cache.Append(first)

	reloadCalls := 0
	reload := func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		reloadCalls++
		return model.New(), first.EventID, nil
	}
	rl := New(cache, reload, applyUserAdd, time.Hour, nil)
	rl.Tick(context.Background())
	require.NoError(t, rl.NotifyQueryMethodCalled())
	assert.Equal(t, 1, reloadCalls)

	cache.Append(event.Event{EventID: uuid.New(), SequenceNumber: 2, Payload: "bob"})
	rl.Tick(context.Background())
	require.NoError(t, rl.NotifyQueryMethodCalled())

	assert.Equal(t, 1, reloadCalls, "second tick should apply the tail, not reload")
	assert.True(t, rl.Replica().HasUser("bob"))
}

func TestTick_CacheMissTriggersFullReload(t *testing.T) {
	cache := eventcache.New(1)
	first := event.Event{EventID: uuid.New(), SequenceNumber: 1}
	cache.Append(first)

	reloadCalls := 0
	reload := func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		reloadCalls++
		m := model.New()
		require.NoError(t, m.AddUser("reloaded"))
		return m, uuid.New(), nil
	}
	rl := New(cache, reload, applyUserAdd, time.Hour, nil)
	rl.Tick(context.Background())
	require.NoError(t, rl.NotifyQueryMethodCalled())

	// Evict `first` out of the cache window.
	cache.Append(event.Event{EventID: uuid.New(), SequenceNumber: 2})

	rl.Tick(context.Background())
	require.NoError(t, rl.NotifyQueryMethodCalled())
	assert.Equal(t, 2, reloadCalls)
	assert.True(t, rl.Replica().HasUser("reloaded"))
}

// TestNotifyQueryMethodCalled_ReRaisesStashedError covers the exception
// slot: a failure during Tick must not panic or get silently dropped, it
// surfaces exactly once to the next query.
func TestNotifyQueryMethodCalled_ReRaisesStashedError(t *testing.T) {
	cache := eventcache.New(10)
	boom := errors.New("reload boom")
	reload := func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		return nil, uuid.UUID{}, boom
	}
	rl := New(cache, reload, applyUserAdd, time.Hour, nil)

	rl.Tick(context.Background())
	err := rl.NotifyQueryMethodCalled()
	assert.ErrorIs(t, err, boom)

	// Cleared after being raised once.
	assert.NoError(t, rl.NotifyQueryMethodCalled())
}

func TestRefreshed_SignalsAfterSuccessfulTickOnly(t *testing.T) {
	cache := eventcache.New(10)
	boom := errors.New("reload boom")
	fail := true
	reload := func(ctx context.Context) (*model.AccessModel, uuid.UUID, error) {
		if fail {
			return nil, uuid.UUID{}, boom
		}
		return model.New(), uuid.New(), nil
	}
	rl := New(cache, reload, applyUserAdd, time.Hour, nil)

	rl.Tick(context.Background())
	select {
	case <-rl.Refreshed():
		t.Fatal("failed tick must not signal")
	default:
	}
	assert.ErrorIs(t, rl.NotifyQueryMethodCalled(), boom)

	fail = false
	rl.Tick(context.Background())
	select {
	case <-rl.Refreshed():
	default:
		t.Fatal("successful tick must signal")
	}
}
