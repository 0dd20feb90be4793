package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/accessctl/event"
)

func openTestCache(t *testing.T, capacity int64) *Cache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := Open(fmt.Sprintf("redis://%s:%s/0", host, port.Port()), capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetAllEventsSince_ReturnsStrictlyGreaterTail(t *testing.T) {
	c := openTestCache(t, 10)
	ctx := context.Background()
	now := time.Now().UTC()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, c.Apply(ctx, event.Event{
			EventID: ids[i], Family: event.FamilyUser, Payload: "alice",
			OccurredAt: now, SequenceNumber: int64(i + 1),
		}))
	}

	tail, err := c.GetAllEventsSince(ctx, ids[0].String())
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(2), tail[0].SequenceNumber)
	assert.Equal(t, int64(3), tail[1].SequenceNumber)
}

func TestGetAllEventsSince_UnknownIDReturnsNotCached(t *testing.T) {
	c := openTestCache(t, 10)
	_, err := c.GetAllEventsSince(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrEventNotCached)
}

func TestApply_EvictsOldestPastCapacityAndPurgesIndex(t *testing.T) {
	c := openTestCache(t, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	first := uuid.New()
	require.NoError(t, c.Apply(ctx, event.Event{EventID: first, Family: event.FamilyUser, Payload: "a", OccurredAt: now, SequenceNumber: 1}))
	require.NoError(t, c.Apply(ctx, event.Event{EventID: uuid.New(), Family: event.FamilyUser, Payload: "b", OccurredAt: now, SequenceNumber: 2}))
	require.NoError(t, c.Apply(ctx, event.Event{EventID: uuid.New(), Family: event.FamilyUser, Payload: "c", OccurredAt: now, SequenceNumber: 3}))

	n, err := c.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = c.GetAllEventsSince(ctx, first.String())
	assert.ErrorIs(t, err, ErrEventNotCached)
}

func TestLatest_ReflectsMostRecentApply(t *testing.T) {
	c := openTestCache(t, 10)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, c.Apply(ctx, event.Event{EventID: uuid.New(), Family: event.FamilyUser, Payload: "alice", OccurredAt: now, SequenceNumber: 1}))
	require.NoError(t, c.Apply(ctx, event.Event{EventID: uuid.New(), Family: event.FamilyGroup, Payload: "engineers", OccurredAt: now, SequenceNumber: 2}))

	latest, ok, err := c.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.SequenceNumber)
}
