package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/model"
)

// openTestDB starts a disposable PostgreSQL container via the
// testcontainers-go postgres module, favoring it over a hand-rolled Docker
// client for a real database against an ephemeral instance, and returns a
// connected *DB; the container and the connection are released through
// t.Cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:17",
		tcpostgres.WithDatabase("accessctl"),
		tcpostgres.WithUsername("accessctl"),
		tcpostgres.WithPassword("accessctl"),
		tcpostgres.BasicWaitStrategies(),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyThenLoad_ReplaysEventsInSequenceOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	events := []event.Event{
		{EventID: uuid.New(), Action: event.Add, Family: event.FamilyUser, Payload: "alice", OccurredAt: now, SequenceNumber: 1},
		{EventID: uuid.New(), Action: event.Add, Family: event.FamilyGroup, Payload: "engineers", OccurredAt: now, SequenceNumber: 2},
		{EventID: uuid.New(), Action: event.Add, Family: event.FamilyUserGroup, Payload: model.Edge{Subject: "alice", Object: "engineers"}, OccurredAt: now, SequenceNumber: 3},
	}
	for _, ev := range events {
		require.NoError(t, db.Apply(ctx, ev))
	}

	var replayed []event.Event
	lastSeq, err := Load(ctx, db, func(ev event.Event) error {
		replayed = append(replayed, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), lastSeq)
	require.Len(t, replayed, 3)
	assert.Equal(t, "alice", replayed[0].Payload)
	assert.Equal(t, model.Edge{Subject: "alice", Object: "engineers"}, replayed[2].Payload)
}

func TestApply_RejectsDuplicateSequenceNumber(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := event.Event{EventID: uuid.New(), Action: event.Add, Family: event.FamilyUser, Payload: "alice", OccurredAt: now, SequenceNumber: 1}
	require.NoError(t, db.Apply(ctx, ev))

	ev2 := ev
	ev2.EventID = uuid.New()
	err := db.Apply(ctx, ev2)
	assert.Error(t, err, "sequence numbers are unique per I3; a collision must surface, not silently overwrite")
}

func TestHealthy_ReflectsContainerLifecycle(t *testing.T) {
	db := openTestDB(t)
	assert.True(t, db.Healthy(context.Background()))
}
