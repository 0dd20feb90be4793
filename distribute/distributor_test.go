package distribute

import (
	"context"
	"errors"
	"testing"

	"github.com/evalgo/accessctl/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	name    string
	applied []event.Event
	failOn  int
}

func (p *recordingPersister) Apply(ctx context.Context, ev event.Event) error {
	if p.failOn > 0 && len(p.applied)+1 == p.failOn {
		return errors.New("boom")
	}
	p.applied = append(p.applied, ev)
	return nil
}

// TestDistribute_FansOutToEveryPersister guards against the known
// loop-indentation regression: every persister must receive every event,
// not just the first.
func TestDistribute_FansOutToEveryPersister(t *testing.T) {
	p1 := &recordingPersister{name: "durable"}
	p2 := &recordingPersister{name: "cache"}
	d := New(nil, p1, p2)

	ev := event.Event{EventID: uuid.New(), Family: event.FamilyUser, SequenceNumber: 1}
	require.NoError(t, d.Distribute(context.Background(), ev))

	assert.Len(t, p1.applied, 1)
	assert.Len(t, p2.applied, 1)
}

func TestDistribute_StopsAtFirstFailure(t *testing.T) {
	p1 := &recordingPersister{name: "durable", failOn: 1}
	p2 := &recordingPersister{name: "cache"}
	d := New(nil, p1, p2)

	ev := event.Event{EventID: uuid.New(), Family: event.FamilyUser, SequenceNumber: 1}
	err := d.Distribute(context.Background(), ev)
	assert.Error(t, err)
	assert.Empty(t, p1.applied)
	assert.Empty(t, p2.applied)
}
