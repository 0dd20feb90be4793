package flushctl

import (
	"testing"
	"time"

	"github.com/evalgo/accessctl/event"
	"github.com/stretchr/testify/assert"
)

func TestSizeTriggered_SignalsPastLimit(t *testing.T) {
	s := NewSizeTriggered(2)
	s.IncrementFamily(event.FamilyUser)
	s.IncrementFamily(event.FamilyUser)
	select {
	case <-s.Signal():
		t.Fatal("signaled before exceeding limit")
	default:
	}

	s.IncrementFamily(event.FamilyUser)
	select {
	case <-s.Signal():
	case <-time.After(time.Second):
		t.Fatal("expected signal after exceeding limit")
	}
}

func TestSizeTriggered_SetFamilyCountReconcilesTotal(t *testing.T) {
	s := NewSizeTriggered(100)
	s.IncrementFamily(event.FamilyUser)
	s.IncrementFamily(event.FamilyUser)
	s.IncrementFamily(event.FamilyGroup)

	s.SetFamilyCount(event.FamilyUser, 0)
	assert.Equal(t, 0, s.perFam[event.FamilyUser])
	assert.Equal(t, 1, s.total)
}

func TestIntervalTriggered_SignalsOnTick(t *testing.T) {
	it := NewIntervalTriggered(10 * time.Millisecond)
	defer it.Close()

	select {
	case <-it.Signal():
	case <-time.After(time.Second):
		t.Fatal("expected signal from ticker")
	}
}
