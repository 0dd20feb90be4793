package tripswitch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailFast_InterceptReturnsErrorOnceTripped(t *testing.T) {
	want := errors.New("quarantined")
	s := New(Config{Mode: ModeFailFast, WhenTrippedErr: want}, nil)

	require.NoError(t, s.Intercept())
	s.Trip()
	assert.ErrorIs(t, s.Intercept(), want)
	assert.False(t, s.Healthy())
}

func TestDelayedShutdown_CurrentRequestStillServed(t *testing.T) {
	shutdownCalled := make(chan struct{}, 1)
	s := New(Config{
		Mode:          ModeDelayedShutdown,
		ShutdownDelay: 10 * time.Millisecond,
		ShutdownFunc:  func() { shutdownCalled <- struct{}{} },
	}, nil)

	s.Trip()
	assert.NoError(t, s.Intercept(), "request in progress at trip time must still be served")

	select {
	case <-shutdownCalled:
	case <-time.After(time.Second):
		t.Fatal("expected shutdown to fire after delay")
	}
}

// TestDelayedShutdown_NilErrorDoesNotRethrow covers the resolved open
// question: whenTrippedErr=nil with shutdown configured means "do not
// rethrow, shut down only".
func TestDelayedShutdown_NilErrorDoesNotRethrow(t *testing.T) {
	s := New(Config{Mode: ModeDelayedShutdown, WhenTrippedErr: nil}, nil)
	s.Trip()
	assert.NoError(t, s.Intercept())
}

func TestTrip_OnTripFiresAtMostOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := New(Config{OnTrip: func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trip()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestTripOnError_IgnoresNil(t *testing.T) {
	s := New(Config{}, nil)
	s.TripOnError(nil)
	assert.True(t, s.Healthy())
	s.TripOnError(errors.New("boom"))
	assert.False(t, s.Healthy())
}
