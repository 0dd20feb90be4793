// Package tripswitch implements the trip switch: a one-way latch
// that, once actuated, quarantines a node. Two interception modes are
// supported — fail-fast (every subsequent request is rejected immediately)
// and delayed shutdown (the request that triggered the trip, and any
// in-flight at the moment, are still served; the process exits after a
// grace period). Health reporting (readiness probes) is simply "not tripped".
package tripswitch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects how Intercept behaves once the switch has tripped.
type Mode int

const (
	// ModeFailFast rejects every request after trip with WhenTrippedErr.
	ModeFailFast Mode = iota
	// ModeDelayedShutdown lets in-flight and already-scheduled requests
	// complete; the process is expected to exit via ShutdownFunc after
	// ShutdownDelay.
	ModeDelayedShutdown
)

// Switch is a one-way latch. Once Trip is called, Healthy reports false for
// the remainder of the process's life; there is no Reset.
type Switch struct {
	tripped atomic.Bool
	once    sync.Once

	mode           Mode
	whenTrippedErr error
	shutdownDelay  time.Duration
	shutdownFunc   func()
	onTrip         func()
	log            *logrus.Entry
}

// Config configures a Switch.
type Config struct {
	Mode Mode
	// WhenTrippedErr is returned by Intercept once tripped, in
	// ModeFailFast. A nil value with ModeDelayedShutdown configured means
	// "do not rethrow, shut down only" — the current request is served
	// normally and only the scheduled shutdown enforces quarantine.
	WhenTrippedErr error
	ShutdownDelay  time.Duration
	ShutdownFunc   func()
	// OnTrip is invoked at most once, the first time Trip actually
	// transitions the latch (sync.Once semantics).
	OnTrip func()
}

// New returns an untripped Switch.
func New(cfg Config, log *logrus.Entry) *Switch {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Switch{
		mode:           cfg.Mode,
		whenTrippedErr: cfg.WhenTrippedErr,
		shutdownDelay:  cfg.ShutdownDelay,
		shutdownFunc:   cfg.ShutdownFunc,
		onTrip:         cfg.OnTrip,
		log:            log,
	}
}

// Trip actuates the latch. It is idempotent: only the first call has any
// effect, including firing OnTrip and, in ModeDelayedShutdown, scheduling
// the shutdown timer.
func (s *Switch) Trip() {
	if !s.tripped.CompareAndSwap(false, true) {
		return
	}
	s.once.Do(func() {
		if s.onTrip != nil {
			s.onTrip()
		}
	})
	s.log.Warn("trip switch actuated")
	if s.mode == ModeDelayedShutdown && s.shutdownFunc != nil {
		time.AfterFunc(s.shutdownDelay, s.shutdownFunc)
	}
}

// TripOnError trips the switch if err is non-nil, a convenience for callers
// that want to auto-trip on any unrecoverable failure they detect (e.g. the
// reader refresh loop's exception slot, or a flush cycle failure) without
// an explicit nil check at every call site.
func (s *Switch) TripOnError(err error) {
	if err != nil {
		s.Trip()
	}
}

// Tripped reports whether the latch has actuated.
func (s *Switch) Tripped() bool { return s.tripped.Load() }

// Healthy reports the inverse of Tripped, for readiness probes.
func (s *Switch) Healthy() bool { return !s.Tripped() }

// Intercept is called at the top of every request path. In ModeFailFast it
// returns WhenTrippedErr once tripped. In ModeDelayedShutdown it always
// returns nil: the request in progress is still served, and quarantine is
// enforced only by the scheduled process shutdown.
func (s *Switch) Intercept() error {
	if !s.Tripped() {
		return nil
	}
	if s.mode == ModeFailFast {
		return s.whenTrippedErr
	}
	return nil
}
