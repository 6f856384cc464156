// Package watchdog guards the detection consumer's inference call with a
// fixed timeout, grounded on internal/radar.Scanner's
// Start/Stop/context.WithCancel lifecycle: instead of ticking a sweep on an
// interval, the watchdog arms a single timer around one inference call and
// reports a trip if the call outlives it. Per spec, a trip is fatal — the
// process prefers crash-and-restart over an unbounded stall, so there is no
// in-process recovery path here.
package watchdog

import (
	"context"
	"errors"
	"time"
)

// ErrTripped is returned by Run when the wrapped function exceeds timeout.
var ErrTripped = errors.New("watchdog: inference exceeded timeout")

// Watchdog bounds a single blocking call to at most timeout.
type Watchdog struct {
	timeout time.Duration
}

// New constructs a Watchdog with the given timeout. A non-positive timeout
// disables the bound entirely (Run then simply calls fn with ctx unmodified).
func New(timeout time.Duration) *Watchdog {
	return &Watchdog{timeout: timeout}
}

// Run calls fn with a context derived from ctx and bounded by the
// watchdog's timeout. If fn has not returned by the deadline, Run returns
// ErrTripped immediately; fn's goroutine is left to exit on its own once it
// observes context cancellation (per spec, termination of the owning
// process is the recovery path, not goroutine cleanup here).
func (w *Watchdog) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if w == nil || w.timeout <= 0 {
		return fn(ctx)
	}

	derived, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() {
		done <- fn(derived)
	}()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		cancel()
		return ErrTripped
	}
}
