package dcs

import (
	"context"
	"sync"
	"time"
)

// Measurer abstracts where a channel measurement comes from: the live
// vendor off-channel-scan path (component E via the event engine) or the
// CSV replay path (component J). The scheduler depends only on this
// interface.
type Measurer interface {
	// Measure blocks until a sample for channel is available or ctx is
	// done / the measurement's own timeout elapses. A nil error with a
	// zero Sample never happens; absence is always communicated via
	// ErrMeasurementFailure or ErrTransientBackend.
	Measure(ctx context.Context, channel *ChannelEntry) (Sample, error)
}

// scanContext is the single-slot rendezvous between the scheduler and
// the asynchronous OCS_DONE handler (spec.md §3, §5).
type scanContext struct {
	mu                             sync.Mutex
	done                           *sync.Cond
	currentChannelUnderMeasurement *ChannelEntry
	pendingResult                  *Sample
}

func newScanContext() *scanContext {
	sc := &scanContext{}
	sc.done = sync.NewCond(&sc.mu)
	return sc
}

// beginMeasurement marks channel as in flight. It must be called with
// pendingResult empty (spec.md §3 invariant: at most one measurement in
// flight); callers enforce this by construction since the scheduler is
// single-threaded.
func (sc *scanContext) beginMeasurement(channel *ChannelEntry) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.currentChannelUnderMeasurement = channel
	sc.pendingResult = nil
}

// complete is called by the vendor-event handler under sc.mu: it stores
// the result and signals the scheduler. A completion for a channel other
// than the one under measurement, or arriving after the wait already
// timed out and cleared currentChannelUnderMeasurement, is dropped.
func (sc *scanContext) complete(channel *ChannelEntry, sample Sample) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.currentChannelUnderMeasurement == nil || sc.currentChannelUnderMeasurement != channel {
		return false
	}
	sc.pendingResult = &sample
	sc.done.Broadcast()
	return true
}

// wait blocks up to timeout for pendingResult to become non-empty, per
// spec.md §5 ("scheduler suspends on scan.done with a 10s timeout while
// a measurement is in flight").
func (sc *scanContext) wait(timeout time.Duration) (Sample, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		sc.mu.Lock()
		sc.done.Broadcast()
		sc.mu.Unlock()
	})
	defer timer.Stop()

	for sc.pendingResult == nil {
		if !time.Now().Before(deadline) {
			sc.currentChannelUnderMeasurement = nil
			return Sample{}, false
		}
		sc.done.Wait()
	}
	result := *sc.pendingResult
	sc.pendingResult = nil
	sc.currentChannelUnderMeasurement = nil
	return result, true
}
