package dcs

import "errors"

// Sentinel errors for the core's error kinds (spec.md §7). The
// scheduler and switch coordinator return these so callers can
// errors.Is-match on kind without parsing strings.
var (
	// ErrTransientBackend covers submit_blocking failure/empty-result
	// and pump_async timeout. Retried at the next natural boundary.
	ErrTransientBackend = errors.New("dcs: transient backend error")

	// ErrMeasurementFailure covers a missing or malformed vendor event.
	// Counted against the channel's 3-strike budget.
	ErrMeasurementFailure = errors.New("dcs: measurement failure")

	// ErrSwitchRejected means the AP refused CHAN_SWITCH.
	ErrSwitchRejected = errors.New("dcs: switch rejected by AP")

	// ErrSwitchTimeout means the completion notification never arrived
	// within the derived deadline.
	ErrSwitchTimeout = errors.New("dcs: switch timed out")

	// ErrSwitchMismatch means the confirmed landing frequency did not
	// match the commanded candidate.
	ErrSwitchMismatch = errors.New("dcs: switch landed on unexpected channel")

	// ErrConfiguration covers a missing required key, out-of-range
	// value, unknown algorithm, or an empty scan list after filtering.
	// Fatal at startup.
	ErrConfiguration = errors.New("dcs: configuration error")

	// ErrFatalInvariant marks an unreachable branch. The caller logs the
	// condition site and terminates the process (logx.Logger.Fatal).
	ErrFatalInvariant = errors.New("dcs: invariant violation")

	// ErrSourceExhausted is returned by a Measurer, wrapped, once it has
	// no further samples to serve (the replay path, once every recorded
	// row has been consumed). Run treats it as a clean halt rather than
	// a transient failure.
	ErrSourceExhausted = errors.New("dcs: measurement source exhausted")
)
