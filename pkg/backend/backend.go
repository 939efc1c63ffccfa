// Package backend defines the contract every transport (control socket,
// generic netlink, vendor-command wrapper) implements for the event engine
// and the DCS core to consume.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/morse-wifi/dcsd/pkg/item"
)

// ErrNotSupported is available for a capability a concrete backend doesn't
// implement (e.g. PumpAsync on a backend that only does blocking
// requests); none of the backends in this tree return it.
var ErrNotSupported = errors.New("backend: capability not supported")

// ErrTimeout is returned by PumpAsync when no event arrived within the
// bound passed in.
var ErrTimeout = errors.New("backend: pump timed out")

// MaxPumpTimeout bounds how long a single PumpAsync call may block, per
// spec: at most one second.
const MaxPumpTimeout = 1 * time.Second

// Backend is the capability set the core consumes. Every concrete
// backend has both SubmitBlocking and PumpAsync, since the interface
// requires both; no constructor checks which of them a backend supports.
type Backend interface {
	// SubmitBlocking sends a pre-parsed request tree and returns the
	// parsed response tree, blocking the caller's goroutine until the
	// backend replies or ctx is done.
	SubmitBlocking(ctx context.Context, request *item.Item) (*item.Item, error)

	// PumpAsync blocks up to timeout (capped at MaxPumpTimeout) waiting
	// for one unsolicited event, returning ErrTimeout if none arrives.
	PumpAsync(ctx context.Context, timeout time.Duration) (*item.Item, error)

	// Name identifies the backend for logging.
	Name() string
}

// RequestArgsParser is implemented by backends whose request schema is
// built from a caller-supplied positional argument list rather than a
// directly constructed *item.Item (the typed-builder pattern described in
// spec.md §9 supersedes the original's variadic parsing for callers that
// build trees directly; ParseRequestArgs remains for call sites that still
// want to hand over plain positional values).
type RequestArgsParser interface {
	ParseRequestArgs(args ...interface{}) (*item.Item, error)
}

// Closer is implemented by backends owning a socket or other resource
// that must be released at shutdown.
type Closer interface {
	Close() error
}
