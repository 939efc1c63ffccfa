package engine

import (
	"context"
	"sync"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// Matcher reports whether a raw async event is the one a monitor is
// waiting for. Multiple monitors on the same backend may match the same
// event; each matching monitor's callback is invoked.
type Matcher func(evt *item.Item) bool

type asyncMonitor struct {
	match    Matcher
	callback DataCallback
	context  interface{}
}

type dispatcher struct {
	be       backend.Backend
	logger   *logx.Logger
	mu       sync.Mutex
	monitors []*asyncMonitor
	cancel   context.CancelFunc
	done     chan struct{}
}

// Dispatcher owns one goroutine per backend that has at least one
// registered async monitor, each pumping that backend's PumpAsync in a
// bounded loop (spec §4.F: PumpAsync never blocks past MaxPumpTimeout, so
// the dispatcher loop can always observe cancellation promptly).
type Dispatcher struct {
	logger *logx.Logger

	mu          sync.Mutex
	dispatchers map[backend.Backend]*dispatcher
	ctx         context.Context
	started     bool
}

// NewDispatcher creates an idle dispatcher; call Start before Register to
// have lazily-created per-backend goroutines begin pumping immediately,
// or Register first and Start later — either order works.
func NewDispatcher(logger *logx.Logger) *Dispatcher {
	return &Dispatcher{
		logger:      logger.WithComponent("engine.dispatch"),
		dispatchers: make(map[backend.Backend]*dispatcher),
	}
}

// Start records the parent context used by dispatcher goroutines created
// from here on, including ones created lazily by later Register calls.
func (d *Dispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = parent
	d.started = true
	for _, disp := range d.dispatchers {
		if disp.cancel == nil {
			d.runLocked(disp)
		}
	}
}

// Stop cancels every per-backend dispatcher goroutine and waits for them
// to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	dispatchers := make([]*dispatcher, 0, len(d.dispatchers))
	for _, disp := range d.dispatchers {
		dispatchers = append(dispatchers, disp)
	}
	d.started = false
	d.mu.Unlock()

	for _, disp := range dispatchers {
		disp.mu.Lock()
		cancel := disp.cancel
		done := disp.done
		disp.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
	}
}

// Register adds a pattern monitor on be. If this is the first monitor
// registered for be, its dispatcher goroutine is created (and started
// immediately if Start has already been called).
func (d *Dispatcher) Register(be backend.Backend, match Matcher, callback DataCallback, ctx interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	disp, ok := d.dispatchers[be]
	if !ok {
		disp = &dispatcher{be: be, logger: d.logger}
		d.dispatchers[be] = disp
		if d.started {
			d.runLocked(disp)
		}
	}

	disp.mu.Lock()
	disp.monitors = append(disp.monitors, &asyncMonitor{match: match, callback: callback, context: ctx})
	disp.mu.Unlock()
}

func (d *Dispatcher) runLocked(disp *dispatcher) {
	ctx, cancel := context.WithCancel(d.ctx)
	disp.cancel = cancel
	disp.done = make(chan struct{})
	go disp.run(ctx)
}

func (disp *dispatcher) run(ctx context.Context) {
	defer close(disp.done)
	for {
		if ctx.Err() != nil {
			return
		}
		evt, err := disp.be.PumpAsync(ctx, backend.MaxPumpTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == backend.ErrTimeout {
				continue
			}
			disp.logger.Debug("async pump failed", "backend", disp.be.Name(), "error", err)
			continue
		}
		if evt == nil {
			continue
		}
		disp.dispatch(evt)
	}
}

func (disp *dispatcher) dispatch(evt *item.Item) {
	disp.mu.Lock()
	monitors := make([]*asyncMonitor, len(disp.monitors))
	copy(monitors, disp.monitors)
	disp.mu.Unlock()

	for _, m := range monitors {
		if m.match(evt) {
			m.callback(m.context, disp.be, evt)
		}
	}
}
