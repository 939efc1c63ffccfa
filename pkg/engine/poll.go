// Package engine implements the generic event engine (spec component F):
// a polling-request scheduler and a pattern-matching notification
// dispatcher, both driving abstract backend.Backend transports.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// DataCallback receives the result of one poll tick or one matched async
// event.
type DataCallback func(ctx interface{}, be backend.Backend, result *item.Item)

type pollEntry struct {
	backend  backend.Backend
	period   time.Duration
	command  func() *item.Item
	callback DataCallback
	context  interface{}
	nextFire time.Time
}

// Poller runs a single-threaded cooperative scheduler over registered
// polling monitors: it finds the entry due soonest, fires its blocking
// request when due, and otherwise sleeps until the next deadline or a new
// registration.
type Poller struct {
	logger *logx.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	entries []*pollEntry
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates an idle poller; call Start to begin running it.
func NewPoller(logger *logx.Logger) *Poller {
	p := &Poller{logger: logger.WithComponent("engine.poll")}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Register adds a new polling monitor: command is invoked fresh on every
// fire (it typically builds a request tree via a backend's typed
// builder), and callback receives each response. Registration wakes the
// poller immediately so a monitor due sooner than any existing one is
// picked up without waiting for the next timeout.
func (p *Poller) Register(be backend.Backend, period time.Duration, command func() *item.Item, callback DataCallback, ctx interface{}) {
	p.mu.Lock()
	p.entries = append(p.entries, &pollEntry{
		backend:  be,
		period:   period,
		command:  command,
		callback: callback,
		context:  ctx,
		nextFire: time.Now(),
	})
	p.cond.Signal()
	p.mu.Unlock()
}

// Start begins the poll loop on its own goroutine. Stop cancels it.
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop signals the poll loop to exit and waits for it to do so.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	p.cond.Broadcast() // unstick a goroutine parked in Wait
	<-done
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	// A watcher goroutine turns ctx.Done() into a cond broadcast so the
	// main loop's Wait() below doesn't block forever past cancellation.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	for {
		p.mu.Lock()
		if ctx.Err() != nil {
			p.mu.Unlock()
			return
		}

		entry, wait := p.dueLocked()
		if entry == nil {
			if wait <= 0 {
				p.cond.Wait()
				p.mu.Unlock()
				continue
			}
			p.waitWithTimeoutLocked(wait)
			p.mu.Unlock()
			continue
		}
		entry.nextFire = entry.nextFire.Add(entry.period)
		p.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		req := entry.command()
		result, err := entry.backend.SubmitBlocking(ctx, req)
		if err != nil {
			p.logger.Debug("poll request failed", "backend", entry.backend.Name(), "error", err)
			continue
		}
		entry.callback(entry.context, entry.backend, result)
	}
}

// dueLocked finds the entry whose nextFire is earliest; if it is already
// due, returns it. Otherwise returns nil and how long until it is due.
func (p *Poller) dueLocked() (*pollEntry, time.Duration) {
	if len(p.entries) == 0 {
		return nil, 0
	}
	var earliest *pollEntry
	for _, e := range p.entries {
		if earliest == nil || e.nextFire.Before(earliest.nextFire) {
			earliest = e
		}
	}
	now := time.Now()
	if !earliest.nextFire.After(now) {
		return earliest, 0
	}
	return nil, earliest.nextFire.Sub(now)
}

// waitWithTimeoutLocked parks on the condition variable for at most d,
// using a timer-driven broadcast since sync.Cond has no native timeout.
func (p *Poller) waitWithTimeoutLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.cond.Wait()
	timer.Stop()
}
