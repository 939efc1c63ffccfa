package engine

import (
	"context"
	"time"

	"github.com/morse-wifi/dcsd/pkg/backend"
	"github.com/morse-wifi/dcsd/pkg/item"
	"github.com/morse-wifi/dcsd/pkg/logx"
)

// Engine is the generic event engine (spec component F): a polling
// worker and an async dispatcher, started and stopped together. Callers
// register monitors on either half before or after Start.
type Engine struct {
	Poll   *Poller
	Events *Dispatcher
}

// New creates an idle engine.
func New(logger *logx.Logger) *Engine {
	return &Engine{
		Poll:   NewPoller(logger),
		Events: NewDispatcher(logger),
	}
}

// Start begins both workers against a shared lifetime context.
func (e *Engine) Start(ctx context.Context) {
	e.Poll.Start(ctx)
	e.Events.Start(ctx)
}

// Stop halts both workers and waits for their goroutines to exit.
func (e *Engine) Stop() {
	e.Poll.Stop()
	e.Events.Stop()
}

// RegisterPoll is a convenience forward to Poll.Register.
func (e *Engine) RegisterPoll(be backend.Backend, period time.Duration, command func() *item.Item, callback DataCallback, ctx interface{}) {
	e.Poll.Register(be, period, command, callback, ctx)
}

// RegisterEvent is a convenience forward to Events.Register.
func (e *Engine) RegisterEvent(be backend.Backend, match Matcher, callback DataCallback, ctx interface{}) {
	e.Events.Register(be, match, callback, ctx)
}
