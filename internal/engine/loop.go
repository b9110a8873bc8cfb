package engine

import (
	"context"
	"sync"
	"time"
)

const eventBuffer = 64

type loop struct {
	events chan func(*GraphEngine)
	done   chan struct{}
	once   sync.Once
}

func newLoop() *loop {
	return &loop{
		events: make(chan func(*GraphEngine), eventBuffer),
		done:   make(chan struct{}),
	}
}

func (l *loop) stop() {
	l.once.Do(func() { close(l.done) })
}

// Run owns the engine until ctx is cancelled or the engine is destroyed. It
// steps the simulation every TickInterval and applies dispatched events in
// between ticks. Init is called if needed.
func (e *GraphEngine) Run(ctx context.Context) error {
	if err := e.Init(); err != nil {
		return err
	}
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()
	e.log.Debug("engine loop started", "tick", e.opts.TickInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.loop.done:
			return ErrDestroyed
		case fn := <-e.loop.events:
			fn(e)
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Dispatch queues fn to run on the loop goroutine. It blocks while the queue
// is full.
func (e *GraphEngine) Dispatch(ctx context.Context, fn func(*GraphEngine)) error {
	select {
	case <-e.loop.done:
		return ErrDestroyed
	default:
	}
	select {
	case e.loop.events <- fn:
		return nil
	case <-e.loop.done:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine and waits for its result.
func (e *GraphEngine) Do(ctx context.Context, fn func(*GraphEngine) error) error {
	result := make(chan error, 1)
	if err := e.Dispatch(ctx, func(g *GraphEngine) { result <- fn(g) }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-e.loop.done:
		return ErrDestroyed
	case <-ctx.Done():
		return ctx.Err()
	}
}
