package tui

import (
	"context"
	"sync"

	"github.com/kubilitics/kubilitics-topoview/internal/service"
)

// inputQueue carries inputs from the bubbletea loop to the session without
// ever blocking the loop. Once limit inputs are waiting, pointer and drag
// moves are dropped; gesture boundaries and commands are always kept, so
// every dragstart reaches the engine with its dragend.
type inputQueue struct {
	mu    sync.Mutex
	items []service.Input
	limit int
	ready chan struct{}
}

func newInputQueue(limit int) *inputQueue {
	return &inputQueue{limit: limit, ready: make(chan struct{}, 1)}
}

func droppable(in service.Input) bool {
	return in.Type == service.InputPointerMove || in.Type == service.InputDragMove
}

// push queues in and reports whether it was kept.
func (q *inputQueue) push(in service.Input) bool {
	q.mu.Lock()
	if droppable(in) && len(q.items) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, in)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// tryPop returns the oldest input, if any.
func (q *inputQueue) tryPop() (service.Input, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return service.Input{}, false
	}
	in := q.items[0]
	q.items[0] = service.Input{}
	q.items = q.items[1:]
	return in, true
}

// pop waits for the next input until ctx is done.
func (q *inputQueue) pop(ctx context.Context) (service.Input, bool) {
	for {
		if in, ok := q.tryPop(); ok {
			return in, true
		}
		select {
		case <-ctx.Done():
			return service.Input{}, false
		case <-q.ready:
		}
	}
}

func (q *inputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
