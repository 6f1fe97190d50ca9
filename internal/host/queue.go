package host

import (
	"sync"

	"github.com/roach88/rehook/internal/ir"
)

// delivery is an event addressed to one instance.
type delivery struct {
	instance string
	event    ir.Event
}

// eventQueue is a thread-safe FIFO of deliveries produced off the request
// path: timer ticks and loader completions.
//
// The queue is unbounded so producers never block. A buffered signal channel
// lets the run loop wait with select alongside ctx.Done().
type eventQueue struct {
	mu     sync.Mutex
	items  []delivery
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		items:  make([]delivery, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds d to the back of the queue. Returns false if closed.
func (q *eventQueue) Enqueue(d delivery) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, d)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// DrainAll removes and returns everything queued, in order.
func (q *eventQueue) DrainAll() []delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]delivery, 0, 64)
	return out
}

// Wait returns a channel that signals when deliveries may be available.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further deliveries and wakes waiters.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
