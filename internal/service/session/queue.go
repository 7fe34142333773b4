package session

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by queue and session operations once the session is closed.
var ErrClosed = errors.New("session closed")

// Queue is an unbounded FIFO with a blocking receive and an explicit closed state.
// Push never blocks. Close discards anything still buffered and wakes every
// pending receiver, which then observes ErrClosed.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	// ready is closed and replaced whenever an item arrives or the queue closes.
	ready chan struct{}
}

// NewQueue creates an empty open queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{})}
}

// Push appends v. It returns false if the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.wake()
	return true
}

// Pop removes the oldest item, waiting until one is available, the queue is
// closed (ErrClosed) or ctx is done (ctx.Err()).
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ready:
		}
	}
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close discards buffered items and terminates all receivers. Idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.wake()
}

// wake must be called with mu held.
func (q *Queue[T]) wake() {
	close(q.ready)
	q.ready = make(chan struct{})
}
