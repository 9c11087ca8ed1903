package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when enqueueing into a closed queue.
var ErrClosed = errors.New("queue closed")

// compactThreshold is the number of consumed slots after which the buffer
// is compacted.
const compactThreshold = 1024

// Queue is a FIFO work queue with a pending count.
//
// Every Enqueue increments the pending count and every dequeued item must be
// acknowledged with exactly one Done, whatever the outcome of processing.
// Wait blocks until all enqueued items have been acknowledged.
//
// Close stops accepting new items. Consumers keep receiving what is already
// buffered; once the buffer is empty Dequeue reports ok == false to all of them.
type Queue[T any] struct {
	barrier  *Barrier
	capacity int

	mu      sync.Mutex
	items   []T
	head    int
	closed  bool
	changed chan struct{} // closed and replaced on every state change
}

// New creates a queue. A positive capacity bounds the number of buffered
// items, making Enqueue block while the queue is full. A capacity <= 0 makes
// the queue unbounded, so Enqueue never blocks.
func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		barrier:  NewBarrier(),
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// Enqueue adds v to the queue, blocking while a bounded queue is full.
// The pending count is incremented before v becomes visible to consumers.
func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.capacity <= 0 || q.lenLocked() < q.capacity {
			break
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
		q.mu.Lock()
	}

	q.barrier.Add(1)
	q.items = append(q.items, v)
	q.broadcastLocked()
	q.mu.Unlock()
	return nil
}

// Dequeue blocks until an item is available. It returns ok == false once the
// queue is closed and fully drained.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.lenLocked() == 0 {
		if q.closed {
			return v, false
		}
		changed := q.changed
		q.mu.Unlock()
		<-changed
		q.mu.Lock()
	}

	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.broadcastLocked()
	return v, true
}

// Done acknowledges one dequeued item.
func (q *Queue[T]) Done() {
	q.barrier.Done()
}

// Close stops the queue from accepting new items and wakes blocked consumers
// once the remaining items are drained. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Pending returns the number of enqueued items not yet acknowledged.
func (q *Queue[T]) Pending() int64 {
	return q.barrier.Pending()
}

// Len returns the number of buffered items waiting for a consumer.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Wait blocks until every enqueued item has been acknowledged or ctx is done.
func (q *Queue[T]) Wait(ctx context.Context) error {
	return q.barrier.Wait(ctx)
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
