package queue

import (
	"context"
	"sync"
)

// Barrier is a counting barrier: a pending count that can be awaited until it
// reaches zero. Unlike sync.WaitGroup, Wait honors a context and the count
// can be read at any time.
type Barrier struct {
	mu      sync.Mutex
	pending int64
	zero    chan struct{} // closed while pending == 0
}

// NewBarrier returns a Barrier with a pending count of zero.
func NewBarrier() *Barrier {
	zero := make(chan struct{})
	close(zero)
	return &Barrier{zero: zero}
}

// Add increments the pending count by n. n must not be negative.
func (b *Barrier) Add(n int64) {
	if n < 0 {
		panic("queue: negative Barrier.Add")
	}
	if n == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == 0 {
		b.zero = make(chan struct{})
	}
	b.pending += n
}

// Done decrements the pending count by one.
// It panics if the count would go negative.
func (b *Barrier) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == 0 {
		panic("queue: negative pending count")
	}
	b.pending--
	if b.pending == 0 {
		close(b.zero)
	}
}

// Pending returns the current pending count.
func (b *Barrier) Pending() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Wait blocks until the pending count reaches zero or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	zero := b.zero
	b.mu.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
