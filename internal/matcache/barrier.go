package matcache

import (
	"context"
	"sync"
	"time"
)

// initBarrier is the Init Barrier: a one-shot latch created closed. The
// first refresh to complete, success or failure, opens it; once open it
// never closes again (Reset clears the snapshot but leaves the barrier
// alone).
type initBarrier struct {
	once sync.Once
	ch   chan struct{}
}

func newInitBarrier() *initBarrier {
	return &initBarrier{ch: make(chan struct{})}
}

// open releases the barrier. Safe to call more than once; only the first
// call has any effect.
func (b *initBarrier) open() {
	b.once.Do(func() { close(b.ch) })
}

// isOpen reports whether the barrier has been released, without blocking.
func (b *initBarrier) isOpen() bool {
	select {
	case <-b.ch:
		return true
	default:
		return false
	}
}

// wait blocks until the barrier opens, timeout elapses, or ctx is
// cancelled. A context cancellation is treated the same as a timeout, per
// this cache's error handling design: callers get one error kind, not two.
func (b *initBarrier) wait(ctx context.Context, timeout time.Duration) error {
	if b.isOpen() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.ch:
		return nil
	case <-timer.C:
		return ErrCacheTimeout
	case <-ctx.Done():
		return ErrCacheTimeout
	}
}
