package util

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultParallel is the number of concurrent calls a queue admits by default.
	DefaultParallel = 1
)

// WorkQueue runs calls in FIFO order with bounded parallelism and holds each
// slot for a fixed delay after the call returns.
type WorkQueue struct {
	mu       sync.RWMutex
	sem      *semaphore.Weighted
	parallel int
	delay    time.Duration
}

// NewWorkQueue creates a queue admitting parallel concurrent calls.
func NewWorkQueue(parallel int, delay time.Duration) *WorkQueue {
	if parallel < 1 {
		parallel = DefaultParallel
	}
	if delay < 0 {
		delay = 0
	}
	return &WorkQueue{
		sem:      semaphore.NewWeighted(int64(parallel)),
		parallel: parallel,
		delay:    delay,
	}
}

// Do waits for a free slot, runs fn and keeps the slot for the configured
// delay. Waiters are admitted in arrival order. The delay is cut short if ctx
// is cancelled; fn's error is returned either way.
func (q *WorkQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	q.mu.RLock()
	sem, delay := q.sem, q.delay
	q.mu.RUnlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	err := fn(ctx)

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	return err
}

// Parallel returns the current parallelism.
func (q *WorkQueue) Parallel() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.parallel
}

// Delay returns the current post-call delay.
func (q *WorkQueue) Delay() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.delay
}

// SetDelay changes the post-call delay for calls admitted from now on.
func (q *WorkQueue) SetDelay(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	q.mu.Lock()
	q.delay = delay
	q.mu.Unlock()
}

// SetParallel resizes the queue. Calls already admitted finish against the
// old limit; new callers queue on the new one.
func (q *WorkQueue) SetParallel(parallel int) {
	if parallel < 1 {
		parallel = DefaultParallel
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if parallel == q.parallel {
		return
	}
	q.sem = semaphore.NewWeighted(int64(parallel))
	q.parallel = parallel
}

// Run is Do for calls that produce a value.
func Run[T any](ctx context.Context, q *WorkQueue, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := q.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
