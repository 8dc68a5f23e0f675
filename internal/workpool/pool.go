// Package workpool runs CPU-bound units of work on a bounded set of goroutines.
//
// Every call blocks until all of its tasks finished, so consecutive calls form
// the phase and round barriers of the discovery pipeline. The first task error
// cancels the remaining tasks and is returned to the caller; partial results of
// a failed phase must be discarded.
package workpool

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Pool is a bounded worker pool. The zero value is not usable; use New.
type Pool struct {
	workers int
}

// New creates a pool with the given number of workers.
// workers <= 0 selects runtime.GOMAXPROCS(0).
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Stripe statically partitions [0, n) into one contiguous stripe per worker
// and calls fn(ctx, worker, start, end) for each non-empty stripe.
func (p *Pool) Stripe(ctx context.Context, n int, fn func(ctx context.Context, worker, start, end int) error) error {
	if n <= 0 {
		return nil
	}
	workers := min(p.workers, n)
	size := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * size
		end := min(start+size, n)
		if start >= end {
			break
		}
		g.Go(func() error {
			return guard(func() error { return fn(gctx, w, start, end) })
		})
	}
	return g.Wait()
}

// Run calls fn(ctx, i) for every i in [0, n) with at most Workers() calls in
// flight. It is meant for coarse tasks whose count is small.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return guard(func() error { return fn(gctx, i) })
		})
	}
	return g.Wait()
}

// Each drains the items through a shared queue: every worker repeatedly takes
// the next unclaimed item and stops when the queue is empty.
func Each[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) error {
	q := NewQueue(items)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < min(p.workers, len(items)); w++ {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				item, ok := q.Poll()
				if !ok {
					return nil
				}
				if err := guard(func() error { return fn(gctx, item) }); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

// Queue is a concurrent, non-blocking work queue over a fixed slice.
type Queue[T any] struct {
	items []T
	next  atomic.Int64
}

// NewQueue creates a queue over items.
func NewQueue[T any](items []T) *Queue[T] {
	return &Queue[T]{items: items}
}

// Poll claims the next item. It returns false immediately when the queue is
// drained instead of waiting.
func (q *Queue[T]) Poll() (T, bool) {
	i := q.next.Add(1) - 1
	if i >= int64(len(q.items)) {
		var zero T
		return zero, false
	}
	return q.items[i], true
}

// Remaining returns the number of unclaimed items.
func (q *Queue[T]) Remaining() int {
	n := int64(len(q.items)) - q.next.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// guard converts a panic inside a task into an error so that one failing unit
// aborts the phase through the errgroup instead of crashing a worker silently.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workpool: task panicked: %v", r)
		}
	}()
	return fn()
}
