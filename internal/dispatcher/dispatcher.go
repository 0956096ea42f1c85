// Package dispatcher fans a closed work queue out over a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
)

// Runner is one pool member. Run must return once the shared queue is drained.
type Runner interface {
	Run(ctx context.Context)
}

// Enqueuer accepts work items.
type Enqueuer[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Close()
}

// Dispatcher owns the queue producer side and the worker pool.
type Dispatcher[T any] struct {
	queue   Enqueuer[T]
	workers []Runner
}

// New creates a Dispatcher.
func New[T any](queue Enqueuer[T], workers []Runner) *Dispatcher[T] {
	return &Dispatcher[T]{queue: queue, workers: workers}
}

// Submit enqueues every item and closes the queue so workers stop once it drains.
func (d *Dispatcher[T]) Submit(ctx context.Context, items []T) error {
	defer d.queue.Close()
	for _, item := range items {
		if err := d.queue.Enqueue(ctx, item); err != nil {
			return fmt.Errorf("queue enqueue: %w", err)
		}
	}
	return nil
}

// Run starts all workers and blocks until every one has returned.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	wg.Wait()
}
