package queue

import (
	"context"
	"sync"
)

// MemoryQueue is a bounded in-process queue backed by a buffered channel.
type MemoryQueue struct {
	jobs      chan Job
	workers   int
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding up to buffer pending jobs.
func NewMemoryQueue(buffer, workers int) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &MemoryQueue{
		jobs:    make(chan Job, buffer),
		workers: workers,
		closed:  make(chan struct{}),
	}
}

// Enqueue never blocks: a full buffer yields ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume starts the workers.
func (q *MemoryQueue) Consume(ctx context.Context, handle Handler) error {
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.closed:
					return
				case job := <-q.jobs:
					handle(handlerCtx, job)
				}
			}
		}()
	}

	wg.Wait()
	return nil
}

// Len reports pending jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs and releases the workers.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
