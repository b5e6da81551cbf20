package task

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryQueue is a bounded in-process queue for single-node and test
// deployments. Delivery is effectively at-most-once across restarts;
// Ack is a no-op because nothing survives the process anyway.
type MemoryQueue struct {
	logger *slog.Logger
	ch     chan Task

	mu     sync.Mutex
	closed bool
}

type MemoryOption func(*MemoryQueue)

func WithQueueSize(n int) MemoryOption {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}

func NewMemoryQueue(logger *slog.Logger, opts ...MemoryOption) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &MemoryQueue{
		logger: logger,
		ch:     make(chan Task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", t.JobID, "stage", t.Stage)
		return nil
	}
	q.mu.Unlock()

	select {
	case q.ch <- t:
		q.logger.Debug("task queued", "job_id", t.JobID, "stage", t.Stage, "attempt", t.Attempt)
		return nil
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", t.JobID, "stage", t.Stage)
		select {
		case q.ch <- t:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case t, ok := <-q.ch:
		if !ok {
			return Task{}, context.Canceled
		}
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, Task) error { return nil }

func (q *MemoryQueue) Shutdown(context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
