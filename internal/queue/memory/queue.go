// Package memory provides the in-process job queue used by the server
// and by local development runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/leadfoundry/siteauditor/internal/queue"
)

// Queue is a bounded in-memory job queue with context-aware operations.
type Queue struct {
	ch      chan queue.Job
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue holding at most capacity pending jobs.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan queue.Job, capacity),
	}
}

// Enqueue admits a job without blocking. A full buffer reports
// queue.ErrFull so intake can shed load instead of stalling.
func (q *Queue) Enqueue(ctx context.Context, job queue.Job) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return queue.ErrFull
	}
}

// Dequeue pops the next job, respecting context cancellation. Buffered
// jobs drain before the closed state is reported.
func (q *Queue) Dequeue(ctx context.Context) (queue.Job, error) {
	select {
	case <-ctx.Done():
		return queue.Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return queue.Job{}, queue.ErrClosed
		}
		return job, nil
	}
}

// Close closes the underlying channel for shutdown. Safe to call twice.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
