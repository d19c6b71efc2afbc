// Package queue defines the hand-off between audit intake and the worker
// pool. The API and CLI enqueue jobs; workers dequeue and run them. The
// abstraction keeps the service independent of the buffering mechanism.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

var (
	// ErrFull is returned by Enqueue when the buffer is at capacity.
	// Callers should surface backpressure rather than block intake.
	ErrFull = errors.New("queue full")

	// ErrClosed is returned once the queue has shut down.
	ErrClosed = errors.New("queue closed")
)

// Job is one audit admitted into the pipeline. The ID is assigned at
// intake and becomes the persisted result's ID.
type Job struct {
	ID         uuid.UUID
	Request    audit.Request
	EnqueuedAt time.Time
}

// Queue carries jobs from producers to audit workers.
type Queue interface {
	// Enqueue pushes a job. It returns ErrFull when the buffer is at
	// capacity and ErrClosed after shutdown.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue pops the next job, blocking until one is available, the
	// context ends, or the queue closes. Jobs buffered before Close
	// drain before ErrClosed is reported.
	Dequeue(ctx context.Context) (Job, error)

	// Close stops intake; pending Dequeue calls drain then fail.
	Close()
}
