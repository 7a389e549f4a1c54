package queue

import (
	"context"
	"errors"

	"decision-copilot/internal/models"
)

// ErrClosed is returned by Dequeue once the queue has been closed
var ErrClosed = errors.New("queue closed")

// Job is one delivery of a (run, task) pair. Delivery is at-least-once:
// a job that is not acked is delivered again.
type Job struct {
	ID         string          `bson:"_id"`
	RunID      string          `bson:"runId"`
	Task       models.TaskName `bson:"taskName"`
	Attempts   int             `bson:"attempts"`
	LeaseToken string          `bson:"leaseToken,omitempty"`
}

// Producer accepts jobs
type Producer interface {
	Enqueue(ctx context.Context, runID string, task models.TaskName) error
}

// Consumer hands out jobs to workers. Dequeue blocks until a job is
// available, the context is done or the queue is closed.
type Consumer interface {
	Dequeue(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Nack(ctx context.Context, job *Job) error
}

// Queue is a producer and consumer over the same jobs
type Queue interface {
	Producer
	Consumer
}
