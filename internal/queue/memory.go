package queue

import (
	"context"
	"sync"

	"decision-copilot/internal/models"
	"decision-copilot/internal/utils"
)

// MemoryQueue is an in-process FIFO queue. Nacked jobs go to the back of the line.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   []*Job
	notify chan struct{}
	closed bool
}

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

// Enqueue appends a job for the given run and task
func (q *MemoryQueue) Enqueue(ctx context.Context, runID string, task models.TaskName) error {
	return q.push(&Job{ID: utils.GenerateUUID(), RunID: runID, Task: task})
}

func (q *MemoryQueue) push(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.jobs = append(q.jobs, job)
	q.signal()
	return nil
}

// signal must be called with the lock held
func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest job, waiting until one is available
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs[0] = nil
			q.jobs = q.jobs[1:]
			job.Attempts++
			// Wake another waiter if more work is left
			if len(q.jobs) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Ack is a no-op: a dequeued job is no longer held by the queue
func (q *MemoryQueue) Ack(ctx context.Context, job *Job) error {
	return nil
}

// Nack puts the job back for redelivery
func (q *MemoryQueue) Nack(ctx context.Context, job *Job) error {
	return q.push(job)
}

// Len returns the number of waiting jobs
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close wakes all waiters; subsequent Enqueue and Dequeue calls return ErrClosed
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
