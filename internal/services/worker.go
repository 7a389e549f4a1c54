package services

import (
	"context"
	"errors"
	"log"
	"time"

	"decision-copilot/internal/queue"

	"golang.org/x/sync/errgroup"
)

const (
	// maxJobAttempts bounds redelivery of a job whose execution keeps hitting infrastructure errors
	maxJobAttempts = 5
	dequeueBackoff = time.Second
	ackTimeout     = 10 * time.Second
)

// WorkerPool pulls jobs from the queue and executes them concurrently
type WorkerPool struct {
	consumer    queue.Consumer
	executor    *TaskExecutor
	concurrency int
}

// NewWorkerPool creates a pool of concurrency workers
func NewWorkerPool(consumer queue.Consumer, executor *TaskExecutor, concurrency int) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		consumer:    consumer,
		executor:    executor,
		concurrency: concurrency,
	}
}

// Run blocks until ctx is done or the queue is closed
func (p *WorkerPool) Run(ctx context.Context) error {
	log.Printf("Starting %d task worker(s)", p.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.concurrency; i++ {
		id := i
		g.Go(func() error {
			return p.work(ctx, id)
		})
	}
	err := g.Wait()
	log.Println("Task workers stopped")
	return err
}

func (p *WorkerPool) work(ctx context.Context, id int) error {
	for {
		job, err := p.consumer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Printf("ERROR: Worker %d failed to dequeue: %v", id, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(dequeueBackoff):
			}
			continue
		}
		p.handle(ctx, id, job)
	}
}

func (p *WorkerPool) handle(ctx context.Context, id int, job *queue.Job) {
	err := p.executor.Execute(ctx, job.RunID, job.Task)

	// Settle the job even when ctx is already canceled
	settleCtx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	if err == nil {
		if ackErr := p.consumer.Ack(settleCtx, job); ackErr != nil {
			log.Printf("ERROR: Worker %d failed to ack job %s: %v", id, job.ID, ackErr)
		}
		return
	}

	if job.Attempts >= maxJobAttempts {
		log.Printf("ERROR: Dropping job %s (%s of run %s) after %d attempts: %v", job.ID, job.Task, job.RunID, job.Attempts, err)
		if ackErr := p.consumer.Ack(settleCtx, job); ackErr != nil {
			log.Printf("ERROR: Worker %d failed to ack job %s: %v", id, job.ID, ackErr)
		}
		return
	}

	log.Printf("WARNING: Job %s (%s of run %s) attempt %d failed, requeueing: %v", job.ID, job.Task, job.RunID, job.Attempts, err)
	if nackErr := p.consumer.Nack(settleCtx, job); nackErr != nil {
		log.Printf("ERROR: Worker %d failed to nack job %s: %v", id, job.ID, nackErr)
	}
}
