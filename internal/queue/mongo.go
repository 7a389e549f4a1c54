package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"decision-copilot/internal/models"
	"decision-copilot/internal/utils"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	jobStatusReady  = "ready"
	jobStatusLeased = "leased"
)

// MongoQueue stores jobs in a MongoDB collection and leases them to workers.
// A lease that expires before the job is acked makes the job ready again.
type MongoQueue struct {
	collection    *mongo.Collection
	leaseDuration time.Duration
	pollInterval  time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewMongoQueue creates a queue over the given collection and ensures its indexes
func NewMongoQueue(ctx context.Context, db *mongo.Database, collection string, leaseDuration, pollInterval time.Duration) (*MongoQueue, error) {
	q := &MongoQueue{
		collection:    db.Collection(collection),
		leaseDuration: leaseDuration,
		pollInterval:  pollInterval,
		cron:          cron.New(),
	}

	_, err := q.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "leaseExpiresAt", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue indexes: %w", err)
	}
	return q, nil
}

// Enqueue inserts a ready job for the given run and task
func (q *MongoQueue) Enqueue(ctx context.Context, runID string, task models.TaskName) error {
	doc := bson.M{
		"_id":       utils.GenerateUUID(),
		"runId":     runID,
		"taskName":  task,
		"status":    jobStatusReady,
		"attempts":  0,
		"createdAt": time.Now().UTC(),
	}
	if _, err := q.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to enqueue %s for run %s: %w", task, runID, err)
	}
	return nil
}

// Dequeue leases the oldest ready job, polling until one is available or ctx is done
func (q *MongoQueue) Dequeue(ctx context.Context) (*Job, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		job, err := q.lease(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *MongoQueue) lease(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":         jobStatusLeased,
			"leaseToken":     utils.GenerateUUID(),
			"leaseExpiresAt": now.Add(q.leaseDuration),
		},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var job Job
	err := q.collection.FindOneAndUpdate(ctx, bson.M{"status": jobStatusReady}, update, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}
	return &job, nil
}

// Ack deletes a job that is still held under the caller's lease
func (q *MongoQueue) Ack(ctx context.Context, job *Job) error {
	res, err := q.collection.DeleteOne(ctx, bson.M{"_id": job.ID, "leaseToken": job.LeaseToken})
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	if res.DeletedCount == 0 {
		log.Printf("WARNING: Job %s lease was lost before ack; it may be delivered again", job.ID)
	}
	return nil
}

// Nack releases the caller's lease so the job is delivered again
func (q *MongoQueue) Nack(ctx context.Context, job *Job) error {
	_, err := q.collection.UpdateOne(ctx,
		bson.M{"_id": job.ID, "leaseToken": job.LeaseToken},
		bson.M{
			"$set":   bson.M{"status": jobStatusReady},
			"$unset": bson.M{"leaseToken": "", "leaseExpiresAt": ""},
		})
	if err != nil {
		return fmt.Errorf("failed to nack job %s: %w", job.ID, err)
	}
	return nil
}

// RequeueExpired makes every job whose lease has expired ready again
func (q *MongoQueue) RequeueExpired(ctx context.Context) (int64, error) {
	res, err := q.collection.UpdateMany(ctx,
		bson.M{"status": jobStatusLeased, "leaseExpiresAt": bson.M{"$lt": time.Now().UTC()}},
		bson.M{
			"$set":   bson.M{"status": jobStatusReady},
			"$unset": bson.M{"leaseToken": "", "leaseExpiresAt": ""},
		})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue expired jobs: %w", err)
	}
	return res.ModifiedCount, nil
}

// StartSweeper schedules RequeueExpired with the given cron spec
func (q *MongoQueue) StartSweeper(schedule string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("queue sweeper is already running")
	}

	_, err := q.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := q.RequeueExpired(ctx)
		if err != nil {
			log.Printf("ERROR: Queue sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("Requeued %d job(s) with expired leases", n)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sweeper job: %w", err)
	}

	q.cron.Start()
	q.started = true
	log.Printf("Queue sweeper started (schedule: %s)", schedule)
	return nil
}

// StopSweeper stops the sweeper and waits for a running sweep to finish
func (q *MongoQueue) StopSweeper() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}
	<-q.cron.Stop().Done()
	q.started = false
	log.Println("Queue sweeper stopped")
}
