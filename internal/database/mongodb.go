package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"decision-copilot/internal/config"
	"decision-copilot/internal/models"
	"decision-copilot/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	decisionsCollection   = "decisions"
	runsCollection        = "runs"
	taskRecordsCollection = "task_records"
)

// MongoDBClient wraps the MongoDB client and implements the state store
type MongoDBClient struct {
	client          *mongo.Client
	database        *mongo.Database
	decisions       *mongo.Collection
	runs            *mongo.Collection
	tasks           *mongo.Collection
	useTransactions bool
}

// NewMongoDBClient connects to MongoDB and makes sure the indexes exist
func NewMongoDBClient(cfg config.MongoDBConfig) (*MongoDBClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	uri, logURI := buildURI(cfg)
	log.Printf("Attempting to connect to MongoDB at %s", logURI)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", logURI, err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB at %s: %w", logURI, err)
	}

	database := client.Database(cfg.Database)
	c := &MongoDBClient{
		client:          client,
		database:        database,
		decisions:       database.Collection(decisionsCollection),
		runs:            database.Collection(runsCollection),
		tasks:           database.Collection(taskRecordsCollection),
		useTransactions: cfg.UseTransactions,
	}
	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// buildURI returns the connection URI and a variant safe for logging
func buildURI(cfg config.MongoDBConfig) (string, string) {
	if cfg.URI != "" {
		return cfg.URI, "(configured URI)"
	}
	if cfg.Username != "" && cfg.Password != "" {
		// Use url.UserPassword to properly encode username and password
		userInfo := url.UserPassword(cfg.Username, cfg.Password)
		uri := fmt.Sprintf("mongodb://%s@%s:%s/%s?authSource=%s",
			userInfo.String(), cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(cfg.AuthSource))
		logURI := fmt.Sprintf("mongodb://%s:***@%s:%s/%s?authSource=%s",
			url.User(cfg.Username).String(), cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(cfg.AuthSource))
		return uri, logURI
	}
	uri := fmt.Sprintf("mongodb://%s:%s/%s", cfg.Host, cfg.Port, cfg.Database)
	return uri, uri
}

func (c *MongoDBClient) ensureIndexes(ctx context.Context) error {
	// One record per (run, task); the dispatch claim relies on this index
	_, err := c.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "runId", Value: 1}, {Key: "taskName", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "runId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "decisionId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create task record indexes: %w", err)
	}

	_, err = c.runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "decisionId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		// Index might already exist with other options, that's okay
		log.Printf("Note: MongoDB runs index creation: %v", err)
	}

	_, err = c.decisions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		log.Printf("Note: MongoDB decisions index creation: %v", err)
	}
	return nil
}

// Database exposes the underlying database, used by the MongoDB work queue
func (c *MongoDBClient) Database() *mongo.Database {
	return c.database
}

// Close closes the MongoDB client connection
func (c *MongoDBClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// withTransaction runs fn inside a multi-document transaction when enabled.
// Without transactions the run document update, written last inside fn, is the linearization point.
func (c *MongoDBClient) withTransaction(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	if !c.useTransactions {
		return fn(ctx)
	}

	session, err := c.client.StartSession()
	if err != nil {
		return false, fmt.Errorf("failed to start MongoDB session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return fn(sc)
	})
	if err != nil {
		return false, err
	}
	applied, _ := result.(bool)
	return applied, nil
}

var activeRunStatuses = bson.M{"$in": []models.RunStatus{models.RunStatusQueued, models.RunStatusRunning}}

// CreateDecision stores a new decision, assigning an ID if missing
func (c *MongoDBClient) CreateDecision(ctx context.Context, decision *models.Decision) error {
	if decision.ID == "" {
		decision.ID = utils.GenerateUUID()
	}
	now := time.Now().UTC()
	decision.CreatedAt = now
	decision.UpdatedAt = now

	if _, err := c.decisions.InsertOne(ctx, decision); err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}
	return nil
}

// GetDecision retrieves a decision by ID
func (c *MongoDBClient) GetDecision(ctx context.Context, id string) (*models.Decision, error) {
	var decision models.Decision
	if err := c.decisions.FindOne(ctx, bson.M{"_id": id}).Decode(&decision); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query decision: %w", err)
	}
	return &decision, nil
}

// ListDecisions returns the newest decisions first, optionally filtered by status
func (c *MongoDBClient) ListDecisions(ctx context.Context, status models.DecisionStatus, limit int) ([]models.Decision, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := c.decisions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer cursor.Close(ctx)

	var decisions []models.Decision
	if err := cursor.All(ctx, &decisions); err != nil {
		return nil, fmt.Errorf("failed to decode decisions: %w", err)
	}
	return decisions, nil
}

// SetDecisionStatus updates the status of a decision
func (c *MongoDBClient) SetDecisionStatus(ctx context.Context, id string, status models.DecisionStatus) error {
	res, err := c.decisions.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update decision status: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteDecision removes a decision together with its runs and task records
func (c *MongoDBClient) DeleteDecision(ctx context.Context, id string) error {
	if _, err := c.GetDecision(ctx, id); err != nil {
		return err
	}
	if _, err := c.tasks.DeleteMany(ctx, bson.M{"decisionId": id}); err != nil {
		return fmt.Errorf("failed to delete task records: %w", err)
	}
	if _, err := c.runs.DeleteMany(ctx, bson.M{"decisionId": id}); err != nil {
		return fmt.Errorf("failed to delete runs: %w", err)
	}
	if _, err := c.decisions.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete decision: %w", err)
	}
	return nil
}

// CreateRun stores a new run, assigning an ID if missing
func (c *MongoDBClient) CreateRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = utils.GenerateUUID()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	if _, err := c.runs.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (c *MongoDBClient) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	if err := c.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&run); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// GetLatestRun returns the most recently created run of a decision
func (c *MongoDBClient) GetLatestRun(ctx context.Context, decisionID string) (*models.Run, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	var run models.Run
	if err := c.runs.FindOne(ctx, bson.M{"decisionId": decisionID}, opts).Decode(&run); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("run for decision %s: %w", decisionID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return &run, nil
}

// MarkRunStarted moves a non-terminal run and its decision to running
func (c *MongoDBClient) MarkRunStarted(ctx context.Context, runID, decisionID string) (bool, error) {
	return c.withTransaction(ctx, func(ctx context.Context) (bool, error) {
		now := time.Now().UTC()
		res, err := c.runs.UpdateOne(ctx,
			bson.M{"_id": runID, "status": activeRunStatuses},
			bson.M{"$set": bson.M{"status": models.RunStatusRunning, "updatedAt": now}})
		if err != nil {
			return false, fmt.Errorf("failed to start run: %w", err)
		}
		if res.MatchedCount == 0 {
			return false, nil
		}
		if _, err := c.decisions.UpdateOne(ctx, bson.M{"_id": decisionID},
			bson.M{"$set": bson.M{"status": models.DecisionStatusRunning, "updatedAt": now}}); err != nil {
			return false, fmt.Errorf("failed to start decision: %w", err)
		}
		return true, nil
	})
}

// SetRequiredTasks stores the run's plan if none is stored yet and returns the plan in effect
func (c *MongoDBClient) SetRequiredTasks(ctx context.Context, runID string, tasks []models.TaskName) ([]models.TaskName, error) {
	_, err := c.runs.UpdateOne(ctx,
		bson.M{"_id": runID, "requiredTasks": nil},
		bson.M{"$set": bson.M{"requiredTasks": tasks, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return nil, fmt.Errorf("failed to set required tasks: %w", err)
	}

	run, err := c.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.RequiredTasks, nil
}

// FailRun marks a non-terminal run and its decision as failed.
// The decision is written before the run: the run update is the linearization
// point, so a call that failed halfway leaves the run active and a retry
// applies both writes again.
func (c *MongoDBClient) FailRun(ctx context.Context, runID, decisionID, reason string) (bool, error) {
	return c.withTransaction(ctx, func(ctx context.Context) (bool, error) {
		active, err := c.runIsActive(ctx, runID)
		if err != nil || !active {
			return false, err
		}

		now := time.Now().UTC()
		// A decision another run already finalized keeps its report
		if _, err := c.decisions.UpdateOne(ctx,
			bson.M{"_id": decisionID, "status": bson.M{"$ne": models.DecisionStatusDone}},
			bson.M{
				"$set": bson.M{
					"status":       models.DecisionStatusFailed,
					"errorMessage": reason,
					"updatedAt":    now,
				},
				"$unset": bson.M{"finalReport": ""},
			}); err != nil {
			return false, fmt.Errorf("failed to fail decision: %w", err)
		}

		res, err := c.runs.UpdateOne(ctx,
			bson.M{"_id": runID, "status": activeRunStatuses},
			bson.M{"$set": bson.M{"status": models.RunStatusFailed, "errorMessage": reason, "updatedAt": now}})
		if err != nil {
			return false, fmt.Errorf("failed to fail run: %w", err)
		}
		return res.MatchedCount > 0, nil
	})
}

// FinalizeRun copies the report onto the decision and marks both done.
// Only the first call for a non-terminal run has an effect. Write order is the
// same as in FailRun.
func (c *MongoDBClient) FinalizeRun(ctx context.Context, runID, decisionID string, report json.RawMessage) (bool, error) {
	return c.withTransaction(ctx, func(ctx context.Context) (bool, error) {
		active, err := c.runIsActive(ctx, runID)
		if err != nil || !active {
			return false, err
		}

		now := time.Now().UTC()
		if _, err := c.decisions.UpdateOne(ctx, bson.M{"_id": decisionID},
			bson.M{
				"$set": bson.M{
					"status":      models.DecisionStatusDone,
					"finalReport": report,
					"updatedAt":   now,
				},
				"$unset": bson.M{"errorMessage": ""},
			}); err != nil {
			return false, fmt.Errorf("failed to finalize decision: %w", err)
		}

		res, err := c.runs.UpdateOne(ctx,
			bson.M{"_id": runID, "status": activeRunStatuses},
			bson.M{"$set": bson.M{"status": models.RunStatusDone, "updatedAt": now}})
		if err != nil {
			return false, fmt.Errorf("failed to finalize run: %w", err)
		}
		return res.MatchedCount > 0, nil
	})
}

// runIsActive keeps late events of a finished run from touching the decision
func (c *MongoDBClient) runIsActive(ctx context.Context, runID string) (bool, error) {
	n, err := c.runs.CountDocuments(ctx, bson.M{"_id": runID, "status": activeRunStatuses})
	if err != nil {
		return false, fmt.Errorf("failed to query run: %w", err)
	}
	return n > 0, nil
}

// ClaimDispatch creates the task record as queued if absent and marks it dispatched.
// The upsert only matches a queued, undispatched record; any other existing record
// makes the insert collide with the unique (runId, taskName) index, so exactly one
// concurrent caller gets true.
func (c *MongoDBClient) ClaimDispatch(ctx context.Context, run *models.Run, name models.TaskName) (bool, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"runId":      run.ID,
		"taskName":   name,
		"status":     models.TaskStatusQueued,
		"dispatched": false,
	}
	update := bson.M{
		"$set": bson.M{"dispatched": true, "updatedAt": now},
		"$setOnInsert": bson.M{
			"_id":        utils.GenerateUUID(),
			"decisionId": run.DecisionID,
			"createdAt":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	err := c.tasks.FindOneAndUpdate(ctx, filter, update, opts).Err()
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim dispatch of %s: %w", name, err)
	}
	return true, nil
}

// ReleaseDispatch undoes a claim whose enqueue failed
func (c *MongoDBClient) ReleaseDispatch(ctx context.Context, runID string, name models.TaskName) error {
	_, err := c.tasks.UpdateOne(ctx,
		bson.M{"runId": runID, "taskName": name, "status": models.TaskStatusQueued},
		bson.M{"$set": bson.M{"dispatched": false, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to release dispatch of %s: %w", name, err)
	}
	return nil
}

// GetTask retrieves the record of one task within a run
func (c *MongoDBClient) GetTask(ctx context.Context, runID string, name models.TaskName) (*models.TaskRecord, error) {
	var task models.TaskRecord
	if err := c.tasks.FindOne(ctx, bson.M{"runId": runID, "taskName": name}).Decode(&task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task %s/%s: %w", runID, name, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query task record: %w", err)
	}
	return &task, nil
}

// ListTasks returns the run's task records in creation order.
// A nil names slice returns every task of the run.
func (c *MongoDBClient) ListTasks(ctx context.Context, runID string, names []models.TaskName) ([]models.TaskRecord, error) {
	filter := bson.M{"runId": runID}
	if names != nil {
		filter["taskName"] = bson.M{"$in": names}
	}
	return c.findTasks(ctx, filter)
}

// FailedTasks returns which of the named tasks of the run are failed
func (c *MongoDBClient) FailedTasks(ctx context.Context, runID string, names []models.TaskName) ([]models.TaskName, error) {
	tasks, err := c.findTasks(ctx, bson.M{
		"runId":    runID,
		"taskName": bson.M{"$in": names},
		"status":   models.TaskStatusFailed,
	})
	if err != nil {
		return nil, err
	}
	failed := make([]models.TaskName, 0, len(tasks))
	for _, task := range tasks {
		failed = append(failed, task.TaskName)
	}
	return failed, nil
}

func (c *MongoDBClient) findTasks(ctx context.Context, filter bson.M) ([]models.TaskRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := c.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query task records: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.TaskRecord
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task records: %w", err)
	}
	return tasks, nil
}

// MarkTaskRunning moves a task record to running
func (c *MongoDBClient) MarkTaskRunning(ctx context.Context, taskID string) error {
	return c.updateTask(ctx, taskID, bson.M{
		"$set":   bson.M{"status": models.TaskStatusRunning},
		"$unset": bson.M{"errorMessage": ""},
	})
}

// CompleteTask stores the output of a task and marks it done
func (c *MongoDBClient) CompleteTask(ctx context.Context, taskID string, output json.RawMessage, model string, latencyMs int64) error {
	return c.updateTask(ctx, taskID, bson.M{
		"$set": bson.M{
			"status":    models.TaskStatusDone,
			"output":    output,
			"model":     model,
			"latencyMs": latencyMs,
		},
		"$unset": bson.M{"errorMessage": ""},
	})
}

// FailTask records the error of a task and marks it failed
func (c *MongoDBClient) FailTask(ctx context.Context, taskID string, message string, latencyMs int64) error {
	return c.updateTask(ctx, taskID, bson.M{
		"$set": bson.M{
			"status":       models.TaskStatusFailed,
			"errorMessage": message,
			"latencyMs":    latencyMs,
		},
	})
}

func (c *MongoDBClient) updateTask(ctx context.Context, taskID string, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	set["updatedAt"] = time.Now().UTC()

	res, err := c.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, update)
	if err != nil {
		return fmt.Errorf("failed to update task record: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	return nil
}
