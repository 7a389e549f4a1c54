//go:build integration

package database

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"decision-copilot/internal/config"
	"decision-copilot/internal/models"

	"github.com/google/uuid"
)

// Run with: MONGODB_TEST_URI=mongodb://localhost:27017 go test -tags integration ./internal/database/
func newTestMongoClient(t *testing.T) *MongoDBClient {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	c, err := NewMongoDBClient(config.MongoDBConfig{
		URI:      uri,
		Database: "decision_copilot_test_" + uuid.New().String()[:8],
	})
	if err != nil {
		t.Fatalf("NewMongoDBClient() error = %v", err)
	}
	t.Cleanup(func() {
		if err := c.Database().Drop(context.Background()); err != nil {
			t.Logf("failed to drop test database: %v", err)
		}
		c.Close()
	})
	return c
}

func newMongoDecisionAndRun(t *testing.T, c *MongoDBClient) (*models.Decision, *models.Run) {
	t.Helper()
	ctx := context.Background()

	decision := &models.Decision{Question: "Should we shard the events table?", Status: models.DecisionStatusNew}
	if err := c.CreateDecision(ctx, decision); err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	run := &models.Run{DecisionID: decision.ID, Mode: models.DefaultRunMode, Status: models.RunStatusQueued}
	if err := c.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return decision, run
}

func TestMongoDBClient_ClaimDispatchConcurrent(t *testing.T) {
	c := newTestMongoClient(t)
	_, run := newMongoDecisionAndRun(t, c)
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := c.ClaimDispatch(ctx, run, models.TaskSynth)
			if err != nil {
				t.Errorf("ClaimDispatch() error = %v", err)
				return
			}
			if claimed {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("claims won = %d, want 1", wins)
	}
	tasks, err := c.ListTasks(ctx, run.ID, nil)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 1 || !tasks[0].Dispatched || tasks[0].Status != models.TaskStatusQueued {
		t.Errorf("task records = %+v, want one dispatched queued synth", tasks)
	}

	// A released claim can be won again
	if err := c.ReleaseDispatch(ctx, run.ID, models.TaskSynth); err != nil {
		t.Fatalf("ReleaseDispatch() error = %v", err)
	}
	if claimed, err := c.ClaimDispatch(ctx, run, models.TaskSynth); err != nil || !claimed {
		t.Errorf("ClaimDispatch() after release = %v, %v, want true", claimed, err)
	}
}

func TestMongoDBClient_SetRequiredTasksOnce(t *testing.T) {
	c := newTestMongoClient(t)
	_, run := newMongoDecisionAndRun(t, c)
	ctx := context.Background()

	first := []models.TaskName{models.TaskFacts, models.TaskRisk}
	got, err := c.SetRequiredTasks(ctx, run.ID, first)
	if err != nil {
		t.Fatalf("SetRequiredTasks() error = %v", err)
	}
	if len(got) != 2 || got[0] != models.TaskFacts || got[1] != models.TaskRisk {
		t.Errorf("plan = %v, want %v", got, first)
	}

	got, err = c.SetRequiredTasks(ctx, run.ID, []models.TaskName{models.TaskPro})
	if err != nil {
		t.Fatalf("SetRequiredTasks() second call error = %v", err)
	}
	if len(got) != 2 || got[0] != models.TaskFacts {
		t.Errorf("plan after second call = %v, want the first plan kept", got)
	}
}

func TestMongoDBClient_TerminalTransitions(t *testing.T) {
	c := newTestMongoClient(t)
	decision, run := newMongoDecisionAndRun(t, c)
	ctx := context.Background()

	if started, err := c.MarkRunStarted(ctx, run.ID, decision.ID); err != nil || !started {
		t.Fatalf("MarkRunStarted() = %v, %v", started, err)
	}
	report := json.RawMessage(`{"recommendation":"yes"}`)
	if done, err := c.FinalizeRun(ctx, run.ID, decision.ID, report); err != nil || !done {
		t.Fatalf("FinalizeRun() = %v, %v", done, err)
	}

	// The first outcome wins
	if failed, err := c.FailRun(ctx, run.ID, decision.ID, "late failure"); err != nil || failed {
		t.Errorf("FailRun() after finalize = %v, %v, want false", failed, err)
	}
	got, _ := c.GetDecision(ctx, decision.ID)
	if got.Status != models.DecisionStatusDone || string(got.FinalReport) != string(report) {
		t.Errorf("decision = %s %s, want done with the report", got.Status, got.FinalReport)
	}

	// A failed re-run marks the decision failed and drops the old report
	rerun := &models.Run{DecisionID: decision.ID, Mode: models.DefaultRunMode, Status: models.RunStatusQueued}
	if err := c.CreateRun(ctx, rerun); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := c.SetDecisionStatus(ctx, decision.ID, models.DecisionStatusRunning); err != nil {
		t.Fatalf("SetDecisionStatus() error = %v", err)
	}
	if failed, err := c.FailRun(ctx, rerun.ID, decision.ID, "Required task failed: con"); err != nil || !failed {
		t.Fatalf("FailRun() = %v, %v", failed, err)
	}
	got, _ = c.GetDecision(ctx, decision.ID)
	if got.Status != models.DecisionStatusFailed || got.FinalReport != nil {
		t.Errorf("decision = %s with report %s, want failed without a report", got.Status, got.FinalReport)
	}
	if got.ErrorMessage != "Required task failed: con" {
		t.Errorf("decision error = %q", got.ErrorMessage)
	}
}
