package database

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"decision-copilot/internal/models"
)

func newDecisionAndRun(t *testing.T, s *MemoryStore) (*models.Decision, *models.Run) {
	t.Helper()
	ctx := context.Background()

	decision := &models.Decision{Question: "Should we migrate?", Status: models.DecisionStatusNew}
	if err := s.CreateDecision(ctx, decision); err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	run := &models.Run{DecisionID: decision.ID, Mode: models.DefaultRunMode, Status: models.RunStatusQueued}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	return decision, run
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetDecision(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetDecision() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTask(ctx, "nope", models.TaskPlanner); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetTask() error = %v, want ErrNotFound", err)
	}
	if err := s.CreateRun(ctx, &models.Run{DecisionID: "nope"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("CreateRun() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ClaimDispatchOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, run := newDecisionAndRun(t, s)

	claimed, err := s.ClaimDispatch(ctx, run, models.TaskPlanner)
	if err != nil || !claimed {
		t.Fatalf("first ClaimDispatch() = %v, %v, want true, nil", claimed, err)
	}
	claimed, err = s.ClaimDispatch(ctx, run, models.TaskPlanner)
	if err != nil || claimed {
		t.Fatalf("second ClaimDispatch() = %v, %v, want false, nil", claimed, err)
	}

	task, err := s.GetTask(ctx, run.ID, models.TaskPlanner)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Status != models.TaskStatusQueued || !task.Dispatched {
		t.Errorf("task = %s dispatched=%v, want queued dispatched=true", task.Status, task.Dispatched)
	}
}

func TestMemoryStore_ClaimDispatchConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, run := newDecisionAndRun(t, s)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if claimed, err := s.ClaimDispatch(ctx, run, models.TaskSynth); err == nil && claimed {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("concurrent claims won = %d, want 1", wins)
	}
}

func TestMemoryStore_ReleaseDispatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, run := newDecisionAndRun(t, s)

	if _, err := s.ClaimDispatch(ctx, run, models.TaskFacts); err != nil {
		t.Fatalf("ClaimDispatch() error = %v", err)
	}
	if err := s.ReleaseDispatch(ctx, run.ID, models.TaskFacts); err != nil {
		t.Fatalf("ReleaseDispatch() error = %v", err)
	}
	claimed, err := s.ClaimDispatch(ctx, run, models.TaskFacts)
	if err != nil || !claimed {
		t.Errorf("ClaimDispatch() after release = %v, %v, want true, nil", claimed, err)
	}

	task, _ := s.GetTask(ctx, run.ID, models.TaskFacts)
	if err := s.MarkTaskRunning(ctx, task.ID); err != nil {
		t.Fatalf("MarkTaskRunning() error = %v", err)
	}
	claimed, _ = s.ClaimDispatch(ctx, run, models.TaskFacts)
	if claimed {
		t.Error("ClaimDispatch() on running task = true, want false")
	}
}

func TestMemoryStore_SetRequiredTasksOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, run := newDecisionAndRun(t, s)

	first := []models.TaskName{models.TaskFacts, models.TaskRisk}
	got, err := s.SetRequiredTasks(ctx, run.ID, first)
	if err != nil {
		t.Fatalf("SetRequiredTasks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SetRequiredTasks() = %v, want %v", got, first)
	}

	got, _ = s.SetRequiredTasks(ctx, run.ID, []models.TaskName{models.TaskPro})
	if len(got) != 2 || got[0] != models.TaskFacts || got[1] != models.TaskRisk {
		t.Errorf("second SetRequiredTasks() = %v, want first plan %v", got, first)
	}
}

func TestMemoryStore_TerminalTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	decision, run := newDecisionAndRun(t, s)

	if ok, _ := s.MarkRunStarted(ctx, run.ID, decision.ID); !ok {
		t.Fatal("MarkRunStarted() = false, want true")
	}
	if ok, _ := s.FailRun(ctx, run.ID, decision.ID, "Required task failed: risk"); !ok {
		t.Fatal("FailRun() = false, want true")
	}
	if ok, _ := s.FailRun(ctx, run.ID, decision.ID, "second reason"); ok {
		t.Error("second FailRun() = true, want false")
	}
	if ok, _ := s.FinalizeRun(ctx, run.ID, decision.ID, json.RawMessage(`{}`)); ok {
		t.Error("FinalizeRun() after failure = true, want false")
	}
	if ok, _ := s.MarkRunStarted(ctx, run.ID, decision.ID); ok {
		t.Error("MarkRunStarted() after failure = true, want false")
	}

	got, _ := s.GetDecision(ctx, decision.ID)
	if got.Status != models.DecisionStatusFailed {
		t.Errorf("decision status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "Required task failed: risk" {
		t.Errorf("decision error = %q, want first reason", got.ErrorMessage)
	}
	if got.FinalReport != nil {
		t.Errorf("decision report = %s, want none", got.FinalReport)
	}
}

func TestMemoryStore_FinalizeCopiesReport(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	decision, run := newDecisionAndRun(t, s)

	report := json.RawMessage(`{"recommendation":"go","confidence":"high"}`)
	if ok, err := s.FinalizeRun(ctx, run.ID, decision.ID, report); !ok || err != nil {
		t.Fatalf("FinalizeRun() = %v, %v", ok, err)
	}
	report[2] = 'X'

	got, _ := s.GetDecision(ctx, decision.ID)
	if string(got.FinalReport) != `{"recommendation":"go","confidence":"high"}` {
		t.Errorf("FinalReport = %s, want unaffected by caller mutation", got.FinalReport)
	}
	r, _ := s.GetRun(ctx, run.ID)
	if r.Status != models.RunStatusDone {
		t.Errorf("run status = %s, want done", r.Status)
	}
}

func TestMemoryStore_FailedRerunClearsOldReport(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	decision, first := newDecisionAndRun(t, s)

	if ok, _ := s.FinalizeRun(ctx, first.ID, decision.ID, json.RawMessage(`{"recommendation":"go"}`)); !ok {
		t.Fatal("FinalizeRun() = false, want true")
	}

	second := &models.Run{DecisionID: decision.ID, Mode: models.DefaultRunMode, Status: models.RunStatusQueued}
	if err := s.CreateRun(ctx, second); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	_ = s.SetDecisionStatus(ctx, decision.ID, models.DecisionStatusRunning)
	if ok, _ := s.FailRun(ctx, second.ID, decision.ID, "Required task failed: planner"); !ok {
		t.Fatal("FailRun() = false, want true")
	}

	got, _ := s.GetDecision(ctx, decision.ID)
	if got.Status != models.DecisionStatusFailed || got.FinalReport != nil {
		t.Errorf("decision = %s with report %s, want failed without report", got.Status, got.FinalReport)
	}
}

func TestMemoryStore_TaskLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, run := newDecisionAndRun(t, s)

	for _, name := range []models.TaskName{models.TaskFacts, models.TaskPro, models.TaskRisk} {
		if _, err := s.ClaimDispatch(ctx, run, name); err != nil {
			t.Fatalf("ClaimDispatch(%s) error = %v", name, err)
		}
	}
	facts, _ := s.GetTask(ctx, run.ID, models.TaskFacts)
	risk, _ := s.GetTask(ctx, run.ID, models.TaskRisk)

	if err := s.CompleteTask(ctx, facts.ID, json.RawMessage(`{"items":["a"]}`), "mock", 12); err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}
	if err := s.FailTask(ctx, risk.ID, "boom", 3); err != nil {
		t.Fatalf("FailTask() error = %v", err)
	}

	failed, err := s.FailedTasks(ctx, run.ID, []models.TaskName{models.TaskFacts, models.TaskRisk})
	if err != nil {
		t.Fatalf("FailedTasks() error = %v", err)
	}
	if len(failed) != 1 || failed[0] != models.TaskRisk {
		t.Errorf("FailedTasks() = %v, want [risk]", failed)
	}

	all, _ := s.ListTasks(ctx, run.ID, nil)
	if len(all) != 3 {
		t.Fatalf("ListTasks(nil) returned %d tasks, want 3", len(all))
	}
	if all[0].TaskName != models.TaskFacts || all[0].LatencyMs == nil || *all[0].LatencyMs != 12 {
		t.Errorf("first task = %+v, want facts with latency 12", all[0])
	}

	some, _ := s.ListTasks(ctx, run.ID, []models.TaskName{models.TaskPro})
	if len(some) != 1 || some[0].TaskName != models.TaskPro {
		t.Errorf("ListTasks([pro]) = %+v", some)
	}
}

func TestMemoryStore_ListAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, run := newDecisionAndRun(t, s)
	second, _ := newDecisionAndRun(t, s)
	if _, err := s.ClaimDispatch(ctx, run, models.TaskPlanner); err != nil {
		t.Fatalf("ClaimDispatch() error = %v", err)
	}
	if err := s.SetDecisionStatus(ctx, second.ID, models.DecisionStatusRunning); err != nil {
		t.Fatalf("SetDecisionStatus() error = %v", err)
	}

	all, _ := s.ListDecisions(ctx, "", 0)
	if len(all) != 2 || all[0].ID != second.ID {
		t.Errorf("ListDecisions() = %d items, first %v, want newest first", len(all), all)
	}
	running, _ := s.ListDecisions(ctx, models.DecisionStatusRunning, 10)
	if len(running) != 1 || running[0].ID != second.ID {
		t.Errorf("ListDecisions(running) = %v", running)
	}
	limited, _ := s.ListDecisions(ctx, "", 1)
	if len(limited) != 1 {
		t.Errorf("ListDecisions(limit 1) returned %d", len(limited))
	}

	if err := s.DeleteDecision(ctx, first.ID); err != nil {
		t.Fatalf("DeleteDecision() error = %v", err)
	}
	if _, err := s.GetRun(ctx, run.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRun() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTask(ctx, run.ID, models.TaskPlanner); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetTask() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDecision(ctx, first.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second DeleteDecision() error = %v, want ErrNotFound", err)
	}
}
