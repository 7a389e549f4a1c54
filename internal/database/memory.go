package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"decision-copilot/internal/models"
	"decision-copilot/internal/utils"
)

type taskKey struct {
	runID string
	name  models.TaskName
}

// MemoryStore keeps decisions, runs and task records in process memory.
// Every method holds the lock for its whole read-modify-write, which gives
// the same per-operation atomicity the MongoDB store gets from single-document updates.
type MemoryStore struct {
	mu sync.RWMutex

	decisions     map[string]*models.Decision
	decisionOrder []string
	runs          map[string]*models.Run
	runOrder      []string
	tasks         map[string]*models.TaskRecord
	taskOrder     []string
	taskIndex     map[taskKey]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		decisions: make(map[string]*models.Decision),
		runs:      make(map[string]*models.Run),
		tasks:     make(map[string]*models.TaskRecord),
		taskIndex: make(map[taskKey]string),
	}
}

// CreateDecision stores a new decision, assigning an ID if missing
func (s *MemoryStore) CreateDecision(ctx context.Context, decision *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decision.ID == "" {
		decision.ID = utils.GenerateUUID()
	}
	if _, exists := s.decisions[decision.ID]; exists {
		return fmt.Errorf("decision already exists: %s", decision.ID)
	}
	now := time.Now().UTC()
	decision.CreatedAt = now
	decision.UpdatedAt = now

	s.decisions[decision.ID] = cloneDecision(decision)
	s.decisionOrder = append(s.decisionOrder, decision.ID)
	return nil
}

// GetDecision retrieves a decision by ID
func (s *MemoryStore) GetDecision(ctx context.Context, id string) (*models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	decision, exists := s.decisions[id]
	if !exists {
		return nil, fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	return cloneDecision(decision), nil
}

// ListDecisions returns the newest decisions first, optionally filtered by status
func (s *MemoryStore) ListDecisions(ctx context.Context, status models.DecisionStatus, limit int) ([]models.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Decision
	for i := len(s.decisionOrder) - 1; i >= 0; i-- {
		decision := s.decisions[s.decisionOrder[i]]
		if status != "" && decision.Status != status {
			continue
		}
		out = append(out, *cloneDecision(decision))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SetDecisionStatus updates the status of a decision
func (s *MemoryStore) SetDecisionStatus(ctx context.Context, id string, status models.DecisionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	decision, exists := s.decisions[id]
	if !exists {
		return fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	decision.Status = status
	decision.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteDecision removes a decision together with its runs and task records
func (s *MemoryStore) DeleteDecision(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decisions[id]; !exists {
		return fmt.Errorf("decision %s: %w", id, models.ErrNotFound)
	}
	delete(s.decisions, id)
	s.decisionOrder = removeIDs(s.decisionOrder, func(v string) bool { return v == id })

	s.runOrder = removeIDs(s.runOrder, func(runID string) bool {
		if s.runs[runID].DecisionID != id {
			return false
		}
		delete(s.runs, runID)
		return true
	})
	s.taskOrder = removeIDs(s.taskOrder, func(taskID string) bool {
		task := s.tasks[taskID]
		if task.DecisionID != id {
			return false
		}
		delete(s.taskIndex, taskKey{runID: task.RunID, name: task.TaskName})
		delete(s.tasks, taskID)
		return true
	})
	return nil
}

// CreateRun stores a new run, assigning an ID if missing
func (s *MemoryStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decisions[run.DecisionID]; !exists {
		return fmt.Errorf("decision %s: %w", run.DecisionID, models.ErrNotFound)
	}
	if run.ID == "" {
		run.ID = utils.GenerateUUID()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	s.runs[run.ID] = cloneRun(run)
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// GetRun retrieves a run by ID
func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, models.ErrNotFound)
	}
	return cloneRun(run), nil
}

// GetLatestRun returns the most recently created run of a decision
func (s *MemoryStore) GetLatestRun(ctx context.Context, decisionID string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.runOrder) - 1; i >= 0; i-- {
		if run := s.runs[s.runOrder[i]]; run.DecisionID == decisionID {
			return cloneRun(run), nil
		}
	}
	return nil, fmt.Errorf("run for decision %s: %w", decisionID, models.ErrNotFound)
}

// MarkRunStarted moves a non-terminal run and its decision to running
func (s *MemoryStore) MarkRunStarted(ctx context.Context, runID, decisionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, decision, err := s.runAndDecision(runID, decisionID)
	if err != nil {
		return false, err
	}
	if run.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.UpdatedAt = now
	decision.Status = models.DecisionStatusRunning
	decision.UpdatedAt = now
	return true, nil
}

// SetRequiredTasks stores the run's plan if none is stored yet and returns the plan in effect
func (s *MemoryStore) SetRequiredTasks(ctx context.Context, runID string, tasks []models.TaskName) ([]models.TaskName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, exists := s.runs[runID]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	if run.RequiredTasks == nil {
		run.RequiredTasks = append([]models.TaskName{}, tasks...)
		run.UpdatedAt = time.Now().UTC()
	}
	return append([]models.TaskName{}, run.RequiredTasks...), nil
}

// FailRun marks a non-terminal run and its decision as failed
func (s *MemoryStore) FailRun(ctx context.Context, runID, decisionID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, decision, err := s.runAndDecision(runID, decisionID)
	if err != nil {
		return false, err
	}
	if run.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.ErrorMessage = reason
	run.UpdatedAt = now
	// A decision another run already finalized keeps its report
	if decision.Status != models.DecisionStatusDone {
		decision.Status = models.DecisionStatusFailed
		decision.ErrorMessage = reason
		decision.FinalReport = nil
		decision.UpdatedAt = now
	}
	return true, nil
}

// FinalizeRun copies the report onto the decision and marks both done.
// Only the first call for a non-terminal run has an effect.
func (s *MemoryStore) FinalizeRun(ctx context.Context, runID, decisionID string, report json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, decision, err := s.runAndDecision(runID, decisionID)
	if err != nil {
		return false, err
	}
	if run.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusDone
	run.UpdatedAt = now
	decision.Status = models.DecisionStatusDone
	decision.FinalReport = append(json.RawMessage{}, report...)
	decision.ErrorMessage = ""
	decision.UpdatedAt = now
	return true, nil
}

// ClaimDispatch creates the task record as queued if absent and marks it dispatched.
// It returns true only to the single caller that performed the claim.
func (s *MemoryStore) ClaimDispatch(ctx context.Context, run *models.Run, name models.TaskName) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := taskKey{runID: run.ID, name: name}
	if id, exists := s.taskIndex[key]; exists {
		task := s.tasks[id]
		if task.Status != models.TaskStatusQueued || task.Dispatched {
			return false, nil
		}
		task.Dispatched = true
		task.UpdatedAt = now
		return true, nil
	}

	task := &models.TaskRecord{
		ID:         utils.GenerateUUID(),
		DecisionID: run.DecisionID,
		RunID:      run.ID,
		TaskName:   name,
		Status:     models.TaskStatusQueued,
		Dispatched: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.tasks[task.ID] = task
	s.taskIndex[key] = task.ID
	s.taskOrder = append(s.taskOrder, task.ID)
	return true, nil
}

// ReleaseDispatch undoes a claim whose enqueue failed
func (s *MemoryStore) ReleaseDispatch(ctx context.Context, runID string, name models.TaskName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.taskIndex[taskKey{runID: runID, name: name}]
	if !exists {
		return fmt.Errorf("task %s/%s: %w", runID, name, models.ErrNotFound)
	}
	task := s.tasks[id]
	if task.Status == models.TaskStatusQueued {
		task.Dispatched = false
		task.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// GetTask retrieves the record of one task within a run
func (s *MemoryStore) GetTask(ctx context.Context, runID string, name models.TaskName) (*models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.taskIndex[taskKey{runID: runID, name: name}]
	if !exists {
		return nil, fmt.Errorf("task %s/%s: %w", runID, name, models.ErrNotFound)
	}
	return cloneTask(s.tasks[id]), nil
}

// ListTasks returns the run's task records in creation order.
// A nil names slice returns every task of the run.
func (s *MemoryStore) ListTasks(ctx context.Context, runID string, names []models.TaskName) ([]models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TaskRecord
	for _, id := range s.taskOrder {
		task := s.tasks[id]
		if task.RunID != runID {
			continue
		}
		if names != nil && !containsTask(names, task.TaskName) {
			continue
		}
		out = append(out, *cloneTask(task))
	}
	return out, nil
}

// FailedTasks returns which of the named tasks of the run are failed
func (s *MemoryStore) FailedTasks(ctx context.Context, runID string, names []models.TaskName) ([]models.TaskName, error) {
	tasks, err := s.ListTasks(ctx, runID, names)
	if err != nil {
		return nil, err
	}
	var failed []models.TaskName
	for _, task := range tasks {
		if task.Status == models.TaskStatusFailed {
			failed = append(failed, task.TaskName)
		}
	}
	return failed, nil
}

// MarkTaskRunning moves a task record to running
func (s *MemoryStore) MarkTaskRunning(ctx context.Context, taskID string) error {
	return s.updateTask(taskID, func(task *models.TaskRecord) {
		task.Status = models.TaskStatusRunning
		task.ErrorMessage = ""
	})
}

// CompleteTask stores the output of a task and marks it done
func (s *MemoryStore) CompleteTask(ctx context.Context, taskID string, output json.RawMessage, model string, latencyMs int64) error {
	return s.updateTask(taskID, func(task *models.TaskRecord) {
		task.Status = models.TaskStatusDone
		task.Output = append(json.RawMessage{}, output...)
		task.Model = model
		task.LatencyMs = &latencyMs
		task.ErrorMessage = ""
	})
}

// FailTask records the error of a task and marks it failed
func (s *MemoryStore) FailTask(ctx context.Context, taskID string, message string, latencyMs int64) error {
	return s.updateTask(taskID, func(task *models.TaskRecord) {
		task.Status = models.TaskStatusFailed
		task.ErrorMessage = message
		task.LatencyMs = &latencyMs
	})
}

func (s *MemoryStore) updateTask(taskID string, apply func(*models.TaskRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	apply(task)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// runAndDecision must be called with the lock held
func (s *MemoryStore) runAndDecision(runID, decisionID string) (*models.Run, *models.Decision, error) {
	run, exists := s.runs[runID]
	if !exists {
		return nil, nil, fmt.Errorf("run %s: %w", runID, models.ErrNotFound)
	}
	decision, exists := s.decisions[decisionID]
	if !exists {
		return nil, nil, fmt.Errorf("decision %s: %w", decisionID, models.ErrNotFound)
	}
	return run, decision, nil
}

func containsTask(names []models.TaskName, name models.TaskName) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func removeIDs(ids []string, drop func(string) bool) []string {
	kept := ids[:0]
	for _, id := range ids {
		if !drop(id) {
			kept = append(kept, id)
		}
	}
	return kept
}

func cloneDecision(d *models.Decision) *models.Decision {
	c := *d
	if d.FinalReport != nil {
		c.FinalReport = append(json.RawMessage{}, d.FinalReport...)
	}
	return &c
}

func cloneRun(r *models.Run) *models.Run {
	c := *r
	if r.RequiredTasks != nil {
		c.RequiredTasks = append([]models.TaskName{}, r.RequiredTasks...)
	}
	return &c
}

func cloneTask(t *models.TaskRecord) *models.TaskRecord {
	c := *t
	if t.Output != nil {
		c.Output = append(json.RawMessage{}, t.Output...)
	}
	if t.LatencyMs != nil {
		latency := *t.LatencyMs
		c.LatencyMs = &latency
	}
	return &c
}
