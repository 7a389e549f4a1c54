// Package orchestrator decides what runs next for a run of the pipeline.
//
// Every decision is derived from the state store alone: the orchestrator keeps no
// state between calls, and each callback may be delivered more than once or race
// with callbacks for other tasks of the same run. Duplicate dispatch is prevented by
// the store's atomic dispatch claim, and terminal runs ignore all further events.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"decision-copilot/internal/models"
)

// Store is the state the orchestrator reads and transitions
type Store interface {
	GetDecision(ctx context.Context, id string) (*models.Decision, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	MarkRunStarted(ctx context.Context, runID, decisionID string) (bool, error)
	SetRequiredTasks(ctx context.Context, runID string, tasks []models.TaskName) ([]models.TaskName, error)
	FailRun(ctx context.Context, runID, decisionID, reason string) (bool, error)
	FinalizeRun(ctx context.Context, runID, decisionID string, report json.RawMessage) (bool, error)
	ClaimDispatch(ctx context.Context, run *models.Run, name models.TaskName) (bool, error)
	ReleaseDispatch(ctx context.Context, runID string, name models.TaskName) error
	GetTask(ctx context.Context, runID string, name models.TaskName) (*models.TaskRecord, error)
	ListTasks(ctx context.Context, runID string, names []models.TaskName) ([]models.TaskRecord, error)
	FailedTasks(ctx context.Context, runID string, names []models.TaskName) ([]models.TaskName, error)
}

// Dispatcher submits a task of a run for execution
type Dispatcher interface {
	Enqueue(ctx context.Context, runID string, task models.TaskName) error
}

// Orchestrator drives runs through planner, analysis fan-out and synthesis
type Orchestrator struct {
	store      Store
	dispatcher Dispatcher
}

// New creates an orchestrator over the given store and dispatcher
func New(store Store, dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{store: store, dispatcher: dispatcher}
}

// Start moves the run and its decision to running and dispatches the planner.
// It returns an error wrapping models.ErrNotFound when the run or decision is missing.
// Calling it again for the same run dispatches nothing new.
func (o *Orchestrator) Start(ctx context.Context, runID string) error {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if _, err := o.store.GetDecision(ctx, run.DecisionID); err != nil {
		return err
	}

	if run.Status.IsTerminal() {
		log.Printf("Run %s is already %s, ignoring start", run.ID, run.Status)
		return nil
	}
	started, err := o.store.MarkRunStarted(ctx, run.ID, run.DecisionID)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", run.ID, err)
	}
	if !started {
		log.Printf("Run %s became terminal before start, ignoring", run.ID)
		return nil
	}

	return o.dispatchIfNeeded(ctx, run, models.TaskPlanner)
}

// OnTaskDone reacts to a task reaching done. After the planner it stores the
// sanitized plan and fans out the required tasks; after an analysis task it fails
// the run if a required task failed, or dispatches synth once all are done.
func (o *Orchestrator) OnTaskDone(ctx context.Context, runID string, name models.TaskName) error {
	run, ok, err := o.activeRun(ctx, runID, "done", name)
	if err != nil || !ok {
		return err
	}

	switch {
	case name == models.TaskPlanner:
		return o.fanOut(ctx, run)
	case name == models.TaskSynth:
		// Finalization belongs to OnSynthDone
		return nil
	}

	if run.RequiredTasks == nil {
		log.Printf("WARNING: Run %s has no plan yet, ignoring done event for %s", run.ID, name)
		return nil
	}

	// Fail-fast precedes fan-in
	failed, err := o.store.FailedTasks(ctx, run.ID, run.RequiredTasks)
	if err != nil {
		return fmt.Errorf("failed to check failed tasks of run %s: %w", run.ID, err)
	}
	if len(failed) > 0 {
		return o.failRun(ctx, run, requiredFailedReason(failed...))
	}

	done, err := o.allRequiredDone(ctx, run)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	return o.dispatchIfNeeded(ctx, run, models.TaskSynth)
}

// OnTaskFailed fails the run when the failed task is required by the plan.
// The planner and synth are never in the plan, yet a failure of either also fails
// the run. Failures of analysis tasks outside the plan are ignored.
func (o *Orchestrator) OnTaskFailed(ctx context.Context, runID string, name models.TaskName) error {
	run, ok, err := o.activeRun(ctx, runID, "failed", name)
	if err != nil || !ok {
		return err
	}

	if name != models.TaskPlanner && name != models.TaskSynth && !run.Requires(name) {
		log.Printf("Run %s: task %s is not required, ignoring its failure", run.ID, name)
		return nil
	}
	return o.failRun(ctx, run, requiredFailedReason(name))
}

// OnSynthDone copies the synth output onto the decision and completes the run.
// It reports whether this call finalized the run; stale and duplicate calls report false.
func (o *Orchestrator) OnSynthDone(ctx context.Context, runID string) (bool, error) {
	run, ok, err := o.activeRun(ctx, runID, "done", models.TaskSynth)
	if err != nil || !ok {
		return false, err
	}

	synth, err := o.store.GetTask(ctx, run.ID, models.TaskSynth)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Printf("WARNING: Run %s has no synth record, ignoring synth done", run.ID)
			return false, nil
		}
		return false, fmt.Errorf("failed to load synth task of run %s: %w", run.ID, err)
	}
	if synth.Status != models.TaskStatusDone {
		log.Printf("Run %s: synth is %s, ignoring stale synth done", run.ID, synth.Status)
		return false, nil
	}

	finalized, err := o.store.FinalizeRun(ctx, run.ID, run.DecisionID, synth.Output)
	if err != nil {
		return false, fmt.Errorf("failed to finalize run %s: %w", run.ID, err)
	}
	if !finalized {
		log.Printf("Run %s was already terminal, skipping finalization", run.ID)
		return false, nil
	}
	log.Printf("Run %s finalized decision %s", run.ID, run.DecisionID)
	return true, nil
}

// activeRun loads the run for a task callback. ok is false when the event has to be
// ignored because the run is gone or already terminal.
func (o *Orchestrator) activeRun(ctx context.Context, runID, event string, name models.TaskName) (*models.Run, bool, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Printf("WARNING: Run %s not found, ignoring %s event for %s", runID, event, name)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if run.Status.IsTerminal() {
		log.Printf("Run %s is already %s, ignoring late %s event for %s", run.ID, run.Status, event, name)
		return nil, false, nil
	}
	return run, true, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, run *models.Run) error {
	planner, err := o.store.GetTask(ctx, run.ID, models.TaskPlanner)
	if err != nil {
		return fmt.Errorf("failed to load planner task of run %s: %w", run.ID, err)
	}
	if planner.Status != models.TaskStatusDone {
		log.Printf("Run %s: planner is %s, ignoring stale planner done", run.ID, planner.Status)
		return nil
	}

	// The first stored plan wins; a duplicate event re-dispatches the same list
	required, err := o.store.SetRequiredTasks(ctx, run.ID, RequiredTasksFromPlan(planner.Output))
	if err != nil {
		return fmt.Errorf("failed to store plan of run %s: %w", run.ID, err)
	}
	run.RequiredTasks = required
	log.Printf("Run %s plan: %s", run.ID, joinTasks(required))

	for _, name := range required {
		if err := o.dispatchIfNeeded(ctx, run, name); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) allRequiredDone(ctx context.Context, run *models.Run) (bool, error) {
	records, err := o.store.ListTasks(ctx, run.ID, run.RequiredTasks)
	if err != nil {
		return false, fmt.Errorf("failed to list tasks of run %s: %w", run.ID, err)
	}

	done := make(map[models.TaskName]bool, len(records))
	for _, record := range records {
		if record.Status == models.TaskStatusDone {
			done[record.TaskName] = true
		}
	}
	for _, name := range run.RequiredTasks {
		if !done[name] {
			return false, nil
		}
	}
	return true, nil
}

// dispatchIfNeeded enqueues the task only for the caller that wins the store's
// dispatch claim. A failed enqueue releases the claim so a redelivered event can retry.
func (o *Orchestrator) dispatchIfNeeded(ctx context.Context, run *models.Run, name models.TaskName) error {
	claimed, err := o.store.ClaimDispatch(ctx, run, name)
	if err != nil {
		return fmt.Errorf("failed to claim %s for run %s: %w", name, run.ID, err)
	}
	if !claimed {
		log.Printf("Run %s: %s already dispatched, skipping", run.ID, name)
		return nil
	}

	if err := o.dispatcher.Enqueue(ctx, run.ID, name); err != nil {
		if relErr := o.store.ReleaseDispatch(ctx, run.ID, name); relErr != nil {
			log.Printf("ERROR: Failed to release dispatch claim of %s for run %s: %v", name, run.ID, relErr)
		}
		return fmt.Errorf("failed to enqueue %s for run %s: %w", name, run.ID, err)
	}
	log.Printf("Dispatched %s for run %s", name, run.ID)
	return nil
}

func (o *Orchestrator) failRun(ctx context.Context, run *models.Run, reason string) error {
	failed, err := o.store.FailRun(ctx, run.ID, run.DecisionID, reason)
	if err != nil {
		return fmt.Errorf("failed to fail run %s: %w", run.ID, err)
	}
	if !failed {
		log.Printf("Run %s was already terminal, keeping its first outcome", run.ID)
		return nil
	}
	log.Printf("Run %s failed: %s", run.ID, reason)
	return nil
}

func requiredFailedReason(names ...models.TaskName) string {
	return "Required task failed: " + joinTasks(names)
}

func joinTasks(names []models.TaskName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
