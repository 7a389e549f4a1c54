package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"decision-copilot/internal/agents"
	"decision-copilot/internal/models"
)

// AgentFactory builds the agent that executes a task
type AgentFactory func(name models.TaskName) (agents.Agent, error)

// TaskExecutor runs one task of one run and reports its outcome to the coordinator.
// It is the only writer of a task record's terminal status.
type TaskExecutor struct {
	store       Store
	coordinator Coordinator
	agents      AgentFactory
	notifier    CompletionNotifier
}

// NewTaskExecutor creates a new task executor. notifier may be nil.
func NewTaskExecutor(store Store, coordinator Coordinator, factory AgentFactory, notifier CompletionNotifier) *TaskExecutor {
	return &TaskExecutor{
		store:       store,
		coordinator: coordinator,
		agents:      factory,
		notifier:    notifier,
	}
}

// Execute runs the named task of a run. Task logic failures are recorded on the task
// and reported to the coordinator; only store and coordinator errors are returned,
// so the caller can hand the job back to the queue.
func (e *TaskExecutor) Execute(ctx context.Context, runID string, name models.TaskName) error {
	if !models.IsKnownTask(name) {
		log.Printf("WARNING: Skipping job for unknown task %q of run %s", name, runID)
		return nil
	}

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return skipMissing(err, "run %s", runID)
	}
	decision, err := e.store.GetDecision(ctx, run.DecisionID)
	if err != nil {
		return skipMissing(err, "decision %s", run.DecisionID)
	}
	task, err := e.store.GetTask(ctx, run.ID, name)
	if err != nil {
		return skipMissing(err, "task %s of run %s", name, run.ID)
	}

	if task.Status == models.TaskStatusDone {
		// Execution is skipped; the callbacks are idempotent, so replaying them
		// recovers a delivery whose coordinator step did not complete
		log.Printf("Task %s of run %s is already done, replaying completion", name, run.ID)
		return e.reportDone(ctx, run, name)
	}
	if task.Status == models.TaskStatusFailed {
		log.Printf("Task %s of run %s already failed, replaying failure", name, run.ID)
		return e.reportFailed(ctx, run, name)
	}

	if err := e.store.MarkTaskRunning(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to mark %s running: %w", name, err)
	}

	start := time.Now()
	result, runErr := e.runAgent(ctx, run, decision, name)
	latency := time.Since(start).Milliseconds()

	if runErr != nil {
		if ctx.Err() != nil {
			// Shutdown, not a task failure: leave the record running for redelivery
			return fmt.Errorf("task %s of run %s interrupted: %w", name, run.ID, ctx.Err())
		}
		log.Printf("WARNING: Task %s of run %s failed after %dms: %v", name, run.ID, latency, runErr)
		if err := e.store.FailTask(ctx, task.ID, runErr.Error(), latency); err != nil {
			return fmt.Errorf("failed to record failure of %s: %w", name, err)
		}
		return e.reportFailed(ctx, run, name)
	}

	if err := e.store.CompleteTask(ctx, task.ID, result.Output, result.Model, latency); err != nil {
		return fmt.Errorf("failed to record output of %s: %w", name, err)
	}
	log.Printf("Task %s of run %s done in %dms (model: %s)", name, run.ID, latency, result.Model)
	return e.reportDone(ctx, run, name)
}

func (e *TaskExecutor) runAgent(ctx context.Context, run *models.Run, decision *models.Decision, name models.TaskName) (*agents.Result, error) {
	agent, err := e.agents(name)
	if err != nil {
		return nil, err
	}

	inputs := agents.Inputs{}
	if name == models.TaskSynth {
		inputs, err = e.synthInputs(ctx, run.ID)
		if err != nil {
			return nil, err
		}
	}

	actx := agents.Context{
		DecisionID: decision.ID,
		RunID:      run.ID,
		Question:   decision.Question,
		Context:    decision.Context,
	}
	return agent.Run(ctx, actx, inputs)
}

// synthInputs collects the done outputs of the analysis tasks; missing ones default to {}
func (e *TaskExecutor) synthInputs(ctx context.Context, runID string) (agents.Inputs, error) {
	records, err := e.store.ListTasks(ctx, runID, models.AnalysisTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis outputs: %w", err)
	}

	inputs := make(agents.Inputs, len(models.AnalysisTasks))
	for _, name := range models.AnalysisTasks {
		inputs[name] = json.RawMessage("{}")
	}
	for _, record := range records {
		if record.Status == models.TaskStatusDone && len(record.Output) > 0 {
			inputs[record.TaskName] = record.Output
		}
	}
	return inputs, nil
}

func (e *TaskExecutor) reportDone(ctx context.Context, run *models.Run, name models.TaskName) error {
	if err := e.coordinator.OnTaskDone(ctx, run.ID, name); err != nil {
		return fmt.Errorf("failed to report completion of %s: %w", name, err)
	}
	if name != models.TaskSynth {
		return nil
	}

	finalized, err := e.coordinator.OnSynthDone(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finalize run %s: %w", run.ID, err)
	}
	if finalized && e.notifier != nil {
		e.notifier.DecisionCompleted(ctx, run.DecisionID)
	}
	return nil
}

func (e *TaskExecutor) reportFailed(ctx context.Context, run *models.Run, name models.TaskName) error {
	if err := e.coordinator.OnTaskFailed(ctx, run.ID, name); err != nil {
		return fmt.Errorf("failed to report failure of %s: %w", name, err)
	}
	return nil
}

func skipMissing(err error, format string, args ...interface{}) error {
	if errors.Is(err, models.ErrNotFound) {
		log.Printf("WARNING: Skipping job, %s not found", fmt.Sprintf(format, args...))
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", fmt.Sprintf(format, args...), err)
}
