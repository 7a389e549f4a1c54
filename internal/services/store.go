package services

import (
	"context"
	"encoding/json"

	"decision-copilot/internal/models"
	"decision-copilot/internal/orchestrator"
)

// Store is the state store used by the services. Both database.MongoDBClient
// and database.MemoryStore implement it.
type Store interface {
	orchestrator.Store

	CreateDecision(ctx context.Context, decision *models.Decision) error
	ListDecisions(ctx context.Context, status models.DecisionStatus, limit int) ([]models.Decision, error)
	SetDecisionStatus(ctx context.Context, id string, status models.DecisionStatus) error
	DeleteDecision(ctx context.Context, id string) error
	CreateRun(ctx context.Context, run *models.Run) error
	GetLatestRun(ctx context.Context, decisionID string) (*models.Run, error)

	MarkTaskRunning(ctx context.Context, taskID string) error
	CompleteTask(ctx context.Context, taskID string, output json.RawMessage, model string, latencyMs int64) error
	FailTask(ctx context.Context, taskID string, message string, latencyMs int64) error
}

// Coordinator receives the outcome of every executed task
type Coordinator interface {
	OnTaskDone(ctx context.Context, runID string, name models.TaskName) error
	OnTaskFailed(ctx context.Context, runID string, name models.TaskName) error
	OnSynthDone(ctx context.Context, runID string) (bool, error)
}

// RunStarter starts a freshly created run
type RunStarter interface {
	Start(ctx context.Context, runID string) error
}

// CompletionNotifier is told when a decision has just been finalized
type CompletionNotifier interface {
	DecisionCompleted(ctx context.Context, decisionID string)
}
