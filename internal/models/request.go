package models

import (
	"encoding/json"
	"time"
)

// CreateDecisionRequest represents the request to submit a new question
type CreateDecisionRequest struct {
	Question    string `json:"question" binding:"required"`
	Context     string `json:"context"`
	NotifyEmail string `json:"notifyEmail" binding:"omitempty,email"` // Optional, receives the final report
}

// CreateDecisionResponse represents the response when creating a decision
type CreateDecisionResponse struct {
	DecisionID string         `json:"decisionId"`
	Status     DecisionStatus `json:"status"`
}

// StartRunRequest represents the request to start a run of a decision's pipeline
type StartRunRequest struct {
	Mode string `json:"mode"` // Optional, defaults to "default"
}

// StartRunResponse represents the response when starting a run
type StartRunResponse struct {
	DecisionID string    `json:"decisionId"`
	RunID      string    `json:"runId"`
	Status     RunStatus `json:"status"`
}

// DecisionSummary is the decision part of a status snapshot
type DecisionSummary struct {
	ID        string         `json:"id"`
	Status    DecisionStatus `json:"status"`
	Question  string         `json:"question"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// RunSummary is the latest-run part of a status snapshot
type RunSummary struct {
	ID            string     `json:"id"`
	Mode          string     `json:"mode"`
	Status        RunStatus  `json:"status"`
	RequiredTasks []TaskName `json:"requiredTasks"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TaskSummary describes one task record without its output
type TaskSummary struct {
	ID           string     `json:"id"`
	TaskName     TaskName   `json:"taskName"`
	Status       TaskStatus `json:"status"`
	LatencyMs    *int64     `json:"latencyMs,omitempty"`
	Model        string     `json:"model,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// StatusSnapshot represents the response when checking a decision's progress
type StatusSnapshot struct {
	Decision  DecisionSummary `json:"decision"`
	LatestRun *RunSummary     `json:"latestRun"`
	Tasks     []TaskSummary   `json:"tasks"`
}

// ReportResponse represents the final outcome of a decision
type ReportResponse struct {
	DecisionID   string          `json:"decisionId"`
	Status       DecisionStatus  `json:"status"`
	FinalReport  json.RawMessage `json:"finalReport,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// Explanation lists every task of the latest run with its output
type Explanation struct {
	Decision DecisionSummary `json:"decision"`
	RunID    string          `json:"runId,omitempty"`
	Tasks    []TaskRecord    `json:"tasks"`
}

// NewTaskSummary strips the output from a task record
func NewTaskSummary(t TaskRecord) TaskSummary {
	return TaskSummary{
		ID:           t.ID,
		TaskName:     t.TaskName,
		Status:       t.Status,
		LatencyMs:    t.LatencyMs,
		Model:        t.Model,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
