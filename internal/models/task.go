package models

import (
	"encoding/json"
	"time"
)

// TaskName identifies one task of the pipeline catalog
type TaskName string

const (
	TaskPlanner TaskName = "planner"
	TaskFacts   TaskName = "facts"
	TaskPro     TaskName = "pro"
	TaskCon     TaskName = "con"
	TaskRisk    TaskName = "risk"
	TaskSynth   TaskName = "synth"
)

// AnalysisTasks is the canonical order of the tasks a plan may require
var AnalysisTasks = []TaskName{TaskFacts, TaskPro, TaskCon, TaskRisk}

// IsAnalysisTask reports whether name may appear in a run's required list
func IsAnalysisTask(name TaskName) bool {
	for _, t := range AnalysisTasks {
		if t == name {
			return true
		}
	}
	return false
}

// IsKnownTask reports whether name is part of the catalog
func IsKnownTask(name TaskName) bool {
	return name == TaskPlanner || name == TaskSynth || IsAnalysisTask(name)
}

// TaskStatus represents the status of a task record
type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusSkipped TaskStatus = "skipped"
)

// IsTerminal reports whether the executor will not touch the record again
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed || s == TaskStatusSkipped
}

// TaskRecord is the persisted execution state of one task within one run.
// At most one record exists per (RunID, TaskName).
type TaskRecord struct {
	ID           string          `bson:"_id" json:"id"`
	DecisionID   string          `bson:"decisionId" json:"decisionId"`
	RunID        string          `bson:"runId" json:"runId"`
	TaskName     TaskName        `bson:"taskName" json:"taskName"`
	Status       TaskStatus      `bson:"status" json:"status"`
	Dispatched   bool            `bson:"dispatched" json:"dispatched"`
	Model        string          `bson:"model,omitempty" json:"model,omitempty"`
	LatencyMs    *int64          `bson:"latencyMs,omitempty" json:"latencyMs,omitempty"`
	Output       json.RawMessage `bson:"output,omitempty" json:"output,omitempty"`
	ErrorMessage string          `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time       `bson:"updatedAt" json:"updatedAt"`
}
