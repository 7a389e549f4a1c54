package models

import (
	"encoding/json"
	"time"
)

// DecisionStatus represents the status of a decision
type DecisionStatus string

const (
	DecisionStatusNew     DecisionStatus = "new"
	DecisionStatusRunning DecisionStatus = "running"
	DecisionStatusDone    DecisionStatus = "done"
	DecisionStatusFailed  DecisionStatus = "failed"
)

// Valid reports whether s is one of the known decision statuses
func (s DecisionStatus) Valid() bool {
	switch s {
	case DecisionStatusNew, DecisionStatusRunning, DecisionStatusDone, DecisionStatusFailed:
		return true
	}
	return false
}

// RunStatus represents the status of a run
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusDone     RunStatus = "done"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// IsTerminal reports whether no further coordinator transition applies
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusFailed || s == RunStatusCanceled
}

// DefaultRunMode is used when a run is started without an explicit mode
const DefaultRunMode = "default"

// Decision is one submitted question. It owns its runs and their task records.
type Decision struct {
	ID           string          `bson:"_id" json:"id"`
	Question     string          `bson:"question" json:"question"`
	Context      string          `bson:"context,omitempty" json:"context,omitempty"`
	NotifyEmail  string          `bson:"notifyEmail,omitempty" json:"notifyEmail,omitempty"`
	Status       DecisionStatus  `bson:"status" json:"status"`
	FinalReport  json.RawMessage `bson:"finalReport,omitempty" json:"finalReport,omitempty"`
	ErrorMessage string          `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// Run is one execution attempt of a decision's pipeline
type Run struct {
	ID         string    `bson:"_id" json:"id"`
	DecisionID string    `bson:"decisionId" json:"decisionId"`
	Mode       string    `bson:"mode" json:"mode"`
	Status     RunStatus `bson:"status" json:"status"`
	// RequiredTasks is nil until the planner is done, then set exactly once
	RequiredTasks []TaskName `bson:"requiredTasks" json:"requiredTasks"`
	ErrorMessage  string     `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Requires reports whether name is in the run's resolved plan
func (r *Run) Requires(name TaskName) bool {
	for _, t := range r.RequiredTasks {
		if t == name {
			return true
		}
	}
	return false
}
