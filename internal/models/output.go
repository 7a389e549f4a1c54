package models

import (
	"encoding/json"
	"fmt"
)

// Output is the structured result of one task. The set of implementations is closed:
// PlanOutput, ItemsOutput and SynthOutput.
type Output interface {
	Kind() TaskName
	output()
}

// PlanOutput is produced by the planner.
// RequiredAgents is kept undecoded: it comes from an untrusted model and is
// sanitized by the orchestrator before it drives dispatch.
type PlanOutput struct {
	RequiredAgents json.RawMessage `json:"required_agents"`
	Rationale      string          `json:"rationale"`
	Constraints    []string        `json:"constraints,omitempty"`
}

// ItemsOutput is produced by the facts, pro, con and risk tasks
type ItemsOutput struct {
	Task  TaskName `json:"-"`
	Items []string `json:"items"`
}

// SynthOutput is the final recommendation produced by the synth task
type SynthOutput struct {
	Recommendation string   `json:"recommendation"`
	Confidence     string   `json:"confidence"`
	Rationale      string   `json:"rationale"`
	KeyTradeoffs   []string `json:"key_tradeoffs"`
	NextSteps      []string `json:"next_steps"`
	OpenQuestions  []string `json:"open_questions"`
}

func (PlanOutput) Kind() TaskName    { return TaskPlanner }
func (o ItemsOutput) Kind() TaskName { return o.Task }
func (SynthOutput) Kind() TaskName   { return TaskSynth }

func (PlanOutput) output()  {}
func (ItemsOutput) output() {}
func (SynthOutput) output() {}

// EncodeOutput serializes an output to the JSON stored on the task record
func EncodeOutput(o Output) (json.RawMessage, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s output: %w", o.Kind(), err)
	}
	return data, nil
}

// DecodeOutput parses stored JSON into the output type of the given task
func DecodeOutput(task TaskName, raw json.RawMessage) (Output, error) {
	switch {
	case task == TaskPlanner:
		var out PlanOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode planner output: %w", err)
		}
		return out, nil
	case task == TaskSynth:
		var out SynthOutput
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode synth output: %w", err)
		}
		return out, nil
	case IsAnalysisTask(task):
		out := ItemsOutput{Task: task}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s output: %w", task, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown task: %s", task)
}
