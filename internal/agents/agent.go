package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
	"decision-copilot/internal/validation"
)

// Context is what every agent knows about the decision it works on
type Context struct {
	DecisionID string
	RunID      string
	Question   string
	Context    string
}

// Inputs are outputs of earlier tasks keyed by task name
type Inputs map[models.TaskName]json.RawMessage

// Result is the validated output of one agent run
type Result struct {
	Output json.RawMessage
	Model  string
}

// Agent executes the logic of one task
type Agent interface {
	Name() models.TaskName
	Run(ctx context.Context, actx Context, inputs Inputs) (*Result, error)
}

// Build returns the agent for a task name
func Build(name models.TaskName, client llm.Client) (Agent, error) {
	switch name {
	case models.TaskPlanner:
		return &PlannerAgent{llm: client}, nil
	case models.TaskFacts:
		return newItemsAgent(name, client, factsPrompt), nil
	case models.TaskPro:
		return newItemsAgent(name, client, proPrompt), nil
	case models.TaskCon:
		return newItemsAgent(name, client, conPrompt), nil
	case models.TaskRisk:
		return newItemsAgent(name, client, riskPrompt), nil
	case models.TaskSynth:
		return &SynthAgent{llm: client}, nil
	}
	return nil, fmt.Errorf("unknown agent: %s", name)
}

// complete runs a JSON chat request and validates the output for the task
func complete(ctx context.Context, client llm.Client, req llm.JSONRequest) (*Result, error) {
	resp, err := client.ChatJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Task == models.TaskPlanner {
		// The plan is stored as returned; the orchestrator sanitizes it
		if err := validation.ValidateOutput(req.Task, resp.Content); err != nil {
			return nil, err
		}
		return &Result{Output: resp.Content, Model: resp.Model}, nil
	}

	out, err := validation.ValidateAndParseOutput(req.Task, resp.Content)
	if err != nil {
		return nil, err
	}
	content, err := models.EncodeOutput(out)
	if err != nil {
		return nil, err
	}
	return &Result{Output: content, Model: resp.Model}, nil
}

func questionBlock(actx Context) string {
	return fmt.Sprintf("Decision question:\n%s\n\nContext:\n%s\n\n", actx.Question, actx.Context)
}
