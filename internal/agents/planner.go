package agents

import (
	"context"

	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
)

// PlannerAgent decides which analysis tasks the decision needs.
// Its required_agents value is stored as returned; the orchestrator sanitizes it.
type PlannerAgent struct {
	llm llm.Client
}

func (a *PlannerAgent) Name() models.TaskName { return models.TaskPlanner }

func (a *PlannerAgent) Run(ctx context.Context, actx Context, inputs Inputs) (*Result, error) {
	system := "You are a planning agent for a multi-agent decision pipeline. " +
		"Your job is to decide which analysis agents are required."

	user := questionBlock(actx) +
		"Select required agents from this allowed set:\n" +
		`["facts", "pro", "con", "risk"]` + "\n\n" +
		"Return a plan in json with:\n" +
		"- required_agents: list of agent names\n" +
		"- rationale: short string\n" +
		"- constraints: list of short strings (optional)\n"

	example := models.PlanOutput{
		RequiredAgents: []byte(`["facts","pro","con","risk"]`),
		Rationale:      "Need balanced analysis before synthesis.",
		Constraints:    []string{"Keep it concise."},
	}

	return complete(ctx, a.llm, llm.JSONRequest{
		Task:    models.TaskPlanner,
		System:  system,
		User:    user,
		Example: example,
	})
}
