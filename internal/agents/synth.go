package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
)

// SynthAgent turns the analysis outputs into the final recommendation
type SynthAgent struct {
	llm llm.Client
}

func (a *SynthAgent) Name() models.TaskName { return models.TaskSynth }

func (a *SynthAgent) Run(ctx context.Context, actx Context, inputs Inputs) (*Result, error) {
	system := "You are a decision synthesis agent. " +
		"You must produce a structured recommendation using the provided inputs."

	var b strings.Builder
	b.WriteString(questionBlock(actx))
	for _, section := range []struct {
		label string
		task  models.TaskName
	}{
		{"Facts", models.TaskFacts},
		{"Pros", models.TaskPro},
		{"Cons", models.TaskCon},
		{"Risks", models.TaskRisk},
	} {
		fmt.Fprintf(&b, "%s json:\n%s\n\n", section.label, inputOrEmpty(inputs, section.task))
	}
	b.WriteString("Return json with:\n" +
		"- recommendation: one of [go, no_go, conditional_go, gather_more_info]\n" +
		"- confidence: one of [low, medium, high]\n" +
		"- rationale: short paragraph\n" +
		"- key_tradeoffs: list of strings\n" +
		"- next_steps: list of strings\n" +
		"- open_questions: list of strings\n")

	example := models.SynthOutput{
		Recommendation: "conditional_go",
		Confidence:     "medium",
		Rationale:      "Short rationale grounded in facts and tradeoffs.",
		KeyTradeoffs:   []string{"Tradeoff 1", "Tradeoff 2"},
		NextSteps:      []string{"Step 1", "Step 2"},
		OpenQuestions:  []string{"Question 1"},
	}

	return complete(ctx, a.llm, llm.JSONRequest{
		Task:    models.TaskSynth,
		System:  system,
		User:    b.String(),
		Example: example,
	})
}

func inputOrEmpty(inputs Inputs, task models.TaskName) json.RawMessage {
	if raw, ok := inputs[task]; ok && len(raw) > 0 {
		return raw
	}
	return json.RawMessage("{}")
}
