package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"decision-copilot/internal/llm"
	"decision-copilot/internal/models"
)

type capturingClient struct {
	content string
	last    llm.JSONRequest
}

func (c *capturingClient) ChatJSON(ctx context.Context, req llm.JSONRequest) (*llm.JSONResponse, error) {
	c.last = req
	return &llm.JSONResponse{Content: json.RawMessage(c.content), Model: "test-model"}, nil
}

var testContext = Context{
	DecisionID: "d-1",
	RunID:      "r-1",
	Question:   "Should we adopt a four-day week?",
	Context:    "Team of 12, client-facing support.",
}

func TestBuild(t *testing.T) {
	client := llm.NewMockClient()
	for _, name := range []models.TaskName{
		models.TaskPlanner, models.TaskFacts, models.TaskPro, models.TaskCon, models.TaskRisk, models.TaskSynth,
	} {
		agent, err := Build(name, client)
		if err != nil {
			t.Fatalf("Build(%s) error = %v", name, err)
		}
		if agent.Name() != name {
			t.Errorf("Build(%s).Name() = %s", name, agent.Name())
		}
	}
	if _, err := Build("summary", client); err == nil {
		t.Error("Build(summary) error = nil, want unknown agent")
	}
}

func TestItemsAgent_Run(t *testing.T) {
	client := &capturingClient{content: `{"items":["Support hours shrink by a day."]}`}
	agent, _ := Build(models.TaskCon, client)

	result, err := agent.Run(context.Background(), testContext, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(result.Output) != `{"items":["Support hours shrink by a day."]}` {
		t.Errorf("Output = %s", result.Output)
	}
	if result.Model != "test-model" {
		t.Errorf("Model = %q, want test-model", result.Model)
	}

	if client.last.Task != models.TaskCon {
		t.Errorf("request task = %s, want con", client.last.Task)
	}
	if !strings.Contains(client.last.User, testContext.Question) || !strings.Contains(client.last.User, testContext.Context) {
		t.Errorf("user prompt missing question or context: %q", client.last.User)
	}
	if !strings.Contains(client.last.System, "downsides") {
		t.Errorf("system prompt = %q, want con rules", client.last.System)
	}
}

func TestItemsAgent_RejectsInvalidOutput(t *testing.T) {
	client := &capturingClient{content: `{"items":"just one"}`}
	agent, _ := Build(models.TaskFacts, client)

	if _, err := agent.Run(context.Background(), testContext, nil); err == nil {
		t.Error("Run() error = nil, want validation failure")
	}
}

func TestPlannerAgent_KeepsRawRequiredAgents(t *testing.T) {
	raw := `{"required_agents":["facts","bogus"],"rationale":"r"}`
	client := &capturingClient{content: raw}
	agent, _ := Build(models.TaskPlanner, client)

	result, err := agent.Run(context.Background(), testContext, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(result.Output) != raw {
		t.Errorf("Output = %s, want unmodified %s", result.Output, raw)
	}
	example, _ := json.Marshal(client.last.Example)
	if !strings.Contains(string(example), `"required_agents":["facts","pro","con","risk"]`) {
		t.Errorf("example = %s", example)
	}
}

func TestSynthAgent_InputsDefaultToEmpty(t *testing.T) {
	client := &capturingClient{content: `{"recommendation":"gather_more_info","confidence":"low","rationale":"r","key_tradeoffs":[],"next_steps":[],"open_questions":[]}`}
	agent, _ := Build(models.TaskSynth, client)

	inputs := Inputs{models.TaskFacts: json.RawMessage(`{"items":["fact one"]}`)}
	if _, err := agent.Run(context.Background(), testContext, inputs); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	user := client.last.User
	if !strings.Contains(user, "Facts json:\n{\"items\":[\"fact one\"]}") {
		t.Errorf("user prompt missing facts input: %q", user)
	}
	for _, label := range []string{"Pros", "Cons", "Risks"} {
		if !strings.Contains(user, label+" json:\n{}") {
			t.Errorf("user prompt missing empty %s input: %q", label, user)
		}
	}
}

func TestItemsAgent_StoresCanonicalOutput(t *testing.T) {
	client := &capturingClient{content: `{ "notes": "dropped", "items": ["a", "b"] }`}
	agent, _ := Build(models.TaskRisk, client)

	result, err := agent.Run(context.Background(), testContext, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(result.Output) != `{"items":["a","b"]}` {
		t.Errorf("Output = %s, want the encoded items only", result.Output)
	}
}
