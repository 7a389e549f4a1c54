package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"decision-copilot/internal/models"
)

// MockModel is reported as the model of every mock response
const MockModel = "mock"

var mockResponses = map[models.TaskName]string{
	models.TaskPlanner: `{"required_agents":["facts","pro","con","risk"],"rationale":"Need balanced analysis before synthesis.","constraints":["Keep it concise."]}`,
	models.TaskFacts:   `{"items":["The decision affects an existing system.","Current behavior is documented."]}`,
	models.TaskPro:     `{"items":["The change simplifies day-to-day operations."]}`,
	models.TaskCon:     `{"items":["The change needs engineering time up front."]}`,
	models.TaskRisk:    `{"items":["The rollout may surface unknown dependencies."]}`,
	models.TaskSynth:   `{"recommendation":"conditional_go","confidence":"medium","rationale":"Benefits outweigh costs if the rollout is staged.","key_tradeoffs":["Speed versus safety"],"next_steps":["Run a pilot"],"open_questions":["Who owns the rollout?"]}`,
}

// MockClient returns canned, valid output per task. It is used when LLM_MOCK is
// set and in tests. Responses and Errors override the defaults per task.
type MockClient struct {
	Responses map[models.TaskName]string
	Errors    map[models.TaskName]error

	mu    sync.Mutex
	calls map[models.TaskName]int
}

// NewMockClient creates a mock with the default responses
func NewMockClient() *MockClient {
	return &MockClient{}
}

// ChatJSON returns the canned response for req.Task
func (m *MockClient) ChatJSON(ctx context.Context, req JSONRequest) (*JSONResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[models.TaskName]int)
	}
	m.calls[req.Task]++
	m.mu.Unlock()

	if err := m.Errors[req.Task]; err != nil {
		return nil, err
	}

	content, ok := m.Responses[req.Task]
	if !ok {
		content, ok = mockResponses[req.Task]
	}
	if !ok {
		return nil, fmt.Errorf("mock has no response for task %s", req.Task)
	}

	raw, err := ParseJSONObject(content)
	if err != nil {
		return nil, err
	}
	return &JSONResponse{Content: append(json.RawMessage{}, raw...), Model: MockModel}, nil
}

// Calls returns how often a task was requested
func (m *MockClient) Calls(task models.TaskName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[task]
}
