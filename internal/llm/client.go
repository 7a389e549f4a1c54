package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"decision-copilot/internal/config"
	"decision-copilot/internal/models"

	"github.com/sashabaranov/go-openai"
)

// Errors returned for unusable model output
var (
	ErrEmptyContent = errors.New("empty JSON content returned by model")
	ErrInvalidJSON  = errors.New("model did not return valid JSON")
	ErrNotObject    = errors.New("model JSON output is not an object")
)

// maxRawInError bounds how much of a bad response is echoed into errors
const maxRawInError = 4000

// JSONRequest is one JSON-mode chat completion
type JSONRequest struct {
	Task    models.TaskName // used by the mock and for logging
	System  string
	User    string
	Example interface{} // shown to the model as the expected output shape
}

// JSONResponse holds the raw JSON object returned by the model
type JSONResponse struct {
	Content json.RawMessage
	Model   string
}

// Client produces a single JSON object for a prompt
type Client interface {
	ChatJSON(ctx context.Context, req JSONRequest) (*JSONResponse, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint (DeepSeek by default)
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates a client from the LLM configuration
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

// ChatJSON requests JSON output mode and returns the parsed object verbatim
func (c *OpenAIClient) ChatJSON(ctx context.Context, req JSONRequest) (*JSONResponse, error) {
	system, user, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion for %s failed: %w", req.Task, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion for %s returned no choices", req.Task)
	}

	content, err := ParseJSONObject(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &JSONResponse{Content: content, Model: model}, nil
}

// BuildPrompt adds the JSON-mode instructions and the example to the task prompt
func BuildPrompt(req JSONRequest) (string, string, error) {
	example, err := json.MarshalIndent(req.Example, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode example for %s: %w", req.Task, err)
	}

	system := req.System + "\n\n" +
		"You must output valid JSON only.\n" +
		"The output MUST be a single JSON object and nothing else.\n" +
		"Here is an example JSON output format:\n" +
		string(example) + "\n"
	user := req.User + "\n\nRemember: output must be JSON."
	return system, user, nil
}

// ParseJSONObject accepts model content only if it is a single JSON object
func ParseJSONObject(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("%w. Raw content: %s", ErrInvalidJSON, truncate(content, maxRawInError))
	}
	if !bytes.HasPrefix([]byte(content), []byte("{")) {
		return nil, fmt.Errorf("%w. Raw content: %s", ErrNotObject, truncate(content, 200))
	}
	return json.RawMessage(content), nil
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
