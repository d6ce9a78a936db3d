// Package llmagent provides the LLM chat completion node implementation for workflow graph execution.
package llmagent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"

	defaultBaseURL        = "https://api.openai.com/v1"
	defaultAPIKeyEnv      = "OPENAI_API_KEY"
	defaultTimeoutSeconds = 60
)

// LLMAgentNode calls an OpenAI-compatible chat completion endpoint. The
// prompt and system prompt are rendered against the execution state; calls
// share the factory's rate limiter and retry transient failures with
// exponential backoff.
type LLMAgentNode struct {
	id           string
	model        string
	prompt       string
	systemPrompt string
	temperature  float64
	maxTokens    int
	baseURL      string
	apiKeyEnv    string
	settings     models.ExecutionSettings
	limiter      *rate.Limiter
	client       *http.Client
}

// chatMessage is one message in an OpenAI-compatible conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completion request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatChoice is one completion choice in the response.
type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

// chatUsage reports token consumption for the call.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatResponse is the OpenAI-compatible chat completion response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// chatErrorResponse is the OpenAI-compatible error body.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewLLMAgentNode creates a new LLM chat completion node.
func NewLLMAgentNode(id string, config map[string]any, limiter *rate.Limiter) (*LLMAgentNode, error) {
	// Parse model (required)
	model, ok := config["model"].(string)
	if !ok || model == "" {
		return nil, errors.New("missing required field 'model'")
	}

	// Parse prompt (required)
	prompt, ok := config["prompt"].(string)
	if !ok || prompt == "" {
		return nil, errors.New("missing required field 'prompt'")
	}

	node := &LLMAgentNode{
		id:        id,
		model:     model,
		prompt:    prompt,
		baseURL:   defaultBaseURL,
		apiKeyEnv: defaultAPIKeyEnv,
		settings:  models.ParseExecutionSettings(config),
		limiter:   limiter,
	}

	// Parse optional fields
	if systemPrompt, ok := config["system_prompt"].(string); ok {
		node.systemPrompt = systemPrompt
	}

	if temperature, ok := config["temperature"].(float64); ok {
		node.temperature = temperature
	}

	if maxTokens, ok := models.ConfigInt(config, "max_tokens"); ok && maxTokens > 0 {
		node.maxTokens = maxTokens
	}

	if baseURL, ok := config["base_url"].(string); ok && baseURL != "" {
		node.baseURL = baseURL
	} else if envURL := os.Getenv("OPENAI_BASE_URL"); envURL != "" {
		node.baseURL = envURL
	}

	if apiKeyEnv, ok := config["api_key_env"].(string); ok && apiKeyEnv != "" {
		node.apiKeyEnv = apiKeyEnv
	}

	timeout := defaultTimeoutSeconds
	if v, ok := models.ConfigInt(config, "timeout"); ok && v > 0 {
		timeout = v
	}

	node.client = &http.Client{
		Timeout: time.Duration(timeout) * time.Second,
	}

	return node, nil
}

// ID returns the node ID.
func (n *LLMAgentNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *LLMAgentNode) Type() string {
	return models.NodeTypeLLMAgent
}

// Execute renders the prompts, performs the chat completion, and emits the
// assistant response on the success port.
func (n *LLMAgentNode) Execute(ctx context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	apiKey := os.Getenv(n.apiKeyEnv)
	if apiKey == "" {
		return n.createErrorResult(fmt.Sprintf("environment variable '%s' is not set", n.apiKeyEnv)), nil
	}

	messages, err := n.buildMessages(&state)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("failed to render prompt: %v", err)), nil
	}

	response, err := n.complete(ctx, apiKey, messages)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("chat completion failed: %v", err)), nil
	}

	if len(response.Choices) == 0 {
		return n.createErrorResult("chat completion returned no choices"), nil
	}

	choice := response.Choices[0]

	data := map[string]any{
		"response":      choice.Message.Content,
		"model":         response.Model,
		"finish_reason": choice.FinishReason,
	}

	if response.Usage != nil {
		data["usage"] = map[string]any{
			"prompt_tokens":     response.Usage.PromptTokens,
			"completion_tokens": response.Usage.CompletionTokens,
			"total_tokens":      response.Usage.TotalTokens,
		}
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data:   data,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// buildMessages renders the configured prompts into a conversation.
func (n *LLMAgentNode) buildMessages(state *models.ExecutionState) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, 2)

	if n.systemPrompt != "" {
		rendered, err := template.RenderWithState(n.systemPrompt, state)
		if err != nil {
			return nil, err
		}

		messages = append(messages, chatMessage{Role: "system", Content: fmt.Sprintf("%v", rendered)})
	}

	rendered, err := template.RenderWithState(n.prompt, state)
	if err != nil {
		return nil, err
	}

	messages = append(messages, chatMessage{Role: "user", Content: fmt.Sprintf("%v", rendered)})

	return messages, nil
}

// complete performs the chat completion with rate limiting and retries.
// Rate-limit and server errors retry; other client errors are permanent.
func (n *LLMAgentNode) complete(ctx context.Context, apiKey string, messages []chatMessage) (*chatResponse, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       n.model,
		Messages:    messages,
		Temperature: n.temperature,
		MaxTokens:   n.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var response *chatResponse

	operation := func() error {
		if n.limiter != nil {
			if err := n.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		var opErr error

		response, opErr = n.performRequest(ctx, apiKey, payload)

		return opErr
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(n.settings.RetryDelayMs) * time.Millisecond

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(n.settings.RetryCount)), ctx))
	if err != nil {
		return nil, err
	}

	return response, nil
}

// performRequest executes a single chat completion round trip.
func (n *LLMAgentNode) performRequest(ctx context.Context, apiKey string, payload []byte) (*chatResponse, error) {
	endpoint := strings.TrimRight(n.baseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := apiErrorMessage(body)

		// 429 and 5xx are transient; everything else is a caller problem.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, message)
		}

		return nil, backoff.Permanent(fmt.Errorf("HTTP %d: %s", resp.StatusCode, message))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}

	return &response, nil
}

// apiErrorMessage extracts the error message from an OpenAI-compatible error
// body, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var errResp chatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return string(body)
}

// createErrorResult creates a NodeResult for the error output port.
func (n *LLMAgentNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
	return map[string]models.NodeResult{
		OutputPortError: {
			NodeID: n.id,
			Data: map[string]any{
				"error":   errorMessage,
				"success": false,
			},
			Status: string(models.NodeStatusError),
		},
	}
}

// InputPorts returns the input ports for the node.
func (n *LLMAgentNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the chat completion",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *LLMAgentNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Assistant response and token usage",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"response":      map[string]any{"type": "string", "description": "The assistant message content"},
						"model":         map[string]any{"type": "string"},
						"finish_reason": map[string]any{"type": "string"},
						"usage":         map[string]any{"type": "object"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the chat completion fails",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error":   map[string]any{"type": "string"},
						"success": map[string]any{"type": "boolean"},
					},
				},
			},
		},
	}
}
