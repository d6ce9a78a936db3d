// Package llmagent provides the LLM chat completion node factory for registry integration.
package llmagent

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// Requests to the completion endpoint are throttled across every node the
// factory creates, so one busy workflow cannot starve the provider quota.
const (
	requestsPerSecond = 10
	requestBurst      = 5
)

// LLMAgentNodeFactory creates LLMAgentNode instances sharing one rate limiter.
type LLMAgentNodeFactory struct {
	limiter *rate.Limiter
}

// Create creates a new LLMAgentNode instance.
func (f *LLMAgentNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewLLMAgentNode(node.ID, node.Config, f.limiter)
}

// ID returns the factory ID.
func (f *LLMAgentNodeFactory) ID() string {
	return models.NodeTypeLLMAgent
}

// Name returns the factory name.
func (f *LLMAgentNodeFactory) Name() string {
	return "LLM Agent"
}

// Description returns the factory description.
func (f *LLMAgentNodeFactory) Description() string {
	return "Calls an OpenAI-compatible chat completion endpoint with a templated prompt. Calls are rate limited and retried on transient failures."
}

// Schema returns the JSON schema for LLM Agent node configuration.
func (f *LLMAgentNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"model": map[string]any{
				"type":        "string",
				"description": "Model identifier sent to the provider.",
				"examples":    []string{"gpt-4o-mini", "gpt-4o", "llama-3.1-70b"},
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "User prompt. Supports templating against the execution state.",
				"examples": []string{
					"Summarize: {{.nodes.fetch_article.body}}",
					"Classify the request '{{.input.message}}' as billing, support, or sales.",
				},
			},
			"system_prompt": map[string]any{
				"type":        "string",
				"description": "Optional system prompt. Supports templating against the execution state.",
			},
			"temperature": map[string]any{
				"type":        "number",
				"description": "Sampling temperature.",
				"minimum":     0,
				"maximum":     2,
			},
			"max_tokens": map[string]any{
				"type":        "integer",
				"description": "Upper bound on generated tokens.",
				"minimum":     1,
			},
			"base_url": map[string]any{
				"type":        "string",
				"description": "Base URL of the OpenAI-compatible API. Defaults to the OPENAI_BASE_URL environment variable, then the OpenAI endpoint.",
			},
			"api_key_env": map[string]any{
				"type":        "string",
				"description": "Name of the environment variable holding the API key.",
				"default":     defaultAPIKeyEnv,
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds.",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
			"retry_count": map[string]any{
				"type":        "integer",
				"description": "Number of retries after a transient failure.",
				"default":     0,
				"minimum":     0,
			},
			"retry_delay_ms": map[string]any{
				"type":        "integer",
				"description": "Initial backoff delay between retries in milliseconds.",
				"default":     1000,
				"minimum":     0,
			},
		},
		"required": []string{"model", "prompt"},
		"examples": []map[string]any{
			{
				"model":       "gpt-4o-mini",
				"prompt":      "Classify '{{.input.message}}' as billing, support, or sales. Answer with one word.",
				"temperature": 0.2,
				"retry_count": 2,
			},
		},
	}
}

// NewLLMAgentNodeFactory creates a new factory instance.
func NewLLMAgentNodeFactory() protocol.NodeFactory {
	return &LLMAgentNodeFactory{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}
