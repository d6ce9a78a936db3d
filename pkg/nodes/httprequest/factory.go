// Package httprequest provides the HTTP request node factory for registry integration.
package httprequest

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// HTTPRequestNodeFactory creates HTTPRequestNode instances.
type HTTPRequestNodeFactory struct{}

// Create creates a new HTTPRequestNode instance.
func (f *HTTPRequestNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewHTTPRequestNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *HTTPRequestNodeFactory) ID() string {
	return models.NodeTypeHTTPRequest
}

// Name returns the factory name.
func (f *HTTPRequestNodeFactory) Name() string {
	return "HTTP Request"
}

// Description returns the factory description.
func (f *HTTPRequestNodeFactory) Description() string {
	return "Performs HTTP requests with retry backoff and separate success/error output ports"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *HTTPRequestNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "HTTP URL to request. Supports templating with execution state data.",
				"examples": []string{
					"https://api.example.com/users",
					"{{.nodes.get_user_id.user_url}}",
					"https://{{.variables.api_host}}/orders/{{.input.order_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers. Values support templating",
				"examples": []map[string]any{
					{"Authorization": "Bearer {{.variables.api_token}}"},
					{"Content-Type": "application/json", "User-Agent": "Flowion/1.0"},
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating for dynamic content",
				"examples": []string{
					`{"name": "{{.nodes.transform.user_name}}", "email": "{{.input.email}}"}`,
					`{{.nodes.previous_step.json}}`,
				},
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
			"retry_count": map[string]any{
				"type":        "number",
				"description": "Number of retries after a transient failure",
				"default":     0,
				"minimum":     0,
				"maximum":     10,
			},
			"retry_delay_ms": map[string]any{
				"type":        "number",
				"description": "Initial backoff delay between retries in milliseconds",
				"default":     1000,
				"minimum":     0,
				"maximum":     30000,
			},
		},
		"required": []string{"url"},
		"examples": []map[string]any{
			{
				"url":    "https://api.github.com/user",
				"method": "GET",
				"headers": map[string]string{
					"Authorization": "Bearer {{.variables.github_token}}",
					"Accept":        "application/vnd.github.v3+json",
				},
			},
			{
				"url":            "{{.variables.webhook_url}}",
				"method":         "POST",
				"headers":        map[string]string{"Content-Type": "application/json"},
				"body":           `{"status": "completed", "result": {{.nodes.data_processing.result}}}`,
				"retry_count":    3,
				"retry_delay_ms": 1000,
			},
		},
	}
}

// NewHTTPRequestNodeFactory creates a new factory instance.
func NewHTTPRequestNodeFactory() protocol.NodeFactory {
	return &HTTPRequestNodeFactory{}
}
