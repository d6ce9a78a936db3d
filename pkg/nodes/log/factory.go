// Package log provides the logging node factory for registry integration.
package log

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// LogNodeFactory creates LogNode instances.
type LogNodeFactory struct{}

// Create creates a new LogNode instance.
func (f *LogNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewLogNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *LogNodeFactory) ID() string {
	return models.NodeTypeLog
}

// Name returns the factory name.
func (f *LogNodeFactory) Name() string {
	return "Log"
}

// Description returns the factory description.
func (f *LogNodeFactory) Description() string {
	return "Logs a templated message at a chosen level (debug, info, warn, error) and passes its input through"
}

// Schema returns the JSON schema for Log node configuration.
func (f *LogNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with execution state data.",
				"examples": []string{
					"Processing user: {{.variables.user_name}}",
					"Workflow {{.execution.workflow_id}} started",
					"API call result: {{.nodes.api_call.status_code}}",
					"Error processing item {{.variables.item_id}}: {{.nodes.validation.error}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
				"examples":    []string{"info", "warn", "error", "debug"},
			},
		},
		"required": []string{"message"},
		"examples": []map[string]any{
			{
				"message": "Starting run for user {{.variables.user_id}}",
				"level":   "info",
			},
			{
				"message": "API call failed: {{.nodes.http_request.error}}",
				"level":   "error",
			},
			{
				"message": "Processing {{len .input.items}} items",
				"level":   "debug",
			},
		},
	}
}

// NewLogNodeFactory creates a new factory instance.
func NewLogNodeFactory() protocol.NodeFactory {
	return &LogNodeFactory{}
}
