// Package conditional provides conditional branching node factory for registry integration.
package conditional

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// ConditionalNodeFactory creates ConditionalNode instances.
type ConditionalNodeFactory struct{}

// Create creates a new ConditionalNode instance.
func (f *ConditionalNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewConditionalNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *ConditionalNodeFactory) ID() string {
	return models.NodeTypeConditional
}

// Name returns the factory name.
func (f *ConditionalNodeFactory) Name() string {
	return "Conditional"
}

// Description returns the factory description.
func (f *ConditionalNodeFactory) Description() string {
	return "Evaluates a condition and routes execution to exactly one outgoing path. Supports boolean true/false routing and multi-way value cases."
}

// Schema returns the JSON schema for Conditional node configuration.
func (f *ConditionalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Condition expression to evaluate. Supports templating against the execution state.",
				"examples": []string{
					`{{.variables.status}} == "active"`,
					`{{.nodes.api_call.status_code}} == 200`,
					`{{gt .variables.count 10}}`,
					`{{and (.variables.enabled) (ne .variables.mode "test")}}`,
					`true`,
					`{{.variables.user_count}}`, // Non-zero numbers are truthy
				},
			},
			"cases": map[string]any{
				"type":        "array",
				"description": "Optional multi-way cases. The rendered condition value is matched against each case value; no match routes to the false port.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"value":       map[string]any{"type": "string"},
						"output_port": map[string]any{"type": "string"},
					},
					"required": []string{"value", "output_port"},
				},
			},
		},
		"required": []string{"condition"},
		"examples": []map[string]any{
			{
				"condition": `{{.variables.environment}} == "production"`,
			},
			{
				"condition": "{{.nodes.classify.category}}",
				"cases": []map[string]any{
					{"value": "billing", "output_port": "billing"},
					{"value": "support", "output_port": "support"},
				},
			},
		},
	}
}

// NewConditionalNodeFactory creates a new factory instance.
func NewConditionalNodeFactory() protocol.NodeFactory {
	return &ConditionalNodeFactory{}
}
