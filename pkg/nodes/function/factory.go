// Package function provides the expression transform node factory for registry integration.
package function

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// FunctionNodeFactory creates FunctionNode instances.
type FunctionNodeFactory struct{}

// Create creates a new FunctionNode instance.
func (f *FunctionNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewFunctionNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *FunctionNodeFactory) ID() string {
	return models.NodeTypeFunction
}

// Name returns the factory name.
func (f *FunctionNodeFactory) Name() string {
	return "Function"
}

// Description returns the factory description.
func (f *FunctionNodeFactory) Description() string {
	return "Transforms data by rendering a template expression against the execution state. Results parse back to JSON objects, numbers, and booleans where possible."
}

// Schema returns the JSON schema for Function node configuration.
func (f *FunctionNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression to render. Has access to input, variables, node outputs, metadata, and environment.",
				"examples": []string{
					`{{.nodes.fetch_user.body.email}}`,
					`{"user": "{{.variables.user_name}}", "count": {{.nodes.count_items.result}}}`,
					`{{printf "%s-%s" .variables.region .execution.id}}`,
				},
			},
		},
		"required": []string{"expression"},
		"examples": []map[string]any{
			{
				"expression": `{"summary": "{{.nodes.llm.response}}", "at": "{{now}}"}`,
			},
			{
				"expression": `{{.input.payload}}`,
			},
		},
	}
}

// NewFunctionNodeFactory creates a new factory instance.
func NewFunctionNodeFactory() protocol.NodeFactory {
	return &FunctionNodeFactory{}
}
