// Package toolagent provides the tool invocation node factory for registry integration.
package toolagent

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// ToolAgentNodeFactory creates ToolAgentNode instances bound to a tool catalog.
type ToolAgentNodeFactory struct {
	catalog protocol.ToolCatalog
}

// Create creates a new ToolAgentNode instance.
func (f *ToolAgentNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewToolAgentNode(node.ID, node.Config, f.catalog)
}

// ID returns the factory ID.
func (f *ToolAgentNodeFactory) ID() string {
	return models.NodeTypeToolAgent
}

// Name returns the factory name.
func (f *ToolAgentNodeFactory) Name() string {
	return "Tool Agent"
}

// Description returns the factory description.
func (f *ToolAgentNodeFactory) Description() string {
	return "Invokes a named tool from the configured tool catalog with templated arguments."
}

// Schema returns the JSON schema for Tool Agent node configuration.
func (f *ToolAgentNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool": map[string]any{
				"type":        "string",
				"description": "Name of the tool to invoke from the catalog.",
				"examples":    []string{"web_search", "send_email", "create_ticket"},
			},
			"arguments": map[string]any{
				"type":        "object",
				"description": "Arguments passed to the tool. String values support templating against the execution state.",
			},
		},
		"required": []string{"tool"},
		"examples": []map[string]any{
			{
				"tool": "web_search",
				"arguments": map[string]any{
					"query": "{{.nodes.classify.topic}}",
					"limit": 5,
				},
			},
		},
	}
}

// NewToolAgentNodeFactory creates a new factory instance. The catalog may be
// nil, in which case created nodes fail at execution time.
func NewToolAgentNodeFactory(catalog protocol.ToolCatalog) protocol.NodeFactory {
	return &ToolAgentNodeFactory{catalog: catalog}
}
