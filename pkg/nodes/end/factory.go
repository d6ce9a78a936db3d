// Package end provides the terminal node factory for registry integration.
package end

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// EndNodeFactory creates EndNode instances.
type EndNodeFactory struct{}

// Create creates a new EndNode instance.
func (f *EndNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewEndNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *EndNodeFactory) ID() string {
	return models.NodeTypeEnd
}

// Name returns the factory name.
func (f *EndNodeFactory) Name() string {
	return "End"
}

// Description returns the factory description.
func (f *EndNodeFactory) Description() string {
	return "Terminates a workflow branch. The input it receives becomes part of the execution output."
}

// Schema returns the JSON schema for End node configuration.
func (f *EndNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// NewEndNodeFactory creates a new factory instance.
func NewEndNodeFactory() protocol.NodeFactory {
	return &EndNodeFactory{}
}
