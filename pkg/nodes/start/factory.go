// Package start provides the entry-point node factory for registry integration.
package start

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// StartNodeFactory creates StartNode instances.
type StartNodeFactory struct{}

// Create creates a new StartNode instance.
func (f *StartNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewStartNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *StartNodeFactory) ID() string {
	return models.NodeTypeStart
}

// Name returns the factory name.
func (f *StartNodeFactory) Name() string {
	return "Start"
}

// Description returns the factory description.
func (f *StartNodeFactory) Description() string {
	return "Marks a workflow entry point. Receives the run input and passes it through unchanged."
}

// Schema returns the JSON schema for Start node configuration.
func (f *StartNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// NewStartNodeFactory creates a new factory instance.
func NewStartNodeFactory() protocol.NodeFactory {
	return &StartNodeFactory{}
}
