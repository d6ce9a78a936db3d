// Package checkpoint provides the state snapshot node factory for registry integration.
package checkpoint

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// CheckpointNodeFactory creates CheckpointNode instances bound to a snapshotter.
type CheckpointNodeFactory struct {
	snapshotter protocol.Snapshotter
}

// Create creates a new CheckpointNode instance.
func (f *CheckpointNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewCheckpointNode(node.ID, node.Config, f.snapshotter)
}

// ID returns the factory ID.
func (f *CheckpointNodeFactory) ID() string {
	return models.NodeTypeCheckpoint
}

// Name returns the factory name.
func (f *CheckpointNodeFactory) Name() string {
	return "Checkpoint"
}

// Description returns the factory description.
func (f *CheckpointNodeFactory) Description() string {
	return "Persists a snapshot of the execution state before traversal continues. The input passes through unchanged."
}

// Schema returns the JSON schema for Checkpoint node configuration.
func (f *CheckpointNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{
				"type":        "string",
				"description": "Human-readable label stored with the snapshot. Defaults to the node ID.",
				"examples":    []string{"before-approval", "after-enrichment"},
			},
		},
	}
}

// NewCheckpointNodeFactory creates a new factory instance. The snapshotter
// may be nil, in which case created nodes fail at execution time.
func NewCheckpointNodeFactory(snapshotter protocol.Snapshotter) protocol.NodeFactory {
	return &CheckpointNodeFactory{snapshotter: snapshotter}
}
