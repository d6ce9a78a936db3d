// Package checkpoint provides the state snapshot node implementation for workflow graph execution.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

const (
	OutputPortMain  = "main"
	OutputPortError = "error"
	InputPortMain   = "main"
)

// CheckpointNode persists a snapshot of the accumulated execution state
// before traversal continues past it. The input passes through unchanged.
type CheckpointNode struct {
	id          string
	label       string
	snapshotter protocol.Snapshotter
}

// NewCheckpointNode creates a new checkpoint node.
func NewCheckpointNode(id string, config map[string]any, snapshotter protocol.Snapshotter) (*CheckpointNode, error) {
	// Parse label (optional, defaults to the node ID)
	label := id
	if l, ok := config["label"].(string); ok && l != "" {
		label = l
	}

	return &CheckpointNode{
		id:          id,
		label:       label,
		snapshotter: snapshotter,
	}, nil
}

// ID returns the node ID.
func (n *CheckpointNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *CheckpointNode) Type() string {
	return models.NodeTypeCheckpoint
}

// Execute saves a snapshot of the execution state and passes the input through.
func (n *CheckpointNode) Execute(ctx context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	if n.snapshotter == nil {
		return n.createErrorResult("no snapshot recorder configured"), nil
	}

	if err := n.snapshotter.SaveSnapshot(ctx, state.ExecutionID, n.id, n.labeledState(state)); err != nil {
		return n.createErrorResult(fmt.Sprintf("snapshot failed: %v", err)), nil
	}

	data := map[string]any{}
	if in, ok := inputs[InputPortMain]; ok && in.Data != nil {
		data = in.Data
	}

	return map[string]models.NodeResult{
		OutputPortMain: {
			NodeID: n.id,
			Data:   data,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// labeledState returns a copy of the state whose metadata carries the
// checkpoint label, without touching the caller's maps.
func (n *CheckpointNode) labeledState(state models.ExecutionState) models.ExecutionState {
	metadata := make(map[string]any, len(state.Metadata)+1)
	for k, v := range state.Metadata {
		metadata[k] = v
	}

	metadata["checkpoint_label"] = n.label
	state.Metadata = metadata

	return state
}

// createErrorResult creates a NodeResult for the error output port.
func (n *CheckpointNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
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
func (n *CheckpointNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Input captured in the snapshot and passed through",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *CheckpointNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMain),
				NodeID:      n.id,
				Name:        OutputPortMain,
				Description: "Input passed through after the snapshot is persisted",
				Schema: map[string]any{
					"type": "object",
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when the snapshot cannot be persisted",
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
