// Package start provides the entry-point node implementation for workflow graph execution.
package start

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// StartNode marks a traversal entry point and passes the run input through
// unchanged. The engine feeds the execution's global input to its main port.
type StartNode struct {
	id string
}

// NewStartNode creates a new start node.
func NewStartNode(id string, _ map[string]any) (*StartNode, error) {
	return &StartNode{id: id}, nil
}

// ID returns the node ID.
func (n *StartNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *StartNode) Type() string {
	return models.NodeTypeStart
}

// Execute passes the input through on the main output port.
func (n *StartNode) Execute(_ context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	data := state.Input
	if in, ok := inputs[InputPortMain]; ok && in.Data != nil {
		data = in.Data
	}

	if data == nil {
		data = map[string]any{}
	}

	return map[string]models.NodeResult{
		OutputPortMain: {
			NodeID: n.id,
			Data:   data,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// InputPorts returns the input ports for the node. Start nodes accept no
// incoming connections; the main port exists only for the engine to feed
// the global input.
func (n *StartNode) InputPorts() []models.InputPort {
	return []models.InputPort{}
}

// OutputPorts returns the output ports for the node.
func (n *StartNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMain),
				NodeID:      n.id,
				Name:        OutputPortMain,
				Description: "Run input passed through unchanged",
				Schema: map[string]any{
					"type": "object",
				},
			},
		},
	}
}
