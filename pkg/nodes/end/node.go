// Package end provides the terminal node implementation for workflow graph execution.
package end

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// EndNode terminates a traversal branch. Its result on the main port is not
// routed anywhere; the engine collects it into the execution's output data.
type EndNode struct {
	id string
}

// NewEndNode creates a new end node.
func NewEndNode(id string, _ map[string]any) (*EndNode, error) {
	return &EndNode{id: id}, nil
}

// ID returns the node ID.
func (n *EndNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *EndNode) Type() string {
	return models.NodeTypeEnd
}

// Execute passes the accumulated input through on the main port.
func (n *EndNode) Execute(_ context.Context, _ models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
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

// InputPorts returns the input ports for the node.
func (n *EndNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Branch output collected into the execution result",
			},
		},
	}
}

// OutputPorts returns the output ports for the node. End nodes have no
// connectable outputs.
func (n *EndNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{}
}
