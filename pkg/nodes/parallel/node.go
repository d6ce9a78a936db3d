// Package parallel provides the fan-out node implementation for workflow graph execution.
package parallel

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// ParallelNode marks a fan-out point. The node itself passes its input
// through on the main port; the engine detects the type and runs the
// connected targets concurrently, applying the join policy from this node's
// settings and merging successful target outputs keyed by target node ID.
type ParallelNode struct {
	id       string
	settings Settings
}

// NewParallelNode creates a new parallel fan-out node.
func NewParallelNode(id string, config map[string]any) (*ParallelNode, error) {
	settings, err := ParseSettings(config)
	if err != nil {
		return nil, err
	}

	return &ParallelNode{
		id:       id,
		settings: settings,
	}, nil
}

// ID returns the node ID.
func (n *ParallelNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *ParallelNode) Type() string {
	return models.NodeTypeParallel
}

// Settings returns the parsed fan-out settings for this node.
func (n *ParallelNode) Settings() Settings {
	return n.settings
}

// Execute passes the input through on the main port. Fan-out and join happen
// in the engine, which owns the dispatch of the connected targets.
func (n *ParallelNode) Execute(_ context.Context, _ models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
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
func (n *ParallelNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Input fanned out to every connected target",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *ParallelNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMain),
				NodeID:      n.id,
				Name:        OutputPortMain,
				Description: "Fan-out port; every connection leaving it becomes a concurrent branch",
				Schema: map[string]any{
					"type": "object",
				},
			},
		},
	}
}
