// Package function provides the expression transform node implementation for workflow graph execution.
package function

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"
)

// FunctionNode transforms data by rendering a template expression against
// the accumulated execution state.
type FunctionNode struct {
	id         string
	expression string
}

// NewFunctionNode creates a new transform node.
func NewFunctionNode(id string, config map[string]any) (*FunctionNode, error) {
	// Parse expression (required)
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	return &FunctionNode{
		id:         id,
		expression: expression,
	}, nil
}

// ID returns the node ID.
func (n *FunctionNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *FunctionNode) Type() string {
	return models.NodeTypeFunction
}

// Execute renders the expression and emits the result on the success port.
func (n *FunctionNode) Execute(_ context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	result, err := template.RenderWithState(n.expression, &state)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("transformation failed: %v", err)), nil
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data: map[string]any{
				"result": result,
			},
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// createErrorResult creates a NodeResult for the error output port.
func (n *FunctionNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
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
func (n *FunctionNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the transformation",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *FunctionNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Transformed data result",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"result": map[string]any{"type": "any", "description": "The transformed result"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when transformation fails",
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
