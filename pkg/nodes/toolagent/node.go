// Package toolagent provides the tool invocation node implementation for workflow graph execution.
package toolagent

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"
)

// ToolAgentNode invokes a named tool from the injected tool catalog. String
// argument values are rendered against the execution state before the call.
type ToolAgentNode struct {
	id        string
	tool      string
	arguments map[string]any
	catalog   protocol.ToolCatalog
}

// NewToolAgentNode creates a new tool invocation node.
func NewToolAgentNode(id string, config map[string]any, catalog protocol.ToolCatalog) (*ToolAgentNode, error) {
	// Parse tool name (required)
	tool, ok := config["tool"].(string)
	if !ok || tool == "" {
		return nil, errors.New("missing required field 'tool'")
	}

	// Parse arguments (optional)
	arguments := map[string]any{}
	if args, ok := config["arguments"].(map[string]any); ok {
		arguments = args
	}

	return &ToolAgentNode{
		id:        id,
		tool:      tool,
		arguments: arguments,
		catalog:   catalog,
	}, nil
}

// ID returns the node ID.
func (n *ToolAgentNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *ToolAgentNode) Type() string {
	return models.NodeTypeToolAgent
}

// Execute renders the arguments, invokes the tool, and emits its result on
// the success port.
func (n *ToolAgentNode) Execute(ctx context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	if n.catalog == nil {
		return n.createErrorResult("no tool catalog configured"), nil
	}

	args, err := renderArguments(n.arguments, &state)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("failed to render tool arguments: %v", err)), nil
	}

	result, err := n.catalog.Invoke(ctx, n.tool, args)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("tool '%s' failed: %v", n.tool, err)), nil
	}

	if result == nil {
		result = map[string]any{}
	}

	return map[string]models.NodeResult{
		OutputPortSuccess: {
			NodeID: n.id,
			Data:   result,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// renderArguments renders string argument values against the execution state.
// Non-string values pass through untouched.
func renderArguments(arguments map[string]any, state *models.ExecutionState) (map[string]any, error) {
	rendered := make(map[string]any, len(arguments))

	for key, value := range arguments {
		strValue, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		result, err := template.RenderWithState(strValue, state)
		if err != nil {
			return nil, fmt.Errorf("argument '%s': %w", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}

// createErrorResult creates a NodeResult for the error output port.
func (n *ToolAgentNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
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
func (n *ToolAgentNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the tool invocation",
			},
		},
	}
}

// OutputPorts returns the output ports for the node.
func (n *ToolAgentNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortSuccess),
				NodeID:      n.id,
				Name:        OutputPortSuccess,
				Description: "Result returned by the invoked tool",
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
				Description: "Error information when the tool invocation fails",
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
