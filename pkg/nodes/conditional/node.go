// Package conditional provides conditional branching node implementation for workflow graph execution.
package conditional

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/template"
)

const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
	OutputPortError = "error"
	InputPortMain   = "main"
)

// ConditionalNode implements branching for workflow control flow. It
// evaluates a condition expression against the accumulated execution state
// and emits on exactly one output port; the engine traverses only the
// connections leaving that port.
//
// Without cases the rendered condition is coerced to a boolean and routed to
// the true or false port. With cases the rendered value is matched against
// the case values and routed to the matching port; no match falls back to
// the false port.
type ConditionalNode struct {
	id        string
	condition string
	cases     map[string]string // rendered value -> output port
}

// NewConditionalNode creates a new conditional branching node.
func NewConditionalNode(id string, config map[string]any) (*ConditionalNode, error) {
	// Parse condition (required)
	condition, ok := config["condition"].(string)
	if !ok {
		return nil, errors.New("missing required field 'condition'")
	}

	cases, err := parseCases(config)
	if err != nil {
		return nil, err
	}

	return &ConditionalNode{
		id:        id,
		condition: condition,
		cases:     cases,
	}, nil
}

// parseCases reads the optional case list from config.
func parseCases(config map[string]any) (map[string]string, error) {
	cases := make(map[string]string)

	casesConfig, ok := config["cases"].([]any)
	if !ok {
		return cases, nil
	}

	for i, caseAny := range casesConfig {
		caseMap, ok := caseAny.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("case %d must be an object", i)
		}

		caseValue, ok := caseMap["value"].(string)
		if !ok {
			return nil, fmt.Errorf("case %d missing 'value'", i)
		}

		outputPort, ok := caseMap["output_port"].(string)
		if !ok {
			return nil, fmt.Errorf("case %d missing 'output_port'", i)
		}

		cases[caseValue] = outputPort
	}

	return cases, nil
}

// ID returns the node ID.
func (n *ConditionalNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *ConditionalNode) Type() string {
	return models.NodeTypeConditional
}

// Execute evaluates the condition and routes to exactly one output port.
func (n *ConditionalNode) Execute(_ context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	result, err := template.RenderWithState(n.condition, &state)
	if err != nil {
		return n.createErrorResult(fmt.Sprintf("condition evaluation failed: %v", err)), nil
	}

	if len(n.cases) > 0 {
		return n.routeByCase(result), nil
	}

	isTrue := n.evaluateCondition(result)

	port := OutputPortFalse
	if isTrue {
		port = OutputPortTrue
	}

	return map[string]models.NodeResult{
		port: {
			NodeID: n.id,
			Data: map[string]any{
				"condition_result": isTrue,
				"evaluated_value":  result,
			},
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// routeByCase matches the rendered value against the configured cases.
func (n *ConditionalNode) routeByCase(result any) map[string]models.NodeResult {
	valueStr := fmt.Sprintf("%v", result)

	port, matched := n.cases[valueStr]
	if !matched {
		port = OutputPortFalse
	}

	return map[string]models.NodeResult{
		port: {
			NodeID: n.id,
			Data: map[string]any{
				"matched_value": valueStr,
				"output_port":   port,
				"matched":       matched,
			},
			Status: string(models.NodeStatusSuccess),
		},
	}
}

// evaluateCondition converts various types to boolean.
func (n *ConditionalNode) evaluateCondition(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		// Handle string boolean values
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		// Non-empty strings are truthy
		return v != ""
	case int, int64, int32:
		return v != 0
	case float64, float32:
		return v != 0.0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		// Unknown types default to false
		return false
	}
}

// createErrorResult creates a NodeResult for the error output port.
func (n *ConditionalNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
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
func (n *ConditionalNode) InputPorts() []models.InputPort {
	return []models.InputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, InputPortMain),
				NodeID:      n.id,
				Name:        InputPortMain,
				Description: "Main input for triggering the condition evaluation",
			},
		},
	}
}

// OutputPorts returns the output ports for the node, including one port per
// configured case.
func (n *ConditionalNode) OutputPorts() []models.OutputPort {
	ports := []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortTrue),
				NodeID:      n.id,
				Name:        OutputPortTrue,
				Description: "Execution path when the condition evaluates to true",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"condition_result": map[string]any{"type": "boolean"},
						"evaluated_value":  map[string]any{"type": "any"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortFalse),
				NodeID:      n.id,
				Name:        OutputPortFalse,
				Description: "Execution path when the condition evaluates to false or no case matches",
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"condition_result": map[string]any{"type": "boolean"},
						"evaluated_value":  map[string]any{"type": "any"},
					},
				},
			},
		},
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortError),
				NodeID:      n.id,
				Name:        OutputPortError,
				Description: "Error information when condition evaluation fails",
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

	for _, outputPort := range n.cases {
		if outputPort == OutputPortTrue || outputPort == OutputPortFalse || outputPort == OutputPortError {
			continue
		}

		ports = append(ports, models.OutputPort{
			Port: models.Port{
				ID:          models.MakePortID(n.id, outputPort),
				NodeID:      n.id,
				Name:        outputPort,
				Description: fmt.Sprintf("Execution path for case leading to '%s'", outputPort),
				Schema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"matched_value": map[string]any{"type": "string"},
						"output_port":   map[string]any{"type": "string"},
					},
				},
			},
		})
	}

	return ports
}
