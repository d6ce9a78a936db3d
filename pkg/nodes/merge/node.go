// Package merge provides the fan-in node implementation for workflow graph execution.
package merge

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"

	"github.com/flowion-ai/flowion/pkg/models"
)

const (
	OutputPortMerged = "merged"
	OutputPortError  = "error"

	StrategyMerge  = "merge"
	StrategyKeyed  = "keyed"
	StrategyConcat = "concat"
)

// MergeNode joins multiple branches into a single result. The engine already
// waits for every feeding branch before dispatching the node, so the node's
// only job is combining the per-port data according to its strategy. Ports
// whose branch was pruned upstream simply never arrive and are skipped.
type MergeNode struct {
	id         string
	inputPorts []string
	strategy   string
}

// NewMergeNode creates a new merge node.
func NewMergeNode(id string, config map[string]any) (*MergeNode, error) {
	// Parse input ports (required)
	inputPortsAny, ok := config["input_ports"].([]any)
	if !ok {
		return nil, errors.New("missing required field 'input_ports'")
	}

	if len(inputPortsAny) < 2 {
		return nil, errors.New("merge node requires at least 2 input ports")
	}

	inputPorts := make([]string, len(inputPortsAny))

	for i, port := range inputPortsAny {
		portStr, ok := port.(string)
		if !ok {
			return nil, fmt.Errorf("input_port %d must be a string", i)
		}

		inputPorts[i] = portStr
	}

	// Parse strategy (optional, defaults to deep merge)
	strategy := StrategyMerge
	if s, ok := config["strategy"].(string); ok {
		strategy = s
	}

	switch strategy {
	case StrategyMerge, StrategyKeyed, StrategyConcat:
	default:
		return nil, fmt.Errorf("invalid strategy: %s (must be 'merge', 'keyed', or 'concat')", strategy)
	}

	return &MergeNode{
		id:         id,
		inputPorts: inputPorts,
		strategy:   strategy,
	}, nil
}

// ID returns the node ID.
func (n *MergeNode) ID() string {
	return n.id
}

// Type returns the node type.
func (n *MergeNode) Type() string {
	return models.NodeTypeMerge
}

// Execute combines the arrived inputs in declared port order and emits the
// result on the merged port.
func (n *MergeNode) Execute(_ context.Context, _ models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error) {
	var data map[string]any

	switch n.strategy {
	case StrategyKeyed:
		data = n.mergeKeyed(inputs)
	case StrategyConcat:
		data = n.mergeConcat(inputs)
	default:
		merged, err := n.mergeDeep(inputs)
		if err != nil {
			return n.createErrorResult(err.Error()), nil
		}

		data = merged
	}

	return map[string]models.NodeResult{
		OutputPortMerged: {
			NodeID: n.id,
			Data:   data,
			Status: string(models.NodeStatusSuccess),
		},
	}, nil
}

// mergeDeep folds every arrived input into one object. Later declared ports
// override earlier ones on key conflicts.
func (n *MergeNode) mergeDeep(inputs map[string]models.NodeResult) (map[string]any, error) {
	merged := map[string]any{}

	for _, port := range n.inputPorts {
		in, ok := inputs[port]
		if !ok || in.Data == nil {
			continue
		}

		if err := mergo.Merge(&merged, in.Data, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge input '%s': %w", port, err)
		}
	}

	return merged, nil
}

// mergeKeyed nests every arrived input under its port name.
func (n *MergeNode) mergeKeyed(inputs map[string]models.NodeResult) map[string]any {
	data := make(map[string]any, len(inputs))

	for _, port := range n.inputPorts {
		if in, ok := inputs[port]; ok && in.Data != nil {
			data[port] = in.Data
		}
	}

	return data
}

// mergeConcat collects every arrived input into a list under "items".
func (n *MergeNode) mergeConcat(inputs map[string]models.NodeResult) map[string]any {
	items := make([]any, 0, len(inputs))

	for _, port := range n.inputPorts {
		if in, ok := inputs[port]; ok && in.Data != nil {
			items = append(items, in.Data)
		}
	}

	return map[string]any{"items": items}
}

// createErrorResult creates a NodeResult for the error output port.
func (n *MergeNode) createErrorResult(errorMessage string) map[string]models.NodeResult {
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

// InputPorts returns the input ports for the node (dynamic based on configuration).
func (n *MergeNode) InputPorts() []models.InputPort {
	ports := make([]models.InputPort, 0, len(n.inputPorts))

	for _, port := range n.inputPorts {
		ports = append(ports, models.InputPort{
			Port: models.Port{
				ID:          models.MakePortID(n.id, port),
				NodeID:      n.id,
				Name:        port,
				Description: fmt.Sprintf("Input from branch '%s'", port),
			},
		})
	}

	return ports
}

// OutputPorts returns the output ports for the node.
func (n *MergeNode) OutputPorts() []models.OutputPort {
	return []models.OutputPort{
		{
			Port: models.Port{
				ID:          models.MakePortID(n.id, OutputPortMerged),
				NodeID:      n.id,
				Name:        OutputPortMerged,
				Description: "Combined data from the joined branches",
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
				Description: "Error information when combining inputs fails",
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
