package start

import (
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
)

func TestStartNode_Execute_PassesRunInputThrough(t *testing.T) {
	node, err := NewStartNode("test-start", map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Input:       map[string]any{"x": 1.0},
	}

	results, err := node.Execute(t.Context(), state, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	result, ok := results[OutputPortMain]
	if !ok {
		t.Fatal("Expected main output port to be activated")
	}

	if result.Status != string(models.NodeStatusSuccess) {
		t.Errorf("Expected success status, got: %s", result.Status)
	}

	if result.Data["x"] != 1.0 {
		t.Errorf("Expected run input to pass through, got: %v", result.Data)
	}
}

func TestStartNode_Execute_PrefersFedInput(t *testing.T) {
	node, err := NewStartNode("test-start", map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Input:       map[string]any{"x": 1.0},
	}

	inputs := map[string]models.NodeResult{
		InputPortMain: {
			NodeID: "feeder",
			Data:   map[string]any{"y": 2.0},
			Status: string(models.NodeStatusSuccess),
		},
	}

	results, err := node.Execute(t.Context(), state, inputs)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if results[OutputPortMain].Data["y"] != 2.0 {
		t.Errorf("Expected fed input to win, got: %v", results[OutputPortMain].Data)
	}
}

func TestStartNode_Execute_NilInputBecomesEmptyMap(t *testing.T) {
	node, err := NewStartNode("test-start", map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{}, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if results[OutputPortMain].Data == nil {
		t.Error("Expected empty map, got nil data")
	}
}

func TestStartNode_Ports(t *testing.T) {
	node, err := NewStartNode("test-start", nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	if len(node.InputPorts()) != 0 {
		t.Errorf("Expected no input ports on an entry point, got: %d", len(node.InputPorts()))
	}

	outputPorts := node.OutputPorts()
	if len(outputPorts) != 1 {
		t.Fatalf("Expected 1 output port, got: %d", len(outputPorts))
	}

	if outputPorts[0].Name != OutputPortMain {
		t.Errorf("Expected main output port, got: %s", outputPorts[0].Name)
	}
}
