package function

import (
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
)

func TestFunctionNode_Execute_StringResult(t *testing.T) {
	config := map[string]any{
		"expression": "User {{.variables.name}} scored {{.nodes.score.result}}",
	}

	node, err := NewFunctionNode("test-function", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Variables:   map[string]any{"name": "Alice"},
		NodeOutputs: map[string]map[string]any{
			"score": {"result": 42},
		},
	}

	results, err := node.Execute(t.Context(), state, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	result, ok := results[OutputPortSuccess]
	if !ok {
		t.Fatal("Expected success output port to be activated")
	}

	if result.Data["result"] != "User Alice scored 42" {
		t.Errorf("Unexpected result: %v", result.Data["result"])
	}
}

func TestFunctionNode_Execute_ObjectResult(t *testing.T) {
	config := map[string]any{
		"expression": `{"user": "{{.variables.name}}", "active": true}`,
	}

	node, err := NewFunctionNode("test-function", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Variables:   map[string]any{"name": "Alice"},
	}

	results, err := node.Execute(t.Context(), state, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	resultMap, ok := results[OutputPortSuccess].Data["result"].(map[string]any)
	if !ok {
		t.Fatalf("Expected object result, got: %T", results[OutputPortSuccess].Data["result"])
	}

	if resultMap["user"] != "Alice" || resultMap["active"] != true {
		t.Errorf("Unexpected object result: %v", resultMap)
	}
}

func TestFunctionNode_Execute_InvalidTemplateUsesErrorPort(t *testing.T) {
	config := map[string]any{
		"expression": "{{ nonexistent.function }}",
	}

	node, err := NewFunctionNode("test-function", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{}, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	errorResult, ok := results[OutputPortError]
	if !ok {
		t.Fatal("Expected error output port to be activated")
	}

	if errorResult.Data["success"] != false {
		t.Errorf("Expected success=false, got: %v", errorResult.Data["success"])
	}
}

func TestNewFunctionNode_RequiresExpression(t *testing.T) {
	if _, err := NewFunctionNode("test-function", map[string]any{}); err == nil {
		t.Error("Expected error for missing expression")
	}
}

func TestFunctionNode_Ports(t *testing.T) {
	config := map[string]any{"expression": "{{.input}}"}

	node, err := NewFunctionNode("test-function", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	inputPorts := node.InputPorts()
	if len(inputPorts) != 1 || inputPorts[0].Name != InputPortMain {
		t.Errorf("Expected a single main input port, got: %v", inputPorts)
	}

	outputPorts := node.OutputPorts()

	foundPorts := make(map[string]bool)
	for _, port := range outputPorts {
		foundPorts[port.Name] = true
	}

	if !foundPorts[OutputPortSuccess] || !foundPorts[OutputPortError] {
		t.Errorf("Expected success and error output ports, got: %v", foundPorts)
	}
}
