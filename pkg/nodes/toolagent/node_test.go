package toolagent

import (
	"context"
	"errors"
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
)

// stubCatalog resolves a single tool and records the arguments it was given.
type stubCatalog struct {
	name   string
	args   map[string]any
	result map[string]any
	err    error
}

func (c *stubCatalog) Invoke(_ context.Context, name string, args map[string]any) (map[string]any, error) {
	c.name = name
	c.args = args

	return c.result, c.err
}

func (c *stubCatalog) Tools() []string {
	return []string{"web_search"}
}

func TestToolAgentNode_Execute_InvokesToolWithRenderedArguments(t *testing.T) {
	catalog := &stubCatalog{
		result: map[string]any{"hits": 3},
	}

	config := map[string]any{
		"tool": "web_search",
		"arguments": map[string]any{
			"query": "{{.variables.topic}}",
			"limit": 5,
		},
	}

	node, err := NewToolAgentNode("test-tool", config, catalog)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Variables:   map[string]any{"topic": "golang"},
	}

	results, err := node.Execute(t.Context(), state, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if catalog.name != "web_search" {
		t.Errorf("Expected web_search to be invoked, got: %s", catalog.name)
	}

	if catalog.args["query"] != "golang" {
		t.Errorf("Expected rendered query argument, got: %v", catalog.args["query"])
	}

	if catalog.args["limit"] != 5 {
		t.Errorf("Expected non-string argument to pass through, got: %v", catalog.args["limit"])
	}

	result, ok := results[OutputPortSuccess]
	if !ok {
		t.Fatal("Expected success output port to be activated")
	}

	if result.Data["hits"] != 3 {
		t.Errorf("Expected tool result data, got: %v", result.Data)
	}
}

func TestToolAgentNode_Execute_ToolErrorUsesErrorPort(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("quota exceeded")}

	node, err := NewToolAgentNode("test-tool", map[string]any{"tool": "web_search"}, catalog)
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

	if errorResult.Status != string(models.NodeStatusError) {
		t.Errorf("Expected error status, got: %s", errorResult.Status)
	}
}

func TestToolAgentNode_Execute_WithoutCatalogUsesErrorPort(t *testing.T) {
	node, err := NewToolAgentNode("test-tool", map[string]any{"tool": "web_search"}, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{}, map[string]models.NodeResult{})
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	if _, ok := results[OutputPortError]; !ok {
		t.Fatal("Expected error output port without a configured catalog")
	}
}

func TestNewToolAgentNode_RequiresTool(t *testing.T) {
	if _, err := NewToolAgentNode("test-tool", map[string]any{}, &stubCatalog{}); err == nil {
		t.Error("Expected error for missing tool")
	}

	if _, err := NewToolAgentNode("test-tool", map[string]any{"tool": ""}, &stubCatalog{}); err == nil {
		t.Error("Expected error for empty tool name")
	}
}

func TestToolAgentNode_Ports(t *testing.T) {
	node, err := NewToolAgentNode("test-tool", map[string]any{"tool": "web_search"}, nil)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	inputPorts := node.InputPorts()
	if len(inputPorts) != 1 || inputPorts[0].Name != InputPortMain {
		t.Errorf("Expected a single main input port, got: %v", inputPorts)
	}

	outputPorts := node.OutputPorts()
	if len(outputPorts) != 2 {
		t.Errorf("Expected 2 output ports, got: %d", len(outputPorts))
	}
}
