package log

import (
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
)

func TestLogNode_Execute_Info(t *testing.T) {
	config := map[string]any{
		"message": "Processing user: {{.variables.user_name}}",
		"level":   "info",
	}

	node, err := NewLogNode("test-log", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
		Variables:   map[string]any{"user_name": "john_doe"},
	}

	results, err := node.Execute(t.Context(), state, make(map[string]models.NodeResult))
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	successResult, ok := results[OutputPortSuccess]
	if !ok {
		t.Fatal("Expected success output port to be activated")
	}

	if successResult.Status != string(models.NodeStatusSuccess) {
		t.Errorf("Expected success status, got: %s", successResult.Status)
	}

	if message, ok := successResult.Data["message"].(string); ok {
		if message != "Processing user: john_doe" {
			t.Errorf("Expected 'Processing user: john_doe', got: %s", message)
		}
	} else {
		t.Error("Expected message field in result data")
	}

	if level, ok := successResult.Data["level"].(string); ok {
		if level != "info" {
			t.Errorf("Expected level 'info', got: %s", level)
		}
	} else {
		t.Error("Expected level field in result data")
	}
}

func TestLogNode_Execute_DefaultLevel(t *testing.T) {
	// No level configured, should default to info.
	config := map[string]any{
		"message": "Default level message",
	}

	node, err := NewLogNode("test-log-default", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
	}

	results, err := node.Execute(t.Context(), state, make(map[string]models.NodeResult))
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	successResult := results[OutputPortSuccess]
	if level, ok := successResult.Data["level"].(string); ok {
		if level != "info" {
			t.Errorf("Expected default level 'info', got: %s", level)
		}
	}
}

func TestLogNode_Execute_PassesInputThrough(t *testing.T) {
	config := map[string]any{
		"message": "checkpoint reached",
	}

	node, err := NewLogNode("test-log-forward", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	inputs := map[string]models.NodeResult{
		"main": {
			NodeID: "upstream",
			Data:   map[string]any{"order_id": "ord-1", "total": 42.5},
			Status: string(models.NodeStatusSuccess),
		},
	}

	results, err := node.Execute(t.Context(), models.ExecutionState{ExecutionID: "test-exec"}, inputs)
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	data := results[OutputPortSuccess].Data
	if data["order_id"] != "ord-1" {
		t.Errorf("Expected forwarded order_id, got: %v", data["order_id"])
	}

	if data["total"] != 42.5 {
		t.Errorf("Expected forwarded total, got: %v", data["total"])
	}
}

func TestLogNode_Execute_TemplateError(t *testing.T) {
	// Invalid template syntax (missing closing brace).
	config := map[string]any{
		"message": "Invalid template: {{.variables.user",
		"level":   "info",
	}

	node, err := NewLogNode("test-log-template-error", config)
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	state := models.ExecutionState{
		ExecutionID: "test-exec",
		WorkflowID:  "test-workflow",
	}

	results, err := node.Execute(t.Context(), state, make(map[string]models.NodeResult))
	if err != nil {
		t.Fatalf("Node execution failed: %v", err)
	}

	errorResult, ok := results[OutputPortError]
	if !ok {
		t.Fatal("Expected error output port to be activated for template error")
	}

	if errorResult.Status != string(models.NodeStatusError) {
		t.Errorf("Expected error status, got: %s", errorResult.Status)
	}
}

func TestNewLogNode_ConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{
			name:    "missing message",
			config:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "valid config with message only",
			config:  map[string]any{"message": "test message"},
			wantErr: false,
		},
		{
			name:    "valid config with level",
			config:  map[string]any{"message": "test", "level": "debug"},
			wantErr: false,
		},
		{
			name:    "invalid level",
			config:  map[string]any{"message": "test", "level": "invalid"},
			wantErr: true,
		},
		{
			name:    "warn level",
			config:  map[string]any{"message": "test", "level": "warn"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLogNode("test-log", tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogNode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogNode_Ports(t *testing.T) {
	node, err := NewLogNode("test-node", map[string]any{"message": "test"})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	inputPorts := node.InputPorts()
	if len(inputPorts) == 0 {
		t.Error("Expected input ports to be defined")
	}

	outputPorts := node.OutputPorts()
	if len(outputPorts) != 2 {
		t.Errorf("Expected 2 output ports, got: %d", len(outputPorts))
	}

	expectedPorts := []string{OutputPortSuccess, OutputPortError}

	foundPorts := make(map[string]bool)
	for _, port := range outputPorts {
		foundPorts[port.Name] = true
	}

	for _, port := range expectedPorts {
		if !foundPorts[port] {
			t.Errorf("Expected output port '%s' to be defined", port)
		}
	}
}

func TestLogNodeFactory(t *testing.T) {
	factory := NewLogNodeFactory()

	if factory.ID() != models.NodeTypeLog {
		t.Errorf("Expected ID '%s', got: %s", models.NodeTypeLog, factory.ID())
	}

	if factory.Name() != "Log" {
		t.Errorf("Expected name 'Log', got: %s", factory.Name())
	}

	schema := factory.Schema()
	if schema == nil {
		t.Fatal("Expected schema to be defined")
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("Expected properties in schema")
	}

	if _, ok := properties["message"]; !ok {
		t.Error("Expected 'message' property in schema")
	}

	if _, ok := properties["level"]; !ok {
		t.Error("Expected 'level' property in schema")
	}
}
