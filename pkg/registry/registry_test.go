package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// Stub factory for custom registration tests.
type stubFactory struct {
	id string
}

func (f *stubFactory) Create(_ context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return nil, errors.New("stub factory cannot create executors")
}

func (f *stubFactory) ID() string            { return f.id }
func (f *stubFactory) Name() string          { return "Stub" }
func (f *stubFactory) Description() string   { return "Stub factory for registry tests" }
func (f *stubFactory) Schema() map[string]any { return nil }

func newTestRegistry() *Registry {
	registry := NewRegistry(slog.Default())
	registry.RegisterDefaultNodes(protocol.Dependencies{})

	return registry
}

func TestRegisterDefaultNodes(t *testing.T) {
	registry := newTestRegistry()

	// AvailableNodes returns factories sorted by type tag.
	expectedNodes := []string{
		"checkpoint",
		"conditional",
		"end",
		"function",
		"llm_agent",
		"mcp",
		"parallel",
		"start",
		"tool_agent",
	}

	availableNodes := registry.AvailableNodes()
	if len(availableNodes) != len(expectedNodes) {
		t.Fatalf("Expected %d node types, got %d", len(expectedNodes), len(availableNodes))
	}

	for i, expectedType := range expectedNodes {
		if availableNodes[i].ID() != expectedType {
			t.Errorf("Expected node type '%s' at position %d, got '%s'", expectedType, i, availableNodes[i].ID())
		}
	}
}

func TestCreateNode_Conditional(t *testing.T) {
	registry := newTestRegistry()

	node := &models.WorkflowNode{
		ID:   "cond-node-1",
		Type: models.NodeTypeConditional,
		Config: map[string]any{
			"condition": `{{.variables.status}} == "active"`,
		},
	}

	executor, err := registry.CreateNode(context.Background(), node)
	if err != nil {
		t.Fatalf("Failed to create conditional node: %v", err)
	}

	if executor.ID() != "cond-node-1" {
		t.Errorf("Expected node ID 'cond-node-1', got: %s", executor.ID())
	}

	if executor.Type() != models.NodeTypeConditional {
		t.Errorf("Expected node type 'conditional', got: %s", executor.Type())
	}
}

func TestCreateNode_Function(t *testing.T) {
	registry := newTestRegistry()

	node := &models.WorkflowNode{
		ID:   "fn-node-1",
		Type: models.NodeTypeFunction,
		Config: map[string]any{
			"expression": `{"result": "{{.variables.input}}"}`,
		},
	}

	executor, err := registry.CreateNode(context.Background(), node)
	if err != nil {
		t.Fatalf("Failed to create function node: %v", err)
	}

	if executor.ID() != "fn-node-1" {
		t.Errorf("Expected node ID 'fn-node-1', got: %s", executor.ID())
	}

	if executor.Type() != models.NodeTypeFunction {
		t.Errorf("Expected node type 'function', got: %s", executor.Type())
	}
}

func TestCreateNode_Start(t *testing.T) {
	registry := newTestRegistry()

	node := &models.WorkflowNode{
		ID:     "start-1",
		Type:   models.NodeTypeStart,
		Config: map[string]any{},
	}

	executor, err := registry.CreateNode(context.Background(), node)
	if err != nil {
		t.Fatalf("Failed to create start node: %v", err)
	}

	if executor.Type() != models.NodeTypeStart {
		t.Errorf("Expected node type 'start', got: %s", executor.Type())
	}
}

func TestCreateNode_UnknownType(t *testing.T) {
	registry := newTestRegistry()

	node := &models.WorkflowNode{
		ID:     "node-1",
		Type:   "does-not-exist",
		Config: map[string]any{},
	}

	_, err := registry.CreateNode(context.Background(), node)
	if !errors.Is(err, ErrNodeNotRegistered) {
		t.Fatalf("Expected ErrNodeNotRegistered, got: %v", err)
	}
}

func TestCreateNode_RejectsConfigMissingRequiredField(t *testing.T) {
	registry := newTestRegistry()

	// The conditional schema requires a condition.
	node := &models.WorkflowNode{
		ID:     "cond-node-1",
		Type:   models.NodeTypeConditional,
		Config: map[string]any{},
	}

	_, err := registry.CreateNode(context.Background(), node)
	if err == nil {
		t.Fatal("Expected config validation error, got nil")
	}
}

func TestValidateNodeConfig(t *testing.T) {
	registry := newTestRegistry()

	err := registry.ValidateNodeConfig(models.NodeTypeConditional, map[string]any{
		"condition": "{{.variables.ok}}",
	})
	if err != nil {
		t.Errorf("Expected valid config to pass, got: %v", err)
	}

	err = registry.ValidateNodeConfig(models.NodeTypeConditional, map[string]any{
		"condition": 42,
	})
	if err == nil {
		t.Error("Expected type mismatch error for numeric condition")
	}

	err = registry.ValidateNodeConfig("does-not-exist", map[string]any{})
	if !errors.Is(err, ErrNodeNotRegistered) {
		t.Errorf("Expected ErrNodeNotRegistered for unknown type, got: %v", err)
	}
}

func TestValidateNodeConfig_NilConfig(t *testing.T) {
	registry := newTestRegistry()

	// Start nodes have no required fields, so a nil config is acceptable.
	if err := registry.ValidateNodeConfig(models.NodeTypeStart, nil); err != nil {
		t.Errorf("Expected nil config to pass for start node, got: %v", err)
	}

	// Conditional nodes require a condition even when no config is given.
	if err := registry.ValidateNodeConfig(models.NodeTypeConditional, nil); err == nil {
		t.Error("Expected nil config to fail for conditional node")
	}
}

func TestRegisterCustomNode(t *testing.T) {
	registry := NewRegistry(slog.Default())

	err := registry.RegisterCustomNode(&stubFactory{id: "custom:slack"})
	if err != nil {
		t.Fatalf("Expected custom registration to succeed, got: %v", err)
	}

	if _, err := registry.Resolve("custom:slack"); err != nil {
		t.Errorf("Expected 'custom:slack' to resolve, got: %v", err)
	}
}

func TestRegisterCustomNode_RequiresPrefix(t *testing.T) {
	registry := NewRegistry(slog.Default())

	err := registry.RegisterCustomNode(&stubFactory{id: "slack"})
	if err == nil {
		t.Fatal("Expected error for custom factory without 'custom:' prefix")
	}

	if _, err := registry.Resolve("slack"); !errors.Is(err, ErrNodeNotRegistered) {
		t.Error("Expected rejected factory to stay unregistered")
	}
}
