// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeLog,
		Category:  models.CategoryTypeTask,
		Name:      "Test Node",
		Config:    map[string]any{"message": "test", "level": "info"},
		Enabled:   true,
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithStartNode configures the node as a start node.
func WithStartNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeStart
		n.Category = models.CategoryTypeControl
		n.Config = map[string]any{}
	}
}

// WithEndNode configures the node as an end node.
func WithEndNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeEnd
		n.Category = models.CategoryTypeControl
		n.Config = map[string]any{}
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithPosition sets the node position.
func WithPosition(x, y int) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.PositionX = x
		n.PositionY = y
	}
}

// WithEnabled sets the node enabled status.
func WithEnabled(enabled bool) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Enabled = enabled
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// CreateTestWorkflow creates a test workflow with some default values.
func CreateTestWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A workflow for testing",
		Status:      models.WorkflowStatusDraft,
		Owner:       "test-user",
		Variables:   map[string]any{"env": "test"},
		Metadata:    map[string]any{"category": "test"},
		Nodes:       []*models.WorkflowNode{},
		Connections: []*models.Connection{},
	}
}

// CreateTestWorkflowWithNodes creates a test workflow with a runnable
// start -> log -> end graph.
func CreateTestWorkflowWithNodes() *models.Workflow {
	workflow := CreateTestWorkflow()

	startNode := CreateTestNode(WithStartNode(), WithID("start-1"), WithName("Start"))
	logNode := CreateTestNode(WithID("log-1"), WithName("Log Message"))
	endNode := CreateTestNode(WithEndNode(), WithID("end-1"), WithName("End"))

	workflow.Nodes = []*models.WorkflowNode{startNode, logNode, endNode}

	workflow.Connections = []*models.Connection{
		CreateTestConnection("start-1", "main", "log-1"),
		CreateTestConnection("log-1", "success", "end-1"),
	}

	return workflow
}

// CreateTestConnection creates a connection from the given output port of
// one node to the main input port of another.
func CreateTestConnection(sourceNodeID, sourcePort, targetNodeID string) *models.Connection {
	return &models.Connection{
		ID:         uuid.New().String(),
		SourcePort: models.MakePortID(sourceNodeID, sourcePort),
		TargetPort: models.MakePortID(targetNodeID, "main"),
	}
}
