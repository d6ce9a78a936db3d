// Package protocol defines the interfaces and contracts for pluggable node executors.
package protocol

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
)

// NodeExecutor is the strategy contract one node type implements. Execute
// receives the accumulated inputs keyed by input port and returns results
// keyed by output port; the engine follows only connections leaving the
// returned ports. Implementations must observe ctx cancellation at every
// suspension point and perform their own retries before surfacing an error.
type NodeExecutor interface {
	// ID returns the node instance ID within the workflow
	ID() string

	// Type returns the node type tag this executor implements
	Type() string

	// Execute runs the node against the current execution state
	Execute(ctx context.Context, state models.ExecutionState, inputs map[string]models.NodeResult) (map[string]models.NodeResult, error)

	// InputPorts returns the input ports this node accepts
	InputPorts() []models.InputPort

	// OutputPorts returns the output ports this node can emit on
	OutputPorts() []models.OutputPort
}

// NodeFactory creates node executor instances and provides metadata about the node type.
type NodeFactory interface {
	// Create builds an executor for the given node instance
	Create(ctx context.Context, node *models.WorkflowNode) (NodeExecutor, error)

	// ID returns the unique type tag for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// Dependencies carries the collaborators injected into node factories that
// reach outside the engine (LLM providers, tool catalogs, recorders).
type Dependencies struct {
	ToolCatalog ToolCatalog
	Snapshotter Snapshotter
}

// ToolCatalog resolves and invokes named tools for tool_agent nodes.
type ToolCatalog interface {
	// Invoke calls the named tool with the given arguments
	Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error)

	// Tools lists the names of available tools
	Tools() []string
}

// Snapshotter persists checkpoint snapshots of a live execution. Implemented
// by the engine's recorder wiring; checkpoint nodes call it before traversal
// continues past them.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, executionID string, nodeID string, state models.ExecutionState) error
}
