// Package models defines core node-based workflow models for graph execution.
package models

import (
	"strings"
	"time"
)

// CategoryType represents the category of a node.
type CategoryType string

const (
	CategoryTypeControl CategoryType = "control" // Flow control nodes (start, end, conditional, parallel, checkpoint)
	CategoryTypeTask    CategoryType = "task"    // Work nodes (llm_agent, tool_agent, mcp, function, custom)
)

// Built-in node types.
const (
	NodeTypeStart       = "start"
	NodeTypeEnd         = "end"
	NodeTypeConditional = "conditional"
	NodeTypeParallel    = "parallel"
	NodeTypeCheckpoint  = "checkpoint"
	NodeTypeMerge       = "merge"
	NodeTypeLLMAgent    = "llm_agent"
	NodeTypeToolAgent   = "tool_agent"
	NodeTypeMCP         = "mcp"
	NodeTypeFunction    = "function"
	NodeTypeHTTPRequest = "http_request"
	NodeTypeLog         = "log"

	// NodeTypeCustomPrefix marks externally registered node types ("custom:slack", ...).
	NodeTypeCustomPrefix = "custom:"
)

// Connection connects two ports directly (fully normalized).
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"` // References Port.ID: "{node_id}:{port_name}"
	TargetPort string `json:"target_port" validate:"required"` // References Port.ID: "{node_id}:{port_name}"
	Label      string `json:"label,omitempty"`
}

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID        string         `json:"id"         validate:"required"`
	Type      string         `json:"type"       validate:"required"`
	Category  CategoryType   `json:"category"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
	Name      string         `json:"name"       validate:"required,min=1"`
	Enabled   bool           `json:"enabled"`
}

// IsStart reports whether this node is a traversal entry point.
func (n *WorkflowNode) IsStart() bool {
	return n.Type == NodeTypeStart
}

// IsEnd reports whether this node terminates a traversal branch.
func (n *WorkflowNode) IsEnd() bool {
	return n.Type == NodeTypeEnd
}

// IsCustom reports whether this node uses an externally registered type.
func (n *WorkflowNode) IsCustom() bool {
	return strings.HasPrefix(n.Type, NodeTypeCustomPrefix)
}

// NodeResult represents the result of a node execution on one output port.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Data      map[string]any `json:"data"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
)
