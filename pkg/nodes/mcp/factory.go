// Package mcp provides the MCP tool call node factory for registry integration.
package mcp

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// MCPNodeFactory creates MCPNode instances.
type MCPNodeFactory struct{}

// Create creates a new MCPNode instance.
func (f *MCPNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewMCPNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *MCPNodeFactory) ID() string {
	return models.NodeTypeMCP
}

// Name returns the factory name.
func (f *MCPNodeFactory) Name() string {
	return "MCP Tool"
}

// Description returns the factory description.
func (f *MCPNodeFactory) Description() string {
	return "Calls a tool on an MCP server over HTTP using JSON-RPC 2.0 tools/call, with templated arguments and retry on transport failures."
}

// Schema returns the JSON schema for MCP node configuration.
func (f *MCPNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"server_url": map[string]any{
				"type":        "string",
				"description": "HTTP endpoint of the MCP server.",
				"examples":    []string{"http://localhost:8931/mcp", "https://tools.internal/mcp"},
			},
			"tool": map[string]any{
				"type":        "string",
				"description": "Name of the MCP tool to call.",
				"examples":    []string{"fetch_page", "query_database"},
			},
			"arguments": map[string]any{
				"type":        "object",
				"description": "Arguments passed to the tool. String values support templating against the execution state.",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds.",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
			"retry_count": map[string]any{
				"type":        "integer",
				"description": "Number of retries after a transient transport failure.",
				"default":     0,
				"minimum":     0,
			},
			"retry_delay_ms": map[string]any{
				"type":        "integer",
				"description": "Initial backoff delay between retries in milliseconds.",
				"default":     1000,
				"minimum":     0,
			},
		},
		"required": []string{"server_url", "tool"},
		"examples": []map[string]any{
			{
				"server_url": "http://localhost:8931/mcp",
				"tool":       "fetch_page",
				"arguments": map[string]any{
					"url": "{{.nodes.pick_source.url}}",
				},
				"retry_count": 2,
			},
		},
	}
}

// NewMCPNodeFactory creates a new factory instance.
func NewMCPNodeFactory() protocol.NodeFactory {
	return &MCPNodeFactory{}
}
