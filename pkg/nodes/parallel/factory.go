// Package parallel provides the fan-out node factory for registry integration.
package parallel

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// ParallelNodeFactory creates ParallelNode instances.
type ParallelNodeFactory struct{}

// Create creates a new ParallelNode instance.
func (f *ParallelNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewParallelNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *ParallelNodeFactory) ID() string {
	return models.NodeTypeParallel
}

// Name returns the factory name.
func (f *ParallelNodeFactory) Name() string {
	return "Parallel"
}

// Description returns the factory description.
func (f *ParallelNodeFactory) Description() string {
	return "Fans its input out to all connected targets concurrently, bounded by max_concurrent, and merges successful target outputs once the join policy is satisfied."
}

// Schema returns the JSON schema for Parallel node configuration.
func (f *ParallelNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"join": map[string]any{
				"type":        "string",
				"description": "Join policy: 'all' waits for every target, 'any:N' completes once N targets succeed.",
				"default":     "all",
				"examples":    []string{"all", "any:1", "any:2"},
			},
			"max_concurrent": map[string]any{
				"type":        "integer",
				"description": "Upper bound on concurrently running targets.",
				"default":     models.DefaultMaxConcurrent,
				"minimum":     1,
			},
			"targets": map[string]any{
				"type":        "array",
				"description": "Optional subset of target node IDs to fan out to. Empty means every connected target.",
				"items":       map[string]any{"type": "string"},
			},
			"continue_on_error": map[string]any{
				"type":        "boolean",
				"description": "When true a failing target is recorded and excluded from the merged output instead of failing the execution.",
				"default":     false,
			},
		},
		"examples": []map[string]any{
			{
				"join":           "all",
				"max_concurrent": 3,
			},
			{
				"join":              "any:1",
				"continue_on_error": true,
			},
		},
	}
}

// NewParallelNodeFactory creates a new factory instance.
func NewParallelNodeFactory() protocol.NodeFactory {
	return &ParallelNodeFactory{}
}
