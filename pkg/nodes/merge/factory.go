// Package merge provides the fan-in node factory for registry integration.
package merge

import (
	"context"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// MergeNodeFactory creates MergeNode instances.
type MergeNodeFactory struct{}

// Create creates a new MergeNode instance.
func (f *MergeNodeFactory) Create(ctx context.Context, node *models.WorkflowNode) (protocol.NodeExecutor, error) {
	return NewMergeNode(node.ID, node.Config)
}

// ID returns the factory ID.
func (f *MergeNodeFactory) ID() string {
	return models.NodeTypeMerge
}

// Name returns the factory name.
func (f *MergeNodeFactory) Name() string {
	return "Merge"
}

// Description returns the factory description.
func (f *MergeNodeFactory) Description() string {
	return "Joins multiple branches into a single result, combining their data by deep merge, keyed by port, or concatenated into a list"
}

// Schema returns the JSON schema for Merge node configuration.
func (f *MergeNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input_ports": map[string]any{
				"type":        "array",
				"description": "Input port names, one per joined branch. Connections from upstream branches target these ports.",
				"items": map[string]any{
					"type": "string",
				},
				"minItems": 2,
				"examples": [][]string{
					{"profile", "permissions"},
					{"api_call", "db_query", "cache_lookup"},
				},
			},
			"strategy": map[string]any{
				"type":        "string",
				"description": "How to combine inputs: 'merge' deep-merges them in declared port order (later ports win on conflicts), 'keyed' nests each input under its port name, 'concat' collects them into a list under 'items'",
				"enum":        []string{StrategyMerge, StrategyKeyed, StrategyConcat},
				"default":     StrategyMerge,
			},
		},
		"required": []string{"input_ports"},
		"examples": []map[string]any{
			{
				"input_ports": []string{"profile", "permissions"},
				"strategy":    "merge",
			},
			{
				"input_ports": []string{"page_1", "page_2", "page_3"},
				"strategy":    "concat",
			},
		},
	}
}

// NewMergeNodeFactory creates a new factory instance.
func NewMergeNodeFactory() protocol.NodeFactory {
	return &MergeNodeFactory{}
}
