package services

import (
	"github.com/flowion-ai/flowion/pkg/registry"
)

// NodeDescriptor describes one registered node type for the builder UI:
// its type tag, display metadata and the JSON schema its config must
// satisfy.
type NodeDescriptor struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// NodeCatalog lists the node types available to workflows: built-ins,
// loaded plugins and registered custom factories.
type NodeCatalog struct {
	registry *registry.Registry
}

// NewNodeCatalog creates a new node catalog backed by the given registry.
func NewNodeCatalog(reg *registry.Registry) *NodeCatalog {
	return &NodeCatalog{registry: reg}
}

// Available returns descriptors for every registered node type, sorted by
// type tag.
func (c *NodeCatalog) Available() []NodeDescriptor {
	factories := c.registry.AvailableNodes()
	descriptors := make([]NodeDescriptor, 0, len(factories))

	for _, factory := range factories {
		descriptors = append(descriptors, NodeDescriptor{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return descriptors
}
