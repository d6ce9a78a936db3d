// Package registry provides node factory registration for the registry system.
package registry

import (
	"github.com/flowion-ai/flowion/pkg/nodes/checkpoint"
	"github.com/flowion-ai/flowion/pkg/nodes/conditional"
	"github.com/flowion-ai/flowion/pkg/nodes/end"
	"github.com/flowion-ai/flowion/pkg/nodes/function"
	"github.com/flowion-ai/flowion/pkg/nodes/httprequest"
	"github.com/flowion-ai/flowion/pkg/nodes/llmagent"
	lognode "github.com/flowion-ai/flowion/pkg/nodes/log"
	"github.com/flowion-ai/flowion/pkg/nodes/mcp"
	"github.com/flowion-ai/flowion/pkg/nodes/merge"
	"github.com/flowion-ai/flowion/pkg/nodes/parallel"
	"github.com/flowion-ai/flowion/pkg/nodes/start"
	"github.com/flowion-ai/flowion/pkg/nodes/toolagent"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
// Factories that reach outside the engine receive their collaborators from deps;
// a zero Dependencies value is valid and produces nodes that fail at execution
// time instead of registration time.
func (r *Registry) RegisterDefaultNodes(deps protocol.Dependencies) {
	// Flow control nodes
	r.RegisterNode(start.NewStartNodeFactory())
	r.RegisterNode(end.NewEndNodeFactory())
	r.RegisterNode(conditional.NewConditionalNodeFactory())
	r.RegisterNode(parallel.NewParallelNodeFactory())
	r.RegisterNode(merge.NewMergeNodeFactory())
	r.RegisterNode(checkpoint.NewCheckpointNodeFactory(deps.Snapshotter))

	// Task nodes
	r.RegisterNode(llmagent.NewLLMAgentNodeFactory())
	r.RegisterNode(toolagent.NewToolAgentNodeFactory(deps.ToolCatalog))
	r.RegisterNode(mcp.NewMCPNodeFactory())
	r.RegisterNode(function.NewFunctionNodeFactory())
	r.RegisterNode(httprequest.NewHTTPRequestNodeFactory())
	r.RegisterNode(lognode.NewLogNodeFactory())
}
