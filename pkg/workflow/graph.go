// Package workflow contains the workflow execution engine: the traversal
// graph, the live execution registry and the engine itself.
package workflow

import (
	"fmt"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
)

// TypeResolver looks up the factory registered for a node type. It is
// satisfied by *registry.Registry.
type TypeResolver interface {
	Resolve(nodeType string) (protocol.NodeFactory, error)
}

// Graph is an indexed traversal view over a workflow: nodes by ID and
// connections grouped by source and target node. The underlying workflow
// is not copied; callers must not mutate it while the graph is in use.
type Graph struct {
	workflow *models.Workflow
	nodes    map[string]*models.WorkflowNode
	outgoing map[string][]*models.Connection
	incoming map[string][]*models.Connection
}

// NewGraph indexes the given workflow for traversal. Connections whose
// endpoints cannot be parsed are left out of the index; Validate reports
// them.
func NewGraph(wf *models.Workflow) *Graph {
	graph := &Graph{
		workflow: wf,
		nodes:    make(map[string]*models.WorkflowNode, len(wf.Nodes)),
		outgoing: make(map[string][]*models.Connection),
		incoming: make(map[string][]*models.Connection),
	}

	for _, node := range wf.Nodes {
		graph.nodes[node.ID] = node
	}

	for _, conn := range wf.Connections {
		sourceID, _, sourceOK := models.ParsePortID(conn.SourcePort)
		targetID, _, targetOK := models.ParsePortID(conn.TargetPort)

		if !sourceOK || !targetOK {
			continue
		}

		graph.outgoing[sourceID] = append(graph.outgoing[sourceID], conn)
		graph.incoming[targetID] = append(graph.incoming[targetID], conn)
	}

	return graph
}

// Workflow returns the workflow the graph was built from.
func (g *Graph) Workflow() *models.Workflow {
	return g.workflow
}

// Node returns the node with the given ID, or nil when absent.
func (g *Graph) Node(nodeID string) *models.WorkflowNode {
	return g.nodes[nodeID]
}

// StartNodes returns the enabled start nodes in declaration order.
func (g *Graph) StartNodes() []*models.WorkflowNode {
	var starts []*models.WorkflowNode

	for _, node := range g.workflow.Nodes {
		if node.IsStart() && node.Enabled {
			starts = append(starts, node)
		}
	}

	return starts
}

// NextConnections returns every connection leaving the given node, in
// workflow declaration order.
func (g *Graph) NextConnections(nodeID string) []*models.Connection {
	return g.outgoing[nodeID]
}

// ConnectionsFromPort returns the connections leaving one output port of
// the given node.
func (g *Graph) ConnectionsFromPort(nodeID, portName string) []*models.Connection {
	portID := models.MakePortID(nodeID, portName)

	var conns []*models.Connection

	for _, conn := range g.outgoing[nodeID] {
		if conn.SourcePort == portID {
			conns = append(conns, conn)
		}
	}

	return conns
}

// IncomingConnections returns every connection entering the given node.
func (g *Graph) IncomingConnections(nodeID string) []*models.Connection {
	return g.incoming[nodeID]
}

// NextNodes returns the distinct target nodes reachable from the given
// node, in connection order.
func (g *Graph) NextNodes(nodeID string) []*models.WorkflowNode {
	var (
		targets []*models.WorkflowNode
		seen    = make(map[string]bool)
	)

	for _, conn := range g.outgoing[nodeID] {
		targetID, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok || seen[targetID] {
			continue
		}

		seen[targetID] = true

		if node := g.nodes[targetID]; node != nil {
			targets = append(targets, node)
		}
	}

	return targets
}

// Validate checks the graph for structural problems: duplicate or empty
// node IDs, missing node types, unresolvable types of enabled nodes, the
// absence of an enabled start node, and connections with malformed or
// dangling endpoints. All problems are collected into a single
// ValidationError. A nil resolver skips the node type check.
func (g *Graph) Validate(resolver TypeResolver) error {
	var problems []string

	seen := make(map[string]bool)
	hasStart := false

	for _, node := range g.workflow.Nodes {
		if node.ID == "" {
			problems = append(problems, "node with empty ID")

			continue
		}

		if seen[node.ID] {
			problems = append(problems, fmt.Sprintf("duplicate node ID '%s'", node.ID))
		}

		seen[node.ID] = true

		if node.Type == "" {
			problems = append(problems, fmt.Sprintf("node '%s' has no type", node.ID))

			continue
		}

		if node.Enabled && resolver != nil {
			if _, err := resolver.Resolve(node.Type); err != nil {
				problems = append(problems, fmt.Sprintf("node '%s' has unknown type '%s'", node.ID, node.Type))
			}
		}

		if node.IsStart() && node.Enabled {
			hasStart = true
		}
	}

	if !hasStart {
		problems = append(problems, "workflow has no enabled start node")
	}

	for _, conn := range g.workflow.Connections {
		sourceID, _, sourceOK := models.ParsePortID(conn.SourcePort)
		if !sourceOK {
			problems = append(problems, fmt.Sprintf("connection '%s' has malformed source port '%s'", conn.ID, conn.SourcePort))
		} else if g.nodes[sourceID] == nil {
			problems = append(problems, fmt.Sprintf("connection '%s' references unknown source node '%s'", conn.ID, sourceID))
		}

		targetID, _, targetOK := models.ParsePortID(conn.TargetPort)
		if !targetOK {
			problems = append(problems, fmt.Sprintf("connection '%s' has malformed target port '%s'", conn.ID, conn.TargetPort))
		} else if g.nodes[targetID] == nil {
			problems = append(problems, fmt.Sprintf("connection '%s' references unknown target node '%s'", conn.ID, targetID))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{WorkflowID: g.workflow.ID, Problems: problems}
	}

	return nil
}
