package workflow

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowion-ai/flowion/pkg/models"
	"github.com/flowion-ai/flowion/pkg/protocol"
	"github.com/flowion-ai/flowion/pkg/registry"
)

func testNode(id, nodeType string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      id,
		Type:    nodeType,
		Name:    id,
		Config:  map[string]any{},
		Enabled: true,
	}
}

func testConn(id, sourceNode, sourcePort, targetNode, targetPort string) *models.Connection {
	return &models.Connection{
		ID:         id,
		SourcePort: models.MakePortID(sourceNode, sourcePort),
		TargetPort: models.MakePortID(targetNode, targetPort),
	}
}

func testResolver() TypeResolver {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes(protocol.Dependencies{})

	return reg
}

func diamondWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     "wf-diamond",
		Name:   "Diamond",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			testNode("start", models.NodeTypeStart),
			testNode("left", models.NodeTypeCheckpoint),
			testNode("right", models.NodeTypeCheckpoint),
			testNode("end", models.NodeTypeEnd),
		},
		Connections: []*models.Connection{
			testConn("c1", "start", "main", "left", "main"),
			testConn("c2", "start", "main", "right", "main"),
			testConn("c3", "left", "main", "end", "main"),
			testConn("c4", "right", "main", "end", "main"),
		},
	}
}

func TestNewGraph_Indexing(t *testing.T) {
	graph := NewGraph(diamondWorkflow())

	require.NotNil(t, graph.Node("start"))
	require.Nil(t, graph.Node("missing"))

	outgoing := graph.NextConnections("start")
	require.Len(t, outgoing, 2)
	assert.Equal(t, "c1", outgoing[0].ID)
	assert.Equal(t, "c2", outgoing[1].ID)

	incoming := graph.IncomingConnections("end")
	require.Len(t, incoming, 2)
	assert.Equal(t, "c3", incoming[0].ID)
	assert.Equal(t, "c4", incoming[1].ID)

	assert.Empty(t, graph.IncomingConnections("start"))
	assert.Empty(t, graph.NextConnections("end"))
}

func TestGraph_ConnectionsFromPort(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-cond",
		Name: "Conditional",
		Nodes: []*models.WorkflowNode{
			testNode("start", models.NodeTypeStart),
			testNode("cond", models.NodeTypeConditional),
			testNode("yes", models.NodeTypeEnd),
			testNode("no", models.NodeTypeEnd),
		},
		Connections: []*models.Connection{
			testConn("c1", "start", "main", "cond", "main"),
			testConn("c2", "cond", "true", "yes", "main"),
			testConn("c3", "cond", "false", "no", "main"),
		},
	}

	graph := NewGraph(wf)

	trueConns := graph.ConnectionsFromPort("cond", "true")
	require.Len(t, trueConns, 1)
	assert.Equal(t, "c2", trueConns[0].ID)

	assert.Empty(t, graph.ConnectionsFromPort("cond", "error"))
}

func TestGraph_NextNodesDeduplicates(t *testing.T) {
	wf := diamondWorkflow()
	wf.Connections = append(wf.Connections, testConn("c5", "start", "main", "left", "retry"))

	graph := NewGraph(wf)

	next := graph.NextNodes("start")
	require.Len(t, next, 2)
	assert.Equal(t, "left", next[0].ID)
	assert.Equal(t, "right", next[1].ID)
}

func TestGraph_StartNodes(t *testing.T) {
	wf := diamondWorkflow()
	disabled := testNode("start2", models.NodeTypeStart)
	disabled.Enabled = false
	wf.Nodes = append(wf.Nodes, disabled)

	graph := NewGraph(wf)

	starts := graph.StartNodes()
	require.Len(t, starts, 1)
	assert.Equal(t, "start", starts[0].ID)
}

func TestGraph_Validate_Valid(t *testing.T) {
	graph := NewGraph(diamondWorkflow())

	require.NoError(t, graph.Validate(testResolver()))
}

func TestGraph_Validate_CollectsAllProblems(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-broken",
		Name: "Broken",
		Nodes: []*models.WorkflowNode{
			testNode("work", models.NodeTypeCheckpoint),
			testNode("work", models.NodeTypeCheckpoint),
			testNode("", models.NodeTypeEnd),
			testNode("mystery", "does_not_exist"),
			{ID: "untyped", Name: "untyped", Enabled: true},
		},
		Connections: []*models.Connection{
			{ID: "bad-source", SourcePort: "noseparator", TargetPort: models.MakePortID("work", "main")},
			testConn("dangling", "work", "main", "ghost", "main"),
		},
	}

	err := NewGraph(wf).Validate(testResolver())
	require.Error(t, err)

	var validationErr *ValidationError

	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "wf-broken", validationErr.WorkflowID)

	message := validationErr.Error()
	assert.Contains(t, message, "duplicate node ID 'work'")
	assert.Contains(t, message, "node with empty ID")
	assert.Contains(t, message, "unknown type 'does_not_exist'")
	assert.Contains(t, message, "node 'untyped' has no type")
	assert.Contains(t, message, "no enabled start node")
	assert.Contains(t, message, "malformed source port 'noseparator'")
	assert.Contains(t, message, "unknown target node 'ghost'")
}

func TestGraph_Validate_DisabledStartDoesNotCount(t *testing.T) {
	wf := diamondWorkflow()
	wf.Nodes[0].Enabled = false

	err := NewGraph(wf).Validate(testResolver())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enabled start node")
}

func TestGraph_Validate_DisabledNodeTypeNotResolved(t *testing.T) {
	wf := diamondWorkflow()
	legacy := testNode("legacy", "retired_type")
	legacy.Enabled = false
	wf.Nodes = append(wf.Nodes, legacy)

	require.NoError(t, NewGraph(wf).Validate(testResolver()))
}

func TestGraph_Validate_NilResolverSkipsTypeCheck(t *testing.T) {
	wf := diamondWorkflow()
	wf.Nodes = append(wf.Nodes, testNode("mystery", "does_not_exist"))

	require.NoError(t, NewGraph(wf).Validate(nil))
}
