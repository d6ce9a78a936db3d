// Package viz renders workflow graphs as Mermaid flowcharts or Graphviz
// DOT documents for the builder's diagram view.
package viz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowion-ai/flowion/pkg/models"
)

// Format selects the diagram markup to emit.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
)

// ErrUnknownFormat is returned for formats other than mermaid and dot.
var ErrUnknownFormat = errors.New("unknown diagram format")

// Render emits the workflow as diagram markup in the given format.
func Render(wf *models.Workflow, format Format) (string, error) {
	switch format {
	case FormatMermaid:
		return Mermaid(wf), nil
	case FormatDOT:
		return DOT(wf), nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnknownFormat, format)
	}
}

// Mermaid renders the workflow as a Mermaid flowchart: one box per node,
// one arrow per connection, with nodes styled by type.
func Mermaid(wf *models.Workflow) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	for _, node := range wf.Nodes {
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", mermaidID(node.ID), mermaidLabel(node.Name))
	}

	for _, conn := range wf.Connections {
		sourceID, _, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			continue
		}

		targetID, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok {
			continue
		}

		if label := edgeLabel(conn); label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", mermaidID(sourceID), mermaidLabel(label), mermaidID(targetID))
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(sourceID), mermaidID(targetID))
		}
	}

	b.WriteString("\n")
	b.WriteString("    %% Styling\n")
	b.WriteString("    classDef startNode fill:#90EE90,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef endNode fill:#FFB6C1,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef agentNode fill:#87CEEB,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef functionNode fill:#FFE4B5,stroke:#333,stroke-width:2px\n")
	b.WriteString("    classDef branchNode fill:#DDA0DD,stroke:#333,stroke-width:2px\n")

	for _, node := range wf.Nodes {
		if class := nodeClass(node.Type); class != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidID(node.ID), class)
		}
	}

	return b.String()
}

// DOT renders the workflow as a Graphviz digraph, nodes colored by type.
func DOT(wf *models.Workflow) string {
	var b strings.Builder

	b.WriteString("digraph Workflow {\n")
	b.WriteString("    rankdir=LR;\n")
	b.WriteString("    node [shape=box, style=rounded];\n")
	b.WriteString("\n")

	for _, node := range wf.Nodes {
		fmt.Fprintf(&b, "    %q [label=%q, fillcolor=%s, style=\"filled,rounded\"];\n",
			node.ID, node.Name, dotColor(node.Type))
	}

	b.WriteString("\n")

	for _, conn := range wf.Connections {
		sourceID, _, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			continue
		}

		targetID, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok {
			continue
		}

		if label := edgeLabel(conn); label != "" {
			fmt.Fprintf(&b, "    %q -> %q [label=%q];\n", sourceID, targetID, label)
		} else {
			fmt.Fprintf(&b, "    %q -> %q;\n", sourceID, targetID)
		}
	}

	b.WriteString("}\n")

	return b.String()
}

// edgeLabel picks the connection's display label: an explicit label wins,
// otherwise a non-default source port name (true/false/error) labels the
// branch it selects.
func edgeLabel(conn *models.Connection) string {
	if conn.Label != "" {
		return conn.Label
	}

	_, portName, ok := models.ParsePortID(conn.SourcePort)
	if ok && portName != "main" {
		return portName
	}

	return ""
}

func nodeClass(nodeType string) string {
	switch nodeType {
	case models.NodeTypeStart:
		return "startNode"
	case models.NodeTypeEnd:
		return "endNode"
	case models.NodeTypeLLMAgent, models.NodeTypeToolAgent, models.NodeTypeMCP:
		return "agentNode"
	case models.NodeTypeFunction, models.NodeTypeHTTPRequest, models.NodeTypeLog:
		return "functionNode"
	case models.NodeTypeConditional, models.NodeTypeParallel, models.NodeTypeMerge:
		return "branchNode"
	default:
		return ""
	}
}

func dotColor(nodeType string) string {
	switch nodeType {
	case models.NodeTypeStart:
		return "lightgreen"
	case models.NodeTypeEnd:
		return "lightcoral"
	case models.NodeTypeLLMAgent, models.NodeTypeToolAgent, models.NodeTypeMCP:
		return "lightblue"
	case models.NodeTypeFunction, models.NodeTypeHTTPRequest, models.NodeTypeLog:
		return "lightyellow"
	case models.NodeTypeConditional, models.NodeTypeParallel, models.NodeTypeMerge:
		return "plum"
	default:
		return "lightgray"
	}
}

// mermaidID makes a node ID safe for Mermaid by replacing everything
// outside [A-Za-z0-9_] with underscores.
func mermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

// mermaidLabel escapes quotes and pipes, which would end the label early.
func mermaidLabel(label string) string {
	replacer := strings.NewReplacer("\"", "#quot;", "|", "/")

	return replacer.Replace(label)
}
