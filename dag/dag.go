// Package dag renders a transaction's step list as a Graphviz chain.
package dag

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

type Graph struct {
	*simple.DirectedGraph
	attrs encoding.Attributes
	order []*Node
}

func New() *Graph {
	return &Graph{DirectedGraph: simple.NewDirectedGraph()}
}

// StepNode describes one step for rendering.
type StepNode struct {
	Label  string
	Status string
}

// Chain builds a graph with one node per step and an edge from each step to
// the next, mirroring forward execution order.
func Chain(name string, steps []StepNode) (*Graph, error) {
	g := New()
	if err := g.SetAttribute(encoding.Attribute{Key: "label", Value: quote(name)}); err != nil {
		return nil, err
	}
	if err := g.SetAttribute(encoding.Attribute{Key: "rankdir", Value: "LR"}); err != nil {
		return nil, err
	}

	var prev *Node
	for i, step := range steps {
		n := g.NewNode()
		g.AddNode(n)
		label := quote(fmt.Sprintf("%d. %s", i+1, step.Label))
		if step.Status != "" {
			label = quote(fmt.Sprintf("%d. %s", i+1, step.Label) + `\n` + step.Status)
		}
		if err := n.SetAttribute(encoding.Attribute{Key: "label", Value: label}); err != nil {
			return nil, err
		}
		if color, ok := statusColors[step.Status]; ok {
			_ = n.SetAttribute(encoding.Attribute{Key: "style", Value: "filled"})
			_ = n.SetAttribute(encoding.Attribute{Key: "fillcolor", Value: color})
		}
		if prev != nil {
			g.SetEdge(g.NewEdge(prev, n))
		}
		g.order = append(g.order, n)
		prev = n
	}
	return g, nil
}

// quote wraps s as a DOT string literal. Backslash sequences are left for
// Graphviz to interpret.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

var statusColors = map[string]string{
	"completed":   "palegreen",
	"failed":      "salmon",
	"skipped":     "lightblue",
	"in_progress": "khaki",
}

func (g *Graph) NewNode() *Node {
	return &Node{Node: g.DirectedGraph.NewNode()}
}

// Order returns the nodes in topological order. For a chain this is the
// step order; an error means the graph is not a DAG.
func (g *Graph) Order() ([]int64, error) {
	sorted, err := topo.Sort(g.DirectedGraph)
	if err != nil {
		return nil, fmt.Errorf("topological sort failed: %w", err)
	}
	ids := make([]int64, len(sorted))
	for i, n := range sorted {
		ids[i] = n.ID()
	}
	return ids, nil
}

// StepNodes returns the step nodes in insertion order.
func (g *Graph) StepNodes() []*Node {
	return append([]*Node(nil), g.order...)
}

func (g *Graph) DOTAttributers() (encoding.Attributer, encoding.Attributer, encoding.Attributer) {
	return &g.attrs, &encoding.Attributes{}, &encoding.Attributes{}
}

type Node struct {
	graph.Node
	attrs encoding.Attributes
}

func (n *Node) Attributes() []encoding.Attribute {
	return n.attrs.Attributes()
}

func (n *Node) SetAttribute(attr encoding.Attribute) error {
	return n.attrs.SetAttribute(attr)
}

func (g *Graph) Attributes() []encoding.Attribute {
	return g.attrs.Attributes()
}

func (g *Graph) SetAttribute(attr encoding.Attribute) error {
	return g.attrs.SetAttribute(attr)
}

// ExportToDot exports the graph to Graphviz .dot format.
func (g *Graph) ExportToDot() (string, error) {
	data, err := dot.Marshal(g, "plan", "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to export plan to DOT format: %v", err)
	}
	return string(data), nil
}
