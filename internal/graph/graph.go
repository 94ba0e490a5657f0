// Package graph implements the language-neutral code property graph that
// parsers build and detectors analyze. A graph is constructed once through a
// Builder, frozen by Build, and read-only for the rest of its life, so any
// number of goroutines may traverse it concurrently.
package graph

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Kind classifies a node. The set is open: language parsers may introduce
// kinds beyond the constants below.
type Kind string

const (
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindVariable  Kind = "variable"
	KindParameter Kind = "parameter"
	KindField     Kind = "field"
	KindCall      Kind = "call"
	KindControl   Kind = "control"
	KindImport    Kind = "import"
)

// EdgeKind classifies a directed relation between two nodes.
type EdgeKind string

const (
	EdgeContains EdgeKind = "contains"
	EdgeCalls    EdgeKind = "calls"
	EdgeInherits EdgeKind = "inherits"
	EdgeReads    EdgeKind = "reads"
	EdgeWrites   EdgeKind = "writes"
	EdgeControls EdgeKind = "controls"
	EdgeReaches  EdgeKind = "reaches"
)

// Span is a source range with both endpoints inclusive. Lines and columns
// are 0-based, matching tree-sitter positions.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Valid reports whether the span is non-negative and ordered start <= end.
func (s Span) Valid() bool {
	if s.StartLine < 0 || s.StartCol < 0 || s.EndLine < 0 || s.EndCol < 0 {
		return false
	}
	if s.StartLine > s.EndLine {
		return false
	}
	return s.StartLine != s.EndLine || s.StartCol <= s.EndCol
}

// Overlaps reports whether two spans share at least one position. Ends
// are inclusive, so spans meeting exactly at a boundary point overlap.
func (s Span) Overlaps(o Span) bool {
	if s.EndLine < o.StartLine || o.EndLine < s.StartLine {
		return false
	}
	if s.EndLine == o.StartLine && s.EndCol < o.StartCol {
		return false
	}
	if o.EndLine == s.StartLine && o.EndCol < s.StartCol {
		return false
	}
	return true
}

// Node is one code entity. Nodes are identified by an ID unique within
// their graph and are immutable once committed to a Builder.
type Node struct {
	ID       string
	Kind     Kind
	Name     string
	File     string
	Language string
	Span     Span

	// Attrs holds free-form per-node attributes: "signature",
	// "visibility", "modifiers", "qualified_name", and whatever else a
	// language parser records.
	Attrs map[string]string
}

// Attr returns the named attribute or "" when absent.
func (n *Node) Attr(key string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[key]
}

// Edge is a directed relation between two node IDs in the same graph.
// Both endpoints must exist when the edge is added; edges are immutable.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// NodeID derives a stable node identifier from the node's file, span, kind
// and name. Identical source entities hash to identical IDs across runs.
func NodeID(file string, span Span, kind Kind, name string) string {
	h := blake3.New(16, nil)
	fmt.Fprintf(h, "%s\x00%d:%d-%d:%d\x00%s\x00%s", file, span.StartLine, span.StartCol, span.EndLine, span.EndCol, kind, name)
	return hex.EncodeToString(h.Sum(nil))
}

// Graph is a frozen code property graph with eager secondary indices.
// Construct through a Builder; a Graph exposes no mutating methods.
type Graph struct {
	nodes []*Node
	edges []Edge

	byID   map[string]*Node
	byKind map[Kind][]*Node
	byFile map[string][]*Node

	outgoing map[string][]Edge
	incoming map[string][]Edge
}

// Nodes returns all nodes in insertion order. Callers must not modify the
// returned slice or the nodes it points to.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge { return g.edges }

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *Node { return g.byID[id] }

// NodesByKind returns all nodes of the given kind in insertion order.
func (g *Graph) NodesByKind(kind Kind) []*Node { return g.byKind[kind] }

// NodesInFile returns all nodes located in the given file.
func (g *Graph) NodesInFile(file string) []*Node { return g.byFile[file] }

// Outgoing returns the edges leaving the given node.
func (g *Graph) Outgoing(id string) []Edge { return g.outgoing[id] }

// Incoming returns the edges arriving at the given node.
func (g *Graph) Incoming(id string) []Edge { return g.incoming[id] }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Neighbors returns the nodes reachable from id over edges of the given
// kind. An empty kind matches every edge.
func (g *Graph) Neighbors(id string, kind EdgeKind) []*Node {
	var out []*Node
	for _, e := range g.outgoing[id] {
		if kind != "" && e.Kind != kind {
			continue
		}
		if n := g.byID[e.To]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Validate re-checks the structural invariants after a build: every edge
// endpoint resolves to a node and every node span is well formed. A frozen
// graph produced by Builder.Build always passes; Validate exists so tests
// and loaders of externally produced graphs can assert it.
func (g *Graph) Validate() error {
	for _, e := range g.edges {
		if g.byID[e.From] == nil {
			return fmt.Errorf("graph: edge %s -> %s (%s): unknown source node", e.From, e.To, e.Kind)
		}
		if g.byID[e.To] == nil {
			return fmt.Errorf("graph: edge %s -> %s (%s): unknown target node", e.From, e.To, e.Kind)
		}
	}
	for _, n := range g.nodes {
		if !n.Span.Valid() {
			return fmt.Errorf("graph: node %s (%s): invalid span %+v", n.ID, n.Name, n.Span)
		}
	}
	return nil
}
