package graph

import "fmt"

// Builder accumulates nodes and edges during the parse phase and freezes
// them into a Graph. Builders are single-writer: one goroutine populates one
// Builder. Multi-file builds stage each file's fragment separately so a
// parse failure in one file never corrupts nodes already committed by
// earlier files.
type Builder struct {
	nodes []*Node
	edges []Edge
	ids   map[string]bool

	// Staging area for the file currently being parsed. CommitFile moves
	// it into the committed sets; AbandonFile discards it.
	stagedNodes []*Node
	stagedEdges []Edge
	stagedIDs   map[string]bool
	staging     bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ids: make(map[string]bool)}
}

// BeginFile opens a staging area for one file's fragment. Nodes and edges
// added before the matching CommitFile are discarded by AbandonFile.
func (b *Builder) BeginFile() {
	b.stagedNodes = nil
	b.stagedEdges = nil
	b.stagedIDs = make(map[string]bool)
	b.staging = true
}

// CommitFile moves the staged fragment into the committed graph.
func (b *Builder) CommitFile() {
	b.nodes = append(b.nodes, b.stagedNodes...)
	b.edges = append(b.edges, b.stagedEdges...)
	for id := range b.stagedIDs {
		b.ids[id] = true
	}
	b.endStaging()
}

// AbandonFile discards the staged fragment, leaving previously committed
// files untouched.
func (b *Builder) AbandonFile() {
	b.endStaging()
}

func (b *Builder) endStaging() {
	b.stagedNodes = nil
	b.stagedEdges = nil
	b.stagedIDs = nil
	b.staging = false
}

// AddNode appends a node. The ID must be unique within the builder and the
// span must be well formed.
func (b *Builder) AddNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("graph: node %q: empty ID", n.Name)
	}
	if b.ids[n.ID] || (b.staging && b.stagedIDs[n.ID]) {
		return fmt.Errorf("graph: duplicate node ID %s (%s)", n.ID, n.Name)
	}
	if !n.Span.Valid() {
		return fmt.Errorf("graph: node %s (%s): invalid span %+v", n.ID, n.Name, n.Span)
	}
	if b.staging {
		b.stagedNodes = append(b.stagedNodes, n)
		b.stagedIDs[n.ID] = true
	} else {
		b.nodes = append(b.nodes, n)
		b.ids[n.ID] = true
	}
	return nil
}

// AddEdge appends a directed edge. Both endpoints must already exist,
// either committed or staged in the current file.
func (b *Builder) AddEdge(from, to string, kind EdgeKind) error {
	if !b.hasNode(from) {
		return fmt.Errorf("graph: edge %s -> %s (%s): unknown source node", from, to, kind)
	}
	if !b.hasNode(to) {
		return fmt.Errorf("graph: edge %s -> %s (%s): unknown target node", from, to, kind)
	}
	e := Edge{From: from, To: to, Kind: kind}
	if b.staging {
		b.stagedEdges = append(b.stagedEdges, e)
	} else {
		b.edges = append(b.edges, e)
	}
	return nil
}

func (b *Builder) hasNode(id string) bool {
	return b.ids[id] || (b.staging && b.stagedIDs[id])
}

// NodeCount returns the number of committed nodes.
func (b *Builder) NodeCount() int { return len(b.nodes) }

// EdgeCount returns the number of committed edges.
func (b *Builder) EdgeCount() int { return len(b.edges) }

// Build freezes the committed nodes and edges into a Graph with eager
// indices. Any open staging area is abandoned. The Builder must not be used
// after Build.
func (b *Builder) Build() *Graph {
	b.endStaging()

	g := &Graph{
		nodes:    b.nodes,
		edges:    b.edges,
		byID:     make(map[string]*Node, len(b.nodes)),
		byKind:   make(map[Kind][]*Node),
		byFile:   make(map[string][]*Node),
		outgoing: make(map[string][]Edge),
		incoming: make(map[string][]Edge),
	}
	for _, n := range g.nodes {
		g.byID[n.ID] = n
		g.byKind[n.Kind] = append(g.byKind[n.Kind], n)
		if n.File != "" {
			g.byFile[n.File] = append(g.byFile[n.File], n)
		}
	}
	for _, e := range g.edges {
		g.outgoing[e.From] = append(g.outgoing[e.From], e)
		g.incoming[e.To] = append(g.incoming[e.To], e)
	}
	return g
}
