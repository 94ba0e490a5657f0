package detect

import (
	"context"
	"fmt"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/lattice/internal/fix"
	"github.com/jward/lattice/internal/graph"
)

// ScriptDetector runs a Risor script against the graph. The script sees
// the graph through the host functions `nodes(kind)` and `neighbors(id,
// edge_kind)` and evaluates to a list of finding maps:
//
//	[{"pattern_id": "...", "message": "...", "node_id": "...",
//	  "severity": "warning", "confidence": 0.5}]
//
// Scripts let a deployment add detection rules without recompiling.
type ScriptDetector struct {
	name        string
	description string
	severity    Severity
	source      string
}

// NewScriptDetector wraps Risor source as a detector. severity is the
// default for findings whose map carries no severity of its own.
func NewScriptDetector(name, description string, severity Severity, source string) *ScriptDetector {
	return &ScriptDetector{name: name, description: description, severity: severity, source: source}
}

func (d *ScriptDetector) Name() string        { return d.name }
func (d *ScriptDetector) Description() string { return d.description }
func (d *ScriptDetector) Severity() Severity  { return d.severity }

func (d *ScriptDetector) SuggestFix(f Finding) (fix.Suggestion, bool) {
	return fix.StaticSuggestion(f.PatternID)
}

func (d *ScriptDetector) Detect(ctx context.Context, g *graph.Graph) ([]Finding, error) {
	result, err := risor.Eval(ctx, d.source,
		risor.WithGlobal("nodes", makeNodesFn(g)),
		risor.WithGlobal("neighbors", makeNeighborsFn(g)),
	)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", d.name, err)
	}
	return d.convert(g, result)
}

func (d *ScriptDetector) convert(g *graph.Graph, result object.Object) ([]Finding, error) {
	if _, ok := result.(*object.NilType); ok || result == nil {
		return nil, nil
	}
	list, ok := result.(*object.List)
	if !ok {
		return nil, fmt.Errorf("script %s: expected a list of findings, got %s", d.name, result.Type())
	}

	var findings []Finding
	for _, item := range list.Value() {
		m, ok := item.(*object.Map)
		if !ok {
			return nil, fmt.Errorf("script %s: finding must be a map, got %s", d.name, item.Type())
		}
		fields := m.Value()

		f := Finding{
			Detectors:  []string{d.name},
			PatternID:  getString(fields, "pattern_id"),
			Severity:   d.severity,
			Message:    getString(fields, "message"),
			Confidence: getFloat(fields, "confidence"),
		}
		if sevName := getString(fields, "severity"); sevName != "" {
			sev, err := ParseSeverity(sevName)
			if err != nil {
				return nil, fmt.Errorf("script %s: %w", d.name, err)
			}
			f.Severity = sev
		}
		if id := getString(fields, "node_id"); id != "" {
			node := g.NodeByID(id)
			if node == nil {
				return nil, fmt.Errorf("script %s: finding references unknown node %s", d.name, id)
			}
			f.NodeIDs = []string{id}
			f.File = node.File
			f.Span = node.Span
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// makeNodesFn exposes graph nodes to scripts. With no argument it returns
// every node; with a kind argument it filters.
func makeNodesFn(g *graph.Graph) *object.Builtin {
	return object.NewBuiltin("nodes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.NewArgsRangeError("nodes", 0, 1, len(args))
		}
		var selected []*graph.Node
		if len(args) == 0 {
			selected = g.Nodes()
		} else {
			kind, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("nodes: kind must be a string, got %s", args[0].Type())
			}
			selected = g.NodesByKind(graph.Kind(kind.Value()))
		}
		out := make([]object.Object, 0, len(selected))
		for _, n := range selected {
			out = append(out, nodeToMap(n))
		}
		return object.NewList(out)
	})
}

// makeNeighborsFn exposes edge traversal. An empty edge kind matches all.
func makeNeighborsFn(g *graph.Graph) *object.Builtin {
	return object.NewBuiltin("neighbors", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("neighbors", 2, len(args))
		}
		id, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("neighbors: id must be a string, got %s", args[0].Type())
		}
		kind, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("neighbors: edge kind must be a string, got %s", args[1].Type())
		}
		nodes := g.Neighbors(id.Value(), graph.EdgeKind(kind.Value()))
		out := make([]object.Object, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, nodeToMap(n))
		}
		return object.NewList(out)
	})
}

func nodeToMap(n *graph.Node) *object.Map {
	attrs := make(map[string]object.Object, len(n.Attrs))
	for k, v := range n.Attrs {
		attrs[k] = object.NewString(v)
	}
	return object.NewMap(map[string]object.Object{
		"id":         object.NewString(n.ID),
		"kind":       object.NewString(string(n.Kind)),
		"name":       object.NewString(n.Name),
		"file":       object.NewString(n.File),
		"language":   object.NewString(n.Language),
		"start_line": object.NewInt(int64(n.Span.StartLine)),
		"end_line":   object.NewInt(int64(n.Span.EndLine)),
		"attrs":      object.NewMap(attrs),
	})
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getFloat(m map[string]object.Object, key string) float64 {
	switch v := m[key].(type) {
	case *object.Float:
		return v.Value()
	case *object.Int:
		return float64(v.Value())
	}
	return 0
}
