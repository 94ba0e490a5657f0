package lattice

import (
	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/detect"
	"github.com/jward/lattice/internal/fix"
	"github.com/jward/lattice/internal/graph"
)

// Public type aliases for internal types surfaced through the Engine API.
// These are Go type aliases, identical to the internal types at compile
// time, so no conversion is needed.

type Severity = detect.Severity
type Failure = detect.Failure
type ScriptDetector = detect.ScriptDetector
type Suggestion = fix.Suggestion
type Stats = graph.Stats
type Graph = graph.Graph
type Node = graph.Node
type Edge = graph.Edge
type Span = graph.Span
type Catalog = catalog.Catalog
type StoredPattern = catalog.StoredPattern

const (
	SeverityInfo     = detect.SeverityInfo
	SeverityWarning  = detect.SeverityWarning
	SeverityError    = detect.SeverityError
	SeverityCritical = detect.SeverityCritical
)

// NewScriptDetector wraps Risor source as a detector. The script sees the
// graph through `nodes(kind)` and `neighbors(id, edge_kind)` and evaluates
// to a list of finding maps.
var NewScriptDetector = detect.NewScriptDetector

// ParseSeverity maps a severity name to its value.
var ParseSeverity = detect.ParseSeverity
