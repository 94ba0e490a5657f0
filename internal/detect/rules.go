package detect

import (
	"context"

	"github.com/jward/lattice/internal/fix"
	"github.com/jward/lattice/internal/graph"
)

// ruleMatch is one hit produced by a rule's match function: the primary
// node plus a message and optional extras.
type ruleMatch struct {
	node     *graph.Node
	message  string
	extra    []string
	metadata map[string]string
}

// ruleSpec declares one rule-based detector. Detectors are generated from
// these tables rather than hand-written as one type per rule, so adding a
// rule is a table entry with a match function.
type ruleSpec struct {
	name        string
	description string
	patternID   string
	severity    Severity
	// languages restricts the rule; nil means all languages.
	languages map[string]bool
	match     func(g *graph.Graph) []ruleMatch
}

// ruleDetector adapts a ruleSpec to the Detector interface.
type ruleDetector struct {
	spec ruleSpec
}

func newRuleDetector(spec ruleSpec) *ruleDetector { return &ruleDetector{spec: spec} }

func (d *ruleDetector) Name() string        { return d.spec.name }
func (d *ruleDetector) Description() string { return d.spec.description }
func (d *ruleDetector) Severity() Severity  { return d.spec.severity }

func (d *ruleDetector) Detect(ctx context.Context, g *graph.Graph) ([]Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var findings []Finding
	for _, m := range d.spec.match(g) {
		if d.spec.languages != nil && !d.spec.languages[m.node.Language] {
			continue
		}
		findings = append(findings, Finding{
			Detectors: []string{d.spec.name},
			PatternID: d.spec.patternID,
			Severity:  d.spec.severity,
			Message:   m.message,
			File:      m.node.File,
			Span:      m.node.Span,
			NodeIDs:   append([]string{m.node.ID}, m.extra...),
			Metadata:  m.metadata,
		})
	}
	return findings, nil
}

func (d *ruleDetector) SuggestFix(f Finding) (fix.Suggestion, bool) {
	return fix.StaticSuggestion(f.PatternID)
}
