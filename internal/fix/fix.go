// Package fix turns findings into ranked fix suggestions and attests
// whether a suggested transformation preserves program behavior. It never
// applies anything: suggestions are proposals for a human reviewer or an
// external apply step.
package fix

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/lattice/internal/catalog"
)

// Suggestion is one candidate fix. SemanticScore is always populated;
// Verified is true only when the equivalence checker established that the
// transformation preserves behavior. An unverified suggestion is returned
// with suppressed confidence, never silently dropped or upgraded.
type Suggestion struct {
	Description   string
	Diff          string
	Confidence    float64
	TestCoverage  float64
	SemanticScore float64
	Verified      bool
}

// unverifiedConfidenceCap bounds the confidence of suggestions whose
// equivalence could not be established.
const unverifiedConfidenceCap = 0.4

// Generator produces suggestions for findings by pattern ID, consulting
// the catalog's inheritance hierarchy when a pattern has no templates of
// its own.
type Generator struct {
	cat     *catalog.Catalog
	checker *EquivalenceChecker
}

// NewGenerator returns a Generator backed by the given catalog.
func NewGenerator(cat *catalog.Catalog) *Generator {
	return &Generator{cat: cat, checker: NewEquivalenceChecker()}
}

// GenerateFixes returns ranked suggestions for a pattern. Templates are
// looked up for the pattern itself first, then for its ancestors, nearest
// first. Each suggestion carries an equivalence verdict; unverified
// suggestions survive with capped confidence.
func (g *Generator) GenerateFixes(patternID string) []Suggestion {
	templates := TemplatesFor(patternID)
	if len(templates) == 0 && g.cat != nil {
		for _, ancestor := range g.cat.Inheritance().Ancestors(patternID) {
			if templates = TemplatesFor(ancestor); len(templates) > 0 {
				break
			}
		}
	}

	suggestions := make([]Suggestion, 0, len(templates))
	for _, tpl := range templates {
		sugg := Suggestion{
			Description:  tpl.Description,
			Diff:         renderDiff(tpl.Before, tpl.After),
			Confidence:   tpl.Confidence,
			TestCoverage: tpl.Coverage,
		}
		verdict, score := g.checker.Check(tpl.Before, tpl.After)
		sugg.SemanticScore = score
		sugg.Verified = verdict
		if !verdict && sugg.Confidence > unverifiedConfidenceCap {
			sugg.Confidence = unverifiedConfidenceCap
		}
		suggestions = append(suggestions, sugg)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions
}

// StaticSuggestion builds an unverified suggestion from the highest
// confidence template registered for a pattern, without consulting the
// catalog hierarchy or the equivalence checker. Detectors use this for a
// cheap inline hint; the full pipeline goes through Generator.
func StaticSuggestion(patternID string) (Suggestion, bool) {
	templates := TemplatesFor(patternID)
	if len(templates) == 0 {
		return Suggestion{}, false
	}
	best := templates[0]
	for _, tpl := range templates[1:] {
		if tpl.Confidence > best.Confidence {
			best = tpl
		}
	}
	conf := best.Confidence
	if conf > unverifiedConfidenceCap {
		conf = unverifiedConfidenceCap
	}
	return Suggestion{
		Description:  best.Description,
		Diff:         renderDiff(best.Before, best.After),
		Confidence:   conf,
		TestCoverage: best.Coverage,
	}, true
}

// renderDiff produces a minimal unified-style diff of the template's
// before and after fragments.
func renderDiff(before, after string) string {
	var b strings.Builder
	oldLines := strings.Split(strings.TrimRight(before, "\n"), "\n")
	newLines := strings.Split(strings.TrimRight(after, "\n"), "\n")
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines))
	for _, line := range oldLines {
		fmt.Fprintf(&b, "-%s\n", line)
	}
	for _, line := range newLines {
		fmt.Fprintf(&b, "+%s\n", line)
	}
	return b.String()
}
