package detect

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/fix"
	"github.com/jward/lattice/internal/graph"
)

// defaultMinConfidence is the floor below which embedding matches are
// discarded.
const defaultMinConfidence = 0.75

// LoadML returns the model-scored detectors backed by the given catalog.
func LoadML(cat *catalog.Catalog) []Detector {
	return []Detector{
		&embedDetector{cat: cat, minConf: defaultMinConfidence},
	}
}

// embedDetector scores call and control nodes against the pattern
// catalog's embedding space. The scorer is frozen: NodeEmbedding is a
// fixed function of the node's neighborhood, so two passes over the same
// graph produce the same findings.
type embedDetector struct {
	cat     *catalog.Catalog
	minConf float64
}

func (d *embedDetector) Name() string { return "ml-pattern-similarity" }

func (d *embedDetector) Description() string {
	return "embedding similarity of graph neighborhoods against the pattern catalog"
}

func (d *embedDetector) Severity() Severity { return SeverityWarning }

func (d *embedDetector) MinConfidence() float64 { return d.minConf }

func (d *embedDetector) SuggestFix(f Finding) (fix.Suggestion, bool) {
	return fix.StaticSuggestion(f.PatternID)
}

func (d *embedDetector) Detect(ctx context.Context, g *graph.Graph) ([]Finding, error) {
	if d.cat == nil || d.cat.Len() == 0 {
		return nil, nil
	}

	var findings []Finding
	candidates := append([]*graph.Node{}, g.NodesByKind(graph.KindControl)...)
	candidates = append(candidates, g.NodesByKind(graph.KindCall)...)

	for i, n := range candidates {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		emb := NodeEmbedding(g, n)
		if vectorNorm(emb) == 0 {
			continue
		}
		matches := d.cat.MatchEmbedding(emb, d.minConf)
		if len(matches) == 0 {
			continue
		}
		best := matches[0]
		findings = append(findings, Finding{
			Detectors:  []string{d.Name()},
			PatternID:  best.Pattern.ID,
			Severity:   d.Severity(),
			Message:    fmt.Sprintf("%s resembles pattern %q", n.Name, best.Pattern.Name),
			File:       n.File,
			Span:       n.Span,
			NodeIDs:    []string{n.ID},
			Confidence: best.Similarity,
			Metadata:   map[string]string{"category": best.Pattern.Category},
		})
	}
	return findings, nil
}

// NodeEmbedding maps a node and its immediate neighborhood into the
// catalog's 8-dimensional embedding space. Dimension semantics follow the
// bundled catalog: 0-1 injection/security signals, 2-3 error-handling
// signals, 4-5 iteration/query signals, 6-7 structural signals, with
// concurrency loading on 7 and allocation on 3.
func NodeEmbedding(g *graph.Graph, n *graph.Node) []float32 {
	emb := make([]float32, 8)
	sig := n.Attr("signature")
	lowerName := strings.ToLower(n.Name)

	switch n.Kind {
	case graph.KindCall:
		if containsAny(strings.ToUpper(sig), "SELECT ", "INSERT ", "UPDATE ", "DELETE FROM") ||
			containsAny(lowerName, "eval", "exec", "system", "popen") {
			emb[0] = 0.9
			emb[1] = 0.85
		}
		if containsAny(lowerName, "md5", "sha1", "pickle", "password", "secret") {
			emb[0] = max32(emb[0], 0.85)
			emb[1] = max32(emb[1], 0.78)
		}
		if n.Attr("result_used") == "false" {
			emb[2] = max32(emb[2], 0.85)
			emb[3] = max32(emb[3], 0.82)
		}
		if containsAny(lowerName, "query", "execute", "fetch", "find") {
			emb[4] = max32(emb[4], 0.6)
			if enclosingLoop(g, n.ID) != nil {
				emb[4] = 0.9
				emb[5] = 0.85
			}
		}
		if containsAny(strings.ToLower(calleeBase(n.Name)), "lock", "acquire") {
			emb[7] = max32(emb[7], 0.88)
			emb[3] = max32(emb[3], 0.3)
		}
	case graph.KindControl:
		construct := n.Attr("construct")
		empty := n.Attr("empty_body") == "true"
		handler := construct == "except_clause" || construct == "catch_clause" || construct == "try_statement"
		if empty && (handler || strings.Contains(n.Attr("condition"), "err")) {
			emb[2] = 0.9
			emb[3] = 0.8
			emb[4] = 0.12
		}
		if isLoop(n) {
			emb[4] = max32(emb[4], 0.5)
			if loopDepth(g, n) >= 3 {
				emb[4] = 0.88
				emb[5] = 0.82
			}
		}
		if depth := controlDepth(g, n); depth >= 4 {
			emb[6] = 0.85
			emb[7] = max32(emb[7], 0.8)
			emb[4] = max32(emb[4], 0.3)
			emb[5] = max32(emb[5], 0.25)
		}
	}
	return emb
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
