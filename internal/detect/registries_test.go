package detect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lattice/internal/graph"
)

// gb accumulates a test graph with compact node declarations.
type gb struct {
	t *testing.T
	b *graph.Builder
}

func newGB(t *testing.T) *gb {
	t.Helper()
	return &gb{t: t, b: graph.NewBuilder()}
}

func (g *gb) node(id string, kind graph.Kind, name, file, language string, span graph.Span, attrs map[string]string) {
	g.t.Helper()
	if attrs == nil {
		attrs = map[string]string{}
	}
	err := g.b.AddNode(&graph.Node{
		ID: id, Kind: kind, Name: name, File: file, Language: language,
		Span: span, Attrs: attrs,
	})
	require.NoError(g.t, err)
}

func (g *gb) edge(from, to string, kind graph.EdgeKind) {
	g.t.Helper()
	require.NoError(g.t, g.b.AddEdge(from, to, kind))
}

func (g *gb) build() *graph.Graph {
	g.t.Helper()
	built := g.b.Build()
	require.NoError(g.t, built.Validate())
	return built
}

func span(startLine, endLine int) graph.Span {
	return graph.Span{StartLine: startLine, StartCol: 0, EndLine: endLine, EndCol: 1}
}

// runRule finds a detector by name in the full registry set and runs it.
func runRule(t *testing.T, name string, g *graph.Graph) []Finding {
	t.Helper()
	for _, d := range LoadAll() {
		if d.Name() != name {
			continue
		}
		findings, err := d.Detect(context.Background(), g)
		require.NoError(t, err)
		return findings
	}
	t.Fatalf("no detector named %s", name)
	return nil
}

func TestEmptyHandlerRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "a.py", "a.py", "python", span(0, 20), nil)
	g.node("fn", graph.KindFunction, "load", "a.py", "python", span(1, 10), nil)
	g.node("try", graph.KindControl, "try_statement", "a.py", "python", span(2, 6), map[string]string{
		"construct": "try_statement",
	})
	g.node("exc", graph.KindControl, "except_clause", "a.py", "python", span(4, 5), map[string]string{
		"construct":  "except_clause",
		"empty_body": "true",
	})
	g.edge("mod", "fn", graph.EdgeContains)
	g.edge("fn", "try", graph.EdgeContains)
	g.edge("try", "exc", graph.EdgeContains)
	built := g.build()

	findings := runRule(t, "empty-handler", built)
	require.Len(t, findings, 1)
	assert.Equal(t, "empty_handler", findings[0].PatternID)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, "a.py", findings[0].File)
	assert.Equal(t, []string{"exc"}, findings[0].NodeIDs)

	// The python specialization fires on the same node.
	special := runRule(t, "python-silent-except", built)
	require.Len(t, special, 1)
	assert.Equal(t, "python_bare_except", special[0].PatternID)
}

func TestEmptyHandlerIgnoresPopulatedBody(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "a.py", "a.py", "python", span(0, 20), nil)
	g.node("exc", graph.KindControl, "except_clause", "a.py", "python", span(4, 8), map[string]string{
		"construct": "except_clause",
	})
	g.edge("mod", "exc", graph.EdgeContains)

	assert.Empty(t, runRule(t, "empty-handler", g.build()))
}

func TestIgnoredReturnRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "b.go", "b.go", "go", span(0, 20), nil)
	g.node("fn", graph.KindFunction, "main", "b.go", "go", span(1, 10), nil)
	g.node("bad", graph.KindCall, "run", "b.go", "go", span(3, 3), map[string]string{
		"result_used": "false",
		"signature":   "run()",
	})
	g.node("ok", graph.KindCall, "compute", "b.go", "go", span(4, 4), map[string]string{
		"result_used": "true",
	})
	g.node("noisy", graph.KindCall, "fmt.Println", "b.go", "go", span(5, 5), map[string]string{
		"result_used": "false",
	})
	g.edge("mod", "fn", graph.EdgeContains)
	g.edge("fn", "bad", graph.EdgeCalls)
	g.edge("fn", "ok", graph.EdgeCalls)
	g.edge("fn", "noisy", graph.EdgeCalls)

	findings := runRule(t, "ignored-return", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "error_ignored", findings[0].PatternID)
	assert.Equal(t, []string{"bad"}, findings[0].NodeIDs)
}

func TestSQLInjectionRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "q.py", "q.py", "python", span(0, 20), nil)
	g.node("bad", graph.KindCall, "db.execute", "q.py", "python", span(3, 3), map[string]string{
		"signature": `db.execute("SELECT * FROM users WHERE id = '" + uid + "'")`,
	})
	g.node("ok", graph.KindCall, "db.execute", "q.py", "python", span(5, 5), map[string]string{
		"signature": `db.execute("SELECT * FROM users WHERE id = ?", uid)`,
	})
	g.edge("mod", "bad", graph.EdgeContains)
	g.edge("mod", "ok", graph.EdgeContains)

	findings := runRule(t, "sql-injection", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityCritical, findings[0].Severity)
	assert.Equal(t, []string{"bad"}, findings[0].NodeIDs)
}

func TestHardcodedCredentialsRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "cfg.py", "cfg.py", "python", span(0, 10), nil)
	g.node("pw", graph.KindVariable, "db_password", "cfg.py", "python", span(2, 2), nil)
	g.node("host", graph.KindVariable, "db_host", "cfg.py", "python", span(3, 3), nil)
	g.edge("mod", "pw", graph.EdgeContains)
	g.edge("mod", "host", graph.EdgeContains)

	findings := runRule(t, "hardcoded-credentials", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"pw"}, findings[0].NodeIDs)
}

func TestWeakHashRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "h.py", "h.py", "python", span(0, 10), nil)
	g.node("bad", graph.KindCall, "hashlib.md5", "h.py", "python", span(2, 2), nil)
	g.node("ok", graph.KindCall, "hashlib.sha256", "h.py", "python", span(3, 3), nil)
	g.edge("mod", "bad", graph.EdgeContains)
	g.edge("mod", "ok", graph.EdgeContains)

	findings := runRule(t, "weak-hash", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "weak_hash_algorithm", findings[0].PatternID)
}

func TestNPlusOneQueryRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "r.py", "r.py", "python", span(0, 20), nil)
	g.node("fn", graph.KindFunction, "load_all", "r.py", "python", span(1, 10), nil)
	g.node("loop", graph.KindControl, "for_statement", "r.py", "python", span(3, 6), map[string]string{
		"construct": "for_statement",
	})
	g.node("q", graph.KindCall, "db.query", "r.py", "python", span(4, 4), nil)
	g.edge("mod", "fn", graph.EdgeContains)
	g.edge("fn", "loop", graph.EdgeContains)
	g.edge("loop", "q", graph.EdgeContains)

	findings := runRule(t, "n-plus-one-query", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "n_plus_one_query", findings[0].PatternID)
	assert.Contains(t, findings[0].NodeIDs, "q")
	assert.Contains(t, findings[0].NodeIDs, "loop")
}

func TestDeepNestingRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "n.go", "n.go", "go", span(0, 30), nil)
	g.node("fn", graph.KindFunction, "deep", "n.go", "go", span(1, 20), nil)
	prev := "fn"
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("c%d", i)
		g.node(id, graph.KindControl, "if_statement", "n.go", "go", span(i+1, 20-i), map[string]string{
			"construct": "if_statement",
		})
		g.edge(prev, id, graph.EdgeContains)
		prev = id
	}
	g.edge("mod", "fn", graph.EdgeContains)

	findings := runRule(t, "deep-nesting", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"c1"}, findings[0].NodeIDs) // outermost only
	assert.Equal(t, "4", findings[0].Metadata["depth"])
}

func TestDeepNestingBelowThreshold(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "n.go", "n.go", "go", span(0, 30), nil)
	g.node("c1", graph.KindControl, "if_statement", "n.go", "go", span(1, 10), map[string]string{"construct": "if_statement"})
	g.node("c2", graph.KindControl, "if_statement", "n.go", "go", span(2, 9), map[string]string{"construct": "if_statement"})
	g.edge("mod", "c1", graph.EdgeContains)
	g.edge("c1", "c2", graph.EdgeContains)

	assert.Empty(t, runRule(t, "deep-nesting", g.build()))
}

func TestLongFunctionRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "l.go", "l.go", "go", span(0, 200), nil)
	g.node("long", graph.KindFunction, "everything", "l.go", "go", span(1, 120), nil)
	g.node("short", graph.KindFunction, "helper", "l.go", "go", span(121, 130), nil)
	g.edge("mod", "long", graph.EdgeContains)
	g.edge("mod", "short", graph.EdgeContains)

	findings := runRule(t, "long-function", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"long"}, findings[0].NodeIDs)
	assert.Equal(t, "120", findings[0].Metadata["lines"])
}

func TestUnusedImportRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "u.py", "u.py", "python", span(0, 20), nil)
	g.node("used", graph.KindImport, "os", "u.py", "python", span(1, 1), map[string]string{"source": "os"})
	g.node("unused", graph.KindImport, "json", "u.py", "python", span(2, 2), map[string]string{"source": "json"})
	g.node("call", graph.KindCall, "os.getenv", "u.py", "python", span(5, 5), nil)
	g.edge("mod", "used", graph.EdgeContains)
	g.edge("mod", "unused", graph.EdgeContains)
	g.edge("mod", "call", graph.EdgeContains)

	findings := runRule(t, "unused-import", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"unused"}, findings[0].NodeIDs)
}

func TestUnreleasedLockRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "c.go", "c.go", "go", span(0, 30), nil)
	g.node("leaky", graph.KindFunction, "leaky", "c.go", "go", span(1, 10), nil)
	g.node("lock1", graph.KindCall, "mu.Lock", "c.go", "go", span(2, 2), nil)
	g.node("balanced", graph.KindFunction, "balanced", "c.go", "go", span(11, 20), nil)
	g.node("lock2", graph.KindCall, "mu.Lock", "c.go", "go", span(12, 12), nil)
	g.node("unlock2", graph.KindCall, "mu.Unlock", "c.go", "go", span(13, 13), nil)
	g.edge("mod", "leaky", graph.EdgeContains)
	g.edge("mod", "balanced", graph.EdgeContains)
	g.edge("leaky", "lock1", graph.EdgeCalls)
	g.edge("balanced", "lock2", graph.EdgeCalls)
	g.edge("balanced", "unlock2", graph.EdgeCalls)

	findings := runRule(t, "unreleased-lock", g.build())
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].NodeIDs, "lock1")
	assert.Contains(t, findings[0].NodeIDs, "leaky")
}

func TestSharedWriteRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "s.go", "s.go", "go", span(0, 30), nil)
	g.node("f1", graph.KindFunction, "produce", "s.go", "go", span(1, 10), nil)
	g.node("f2", graph.KindFunction, "consume", "s.go", "go", span(11, 20), nil)
	g.node("v", graph.KindVariable, "state", "s.go", "go", span(0, 0), nil)
	g.edge("mod", "f1", graph.EdgeContains)
	g.edge("mod", "f2", graph.EdgeContains)
	g.edge("mod", "v", graph.EdgeContains)
	g.edge("f1", "v", graph.EdgeWrites)
	g.edge("f2", "v", graph.EdgeWrites)

	findings := runRule(t, "shared-write", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "race_condition", findings[0].PatternID)
	assert.Contains(t, findings[0].NodeIDs, "v")
}

func TestLanguageRestrictionFiltersFindings(t *testing.T) {
	// A Rust-only rule ignores identical shapes in other languages.
	g := newGB(t)
	g.node("mod", graph.KindModule, "m.go", "m.go", "go", span(0, 10), nil)
	g.node("call", graph.KindCall, "cfg.unwrap", "m.go", "go", span(2, 2), nil)
	g.edge("mod", "call", graph.EdgeContains)

	assert.Empty(t, runRule(t, "rust-unwrap", g.build()))
}

func TestRustUnwrapRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "m.rs", "m.rs", "rust", span(0, 10), nil)
	g.node("call", graph.KindCall, "cfg.unwrap", "m.rs", "rust", span(2, 2), nil)
	g.edge("mod", "call", graph.EdgeContains)

	findings := runRule(t, "rust-unwrap", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "rust_unwrap_use", findings[0].PatternID)
}

func TestGoEmptyErrorCheckRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "e.go", "e.go", "go", span(0, 10), nil)
	g.node("ctl", graph.KindControl, "if_statement", "e.go", "go", span(3, 4), map[string]string{
		"construct":  "if_statement",
		"condition":  "err != nil",
		"empty_body": "true",
	})
	g.edge("mod", "ctl", graph.EdgeContains)

	findings := runRule(t, "go-empty-error-check", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "go_empty_error_check", findings[0].PatternID)
}

func TestFactoryOpportunityRule(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "f.go", "f.go", "go", span(0, 40), nil)
	for i, name := range []string{"NewClient", "NewServer", "NewPool"} {
		id := fmt.Sprintf("fn%d", i)
		g.node(id, graph.KindFunction, name, "f.go", "go", span(i*10+1, i*10+5), nil)
		g.edge("mod", id, graph.EdgeContains)
	}

	findings := runRule(t, "factory-opportunity", g.build())
	require.Len(t, findings, 1)
	assert.Equal(t, "factory_opportunity", findings[0].PatternID)
}

func TestDetectorSuggestFix(t *testing.T) {
	g := newGB(t)
	g.node("mod", graph.KindModule, "a.py", "a.py", "python", span(0, 10), nil)
	g.node("exc", graph.KindControl, "except_clause", "a.py", "python", span(4, 5), map[string]string{
		"construct":  "except_clause",
		"empty_body": "true",
	})
	g.edge("mod", "exc", graph.EdgeContains)

	for _, d := range LoadErrorHandling() {
		if d.Name() != "empty-handler" {
			continue
		}
		findings, err := d.Detect(context.Background(), g.build())
		require.NoError(t, err)
		require.Len(t, findings, 1)

		sugg, ok := d.SuggestFix(findings[0])
		require.True(t, ok)
		assert.NotEmpty(t, sugg.Description)
		assert.Contains(t, sugg.Diff, "@@")
		return
	}
	t.Fatal("empty-handler not loaded")
}

func TestLoadAllUniqueNamesAndSeverities(t *testing.T) {
	all := LoadAll()
	require.NotEmpty(t, all)

	seen := make(map[string]bool)
	for _, d := range all {
		assert.False(t, seen[d.Name()], "duplicate detector name %s", d.Name())
		seen[d.Name()] = true
		assert.NotEmpty(t, d.Description())
		assert.GreaterOrEqual(t, int(d.Severity()), int(SeverityInfo))
		assert.LessOrEqual(t, int(d.Severity()), int(SeverityCritical))
	}

	total := len(LoadErrorHandling()) + len(LoadSecurity()) + len(LoadPerformance()) +
		len(LoadMemorySafety()) + len(LoadConcurrency()) + len(LoadCodeSmells()) +
		len(LoadAPIMisuse()) + len(LoadDesignPatterns()) + len(LoadLanguageSpecific())
	assert.Equal(t, total, len(all))
}
