package lattice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const emptyErrorCheckSource = `package demo

func step() error { return nil }

func Load() error {
	err := step()
	if err != nil {
	}
	return nil
}
`

const ignoredReturnSource = `package demo

func main() {
	Load()
}
`

func findByDetector(findings []Finding, detector string) []Finding {
	var out []Finding
	for _, f := range findings {
		for _, d := range f.Detectors {
			if d == detector {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// The canonical two-file scenario: file A swallows an error in an empty
// check, file B calls A's function and discards the result. Both must be
// found, and both must yield fix suggestions with a populated semantic
// score.
func TestAnalyzeDirectoryEndToEnd(t *testing.T) {
	dir := t.TempDir()
	aPath := writeFile(t, dir, "a.go", emptyErrorCheckSource)
	bPath := writeFile(t, dir, "b.go", ignoredReturnSource)

	e, err := New()
	require.NoError(t, err)

	report, err := e.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.NotNil(t, report.Graph)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Stats.FilesParsed)
	assert.Zero(t, report.Stats.FilesFailed)
	assert.Empty(t, report.Failures)

	emptyChecks := findByDetector(report.Findings, "go-empty-error-check")
	require.NotEmpty(t, emptyChecks, "empty error check in a.go not found")
	assert.Equal(t, aPath, emptyChecks[0].File)

	ignored := findByDetector(report.Findings, "ignored-return")
	require.NotEmpty(t, ignored, "ignored return in b.go not found")
	assert.Equal(t, bPath, ignored[0].File)

	for _, f := range []Finding{emptyChecks[0], ignored[0]} {
		suggestions := e.GenerateFixes(f)
		require.NotEmpty(t, suggestions, "no fix for %s", f.PatternID)
		for _, s := range suggestions {
			assert.GreaterOrEqual(t, s.SemanticScore, 0.0)
			assert.LessOrEqual(t, s.SemanticScore, 1.0)
			assert.NotEmpty(t, s.Description)
			assert.NotEmpty(t, s.Diff)
		}
	}
}

func TestAnalyzeFilesMalformedFileIsIsolated(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.py", "def f():\n    return 1\n")
	bad := writeFile(t, dir, "bad.py", "def broken(:\n")

	e, err := New()
	require.NoError(t, err)

	report, err := e.AnalyzeFiles(context.Background(), []string{good, bad})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.FilesParsed)
	assert.Equal(t, 1, report.Stats.FilesFailed)
	require.Len(t, report.Stats.Errors, 1)
	assert.Contains(t, report.Stats.Errors[0], "bad.py")

	// The good file's fragment survived.
	assert.NotEmpty(t, report.Graph.NodesInFile(good))
	assert.Empty(t, report.Graph.NodesInFile(bad))
}

func TestAnalyzeFilesSkipsUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", "not code")

	e, err := New()
	require.NoError(t, err)

	report, err := e.AnalyzeFiles(context.Background(), []string{txt})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.FilesSkipped)
	assert.Equal(t, []string{txt}, report.SkippedFiles)
	assert.Zero(t, report.Stats.FilesParsed)
}

func TestWithLanguagesRestrictsAnalysis(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", emptyErrorCheckSource)
	writeFile(t, dir, "b.py", "def f():\n    return 1\n")

	e, err := New(WithLanguages("python"))
	require.NoError(t, err)

	report, err := e.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.FilesParsed)
	// b.py contributes its module node plus the function node.
	assert.Equal(t, 2, report.Stats.NodesPerLanguage["python"])
	assert.Zero(t, report.Stats.NodesPerLanguage["go"])
}

func TestWithIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.go", emptyErrorCheckSource)
	writeFile(t, dir, "gen/skip.go", emptyErrorCheckSource)

	e, err := New(WithIgnore("gen/**"))
	require.NoError(t, err)

	report, err := e.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.FilesParsed)
}

func TestAnalyzeDirectorySkipsHiddenAndVendored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.go", emptyErrorCheckSource)
	writeFile(t, dir, ".hidden/secret.go", emptyErrorCheckSource)
	writeFile(t, dir, "vendor/dep.go", emptyErrorCheckSource)
	writeFile(t, dir, "node_modules/pkg/index.js", "eval(x)\n")

	e, err := New()
	require.NoError(t, err)

	report, err := e.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.FilesParsed)
}

func TestWithScriptDetectors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", emptyErrorCheckSource)

	script := NewScriptDetector("scripted-module-census", "reports every module node", SeverityInfo, `
found := []
for _, n := range nodes("module") {
    found.append({"pattern_id": "long_function", "message": "module seen", "node_id": n["id"]})
}
found
`)

	base, err := New()
	require.NoError(t, err)
	extended, err := New(WithScriptDetectors(script))
	require.NoError(t, err)
	assert.Equal(t, base.PatternCount()+1, extended.PatternCount())

	report, err := extended.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.NotEmpty(t, findByDetector(report.Findings, "scripted-module-census"))
}

func TestWithSimilarityThreshold(t *testing.T) {
	// Two scripted detectors flag the same module node under sibling
	// patterns whose only link is a 0.86 cross-language variant. The
	// default threshold merges them into one finding; a stricter engine
	// keeps them separate.
	dir := t.TempDir()
	writeFile(t, dir, "a.py", "def f():\n    return 1\n")

	scripts := func() []*ScriptDetector {
		mk := func(name, patternID string) *ScriptDetector {
			return NewScriptDetector(name, "flags the module", SeverityWarning, `
found := []
for _, n := range nodes("module") {
    found.append({"pattern_id": "`+patternID+`", "message": "module flagged", "node_id": n["id"]})
}
found
`)
		}
		return []*ScriptDetector{
			mk("scripted-ignored", "go_error_ignored"),
			mk("scripted-unwrap", "rust_unwrap_use"),
		}
	}

	relaxed, err := New(WithScriptDetectors(scripts()...))
	require.NoError(t, err)
	report, err := relaxed.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	merged := findByDetector(report.Findings, "scripted-ignored")
	require.Len(t, merged, 1)
	assert.Contains(t, merged[0].Detectors, "scripted-unwrap")

	strict, err := New(WithScriptDetectors(scripts()...), WithSimilarityThreshold(0.9))
	require.NoError(t, err)
	report, err = strict.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)
	separate := findByDetector(report.Findings, "scripted-ignored")
	require.Len(t, separate, 1)
	assert.NotContains(t, separate[0].Detectors, "scripted-unwrap")
	assert.Len(t, findByDetector(report.Findings, "scripted-unwrap"), 1)
}

func TestFindingsSortedByLocation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", emptyErrorCheckSource)
	writeFile(t, dir, "b.go", ignoredReturnSource)

	e, err := New()
	require.NoError(t, err)
	report, err := e.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)

	for i := 1; i < len(report.Findings); i++ {
		prev, cur := report.Findings[i-1], report.Findings[i]
		if prev.File != cur.File {
			assert.Less(t, prev.File, cur.File)
			continue
		}
		assert.LessOrEqual(t, prev.Span.StartLine, cur.Span.StartLine)
	}
}

func TestTierMonotonic(t *testing.T) {
	scores := []float64{0.05, 0.2, 0.39, 0.4, 0.55, 0.69, 0.7, 0.8, 0.89, 0.9, 0.97, 1.0}
	for i := 1; i < len(scores); i++ {
		lower := TierFor(scores[i-1])
		higher := TierFor(scores[i])
		assert.True(t, higher.AtLeast(lower),
			"TierFor(%v)=%s ranks below TierFor(%v)=%s", scores[i], higher, scores[i-1], lower)
	}

	assert.Equal(t, TierSpeculative, TierFor(0.1))
	assert.Equal(t, TierLow, TierFor(0.5))
	assert.Equal(t, TierMedium, TierFor(0.8))
	assert.Equal(t, TierHigh, TierFor(0.95))
}

func TestBySeverity(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q.py", `import hashlib

def digest(data):
    return hashlib.md5(data)
`)

	e, err := New()
	require.NoError(t, err)
	report, err := e.AnalyzeDirectory(context.Background(), dir)
	require.NoError(t, err)

	errors := report.BySeverity(SeverityError)
	require.NotEmpty(t, errors)
	for _, f := range errors {
		assert.GreaterOrEqual(t, int(f.Severity), int(SeverityError))
	}
	assert.GreaterOrEqual(t, len(report.Findings), len(errors))
}

func TestSupportedExtensions(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	exts, err := e.SupportedExtensions()
	require.NoError(t, err)
	assert.Contains(t, exts, ".go")
	assert.Contains(t, exts, ".py")
	assert.Contains(t, exts, ".rs")
}

func TestWithCatalogUnreadablePathIsFatal(t *testing.T) {
	_, err := New(WithCatalog(filepath.Join(t.TempDir(), "missing", "deep", "catalog.db")))
	require.Error(t, err)
}
