package lang

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lattice/internal/graph"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRegistry_FirstMatchDispatch(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	p := reg.ParserFor("main.go")
	require.NotNil(t, p)
	assert.Equal(t, "go", p.Language())

	p = reg.ParserFor("app.py")
	require.NotNil(t, p)
	assert.Equal(t, "python", p.Language())

	// Exactly one parser claims each built-in extension.
	for _, path := range []string{"a.go", "a.py", "a.js", "a.ts", "a.java", "a.c", "a.cpp", "a.rs", "a.swift"} {
		var claims []string
		for _, parser := range reg.Parsers() {
			if parser.CanParse(path) {
				claims = append(claims, parser.Language())
			}
		}
		assert.Len(t, claims, 1, "extension of %s", path)
	}
}

func TestRegistry_UnknownExtension(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	assert.Nil(t, reg.ParserFor("README.md"))
	assert.Nil(t, reg.ParserFor("Makefile"))
	// Case-sensitive exact matching: .GO is not .go.
	assert.Nil(t, reg.ParserFor("main.GO"))
}

func TestNewRegistry_RejectsAmbiguousExtensionClaim(t *testing.T) {
	ps := DefaultParsers()
	_, err := NewRegistry(ps[0], ps[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claimed by both")
}

func TestRegistry_SupportedExtensionsFlattened(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	exts := reg.SupportedExtensions()
	assert.Contains(t, exts, ".go")
	assert.Contains(t, exts, ".swift")

	var total int
	for _, p := range reg.Parsers() {
		total += len(p.Extensions())
	}
	assert.Len(t, exts, total)
}

func TestParseFile_GoTranslation(t *testing.T) {
	src := `package main

import "fmt"

func run() error {
	return nil
}

func main() {
	run()
	fmt.Println("done")
}
`
	path := writeSource(t, "main.go", src)
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	p := reg.ParserFor(path)
	require.NotNil(t, p)

	b := graph.NewBuilder()
	require.NoError(t, p.ParseFile(path, b))
	g := b.Build()
	require.NoError(t, g.Validate())

	require.Len(t, g.NodesByKind(graph.KindModule), 1)

	funcs := g.NodesByKind(graph.KindFunction)
	names := make(map[string]*graph.Node)
	for _, f := range funcs {
		names[f.Name] = f
	}
	require.Contains(t, names, "run")
	require.Contains(t, names, "main")
	assert.Equal(t, "private", names["run"].Attr("visibility"))
	assert.Contains(t, names["run"].Attr("signature"), "func run()")

	// main calls run and fmt.Println; run's result is discarded.
	callees := g.Neighbors(names["main"].ID, graph.EdgeCalls)
	require.Len(t, callees, 2)
	var sawIgnored bool
	for _, c := range callees {
		if c.Name == "run" {
			assert.Equal(t, "false", c.Attr("result_used"))
			sawIgnored = true
		}
	}
	assert.True(t, sawIgnored)

	imports := g.NodesByKind(graph.KindImport)
	require.Len(t, imports, 1)
	assert.Equal(t, "fmt", imports[0].Attr("source"))
}

func TestParseFile_PythonEmptyExceptBody(t *testing.T) {
	src := `def fetch():
    try:
        risky()
    except Exception:
        pass
`
	path := writeSource(t, "app.py", src)
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	b := graph.NewBuilder()
	require.NoError(t, reg.ParserFor(path).ParseFile(path, b))
	g := b.Build()

	var emptyExcept *graph.Node
	for _, n := range g.NodesByKind(graph.KindControl) {
		if n.Attr("construct") == "except_clause" {
			emptyExcept = n
		}
	}
	require.NotNil(t, emptyExcept)
	assert.Equal(t, "true", emptyExcept.Attr("empty_body"))
}

func TestParseFile_MalformedSourceLeavesBuilderUntouched(t *testing.T) {
	good := writeSource(t, "good.py", "def ok():\n    return 1\n")
	bad := writeSource(t, "bad.py", "def broken(:\n")

	reg, err := DefaultRegistry()
	require.NoError(t, err)
	p := reg.ParserFor(good)

	b := graph.NewBuilder()
	require.NoError(t, p.ParseFile(good, b))
	committed := b.NodeCount()

	err = p.ParseFile(bad, b)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, bad, perr.Path)

	// The failed file staged nothing permanent.
	assert.Equal(t, committed, b.NodeCount())
	g := b.Build()
	require.NoError(t, g.Validate())
	assert.Empty(t, g.NodesInFile(bad))
}

func TestParseFile_ClassInheritanceWithinFile(t *testing.T) {
	src := `class Base:
    pass

class Child(Base):
    def work(self):
        return 1
`
	path := writeSource(t, "model.py", src)
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	b := graph.NewBuilder()
	require.NoError(t, reg.ParserFor(path).ParseFile(path, b))
	g := b.Build()

	classes := g.NodesByKind(graph.KindClass)
	require.Len(t, classes, 2)

	var child *graph.Node
	for _, c := range classes {
		if c.Name == "Child" {
			child = c
		}
	}
	require.NotNil(t, child)
	parents := g.Neighbors(child.ID, graph.EdgeInherits)
	require.Len(t, parents, 1)
	assert.Equal(t, "Base", parents[0].Name)

	// work is a method, not a free function.
	methods := g.NodesByKind(graph.KindMethod)
	require.Len(t, methods, 1)
	assert.Equal(t, "work", methods[0].Name)
}
