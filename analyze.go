package lattice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jward/lattice/internal/detect"
	"github.com/jward/lattice/internal/graph"
	"github.com/jward/lattice/internal/lang"
)

// skipDirs are directory names the walker never descends into, on top of
// hidden directories.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"target":       true,
	"dist":         true,
}

// AnalyzeFile analyzes a single source file.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	return e.AnalyzeFiles(ctx, []string{path})
}

// AnalyzeDirectory walks root, collects every supported source file not
// excluded by the ignore patterns, and analyzes them together so
// cross-file findings see one combined graph.
func (e *Engine) AnalyzeDirectory(ctx context.Context, root string) (*Report, error) {
	registry, err := e.registry()
	if err != nil {
		return nil, err
	}

	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if e.ignored(rel) {
			return nil
		}
		if registry.ParserFor(path) != nil {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("lattice: walk %s: %w", root, walkErr)
	}
	return e.AnalyzeFiles(ctx, paths)
}

func (e *Engine) ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range e.ignore {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// fileResult carries one file's parsed fragment out of the worker pool.
type fileResult struct {
	path     string
	fragment *graph.Graph
	err      error
}

// AnalyzeFiles parses the given files into one code graph and runs the
// full detector set over it. Parsing runs in three phases: serial path
// filtering, parallel parsing (each worker owns its parsers, since
// tree-sitter parsers are not goroutine-safe), and serial graph assembly.
// A file that fails to parse is recorded in the stats and skipped; it
// never corrupts the fragments committed for other files.
func (e *Engine) AnalyzeFiles(ctx context.Context, paths []string) (*Report, error) {
	report := NewReport()
	stats := report.Stats

	// Phase A: serial filtering.
	checkRegistry, err := e.registry()
	if err != nil {
		return nil, err
	}
	var supported []string
	for _, path := range paths {
		stats.FilesFound++
		if checkRegistry.ParserFor(path) == nil {
			stats.FilesSkipped++
			report.SkippedFiles = append(report.SkippedFiles, path)
			continue
		}
		supported = append(supported, path)
	}

	// Phase B: parallel parsing into per-file fragments.
	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(supported), 1))

	workCh := make(chan string, len(supported))
	for _, p := range supported {
		workCh <- p
	}
	close(workCh)

	resultCh := make(chan fileResult, len(supported))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry, regErr := e.registry()
			for path := range workCh {
				if regErr != nil {
					resultCh <- fileResult{path: path, err: regErr}
					continue
				}
				if ctx.Err() != nil {
					resultCh <- fileResult{path: path, err: ctx.Err()}
					continue
				}
				resultCh <- parseOne(registry, path)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]fileResult, len(supported))
	for res := range resultCh {
		results[res.path] = res
	}

	// Phase C: serial assembly in input order, so node iteration order is
	// reproducible across runs.
	builder := graph.NewBuilder()
	for _, path := range supported {
		res := results[path]
		if res.err != nil {
			stats.FilesFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, res.err))
			continue
		}
		if err := copyFragment(builder, res.fragment); err != nil {
			stats.FilesFailed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		stats.FilesParsed++
	}

	g := builder.Build()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("lattice: assembled graph invalid: %w", err)
	}
	stats.TotalNodes = g.NodeCount()
	stats.TotalEdges = g.EdgeCount()
	for _, n := range g.Nodes() {
		stats.NodesPerLanguage[n.Language]++
	}
	report.Graph = g

	findings, failures := e.orchestrator.DetectAll(ctx, g)
	detect.SortFindings(findings)
	report.Findings = wrapFindings(findings)
	report.Failures = failures
	return report, nil
}

// parseOne parses a single file into its own builder so a failure stays
// contained to that file.
func parseOne(registry *lang.Registry, path string) fileResult {
	parser := registry.ParserFor(path)
	if parser == nil {
		return fileResult{path: path, err: errors.New("no parser for file")}
	}
	b := graph.NewBuilder()
	if err := parser.ParseFile(path, b); err != nil {
		return fileResult{path: path, err: err}
	}
	return fileResult{path: path, fragment: b.Build()}
}

// copyFragment stages one file's nodes and edges onto the shared builder.
func copyFragment(b *graph.Builder, fragment *graph.Graph) error {
	b.BeginFile()
	for _, n := range fragment.Nodes() {
		if err := b.AddNode(n); err != nil {
			b.AbandonFile()
			return err
		}
	}
	for _, e := range fragment.Edges() {
		if err := b.AddEdge(e.From, e.To, e.Kind); err != nil {
			b.AbandonFile()
			return err
		}
	}
	b.CommitFile()
	return nil
}

// SupportedExtensions lists the file extensions the engine's parsers
// claim, sorted.
func (e *Engine) SupportedExtensions() ([]string, error) {
	registry, err := e.registry()
	if err != nil {
		return nil, err
	}
	exts := registry.SupportedExtensions()
	sort.Strings(exts)
	return exts, nil
}
