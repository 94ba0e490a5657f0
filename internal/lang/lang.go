// Package lang provides the per-language parsers that translate source files
// into code property graph fragments, and the registry that dispatches files
// to them by extension.
package lang

import (
	"fmt"
	"path/filepath"

	"github.com/jward/lattice/internal/graph"
)

// Parser translates source files of one language into graph fragments.
// Implementations must be safe for use from a single goroutine at a time;
// the engine gives each worker its own Parser set.
type Parser interface {
	// Language returns the language name, e.g. "go" or "python".
	Language() string

	// Extensions returns the file extensions this parser claims,
	// including the leading dot.
	Extensions() []string

	// CanParse reports whether the path's extension is claimed by this
	// parser. Matching is a case-sensitive exact comparison.
	CanParse(path string) bool

	// ParseFile appends the file's nodes and edges to the builder. On
	// malformed input it returns a *ParseError and leaves nothing from
	// this file in the builder.
	ParseFile(path string, b *graph.Builder) error
}

// ParseError reports a single file that could not be parsed. The file is
// skipped; a ParseError never aborts a multi-file build.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Registry holds an ordered list of parsers. Dispatch is first-match by
// extension, so registration order decides ties; NewRegistry rejects
// configurations where two parsers claim the same extension outright.
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a registry from the given parsers, validating that no
// extension is claimed twice. An ambiguous claim is a fatal configuration
// error, not something to resolve silently at dispatch time.
func NewRegistry(parsers ...Parser) (*Registry, error) {
	claimed := make(map[string]string)
	for _, p := range parsers {
		for _, ext := range p.Extensions() {
			if prev, ok := claimed[ext]; ok {
				return nil, fmt.Errorf("lang: extension %s claimed by both %s and %s", ext, prev, p.Language())
			}
			claimed[ext] = p.Language()
		}
	}
	return &Registry{parsers: parsers}, nil
}

// DefaultRegistry returns a registry with every built-in language parser.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultParsers()...)
}

// ParserFor returns the first parser whose CanParse accepts the path, or
// nil when the file's extension is unrecognized.
func (r *Registry) ParserFor(path string) Parser {
	for _, p := range r.parsers {
		if p.CanParse(path) {
			return p
		}
	}
	return nil
}

// Parsers returns the registered parsers in registration order.
func (r *Registry) Parsers() []Parser { return r.parsers }

// SupportedExtensions returns the flattened union of all claimed
// extensions, in registration order and without deduplication.
func (r *Registry) SupportedExtensions() []string {
	var exts []string
	for _, p := range r.parsers {
		exts = append(exts, p.Extensions()...)
	}
	return exts
}

// hasExtension is the shared CanParse implementation.
func hasExtension(path string, exts []string) bool {
	got := filepath.Ext(path)
	for _, ext := range exts {
		if got == ext {
			return true
		}
	}
	return false
}
