package lattice

import (
	"fmt"
	"time"

	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/detect"
	"github.com/jward/lattice/internal/fix"
	"github.com/jward/lattice/internal/lang"
)

// Engine ties the pipeline together: file discovery, parsing into the code
// graph, detection, and fix generation. An Engine is safe for serial reuse
// across analyses; each analysis builds a fresh graph.
type Engine struct {
	cat          *catalog.Catalog
	orchestrator *detect.Orchestrator
	generator    *fix.Generator

	catalogPath string
	languages   map[string]bool // nil means all languages
	ignore      []string
	workers     int
	timeout     time.Duration
	threshold   float64
	scripted    []detect.Detector
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will analyze.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			e.languages[l] = true
		}
	}
}

// WithCatalog loads the pattern catalog from a SQLite database at path
// instead of the bundled seed.
func WithCatalog(path string) Option {
	return func(e *Engine) { e.catalogPath = path }
}

// WithIgnore adds glob patterns (doublestar syntax) for paths that
// directory analysis skips.
func WithIgnore(patterns ...string) Option {
	return func(e *Engine) { e.ignore = append(e.ignore, patterns...) }
}

// WithWorkers caps parsing and detection concurrency.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithDetectorTimeout bounds each individual detector run.
func WithDetectorTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithSimilarityThreshold overrides the cross-language similarity above
// which findings from different detectors are merged as the same
// underlying problem. Values outside (0, 1] keep the default.
func WithSimilarityThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithScriptDetectors registers additional Risor-scripted detectors
// alongside the built-in set.
func WithScriptDetectors(detectors ...*detect.ScriptDetector) Option {
	return func(e *Engine) {
		for _, d := range detectors {
			e.scripted = append(e.scripted, d)
		}
	}
}

// New creates an Engine with the full built-in detector set. Failing to
// load the catalog or to assemble the detector registry is fatal: an
// engine without patterns cannot produce meaningful results.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	if e.catalogPath != "" {
		store, storeErr := catalog.NewStore(e.catalogPath)
		if storeErr != nil {
			return nil, fmt.Errorf("lattice: open catalog: %w", storeErr)
		}
		defer store.Close()
		e.cat, err = store.Load()
		if err != nil {
			return nil, fmt.Errorf("lattice: load catalog: %w", err)
		}
	} else {
		e.cat, err = catalog.LoadSeed()
		if err != nil {
			return nil, fmt.Errorf("lattice: load bundled catalog: %w", err)
		}
	}

	var orchOpts []detect.Option
	if e.workers > 0 {
		orchOpts = append(orchOpts, detect.WithWorkers(e.workers))
	}
	if e.timeout > 0 {
		orchOpts = append(orchOpts, detect.WithTimeout(e.timeout))
	}
	if e.threshold > 0 && e.threshold <= 1 {
		orchOpts = append(orchOpts, detect.WithRelatedThreshold(e.threshold))
	}
	e.orchestrator = detect.NewOrchestrator(e.cat, orchOpts...)
	if err := e.orchestrator.Register(detect.LoadAll()...); err != nil {
		return nil, fmt.Errorf("lattice: register detectors: %w", err)
	}
	if err := e.orchestrator.Register(detect.LoadML(e.cat)...); err != nil {
		return nil, fmt.Errorf("lattice: register ML detectors: %w", err)
	}
	if len(e.scripted) > 0 {
		if err := e.orchestrator.Register(e.scripted...); err != nil {
			return nil, fmt.Errorf("lattice: register script detectors: %w", err)
		}
	}

	e.generator = fix.NewGenerator(e.cat)
	return e, nil
}

// Catalog returns the engine's pattern catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// PatternCount reports how many detectors the engine carries.
func (e *Engine) PatternCount() int { return e.orchestrator.PatternCount() }

// GenerateFixes returns ranked fix suggestions for a finding's pattern,
// falling back through the pattern hierarchy when the pattern has no
// templates of its own. Every suggestion carries a populated semantic
// score; unverified transformations come back with capped confidence
// rather than being dropped.
func (e *Engine) GenerateFixes(f Finding) []fix.Suggestion {
	return e.generator.GenerateFixes(f.PatternID)
}

// registry returns a fresh parser set honoring the language restriction.
// Tree-sitter parsers are not safe for concurrent use, so every caller
// that parses in parallel requests its own registry.
func (e *Engine) registry() (*lang.Registry, error) {
	parsers := lang.DefaultParsers()
	if e.languages == nil {
		return lang.NewRegistry(parsers...)
	}
	var kept []lang.Parser
	for _, p := range parsers {
		if e.languages[p.Language()] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("lattice: no parsers left after language filter")
	}
	return lang.NewRegistry(kept...)
}
