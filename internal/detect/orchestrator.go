package detect

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/jward/lattice/internal/catalog"
	"github.com/jward/lattice/internal/graph"
)

// defaultRelatedThreshold is the cross-language similarity above which two
// patterns count as the same underlying problem during dedup.
const defaultRelatedThreshold = 0.85

// Orchestrator owns the full detector set and the pattern catalog and runs
// every detector against a graph. Detectors run concurrently since the
// graph is frozen; aggregation is still deterministic because results are
// reassembled in registration order before dedup.
type Orchestrator struct {
	detectors []Detector
	names     map[string]bool
	cat       *catalog.Catalog

	workers   int
	timeout   time.Duration
	threshold float64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers caps the number of detectors running concurrently.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithTimeout bounds each individual detector run. Zero disables the
// per-detector deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithRelatedThreshold overrides the cross-language similarity threshold
// used when merging findings.
func WithRelatedThreshold(t float64) Option {
	return func(o *Orchestrator) { o.threshold = t }
}

// NewOrchestrator returns an empty orchestrator backed by the given
// catalog. A nil catalog disables pattern-relation dedup; findings then
// merge only when they share a pattern ID.
func NewOrchestrator(cat *catalog.Catalog, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		names:     make(map[string]bool),
		cat:       cat,
		workers:   runtime.NumCPU(),
		threshold: defaultRelatedThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// Register adds detectors. Detector names are unique across the set.
func (o *Orchestrator) Register(detectors ...Detector) error {
	for _, d := range detectors {
		if o.names[d.Name()] {
			return fmt.Errorf("detector %q registered twice", d.Name())
		}
		o.names[d.Name()] = true
		o.detectors = append(o.detectors, d)
	}
	return nil
}

// Detectors returns the registered detectors in registration order.
func (o *Orchestrator) Detectors() []Detector { return o.detectors }

// PatternCount reports the number of registered detectors.
func (o *Orchestrator) PatternCount() int { return len(o.detectors) }

// Catalog returns the orchestrator's pattern catalog.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.cat }

// DetectAll runs every detector against the graph. A detector that errors
// or panics becomes a Failure and never aborts the pass; the findings of
// the remaining detectors are still returned. Once ctx is cancelled the
// workers stop invoking detectors: each remaining detector is recorded as
// a Failure carrying the cancellation error, and the findings completed so
// far are returned.
func (o *Orchestrator) DetectAll(ctx context.Context, g *graph.Graph) ([]Finding, []Failure) {
	n := len(o.detectors)
	if n == 0 {
		return nil, nil
	}

	type job struct {
		index int
		det   Detector
	}
	type result struct {
		index    int
		findings []Finding
		failure  *Failure
	}

	workCh := make(chan job, n)
	for i, d := range o.detectors {
		workCh <- job{index: i, det: d}
	}
	close(workCh)

	resultCh := make(chan result, n)
	workers := min(o.workers, n)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workCh {
				if err := ctx.Err(); err != nil {
					resultCh <- result{index: j.index, failure: &Failure{Detector: j.det.Name(), Err: err}}
					continue
				}
				findings, failure := o.runOne(ctx, j.det, g)
				resultCh <- result{index: j.index, findings: findings, failure: failure}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	byIndex := make([][]Finding, n)
	var failures []Failure
	failureIndex := make(map[int]Failure)
	for res := range resultCh {
		if res.failure != nil {
			failureIndex[res.index] = *res.failure
			continue
		}
		byIndex[res.index] = res.findings
	}

	// Reassemble in registration order so aggregation is deterministic
	// regardless of worker scheduling.
	var all []Finding
	for i := range n {
		if f, ok := failureIndex[i]; ok {
			failures = append(failures, f)
			continue
		}
		all = append(all, byIndex[i]...)
	}
	return o.dedup(all), failures
}

// runOne executes a single detector with panic isolation and the
// per-detector deadline. The detector runs in its own goroutine so the
// deadline holds even against a detector that never checks its context;
// on expiry the goroutine is abandoned and the detector is recorded as a
// Failure instead of stalling the worker.
func (o *Orchestrator) runOne(ctx context.Context, d Detector, g *graph.Graph) ([]Finding, *Failure) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	type outcome struct {
		findings []Finding
		failure  *Failure
	}
	// Buffered so an abandoned detector's send never blocks.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{failure: &Failure{Detector: d.Name(), Err: fmt.Errorf("%v", r), Panicked: true}}
			}
		}()
		found, err := d.Detect(ctx, g)
		if err != nil {
			done <- outcome{failure: &Failure{Detector: d.Name(), Err: err}}
			return
		}
		done <- outcome{findings: found}
	}()

	select {
	case out := <-done:
		return out.findings, out.failure
	case <-ctx.Done():
		return nil, &Failure{Detector: d.Name(), Err: ctx.Err()}
	}
}

// dedup merges findings from different detectors that sit on overlapping
// locations and whose patterns are related through inheritance or the
// cross-language map. The merged finding carries every detector name, the
// higher severity, and the higher confidence.
func (o *Orchestrator) dedup(findings []Finding) []Finding {
	var merged []Finding
	for _, f := range findings {
		target := -1
		for i := range merged {
			if o.mergeable(&merged[i], &f) {
				target = i
				break
			}
		}
		if target < 0 {
			merged = append(merged, f)
			continue
		}
		merged[target] = mergeFindings(merged[target], f)
	}
	return merged
}

func (o *Orchestrator) mergeable(a, b *Finding) bool {
	if a.File != b.File || !a.Span.Overlaps(b.Span) {
		return false
	}
	if sharesDetector(a, b) {
		return false
	}
	if a.PatternID == b.PatternID {
		return true
	}
	if o.cat == nil {
		return false
	}
	return o.cat.Related(a.PatternID, b.PatternID, o.threshold)
}

func sharesDetector(a, b *Finding) bool {
	for _, n := range a.Detectors {
		for _, m := range b.Detectors {
			if n == m {
				return true
			}
		}
	}
	return false
}

func mergeFindings(a, b Finding) Finding {
	out := a
	if b.Severity > a.Severity {
		out.Severity = b.Severity
		out.Message = b.Message
		out.PatternID = b.PatternID
	}
	if b.Confidence > out.Confidence {
		out.Confidence = b.Confidence
	}
	out.Detectors = append(append([]string{}, a.Detectors...), b.Detectors...)
	out.NodeIDs = unionStrings(a.NodeIDs, b.NodeIDs)
	if out.Span.StartLine > b.Span.StartLine ||
		(out.Span.StartLine == b.Span.StartLine && out.Span.StartCol > b.Span.StartCol) {
		out.Span.StartLine, out.Span.StartCol = b.Span.StartLine, b.Span.StartCol
	}
	if out.Span.EndLine < b.Span.EndLine ||
		(out.Span.EndLine == b.Span.EndLine && out.Span.EndCol < b.Span.EndCol) {
		out.Span.EndLine, out.Span.EndCol = b.Span.EndLine, b.Span.EndCol
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// SortFindings orders findings by location, then by first detector name.
// DetectAll's output is already deterministic; this is the stable view
// reports print.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Span.StartLine != b.Span.StartLine {
			return a.Span.StartLine < b.Span.StartLine
		}
		if a.Span.StartCol != b.Span.StartCol {
			return a.Span.StartCol < b.Span.StartCol
		}
		return firstDetector(a) < firstDetector(b)
	})
}

func firstDetector(f Finding) string {
	if len(f.Detectors) == 0 {
		return ""
	}
	return f.Detectors[0]
}
