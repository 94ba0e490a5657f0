// Package detect holds the pattern detectors and the orchestrator that
// runs them over a frozen code graph. Detectors are read-only with respect
// to the graph: a detection pass never mutates nodes or edges, so the
// orchestrator is free to run detectors concurrently.
package detect

import (
	"context"
	"fmt"

	"github.com/jward/lattice/internal/fix"
	"github.com/jward/lattice/internal/graph"
)

// Severity ranks a finding. Values order from least to most severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps a severity name back to its value.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Finding is one detected pattern instance. Detectors lists every detector
// that reported it; merged findings carry more than one name. A finding is
// immutable once returned by Detect.
type Finding struct {
	Detectors  []string
	PatternID  string
	Severity   Severity
	Message    string
	File       string
	Span       graph.Span
	NodeIDs    []string
	Confidence float64
	Metadata   map[string]string
}

// Detector is a rule-based pattern detector. Detect must be deterministic
// for a given graph and must not retain the graph past the call.
type Detector interface {
	Name() string
	Description() string
	Severity() Severity
	Detect(ctx context.Context, g *graph.Graph) ([]Finding, error)
	// SuggestFix returns a static fix hint for one of this detector's
	// findings, when a transformation template exists for its pattern.
	SuggestFix(f Finding) (fix.Suggestion, bool)
}

// MLDetector is a model-scored detector. Its findings carry a confidence
// in [0,1] derived from a frozen scoring function; there is no online
// learning during detection.
type MLDetector interface {
	Detector
	// MinConfidence is the score floor below which candidate findings
	// are discarded.
	MinConfidence() float64
}

// Failure records one detector that errored or panicked during a pass.
// The orchestrator collects failures instead of aborting the pass.
type Failure struct {
	Detector string
	Err      error
	Panicked bool
}

func (f Failure) String() string {
	if f.Panicked {
		return fmt.Sprintf("%s: panic: %v", f.Detector, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Detector, f.Err)
}
