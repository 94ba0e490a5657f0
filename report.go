package lattice

import (
	"github.com/google/uuid"

	"github.com/jward/lattice/internal/detect"
	"github.com/jward/lattice/internal/graph"
)

// Tier buckets a confidence score for reporting. Higher scores never map
// to a lower tier.
type Tier string

const (
	TierSpeculative Tier = "speculative"
	TierLow         Tier = "low"
	TierMedium      Tier = "medium"
	TierHigh        Tier = "high"
)

// TierFor classifies a confidence score. The mapping is monotonic: a
// higher score never yields a lower tier.
func TierFor(score float64) Tier {
	switch {
	case score < 0.4:
		return TierSpeculative
	case score < 0.7:
		return TierLow
	case score < 0.9:
		return TierMedium
	default:
		return TierHigh
	}
}

// rank orders tiers from least to most confident.
func (t Tier) rank() int {
	switch t {
	case TierSpeculative:
		return 0
	case TierLow:
		return 1
	case TierMedium:
		return 2
	default:
		return 3
	}
}

// AtLeast reports whether t is as confident as other.
func (t Tier) AtLeast(other Tier) bool { return t.rank() >= other.rank() }

// Finding is a detected pattern instance with its reporting tier.
type Finding struct {
	detect.Finding
	Tier Tier
}

// Report is the outcome of one analysis run.
type Report struct {
	RunID        string
	Stats        *graph.Stats
	Findings     []Finding
	Failures     []detect.Failure
	SkippedFiles []string

	// Graph is the assembled code graph, kept for callers that want to
	// traverse beyond the findings.
	Graph *graph.Graph
}

// NewReport returns an empty report with a fresh run ID.
func NewReport() *Report {
	return &Report{
		RunID: uuid.NewString(),
		Stats: graph.NewStats(),
	}
}

func wrapFindings(findings []detect.Finding) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		tier := TierHigh // rule findings carry no score: matched or not
		if f.Confidence > 0 {
			tier = TierFor(f.Confidence)
		}
		out = append(out, Finding{Finding: f, Tier: tier})
	}
	return out
}

// BySeverity returns the report's findings at or above the given severity.
func (r *Report) BySeverity(minimum detect.Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity >= minimum {
			out = append(out, f)
		}
	}
	return out
}
