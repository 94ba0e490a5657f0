package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jward/lattice"
)

type analysisOutput struct {
	RunID            string          `json:"run_id"`
	Target           string          `json:"target"`
	Elapsed          string          `json:"elapsed"`
	Stats            *lattice.Stats  `json:"stats"`
	Findings         []findingOutput `json:"findings"`
	DetectorFailures []string        `json:"detector_failures,omitempty"`
}

type findingOutput struct {
	File       string            `json:"file"`
	StartLine  int               `json:"start_line"`
	EndLine    int               `json:"end_line"`
	Severity   string            `json:"severity"`
	Tier       string            `json:"tier"`
	PatternID  string            `json:"pattern_id,omitempty"`
	Detectors  []string          `json:"detectors"`
	Message    string            `json:"message"`
	Confidence float64           `json:"confidence,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Fixes      []fixOutput       `json:"fixes,omitempty"`
}

type fixOutput struct {
	Description   string  `json:"description"`
	Diff          string  `json:"diff"`
	Confidence    float64 `json:"confidence"`
	SemanticScore float64 `json:"semantic_score"`
	Verified      bool    `json:"verified"`
}

type patternOutput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Language string `json:"language"`
	Parent   string `json:"parent,omitempty"`
}

type similarOutput struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

func newFindingOutput(f lattice.Finding) findingOutput {
	return findingOutput{
		File:       f.File,
		StartLine:  f.Span.StartLine,
		EndLine:    f.Span.EndLine,
		Severity:   f.Severity.String(),
		Tier:       string(f.Tier),
		PatternID:  f.PatternID,
		Detectors:  f.Detectors,
		Message:    f.Message,
		Confidence: f.Confidence,
		Metadata:   f.Metadata,
	}
}

func newFixOutput(s lattice.Suggestion) fixOutput {
	return fixOutput{
		Description:   s.Description,
		Diff:          s.Diff,
		Confidence:    s.Confidence,
		SemanticScore: s.SemanticScore,
		Verified:      s.Verified,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAnalysisText(w io.Writer, out analysisOutput) {
	s := out.Stats
	fmt.Fprintf(w, "Analyzed %s in %s\n", out.Target, out.Elapsed)
	fmt.Fprintf(w, "Files: %d found, %d parsed, %d failed, %d skipped\n",
		s.FilesFound, s.FilesParsed, s.FilesFailed, s.FilesSkipped)
	fmt.Fprintf(w, "Graph: %d nodes, %d edges\n", s.TotalNodes, s.TotalEdges)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  parse error: %s\n", e)
	}
	for _, f := range out.DetectorFailures {
		fmt.Fprintf(w, "  detector failure: %s\n", f)
	}

	if len(out.Findings) == 0 {
		fmt.Fprintln(w, "\nNo findings.")
		return
	}
	fmt.Fprintf(w, "\n%d findings:\n\n", len(out.Findings))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tSEVERITY\tTIER\tDETECTORS\tMESSAGE")
	for _, f := range out.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			location(f), f.Severity, f.Tier,
			strings.Join(f.Detectors, ","), f.Message)
	}
	tw.Flush()

	for _, f := range out.Findings {
		if len(f.Fixes) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nFixes for %s (%s):\n", location(f), f.PatternID)
		for _, fx := range f.Fixes {
			status := "unverified"
			if fx.Verified {
				status = "verified"
			}
			fmt.Fprintf(w, "  %s (confidence %.2f, %s)\n", fx.Description, fx.Confidence, status)
			for _, line := range strings.Split(strings.TrimRight(fx.Diff, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

func location(f findingOutput) string {
	if f.StartLine == f.EndLine {
		return fmt.Sprintf("%s:%d", f.File, f.StartLine+1)
	}
	return fmt.Sprintf("%s:%d-%d", f.File, f.StartLine+1, f.EndLine+1)
}

func writePatternsText(w io.Writer, patterns []patternOutput) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tLANGUAGE\tPARENT")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.Language, p.Parent)
	}
	tw.Flush()
}

func writeSimilarText(w io.Writer, matches []similarOutput) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIMILARITY")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\n", m.ID, m.Name, m.Similarity)
	}
	tw.Flush()
}
