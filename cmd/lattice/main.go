package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/lattice"
)

var (
	flagFormat  string
	flagCatalog string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lattice",
	Short:         "Multi-language pattern detection over a unified code graph",
	Long:          "Lattice parses source code with tree-sitter into a language-neutral code graph and runs rule-based, model-scored, and scripted detectors against it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagCatalog, "catalog", "", "pattern catalog database (default: bundled catalog)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(languagesCmd)
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	}
	return fmt.Errorf("invalid format %q: must be json or text", format)
}

var (
	flagLanguages   string
	flagWorkers     int
	flagIgnore      []string
	flagMinSeverity string
	flagFixes       bool
	flagTimeout     time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a file or directory and report findings",
	Long:  "Parses the target into one code graph, runs the full detector set, and prints the findings. Directories are walked recursively, skipping hidden and vendored trees.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
	analyzeCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parsing and detection concurrency (default: NumCPU)")
	analyzeCmd.Flags().StringArrayVar(&flagIgnore, "ignore", nil, "glob pattern to skip (repeatable, doublestar syntax)")
	analyzeCmd.Flags().StringVar(&flagMinSeverity, "severity", "", "only report findings at or above this severity")
	analyzeCmd.Flags().BoolVar(&flagFixes, "fixes", false, "include fix suggestions for each finding")
	analyzeCmd.Flags().DurationVar(&flagTimeout, "detector-timeout", 0, "per-detector time budget (e.g. 5s)")
}

func buildEngine() (*lattice.Engine, error) {
	var opts []lattice.Option
	if flagCatalog != "" {
		opts = append(opts, lattice.WithCatalog(flagCatalog))
	}
	if flagLanguages != "" {
		langs := strings.Split(flagLanguages, ",")
		for i := range langs {
			langs[i] = strings.TrimSpace(langs[i])
		}
		opts = append(opts, lattice.WithLanguages(langs...))
	}
	if flagWorkers > 0 {
		opts = append(opts, lattice.WithWorkers(flagWorkers))
	}
	if len(flagIgnore) > 0 {
		opts = append(opts, lattice.WithIgnore(flagIgnore...))
	}
	if flagTimeout > 0 {
		opts = append(opts, lattice.WithDetectorTimeout(flagTimeout))
	}
	return lattice.New(opts...)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) == 1 {
		target = args[0]
	}
	target, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolving target: %w", err)
	}

	engine, err := buildEngine()
	if err != nil {
		return err
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("stat target: %w", err)
	}

	ctx := context.Background()
	start := time.Now()
	var report *lattice.Report
	if info.IsDir() {
		report, err = engine.AnalyzeDirectory(ctx, target)
	} else {
		report, err = engine.AnalyzeFile(ctx, target)
	}
	if err != nil {
		return err
	}

	findings := report.Findings
	if flagMinSeverity != "" {
		minimum, sevErr := lattice.ParseSeverity(flagMinSeverity)
		if sevErr != nil {
			return sevErr
		}
		findings = report.BySeverity(minimum)
	}

	out := analysisOutput{
		RunID:    report.RunID,
		Target:   target,
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		Stats:    report.Stats,
		Findings: make([]findingOutput, 0, len(findings)),
	}
	for _, f := range findings {
		fo := newFindingOutput(f)
		if flagFixes {
			for _, s := range engine.GenerateFixes(f) {
				fo.Fixes = append(fo.Fixes, newFixOutput(s))
			}
		}
		out.Findings = append(out.Findings, fo)
	}
	for _, fail := range report.Failures {
		out.DetectorFailures = append(out.DetectorFailures, fail.String())
	}

	if flagFormat == "json" {
		return writeJSON(os.Stdout, out)
	}
	writeAnalysisText(os.Stdout, out)
	return nil
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the pattern catalog",
	RunE:  runPatterns,
}

var (
	flagSimilarTo string
	flagThreshold float64
)

func init() {
	patternsCmd.Flags().StringVar(&flagSimilarTo, "similar-to", "", "list patterns similar to this pattern ID")
	patternsCmd.Flags().Float64Var(&flagThreshold, "threshold", 0.85, "similarity threshold for --similar-to")
}

func runPatterns(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine()
	if err != nil {
		return err
	}
	cat := engine.Catalog()

	if flagSimilarTo != "" {
		if cat.Get(flagSimilarTo) == nil {
			return fmt.Errorf("unknown pattern %q", flagSimilarTo)
		}
		matches := cat.FindSimilar(flagSimilarTo, flagThreshold)
		out := make([]similarOutput, 0, len(matches))
		for _, m := range matches {
			if m.Pattern.ID == flagSimilarTo {
				continue
			}
			out = append(out, similarOutput{
				ID:         m.Pattern.ID,
				Name:       m.Pattern.Name,
				Similarity: m.Similarity,
			})
		}
		if flagFormat == "json" {
			return writeJSON(os.Stdout, out)
		}
		writeSimilarText(os.Stdout, out)
		return nil
	}

	patterns := cat.Patterns()
	out := make([]patternOutput, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternOutput{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Language: p.Language,
			Parent:   cat.Inheritance().Parent(p.ID),
		})
	}
	if flagFormat == "json" {
		return writeJSON(os.Stdout, out)
	}
	writePatternsText(os.Stdout, out)
	return nil
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages and file extensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := buildEngine()
		if err != nil {
			return err
		}
		exts, err := engine.SupportedExtensions()
		if err != nil {
			return err
		}
		if flagFormat == "json" {
			return writeJSON(os.Stdout, exts)
		}
		fmt.Fprintln(os.Stdout, strings.Join(exts, " "))
		return nil
	},
}
