// Package lattice provides multi-language pattern detection over a unified
// code property graph built on tree-sitter. It parses Go, Python,
// JavaScript, TypeScript, Java, C, C++, Rust, and Swift sources into one
// language-neutral graph and runs a catalog of rule-based, model-scored,
// and scripted detectors against it.
//
// # Pipeline
//
// An analysis runs in three stages:
//
//  1. Parse: each source file is parsed with tree-sitter and translated
//     into a fragment of the code graph (modules, classes, functions,
//     calls, control flow, imports, variables, and the edges between
//     them). A file that fails to parse is skipped without touching the
//     fragments of other files.
//
//  2. Detect: the frozen graph is handed to the detector orchestrator,
//     which runs every registered detector concurrently, isolates
//     detector failures, and merges findings that describe the same
//     underlying problem through the pattern catalog's inheritance
//     hierarchy and cross-language map.
//
//  3. Suggest: for any finding, the fix generator produces ranked
//     before/after transformations, each checked for semantic
//     equivalence; transformations that cannot be verified are kept with
//     capped confidence rather than dropped.
//
// # Usage
//
// Create an Engine, analyze a tree, inspect the report:
//
//	e, err := lattice.New(lattice.WithLanguages("go", "python"))
//	if err != nil { ... }
//
//	report, err := e.AnalyzeDirectory(ctx, "path/to/project")
//	for _, f := range report.Findings {
//		fmt.Println(f.File, f.Message, f.Severity, f.Tier)
//		for _, s := range e.GenerateFixes(f) {
//			fmt.Println(s.Description, s.SemanticScore)
//		}
//	}
//
// # Pattern Catalog
//
// Detection is grounded in a catalog of stored patterns with embedding
// vectors, an inheritance hierarchy (language-specific patterns
// specialize generic ones), and a cross-language map linking equivalent
// patterns across languages. The bundled catalog loads by default;
// [WithCatalog] loads one from a SQLite database instead.
//
// # Extending
//
// [WithScriptDetectors] registers detectors written in Risor, which see
// the graph through host functions and return findings as plain maps, so
// a deployment can add rules without recompiling.
package lattice
