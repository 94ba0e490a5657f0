package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/lattice/internal/graph"
)

// The detector catalog is organized into thematic registries, each with a
// Load* factory. LoadAll concatenates them in a fixed order so two runs
// over the same graph aggregate findings identically.

// LoadAll returns every built-in rule-based detector, grouped by theme.
func LoadAll() []Detector {
	var out []Detector
	out = append(out, LoadErrorHandling()...)
	out = append(out, LoadSecurity()...)
	out = append(out, LoadPerformance()...)
	out = append(out, LoadMemorySafety()...)
	out = append(out, LoadConcurrency()...)
	out = append(out, LoadCodeSmells()...)
	out = append(out, LoadAPIMisuse()...)
	out = append(out, LoadDesignPatterns()...)
	out = append(out, LoadLanguageSpecific()...)
	return out
}

func load(specs []ruleSpec) []Detector {
	out := make([]Detector, 0, len(specs))
	for _, spec := range specs {
		out = append(out, newRuleDetector(spec))
	}
	return out
}

// LoadErrorHandling returns detectors for swallowed and ignored errors.
func LoadErrorHandling() []Detector {
	return load([]ruleSpec{
		{
			name:        "empty-handler",
			description: "exception or error handler with an empty body",
			patternID:   "empty_handler",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindControl) {
					if n.Attr("empty_body") != "true" {
						continue
					}
					c := n.Attr("construct")
					if c != "except_clause" && c != "catch_clause" && c != "try_statement" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s swallows errors: its body is empty", c),
					})
				}
				return out
			},
		},
		{
			name:        "ignored-return",
			description: "call whose result is discarded",
			patternID:   "error_ignored",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					if n.Attr("result_used") != "false" {
						continue
					}
					if voidishCallee(n.Name) {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("result of %s is ignored", n.Name),
					})
				}
				return out
			},
		},
	})
}

// LoadSecurity returns detectors for injection, credential, and weak
// cryptography patterns.
func LoadSecurity() []Detector {
	return load([]ruleSpec{
		{
			name:        "sql-injection",
			description: "SQL statement assembled from runtime values",
			patternID:   "sql_injection",
			severity:    SeverityCritical,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					sig := n.Attr("signature")
					if !containsAny(strings.ToUpper(sig), "SELECT ", "INSERT ", "UPDATE ", "DELETE FROM") {
						continue
					}
					if !containsAny(sig, "+", "${", "%s", "format(", "f\"") {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: "SQL built by string interpolation; use a parameterized query",
					})
				}
				return out
			},
		},
		{
			name:        "command-injection",
			description: "shell command assembled from runtime values",
			patternID:   "command_injection",
			severity:    SeverityCritical,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					callee := strings.ToLower(n.Name)
					if !containsAny(callee, "system", "popen", "exec", "spawn") {
						continue
					}
					if !containsAny(n.Attr("signature"), "+", "${", "%s", "format(", "f\"") {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s receives an interpolated command string", n.Name),
					})
				}
				return out
			},
		},
		{
			name:        "eval-injection",
			description: "dynamic evaluation of constructed code",
			patternID:   "eval_injection",
			severity:    SeverityCritical,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					base := calleeBase(n.Name)
					if base != "eval" && base != "exec" && base != "compile" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s evaluates code at runtime", n.Name),
					})
				}
				return out
			},
		},
		{
			name:        "hardcoded-credentials",
			description: "credential-looking variable assigned in source",
			patternID:   "hardcoded_credentials",
			severity:    SeverityError,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindVariable) {
					name := strings.ToLower(n.Name)
					if !containsAny(name, "password", "passwd", "secret", "api_key", "apikey", "auth_token") {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("variable %s looks like a hardcoded credential", n.Name),
					})
				}
				return out
			},
		},
		{
			name:        "weak-hash",
			description: "cryptographically broken hash function",
			patternID:   "weak_hash_algorithm",
			severity:    SeverityError,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					callee := strings.ToLower(n.Name)
					if !containsAny(callee, "md5", "sha1") {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s uses a collision-prone hash", n.Name),
					})
				}
				return out
			},
		},
	})
}

// LoadPerformance returns detectors for query and iteration hot spots.
func LoadPerformance() []Detector {
	return load([]ruleSpec{
		{
			name:        "n-plus-one-query",
			description: "database access repeated per loop iteration",
			patternID:   "n_plus_one_query",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindControl) {
					if !isLoop(n) {
						continue
					}
					call := findCall(g, n.ID, func(c *graph.Node) bool {
						return containsAny(strings.ToLower(c.Name), "query", "execute", "fetch", "find")
					})
					if call == nil {
						continue
					}
					out = append(out, ruleMatch{
						node:    call,
						extra:   []string{n.ID},
						message: fmt.Sprintf("%s runs once per iteration; batch it outside the loop", call.Name),
					})
				}
				return out
			},
		},
		{
			name:        "nested-loops",
			description: "three or more nested loops",
			patternID:   "inefficient_loop",
			severity:    SeverityInfo,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindControl) {
					if !isLoop(n) || isLoop(parentControl(g, n)) {
						continue
					}
					if loopDepth(g, n) < 3 {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: "three levels of nested iteration; consider restructuring",
					})
				}
				return out
			},
		},
	})
}

// LoadMemorySafety returns detectors for allocation growth and unsafe
// buffer APIs.
func LoadMemorySafety() []Detector {
	return load([]ruleSpec{
		{
			name:        "unbounded-allocation",
			description: "allocation inside a loop with no visible bound",
			patternID:   "unbounded_allocation",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					base := calleeBase(n.Name)
					if base != "make" && base != "malloc" && base != "calloc" && base != "realloc" {
						continue
					}
					loop := enclosingLoop(g, n.ID)
					if loop == nil {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						extra:   []string{loop.ID},
						message: fmt.Sprintf("%s allocates on every iteration", n.Name),
					})
				}
				return out
			},
		},
		{
			name:        "unsafe-buffer-api",
			description: "buffer API with no length bound",
			patternID:   "dangerous_api_call",
			severity:    SeverityCritical,
			languages:   set("c", "cpp"),
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					base := calleeBase(n.Name)
					if base != "strcpy" && base != "strcat" && base != "gets" && base != "sprintf" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s writes without a length bound", n.Name),
					})
				}
				return out
			},
		},
	})
}

// LoadConcurrency returns detectors for locking and shared-state hazards.
func LoadConcurrency() []Detector {
	return load([]ruleSpec{
		{
			name:        "unreleased-lock",
			description: "lock acquired with no matching release in the same function",
			patternID:   "unreleased_lock",
			severity:    SeverityError,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, fn := range functionNodes(g) {
					calls := g.Neighbors(fn.ID, graph.EdgeCalls)
					var lock *graph.Node
					released := false
					for _, c := range calls {
						base := strings.ToLower(calleeBase(c.Name))
						switch {
						case base == "unlock" || base == "release" || base == "runlock":
							released = true
						case base == "lock" || base == "acquire" || base == "rlock":
							if lock == nil {
								lock = c
							}
						}
					}
					if lock == nil || released {
						continue
					}
					out = append(out, ruleMatch{
						node:    lock,
						extra:   []string{fn.ID},
						message: fmt.Sprintf("%s acquires a lock that %s never releases", lock.Name, fn.Name),
					})
				}
				return out
			},
		},
		{
			name:        "shared-write",
			description: "variable written by more than one function",
			patternID:   "race_condition",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, v := range g.NodesByKind(graph.KindVariable) {
					writers := make(map[string]bool)
					for _, e := range g.Incoming(v.ID) {
						if e.Kind == graph.EdgeWrites {
							writers[e.From] = true
						}
					}
					if len(writers) < 2 {
						continue
					}
					ids := make([]string, 0, len(writers))
					for id := range writers {
						ids = append(ids, id)
					}
					sort.Strings(ids)
					out = append(out, ruleMatch{
						node:    v,
						extra:   ids,
						message: fmt.Sprintf("%s is written by %d functions; guard it or pass it explicitly", v.Name, len(writers)),
					})
				}
				return out
			},
		},
	})
}

// LoadCodeSmells returns detectors for structural maintainability smells.
func LoadCodeSmells() []Detector {
	return load([]ruleSpec{
		{
			name:        "deep-nesting",
			description: "control flow nested four levels or deeper",
			patternID:   "deep_nesting",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindControl) {
					if parentControl(g, n) != nil {
						continue // report the outermost of a chain only
					}
					if depth := controlDepth(g, n); depth >= 4 {
						out = append(out, ruleMatch{
							node:     n,
							message:  fmt.Sprintf("control flow nests %d levels deep", depth),
							metadata: map[string]string{"depth": fmt.Sprintf("%d", depth)},
						})
					}
				}
				return out
			},
		},
		{
			name:        "long-function",
			description: "function body spanning more than 80 lines",
			patternID:   "long_function",
			severity:    SeverityInfo,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, fn := range functionNodes(g) {
					lines := fn.Span.EndLine - fn.Span.StartLine + 1
					if lines <= 80 {
						continue
					}
					out = append(out, ruleMatch{
						node:     fn,
						message:  fmt.Sprintf("%s spans %d lines", fn.Name, lines),
						metadata: map[string]string{"lines": fmt.Sprintf("%d", lines)},
					})
				}
				return out
			},
		},
		{
			name:        "god-class",
			description: "class concentrating too many methods",
			patternID:   "god_class",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, cls := range g.NodesByKind(graph.KindClass) {
					methods := 0
					for _, child := range g.Neighbors(cls.ID, graph.EdgeContains) {
						if child.Kind == graph.KindMethod || child.Kind == graph.KindFunction {
							methods++
						}
					}
					if methods <= 15 {
						continue
					}
					out = append(out, ruleMatch{
						node:    cls,
						message: fmt.Sprintf("%s declares %d methods; split responsibilities", cls.Name, methods),
					})
				}
				return out
			},
		},
		{
			name:        "unused-import",
			description: "import never referenced in the file",
			patternID:   "unused_import",
			severity:    SeverityInfo,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, imp := range g.NodesByKind(graph.KindImport) {
					base := importBase(imp.Attr("source"))
					if base == "" || importReferenced(g, imp.File, base) {
						continue
					}
					out = append(out, ruleMatch{
						node:    imp,
						message: fmt.Sprintf("import %s is never used", imp.Name),
					})
				}
				return out
			},
		},
	})
}

// LoadAPIMisuse returns detectors for hazardous standard-library usage.
func LoadAPIMisuse() []Detector {
	return load([]ruleSpec{
		{
			name:        "unsafe-deserialization",
			description: "deserializer that executes embedded payloads",
			patternID:   "dangerous_api_call",
			severity:    SeverityError,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					callee := strings.ToLower(n.Name)
					if !containsAny(callee, "pickle.load", "marshal.load", "yaml.load") {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s deserializes untrusted data unsafely", n.Name),
					})
				}
				return out
			},
		},
		{
			name:        "insecure-tempfile",
			description: "temp file API with a predictable name",
			patternID:   "dangerous_api_call",
			severity:    SeverityWarning,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					base := calleeBase(n.Name)
					if base != "mktemp" && base != "tempnam" && base != "tmpnam" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s creates a predictable temp path", n.Name),
					})
				}
				return out
			},
		},
	})
}

// LoadDesignPatterns returns detectors proposing structural refactorings.
func LoadDesignPatterns() []Detector {
	return load([]ruleSpec{
		{
			name:        "factory-opportunity",
			description: "cluster of constructor functions in one file",
			patternID:   "factory_opportunity",
			severity:    SeverityInfo,
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, mod := range g.NodesByKind(graph.KindModule) {
					ctors := 0
					for _, fn := range g.NodesInFile(mod.File) {
						if fn.Kind != graph.KindFunction {
							continue
						}
						lower := strings.ToLower(fn.Name)
						if strings.HasPrefix(lower, "new") || strings.HasPrefix(lower, "create") || strings.HasPrefix(lower, "make") {
							ctors++
						}
					}
					if ctors < 3 {
						continue
					}
					out = append(out, ruleMatch{
						node:    mod,
						message: fmt.Sprintf("%d constructor functions in one file; a factory could centralize them", ctors),
					})
				}
				return out
			},
		},
	})
}

// LoadLanguageSpecific returns specializations of the generic rules for
// individual languages. Several specialize a parent pattern from the
// catalog hierarchy, so their findings merge with the generic rule's when
// both fire on the same location.
func LoadLanguageSpecific() []Detector {
	return load([]ruleSpec{
		{
			name:        "go-empty-error-check",
			description: "Go error check with an empty body",
			patternID:   "go_empty_error_check",
			severity:    SeverityWarning,
			languages:   set("go"),
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindControl) {
					if n.Attr("construct") != "if_statement" || n.Attr("empty_body") != "true" {
						continue
					}
					if !strings.Contains(n.Attr("condition"), "err") {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("error checked but not handled: %s", n.Attr("condition")),
					})
				}
				return out
			},
		},
		{
			name:        "python-silent-except",
			description: "Python except clause that suppresses the exception",
			patternID:   "python_bare_except",
			severity:    SeverityWarning,
			languages:   set("python"),
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindControl) {
					if n.Attr("construct") != "except_clause" || n.Attr("empty_body") != "true" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: "except clause silently drops the exception",
					})
				}
				return out
			},
		},
		{
			name:        "js-eval-use",
			description: "JavaScript eval on a runtime string",
			patternID:   "js_eval_use",
			severity:    SeverityCritical,
			languages:   set("javascript", "typescript"),
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					if calleeBase(n.Name) != "eval" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: "eval executes arbitrary code",
					})
				}
				return out
			},
		},
		{
			name:        "rust-unwrap",
			description: "Rust unwrap that panics on the error path",
			patternID:   "rust_unwrap_use",
			severity:    SeverityWarning,
			languages:   set("rust"),
			match: func(g *graph.Graph) []ruleMatch {
				var out []ruleMatch
				for _, n := range g.NodesByKind(graph.KindCall) {
					base := calleeBase(n.Name)
					if base != "unwrap" && base != "expect" {
						continue
					}
					out = append(out, ruleMatch{
						node:    n,
						message: fmt.Sprintf("%s panics instead of propagating the error", base),
					})
				}
				return out
			},
		},
	})
}

// ---- shared match helpers ----

func set(langs ...string) map[string]bool {
	m := make(map[string]bool, len(langs))
	for _, l := range langs {
		m[l] = true
	}
	return m
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// calleeBase strips a receiver or module qualifier from a call name.
func calleeBase(name string) string {
	if i := strings.LastIndexAny(name, "./:"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// voidishCallee reports call targets whose discarded result is normal.
func voidishCallee(name string) bool {
	lower := strings.ToLower(calleeBase(name))
	return containsAny(lower, "print", "log", "panic", "fatal", "exit", "assert", "append", "write", "close", "debug", "info", "warn")
}

func functionNodes(g *graph.Graph) []*graph.Node {
	out := append([]*graph.Node{}, g.NodesByKind(graph.KindFunction)...)
	return append(out, g.NodesByKind(graph.KindMethod)...)
}

func isLoop(n *graph.Node) bool {
	if n == nil || n.Kind != graph.KindControl {
		return false
	}
	return containsAny(n.Attr("construct"), "for", "while", "loop")
}

// parentControl returns the containing control node, or nil when the node
// sits directly under a function, class, or module.
func parentControl(g *graph.Graph, n *graph.Node) *graph.Node {
	for _, e := range g.Incoming(n.ID) {
		if e.Kind != graph.EdgeContains {
			continue
		}
		if p := g.NodeByID(e.From); p != nil && p.Kind == graph.KindControl {
			return p
		}
	}
	return nil
}

// controlDepth returns the length of the longest chain of nested controls
// rooted at n, counting n itself.
func controlDepth(g *graph.Graph, n *graph.Node) int {
	deepest := 0
	for _, child := range g.Neighbors(n.ID, graph.EdgeContains) {
		if child.Kind != graph.KindControl {
			continue
		}
		if d := controlDepth(g, child); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// loopDepth counts the longest chain of nested loop controls rooted at n.
func loopDepth(g *graph.Graph, n *graph.Node) int {
	deepest := 0
	for _, child := range g.Neighbors(n.ID, graph.EdgeContains) {
		if child.Kind != graph.KindControl {
			continue
		}
		d := loopDepth(g, child)
		if !isLoop(child) {
			d-- // non-loop controls pass depth through without counting
			if d < 0 {
				d = 0
			}
		}
		if d > deepest {
			deepest = d
		}
	}
	if isLoop(n) {
		return deepest + 1
	}
	return deepest
}

// findCall searches the containment subtree under id for a call matching
// pred.
func findCall(g *graph.Graph, id string, pred func(*graph.Node) bool) *graph.Node {
	for _, child := range g.Neighbors(id, graph.EdgeContains) {
		if child.Kind == graph.KindCall && pred(child) {
			return child
		}
		if child.Kind == graph.KindControl {
			if found := findCall(g, child.ID, pred); found != nil {
				return found
			}
		}
	}
	return nil
}

// enclosingLoop walks containment upward from id to the nearest loop.
func enclosingLoop(g *graph.Graph, id string) *graph.Node {
	for {
		var parent *graph.Node
		for _, e := range g.Incoming(id) {
			if e.Kind == graph.EdgeContains {
				parent = g.NodeByID(e.From)
				break
			}
		}
		if parent == nil {
			return nil
		}
		if isLoop(parent) {
			return parent
		}
		id = parent.ID
	}
}

// importBase extracts the name a file would reference an import by.
func importBase(source string) string {
	source = strings.Trim(source, `"'<>`)
	if i := strings.LastIndexAny(source, "/\\"); i >= 0 {
		source = source[i+1:]
	}
	source = strings.TrimSuffix(source, ".h")
	if i := strings.IndexByte(source, '.'); i >= 0 {
		source = source[:i]
	}
	return source
}

// importReferenced reports whether any call or variable in the file
// mentions the import's base name.
func importReferenced(g *graph.Graph, file, base string) bool {
	for _, n := range g.NodesInFile(file) {
		switch n.Kind {
		case graph.KindCall:
			if strings.Contains(n.Name, base) || strings.Contains(n.Attr("signature"), base) {
				return true
			}
		case graph.KindVariable, graph.KindClass:
			if strings.Contains(n.Name, base) {
				return true
			}
		}
	}
	return false
}
