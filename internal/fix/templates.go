package fix

// Template is a known-good transformation for one pattern: a before/after
// fragment pair with a generation confidence and an estimate of how much
// test coverage the change needs.
type Template struct {
	PatternID   string
	Description string
	Before      string
	After       string
	Confidence  float64
	Coverage    float64
}

// TemplatesFor returns the transformation templates registered for a
// pattern ID, without ancestor fallback.
func TemplatesFor(patternID string) []Template {
	return templates[patternID]
}

// templates is the built-in transformation table, keyed by catalog pattern
// ID. Fragments are deliberately language-flavored examples; the diff shown
// to the reviewer is illustrative, not a patch against their file.
var templates = map[string][]Template{
	"empty_handler": {
		{
			PatternID:   "empty_handler",
			Description: "Handle or propagate the error instead of swallowing it",
			Before:      "if err != nil {\n}",
			After:       "if err != nil {\n\treturn fmt.Errorf(\"operation failed: %w\", err)\n}",
			Confidence:  0.85,
			Coverage:    0.6,
		},
		{
			PatternID:   "empty_handler",
			Description: "Log the error at minimum so failures are observable",
			Before:      "except Exception:\n    pass",
			After:       "except Exception:\n    logger.exception(\"operation failed\")",
			Confidence:  0.7,
			Coverage:    0.3,
		},
	},
	"error_ignored": {
		{
			PatternID:   "error_ignored",
			Description: "Check the returned error value",
			Before:      "doWork()",
			After:       "if err := doWork(); err != nil {\n\treturn err\n}",
			Confidence:  0.8,
			Coverage:    0.5,
		},
	},
	"sql_injection": {
		{
			PatternID:   "sql_injection",
			Description: "Use parameterized queries instead of string concatenation",
			Before:      "query = \"SELECT * FROM users WHERE id = '\" + userID + \"'\"",
			After:       "query = \"SELECT * FROM users WHERE id = ?\"\ndb.Execute(query, userID)",
			Confidence:  0.9,
			Coverage:    0.7,
		},
	},
	"command_injection": {
		{
			PatternID:   "command_injection",
			Description: "Pass arguments as a vector instead of interpolating into a shell string",
			Before:      "system(\"convert \" + userFile)",
			After:       "run([\"convert\", validatedFile])",
			Confidence:  0.85,
			Coverage:    0.7,
		},
	},
	"eval_injection": {
		{
			PatternID:   "eval_injection",
			Description: "Replace dynamic evaluation with an explicit dispatch table",
			Before:      "eval(action)",
			After:       "handlers[action]()",
			Confidence:  0.75,
			Coverage:    0.6,
		},
	},
	"hardcoded_credentials": {
		{
			PatternID:   "hardcoded_credentials",
			Description: "Read the credential from configuration at startup",
			Before:      "password = \"hunter2\"",
			After:       "password = os.Getenv(\"SERVICE_PASSWORD\")",
			Confidence:  0.9,
			Coverage:    0.2,
		},
	},
	"weak_hash_algorithm": {
		{
			PatternID:   "weak_hash_algorithm",
			Description: "Use a collision-resistant hash",
			Before:      "digest = md5(data)",
			After:       "digest = sha256(data)",
			Confidence:  0.9,
			Coverage:    0.4,
		},
	},
	"n_plus_one_query": {
		{
			PatternID:   "n_plus_one_query",
			Description: "Batch the per-item queries into one lookup",
			Before:      "for id in ids:\n    rows.append(db.query(id))",
			After:       "rows = db.query_many(ids)",
			Confidence:  0.7,
			Coverage:    0.8,
		},
	},
	"deep_nesting": {
		{
			PatternID:   "deep_nesting",
			Description: "Flatten with early returns",
			Before:      "if a {\n\tif b {\n\t\tif c {\n\t\t\twork()\n\t\t}\n\t}\n}",
			After:       "if !a || !b || !c {\n\treturn\n}\nwork()",
			Confidence:  0.65,
			Coverage:    0.5,
		},
	},
	"long_function": {
		{
			PatternID:   "long_function",
			Description: "Extract cohesive blocks into named helpers",
			Before:      "func process() {\n\t// 200 lines\n}",
			After:       "func process() {\n\tvalidate()\n\ttransform()\n\tpersist()\n}",
			Confidence:  0.5,
			Coverage:    0.9,
		},
	},
	"unused_import": {
		{
			PatternID:   "unused_import",
			Description: "Drop the unused import",
			Before:      "import legacy",
			After:       "",
			Confidence:  0.95,
			Coverage:    0.1,
		},
	},
	"unreleased_lock": {
		{
			PatternID:   "unreleased_lock",
			Description: "Release the lock on every path",
			Before:      "mu.Lock()\nwork()",
			After:       "mu.Lock()\ndefer mu.Unlock()\nwork()",
			Confidence:  0.85,
			Coverage:    0.6,
		},
	},
	"dangerous_api_call": {
		{
			PatternID:   "dangerous_api_call",
			Description: "Replace the unsafe API with its guarded equivalent",
			Before:      "data = pickle.load(f)",
			After:       "data = json.load(f)",
			Confidence:  0.6,
			Coverage:    0.7,
		},
	},
}
