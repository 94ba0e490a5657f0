package fix

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// EquivalenceChecker decides whether two code fragments are semantically
// equivalent, using symbolic normalization: comments stripped, identifiers
// alpha-renamed in order of appearance, commutative operands canonically
// ordered. The verdict errs on the side of "not verified": a timeout or
// any residual difference is reported as unverified, never as confirmed
// unsafe and never as verified.
type EquivalenceChecker struct {
	// Budget bounds one Check call. Exceeding it yields an unverified
	// verdict with a zero score.
	Budget time.Duration
}

// DefaultBudget is the per-check reasoning budget.
const DefaultBudget = 2 * time.Second

// NewEquivalenceChecker returns a checker with the default budget.
func NewEquivalenceChecker() *EquivalenceChecker {
	return &EquivalenceChecker{Budget: DefaultBudget}
}

// Check compares two fragments. It returns (true, 1.0) only when the
// normalized forms are identical. Otherwise it returns false with a
// similarity score in [0,1) that callers may surface as a low-confidence
// semantic score.
func (c *EquivalenceChecker) Check(original, transformed string) (bool, float64) {
	deadline := time.Now().Add(c.Budget)

	a, ok := normalize(original, deadline)
	if !ok {
		return false, 0
	}
	b, ok := normalize(transformed, deadline)
	if !ok {
		return false, 0
	}

	if len(a) == len(b) {
		equal := true
		for i := range a {
			if a[i] != b[i] {
				equal = false
				break
			}
		}
		if equal {
			return true, 1.0
		}
	}

	if time.Now().After(deadline) {
		return false, 0
	}
	return false, tokenSimilarity(a, b)
}

// keywords are never alpha-renamed; the set spans the supported languages.
var keywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"return": true, "func": true, "fn": true, "def": true, "class": true,
	"struct": true, "try": true, "except": true, "catch": true, "finally": true,
	"import": true, "use": true, "var": true, "let": true, "const": true,
	"nil": true, "null": true, "None": true, "true": true, "false": true,
	"True": true, "False": true, "defer": true, "go": true, "switch": true,
	"case": true, "match": true, "break": true, "continue": true,
}

// normalize tokenizes a fragment with comments removed, alpha-renames
// identifiers, and orders commutative operands. Returns ok=false when the
// deadline expires mid-pass.
func normalize(src string, deadline time.Time) ([]string, bool) {
	tokens := tokenize(stripComments(src))

	renames := make(map[string]string)
	for i, tok := range tokens {
		if i%256 == 0 && time.Now().After(deadline) {
			return nil, false
		}
		if !isIdentifier(tok) || keywords[tok] {
			continue
		}
		name, ok := renames[tok]
		if !ok {
			name = "v" + strconv.Itoa(len(renames))
			renames[tok] = name
		}
		tokens[i] = name
	}

	// Canonical order for single-token operands of commutative operators.
	for i := 1; i < len(tokens)-1; i++ {
		switch tokens[i] {
		case "==", "!=", "+", "*", "&&", "||":
			if tokens[i-1] > tokens[i+1] {
				tokens[i-1], tokens[i+1] = tokens[i+1], tokens[i-1]
			}
		}
	}
	return tokens, true
}

func stripComments(src string) string {
	var b strings.Builder
	lines := strings.Split(src, "\n")
	for _, line := range lines {
		for _, marker := range []string{"//", "#"} {
			if i := strings.Index(line, marker); i >= 0 {
				line = line[:i]
			}
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	out := b.String()
	for {
		start := strings.Index(out, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], "*/")
		if end < 0 {
			out = out[:start]
			break
		}
		out = out[:start] + out[start+end+2:]
	}
	return out
}

func tokenize(src string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			// Two-character operators stay one token.
			if i+1 < len(runes) {
				pair := string(r) + string(runes[i+1])
				switch pair {
				case "==", "!=", "<=", ">=", "&&", "||", ":=", "->", "=>":
					tokens = append(tokens, pair)
					i++
					continue
				}
			}
			tokens = append(tokens, string(r))
		}
	}
	flush()
	return tokens
}

func isIdentifier(tok string) bool {
	if tok == "" {
		return false
	}
	r := rune(tok[0])
	return unicode.IsLetter(r) || r == '_'
}

// tokenSimilarity is the Jaccard similarity of the two token multisets,
// used as the suppressed semantic score for unverified transformations.
func tokenSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	counts := make(map[string]int)
	for _, t := range a {
		counts[t]++
	}
	var inter int
	for _, t := range b {
		if counts[t] > 0 {
			counts[t]--
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
