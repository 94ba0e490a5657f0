// Package catalog is the process-wide source of truth for pattern
// embeddings, the pattern specialization hierarchy, and cross-language
// equivalence. It is populated once at startup (from the bundled seed or a
// SQLite store) and read-only during detection, so concurrent reads need no
// locking.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDuplicatePattern is returned when a pattern ID is added twice.
var ErrDuplicatePattern = errors.New("catalog: duplicate pattern id")

// ErrCyclicHierarchy is returned when the inheritance relation contains a
// cycle. The relation must form a forest.
var ErrCyclicHierarchy = errors.New("catalog: cyclic pattern hierarchy")

// StoredPattern is one catalog entry. Embedding dimensionality is fixed
// across a catalog; the first pattern added sets it.
type StoredPattern struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Category string            `yaml:"category"`
	Language string            `yaml:"language"` // "generic" for cross-language patterns
	Embedding []float32        `yaml:"embedding"`
	Metadata map[string]string `yaml:"metadata"`
}

// Variant is one cross-language equivalent of a pattern.
type Variant struct {
	Language   string  `yaml:"language"`
	PatternID  string  `yaml:"pattern_id"`
	Similarity float64 `yaml:"similarity"`
}

// Match is a similarity search hit.
type Match struct {
	Pattern    *StoredPattern
	Similarity float64
}

// Catalog owns the pattern set, hierarchy, and cross-language map.
type Catalog struct {
	patterns []*StoredPattern
	byID     map[string]*StoredPattern
	dim      int

	inheritance *Inheritance
	variants    map[string][]Variant
}

// New returns an empty catalog with an empty hierarchy.
func New() *Catalog {
	return &Catalog{
		byID:        make(map[string]*StoredPattern),
		inheritance: emptyInheritance(),
		variants:    make(map[string][]Variant),
	}
}

// Add appends a pattern. IDs must be unique and embeddings must match the
// catalog's dimensionality.
func (c *Catalog) Add(p *StoredPattern) error {
	if p.ID == "" {
		return errors.New("catalog: empty pattern id")
	}
	if _, ok := c.byID[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
	}
	if c.dim == 0 {
		c.dim = len(p.Embedding)
	} else if len(p.Embedding) != c.dim {
		return fmt.Errorf("catalog: pattern %s: embedding dimension %d, want %d", p.ID, len(p.Embedding), c.dim)
	}
	c.patterns = append(c.patterns, p)
	c.byID[p.ID] = p
	return nil
}

// Get returns the pattern with the given ID, or nil.
func (c *Catalog) Get(id string) *StoredPattern { return c.byID[id] }

// Patterns returns all patterns in insertion order.
func (c *Catalog) Patterns() []*StoredPattern { return c.patterns }

// Len returns the number of stored patterns.
func (c *Catalog) Len() int { return len(c.patterns) }

// Dimension returns the embedding dimensionality, 0 for an empty catalog.
func (c *Catalog) Dimension() int { return c.dim }

// SetInheritance installs the specialization hierarchy.
func (c *Catalog) SetInheritance(inh *Inheritance) { c.inheritance = inh }

// Inheritance returns the specialization hierarchy.
func (c *Catalog) Inheritance() *Inheritance { return c.inheritance }

// AddVariants records cross-language equivalents for a pattern.
func (c *Catalog) AddVariants(patternID string, vs []Variant) {
	c.variants[patternID] = append(c.variants[patternID], vs...)
}

// Variants returns the cross-language equivalents of a pattern. Unknown
// IDs yield an empty result, not an error.
func (c *Catalog) Variants(patternID string) []Variant { return c.variants[patternID] }

// VariantMap returns the full cross-language map, keyed by pattern ID.
func (c *Catalog) VariantMap() map[string][]Variant { return c.variants }

// FindSimilar returns every pattern whose embedding's cosine similarity to
// the given pattern is at least threshold, ordered by similarity descending
// with ties broken by ID ascending. The pattern itself qualifies at
// self-similarity 1.0. Thresholds outside [0,1] are clamped. An unknown
// pattern ID yields an empty result.
func (c *Catalog) FindSimilar(patternID string, threshold float64) []Match {
	ref := c.byID[patternID]
	if ref == nil {
		return nil
	}
	threshold = clamp01(threshold)

	var matches []Match
	for _, p := range c.patterns {
		sim := Cosine(ref.Embedding, p.Embedding)
		if p == ref {
			sim = 1.0
		}
		if sim >= threshold {
			matches = append(matches, Match{Pattern: p, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Pattern.ID < matches[j].Pattern.ID
	})
	return matches
}

// MatchEmbedding returns every pattern whose embedding's cosine similarity
// to the given vector is at least threshold, ordered like FindSimilar.
// Vectors of the wrong dimension match nothing.
func (c *Catalog) MatchEmbedding(embedding []float32, threshold float64) []Match {
	threshold = clamp01(threshold)

	var matches []Match
	for _, p := range c.patterns {
		sim := Cosine(embedding, p.Embedding)
		if sim >= threshold {
			matches = append(matches, Match{Pattern: p, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Pattern.ID < matches[j].Pattern.ID
	})
	return matches
}

// Related reports whether two pattern IDs are connected either through the
// inheritance hierarchy (parent/child, either direction) or through the
// cross-language map with similarity at or above threshold. This is the
// dedup predicate the orchestrator uses.
func (c *Catalog) Related(a, b string, threshold float64) bool {
	if a == b {
		return true
	}
	if c.inheritance.Parent(a) == b || c.inheritance.Parent(b) == a {
		return true
	}
	threshold = clamp01(threshold)
	for _, v := range c.variants[a] {
		if v.PatternID == b && v.Similarity >= threshold {
			return true
		}
	}
	for _, v := range c.variants[b] {
		if v.PatternID == a && v.Similarity >= threshold {
			return true
		}
	}
	return false
}

// Cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero-magnitude inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
