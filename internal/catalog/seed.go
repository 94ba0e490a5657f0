package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Patterns    []*StoredPattern     `yaml:"patterns"`
	Inheritance map[string]string    `yaml:"inheritance"`
	Variants    map[string][]Variant `yaml:"variants"`
}

// LoadSeed builds the bundled catalog. Errors here are fatal to startup:
// the catalog is foundational and a malformed seed means the build itself
// is broken.
func LoadSeed() (*Catalog, error) {
	return loadYAML(seedYAML)
}

func loadYAML(data []byte) (*Catalog, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("catalog: parse seed: %w", err)
	}

	c := New()
	for _, p := range seed.Patterns {
		if p.Metadata == nil {
			p.Metadata = make(map[string]string)
		}
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}

	// Hierarchy and variant references must resolve within the catalog.
	for child, parent := range seed.Inheritance {
		if c.Get(child) == nil {
			return nil, fmt.Errorf("catalog: inheritance references unknown pattern %s", child)
		}
		if c.Get(parent) == nil {
			return nil, fmt.Errorf("catalog: inheritance references unknown pattern %s", parent)
		}
	}
	inh, err := NewInheritance(seed.Inheritance)
	if err != nil {
		return nil, err
	}
	c.SetInheritance(inh)

	for id, vs := range seed.Variants {
		if c.Get(id) == nil {
			return nil, fmt.Errorf("catalog: variant map references unknown pattern %s", id)
		}
		for _, v := range vs {
			if c.Get(v.PatternID) == nil {
				return nil, fmt.Errorf("catalog: variant of %s references unknown pattern %s", id, v.PatternID)
			}
		}
		c.AddVariants(id, vs)
	}
	return c, nil
}
