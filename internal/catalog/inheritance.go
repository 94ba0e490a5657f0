package catalog

import (
	"fmt"
	"sort"
)

// Inheritance is the arena-indexed pattern specialization forest: every
// pattern has at most one parent and the relation contains no cycles. Both
// properties are validated at construction, after which the structure is
// immutable.
type Inheritance struct {
	parent   map[string]string
	children map[string][]string
}

func emptyInheritance() *Inheritance {
	return &Inheritance{
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// NewInheritance builds a hierarchy from a child -> parent map. A cycle
// anywhere in the relation fails with ErrCyclicHierarchy.
func NewInheritance(childToParent map[string]string) (*Inheritance, error) {
	inh := emptyInheritance()
	for child, parent := range childToParent {
		if child == parent {
			return nil, fmt.Errorf("%w: %s is its own parent", ErrCyclicHierarchy, child)
		}
		inh.parent[child] = parent
		inh.children[parent] = append(inh.children[parent], child)
	}
	for parent := range inh.children {
		sort.Strings(inh.children[parent])
	}

	// Walk up from every node; revisiting a node within one walk is a cycle.
	for start := range inh.parent {
		seen := map[string]bool{start: true}
		for cur := inh.parent[start]; cur != ""; cur = inh.parent[cur] {
			if seen[cur] {
				return nil, fmt.Errorf("%w: via %s", ErrCyclicHierarchy, cur)
			}
			seen[cur] = true
		}
	}
	return inh, nil
}

// Parent returns the parent pattern ID, or "" for roots and unknown IDs.
func (h *Inheritance) Parent(id string) string { return h.parent[id] }

// Children returns the direct specializations of a pattern, sorted by ID.
func (h *Inheritance) Children(id string) []string { return h.children[id] }

// Ancestors returns the chain of parents from the immediate parent to the
// root, nearest first.
func (h *Inheritance) Ancestors(id string) []string {
	var out []string
	for cur := h.parent[id]; cur != ""; cur = h.parent[cur] {
		out = append(out, cur)
	}
	return out
}

// ParentMap returns a copy of the child -> parent relation.
func (h *Inheritance) ParentMap() map[string]string {
	out := make(map[string]string, len(h.parent))
	for k, v := range h.parent {
		out[k] = v
	}
	return out
}

// Len returns the number of child -> parent links.
func (h *Inheritance) Len() int { return len(h.parent) }
