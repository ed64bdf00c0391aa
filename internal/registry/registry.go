// Package registry provides the validated, immutable EdgeType catalogue
// for Lattice.
//
// The catalogue is loaded once at startup; every lookup after that is a
// read against frozen maps, safe for unsynchronized concurrent use. All
// structural rules (unique codes, resolvable references, two-level
// hierarchy) are enforced at load time so the engine never runs against a
// partially valid catalogue.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/latticehq/lattice/internal/graph"
)

// Sentinel errors for catalogue validation failures. They are always
// returned wrapped with the offending code and field.
var (
	ErrDuplicateCode    = errors.New("duplicate edge type code")
	ErrUnknownReference = errors.New("reference to unregistered edge type code")
	ErrHierarchyDepth   = errors.New("edge type hierarchy deeper than two levels")
)

// Registry is the immutable catalogue of edge types.
//
// Lookups by code are O(1); kind-pair queries scan the catalogue, which is
// small and fixed for the process lifetime.
type Registry struct {
	byCode   map[string]graph.EdgeType
	children map[string][]string // parent code -> child codes, sorted
	ordered  []graph.EdgeType    // registration order, for listing
}

// New builds a Registry from the given edge types, validating the whole
// set before any lookup is possible. A validation failure means the
// catalogue is misconfigured and the process should refuse to start.
func New(types []graph.EdgeType) (*Registry, error) {
	r := &Registry{
		byCode:   make(map[string]graph.EdgeType, len(types)),
		children: make(map[string][]string),
	}

	for _, t := range types {
		if t.Code == "" {
			return nil, fmt.Errorf("edge type with empty code (from_kind=%q to_kind=%q)", t.FromKind, t.ToKind)
		}
		if _, ok := r.byCode[t.Code]; ok {
			return nil, fmt.Errorf("edge type %q: %w", t.Code, ErrDuplicateCode)
		}
		r.byCode[t.Code] = t
		r.ordered = append(r.ordered, t)
	}

	for _, t := range r.ordered {
		if err := r.validate(t); err != nil {
			return nil, err
		}
		if t.ParentCode != "" {
			r.children[t.ParentCode] = append(r.children[t.ParentCode], t.Code)
		}
	}
	for _, codes := range r.children {
		sort.Strings(codes)
	}

	return r, nil
}

// validate checks a single edge type's references against the full code map.
func (r *Registry) validate(t graph.EdgeType) error {
	if t.ParentCode != "" {
		parent, ok := r.byCode[t.ParentCode]
		if !ok {
			return fmt.Errorf("edge type %q: parent %q: %w", t.Code, t.ParentCode, ErrUnknownReference)
		}
		if parent.ParentCode != "" {
			return fmt.Errorf("edge type %q: parent %q has parent %q: %w",
				t.Code, t.ParentCode, parent.ParentCode, ErrHierarchyDepth)
		}
	}
	if t.RequiredPreviousCode != "" {
		if _, ok := r.byCode[t.RequiredPreviousCode]; !ok {
			return fmt.Errorf("edge type %q: requires %q: %w", t.Code, t.RequiredPreviousCode, ErrUnknownReference)
		}
	}
	for _, ic := range t.ImpliedCodes {
		if _, ok := r.byCode[ic]; !ok {
			return fmt.Errorf("edge type %q: implies %q: %w", t.Code, ic, ErrUnknownReference)
		}
	}
	return nil
}

// ByCode returns the edge type registered under code.
func (r *Registry) ByCode(code string) (graph.EdgeType, bool) {
	t, ok := r.byCode[code]
	return t, ok
}

// All returns every registered edge type in registration order.
func (r *Registry) All() []graph.EdgeType {
	out := make([]graph.EdgeType, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Children returns the codes whose parent is the given root code.
func (r *Registry) Children(parent string) []string {
	out := make([]string, len(r.children[parent]))
	copy(out, r.children[parent])
	return out
}

// Expand returns codes plus, for every code that is a parent, all of its
// children. The rule is directional: passing a child code never pulls in
// its parent or siblings, so a check against a specific child stays
// specific while a check against a root category matches everything under
// it.
func (r *Registry) Expand(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range codes {
		add(c)
		for _, child := range r.children[c] {
			add(child)
		}
	}
	return out
}

// ForKinds returns every edge type connecting (fromKind, toKind) whose own
// code or parent code is in codes. Wildcard kinds on the type match any
// kind.
func (r *Registry) ForKinds(fromKind, toKind string, codes []string) []graph.EdgeType {
	var out []graph.EdgeType
	for _, t := range r.ordered {
		if t.Matches(fromKind, toKind) && t.InCodeSet(codes) {
			out = append(out, t)
		}
	}
	return out
}

// SingularCodes returns the codes of every edge type marked singular.
// Stores use this set to enforce at-most-one-active-edge per pair.
func (r *Registry) SingularCodes() []string {
	var out []string
	for _, t := range r.ordered {
		if t.Singular {
			out = append(out, t.Code)
		}
	}
	return out
}
