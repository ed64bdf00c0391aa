// Package store provides the edge store for Lattice.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/latticehq/lattice/internal/graph"
)

// MemoryStore is an in-memory implementation of Store for tests and
// ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	edges    []*graph.Edge // ordered by ID ascending
	nextID   int64
	singular map[string]bool
	closed   bool
}

// NewMemoryStore creates an in-memory edge store. singularCodes lists the
// edge type codes with the at-most-one-active-edge-per-pair constraint.
func NewMemoryStore(singularCodes []string) *MemoryStore {
	singular := make(map[string]bool, len(singularCodes))
	for _, c := range singularCodes {
		singular[c] = true
	}
	return &MemoryStore{singular: singular}
}

// Latest implements Store.
func (m *MemoryStore) Latest(ctx context.Context, codes []string, from, to *graph.NodeRef) (*graph.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	for i := len(m.edges) - 1; i >= 0; i-- {
		if e := m.edges[i]; matches(e, codes, from, to) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(ctx context.Context, codes []string, from, to *graph.NodeRef) (bool, error) {
	e, err := m.Latest(ctx, codes, from, to)
	return e != nil, err
}

// AllFrom implements Store.
func (m *MemoryStore) AllFrom(ctx context.Context, from graph.NodeRef, codes []string) ([]*graph.Edge, error) {
	return m.collect(codes, &from, nil)
}

// AllTo implements Store.
func (m *MemoryStore) AllTo(ctx context.Context, to graph.NodeRef, codes []string) ([]*graph.Edge, error) {
	return m.collect(codes, nil, &to)
}

func (m *MemoryStore) collect(codes []string, from, to *graph.NodeRef) ([]*graph.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var out []*graph.Edge
	for _, e := range m.edges {
		if matches(e, codes, from, to) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Append implements Store. The mutex makes check-then-insert atomic, so
// concurrent appends of the same singular relationship converge on a
// single stored edge.
func (m *MemoryStore) Append(ctx context.Context, e graph.Edge) (*graph.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if m.singular[e.TypeCode] {
		for _, existing := range m.edges {
			if existing.TypeCode == e.TypeCode && existing.From == e.From && existing.To == e.To {
				cp := *existing
				return &cp, nil
			}
		}
	}

	m.nextID++
	e.ID = m.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	stored := e
	m.edges = append(m.edges, &stored)

	cp := stored
	return &cp, nil
}

// Delete implements Store. Deleting a missing relationship returns 0, nil.
func (m *MemoryStore) Delete(ctx context.Context, codes []string, from, to graph.NodeRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	count := 0
	kept := m.edges[:0]
	for _, e := range m.edges {
		if matches(e, codes, &from, &to) {
			count++
			continue
		}
		kept = append(kept, e)
	}
	m.edges = kept
	return count, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = nil
	m.closed = true
	return nil
}

// EdgeCount returns the number of stored edges.
func (m *MemoryStore) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

func matches(e *graph.Edge, codes []string, from, to *graph.NodeRef) bool {
	if !codeMatch(codes, e.TypeCode) {
		return false
	}
	if from != nil && e.From != *from {
		return false
	}
	if to != nil && e.To != *to {
		return false
	}
	return true
}
