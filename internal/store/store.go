// Package store provides the edge store for Lattice.
//
// It defines the Store interface the engine reads edge history through,
// along with an in-memory implementation for tests and a BadgerDB
// implementation for persistence. The write side (Append, Delete) is
// intended for the relationship factory only; every other component
// treats the store as read-only.
package store

import (
	"context"
	"errors"

	"github.com/latticehq/lattice/internal/graph"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ErrReadOnly is returned by writes against a store opened read-only.
var ErrReadOnly = errors.New("store is read-only")

// Store is the edge store contract.
//
// Implementations must be safe for concurrent readers and writers. In the
// query methods, an empty codes slice means "any code" and a nil from/to
// filter means "any node". "Not found" is a nil edge (or false/zero
// count), never an error.
type Store interface {
	// Latest returns the most recent edge by ID matching the filters,
	// or nil if none exists.
	Latest(ctx context.Context, codes []string, from, to *graph.NodeRef) (*graph.Edge, error)

	// Exists reports whether any edge matches the filters.
	Exists(ctx context.Context, codes []string, from, to *graph.NodeRef) (bool, error)

	// AllFrom returns every edge originating at from with a matching
	// code, ordered by ID ascending.
	AllFrom(ctx context.Context, from graph.NodeRef, codes []string) ([]*graph.Edge, error)

	// AllTo returns every edge pointing at to with a matching code,
	// ordered by ID ascending.
	AllTo(ctx context.Context, to graph.NodeRef, codes []string) ([]*graph.Edge, error)

	// Append stores the edge, assigning its monotonic ID, and returns the
	// stored record. For singular edge types an existing edge with the
	// same (code, from, to) wins: Append returns it instead of writing a
	// duplicate, so concurrent or retried appends converge on one edge.
	Append(ctx context.Context, e graph.Edge) (*graph.Edge, error)

	// Delete removes every edge matching (codes, from, to) and returns
	// the count. Deleting a missing relationship is a no-op returning 0.
	Delete(ctx context.Context, codes []string, from, to graph.NodeRef) (int, error)

	// Close releases all resources held by the store.
	Close() error
}

// codeMatch reports whether code is in codes, with an empty set matching
// everything.
func codeMatch(codes []string, code string) bool {
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
