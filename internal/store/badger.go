// Package store provides the edge store for Lattice.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/latticehq/lattice/internal/graph"
)

// Key prefixes for different data types
const (
	prefixEdge = "e:" // edge data by ID
	prefixOut  = "o:" // outgoing index: o:<node>:<code>:<id>
	prefixIn   = "t:" // incoming index: t:<node>:<code>:<id>
	prefixUniq = "u:" // uniqueness key for singular codes: u:<code>:<from>:<to>
)

// seqKey is the badger sequence backing edge IDs.
var seqKey = []byte("!lattice:edge-seq")

// BadgerStore is a BadgerDB-backed edge store.
//
// Edges are stored as JSON under prefixEdge, with per-node secondary
// indexes so from/to queries scan only the node's own history. Singular
// edge types additionally maintain a uniqueness key per (code, from, to)
// pair; Badger's transaction conflict detection turns a concurrent
// duplicate append into a retry that finds the winner's edge.
type BadgerStore struct {
	db          *badger.DB
	seq         *badger.Sequence
	singular    map[string]bool
	readOnly    bool
	initialized bool
	mu          sync.RWMutex
}

// NewBadgerStore creates a new BadgerDB edge store. singularCodes lists
// the edge type codes with the at-most-one-active-edge-per-pair
// constraint.
func NewBadgerStore(singularCodes []string) *BadgerStore {
	singular := make(map[string]bool, len(singularCodes))
	for _, c := range singularCodes {
		singular[c] = true
	}
	return &BadgerStore{singular: singular}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerStore) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	if !readOnly {
		b.seq, err = b.db.GetSequence(seqKey, 128)
		if err != nil {
			_ = b.db.Close()
			b.db = nil
			return fmt.Errorf("opening edge ID sequence: %w", err)
		}
	}

	b.readOnly = readOnly
	b.initialized = true
	return nil
}

// Close releases all resources held by the store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	if b.seq != nil {
		_ = b.seq.Release()
		b.seq = nil
	}
	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// Latest implements Store.
func (b *BadgerStore) Latest(ctx context.Context, codes []string, from, to *graph.NodeRef) (*graph.Edge, error) {
	var best *graph.Edge
	err := b.scan(ctx, codes, from, to, func(e *graph.Edge) {
		if best == nil || e.ID > best.ID {
			best = e
		}
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// Exists implements Store.
func (b *BadgerStore) Exists(ctx context.Context, codes []string, from, to *graph.NodeRef) (bool, error) {
	e, err := b.Latest(ctx, codes, from, to)
	return e != nil, err
}

// AllFrom implements Store.
func (b *BadgerStore) AllFrom(ctx context.Context, from graph.NodeRef, codes []string) ([]*graph.Edge, error) {
	return b.collect(ctx, codes, &from, nil)
}

// AllTo implements Store.
func (b *BadgerStore) AllTo(ctx context.Context, to graph.NodeRef, codes []string) ([]*graph.Edge, error) {
	return b.collect(ctx, codes, nil, &to)
}

func (b *BadgerStore) collect(ctx context.Context, codes []string, from, to *graph.NodeRef) ([]*graph.Edge, error) {
	var out []*graph.Edge
	err := b.scan(ctx, codes, from, to, func(e *graph.Edge) {
		out = append(out, e)
	})
	if err != nil {
		return nil, err
	}
	// Index iteration is ordered by key, and ID keys are fixed-width, so
	// per-code runs are already ascending; a final sort keeps the
	// cross-code merge ordered too.
	sortEdges(out)
	return out, nil
}

// scan visits every edge matching the filters. With a from or to filter
// it walks that node's secondary index; otherwise it walks the full edge
// prefix.
func (b *BadgerStore) scan(ctx context.Context, codes []string, from, to *graph.NodeRef, visit func(*graph.Edge)) error {
	b.mu.RLock()
	db := b.db
	b.mu.RUnlock()
	if db == nil {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		var prefix []byte
		switch {
		case from != nil:
			prefix = []byte(prefixOut + nodeKey(*from) + ":")
		case to != nil:
			prefix = []byte(prefixIn + nodeKey(*to) + ":")
		default:
			prefix = []byte(prefixEdge)
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var e graph.Edge
			if string(prefix) == prefixEdge {
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &e)
				}); err != nil {
					continue
				}
			} else {
				var id int64
				if err := item.Value(func(val []byte) error {
					parsed, perr := strconv.ParseInt(string(val), 16, 64)
					id = parsed
					return perr
				}); err != nil {
					continue
				}
				loaded, err := getEdge(txn, id)
				if err != nil || loaded == nil {
					continue
				}
				e = *loaded
			}

			if !codeMatch(codes, e.TypeCode) {
				continue
			}
			if from != nil && e.From != *from {
				continue
			}
			if to != nil && e.To != *to {
				continue
			}
			cp := e
			visit(&cp)
		}
		return nil
	})
}

// Append implements Store. Singular duplicates return the existing edge;
// a transaction conflict between two concurrent appends of the same pair
// is retried, at which point the loser observes the winner's edge.
func (b *BadgerStore) Append(ctx context.Context, e graph.Edge) (*graph.Edge, error) {
	b.mu.RLock()
	db, seq := b.db, b.seq
	readOnly := b.readOnly
	b.mu.RUnlock()
	if db == nil {
		return nil, ErrClosed
	}
	if readOnly {
		return nil, ErrReadOnly
	}

	for {
		stored, err := b.tryAppend(db, seq, e)
		if err == badger.ErrConflict {
			continue
		}
		if err != nil {
			return nil, err
		}
		return stored, nil
	}
}

func (b *BadgerStore) tryAppend(db *badger.DB, seq *badger.Sequence, e graph.Edge) (*graph.Edge, error) {
	txn := db.NewTransaction(true)
	defer txn.Discard()

	singular := b.singular[e.TypeCode]
	if singular {
		item, err := txn.Get(uniqKey(e.TypeCode, e.From, e.To))
		if err == nil {
			var id int64
			if verr := item.Value(func(val []byte) error {
				parsed, perr := strconv.ParseInt(string(val), 16, 64)
				id = parsed
				return perr
			}); verr != nil {
				return nil, fmt.Errorf("reading uniqueness key: %w", verr)
			}
			existing, gerr := getEdge(txn, id)
			if gerr != nil {
				return nil, gerr
			}
			if existing != nil {
				return existing, nil
			}
			// Uniqueness key without an edge record: fall through and
			// overwrite it with a fresh edge.
		} else if err != badger.ErrKeyNotFound {
			return nil, fmt.Errorf("checking uniqueness key: %w", err)
		}
	}

	next, err := seq.Next()
	if err != nil {
		return nil, fmt.Errorf("allocating edge ID: %w", err)
	}
	e.ID = int64(next) + 1
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("encoding edge: %w", err)
	}

	id := idKey(e.ID)
	if err := txn.Set([]byte(prefixEdge+id), data); err != nil {
		return nil, err
	}
	if err := txn.Set(outKey(e.From, e.TypeCode, id), []byte(id)); err != nil {
		return nil, err
	}
	if err := txn.Set(inKey(e.To, e.TypeCode, id), []byte(id)); err != nil {
		return nil, err
	}
	if singular {
		if err := txn.Set(uniqKey(e.TypeCode, e.From, e.To), []byte(id)); err != nil {
			return nil, err
		}
	}

	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete implements Store. Deleting a missing relationship returns 0, nil.
func (b *BadgerStore) Delete(ctx context.Context, codes []string, from, to graph.NodeRef) (int, error) {
	b.mu.RLock()
	db := b.db
	readOnly := b.readOnly
	b.mu.RUnlock()
	if db == nil {
		return 0, ErrClosed
	}
	if readOnly {
		return 0, ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixOut + nodeKey(from) + ":")
		it := txn.NewIterator(opts)

		var victims []*graph.Edge
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var id int64
			if err := item.Value(func(val []byte) error {
				parsed, perr := strconv.ParseInt(string(val), 16, 64)
				id = parsed
				return perr
			}); err != nil {
				continue
			}
			e, err := getEdge(txn, id)
			if err != nil || e == nil {
				continue
			}
			if !codeMatch(codes, e.TypeCode) || e.To != to {
				continue
			}
			victims = append(victims, e)
		}
		it.Close()

		for _, e := range victims {
			id := idKey(e.ID)
			if err := txn.Delete([]byte(prefixEdge + id)); err != nil {
				return err
			}
			if err := txn.Delete(outKey(e.From, e.TypeCode, id)); err != nil {
				return err
			}
			if err := txn.Delete(inKey(e.To, e.TypeCode, id)); err != nil {
				return err
			}
			if b.singular[e.TypeCode] {
				if err := txn.Delete(uniqKey(e.TypeCode, e.From, e.To)); err != nil {
					return err
				}
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// EdgeCount returns the number of stored edges.
func (b *BadgerStore) EdgeCount() int {
	b.mu.RLock()
	db := b.db
	b.mu.RUnlock()
	if db == nil {
		return 0
	}

	count := 0
	_ = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEdge)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

func getEdge(txn *badger.Txn, id int64) (*graph.Edge, error) {
	item, err := txn.Get([]byte(prefixEdge + idKey(id)))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e graph.Edge
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	}); err != nil {
		return nil, err
	}
	return &e, nil
}

// idKey renders an edge ID fixed-width hex so lexical key order matches
// numeric order.
func idKey(id int64) string {
	return fmt.Sprintf("%016x", id)
}

func nodeKey(n graph.NodeRef) string {
	return n.Kind + "#" + strconv.FormatInt(n.ID, 10)
}

func outKey(from graph.NodeRef, code, id string) []byte {
	return []byte(prefixOut + nodeKey(from) + ":" + code + ":" + id)
}

func inKey(to graph.NodeRef, code, id string) []byte {
	return []byte(prefixIn + nodeKey(to) + ":" + code + ":" + id)
}

func uniqKey(code string, from, to graph.NodeRef) []byte {
	return []byte(prefixUniq + code + ":" + nodeKey(from) + ":" + nodeKey(to))
}

func sortEdges(edges []*graph.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}
