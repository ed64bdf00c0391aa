package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/graph"
)

var (
	m1 = graph.NodeRef{Kind: "member", ID: 1}
	m2 = graph.NodeRef{Kind: "member", ID: 2}
	o1 = graph.NodeRef{Kind: "organisation", ID: 1}
)

// runStoreSuite exercises the Store contract shared by every
// implementation.
func runStoreSuite(t *testing.T, open func(t *testing.T, singular []string) Store) {
	ctx := context.Background()

	t.Run("AppendAssignsMonotonicIDs", func(t *testing.T) {
		s := open(t, nil)
		first, err := s.Append(ctx, graph.Edge{TypeCode: "POS", From: m1, To: o1})
		require.NoError(t, err)
		second, err := s.Append(ctx, graph.Edge{TypeCode: "POS", From: m1, To: o1})
		require.NoError(t, err)

		assert.Greater(t, second.ID, first.ID)
		assert.False(t, first.CreatedAt.IsZero())
	})

	t.Run("LatestPicksHighestID", func(t *testing.T) {
		s := open(t, nil)
		_, err := s.Append(ctx, graph.Edge{TypeCode: "APP", From: m1, To: o1, Variant: "decline"})
		require.NoError(t, err)
		_, err = s.Append(ctx, graph.Edge{TypeCode: "APP", From: m2, To: o1, Variant: "approve"})
		require.NoError(t, err)

		latest, err := s.Latest(ctx, []string{"APP"}, nil, &o1)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "approve", latest.Variant)
		assert.Equal(t, m2, latest.From)
	})

	t.Run("LatestMissingIsNil", func(t *testing.T) {
		s := open(t, nil)
		latest, err := s.Latest(ctx, []string{"APP"}, nil, &o1)
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("ExistsFiltersByPair", func(t *testing.T) {
		s := open(t, nil)
		_, err := s.Append(ctx, graph.Edge{TypeCode: "CRT", From: m1, To: o1})
		require.NoError(t, err)

		ok, err := s.Exists(ctx, []string{"CRT"}, &m1, &o1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, []string{"CRT"}, &m2, &o1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("AllFromOrderedAscending", func(t *testing.T) {
		s := open(t, nil)
		for i := 0; i < 3; i++ {
			_, err := s.Append(ctx, graph.Edge{TypeCode: "POS", From: m1, To: o1})
			require.NoError(t, err)
		}
		_, err := s.Append(ctx, graph.Edge{TypeCode: "POS", From: m2, To: o1})
		require.NoError(t, err)

		edges, err := s.AllFrom(ctx, m1, []string{"POS"})
		require.NoError(t, err)
		require.Len(t, edges, 3)
		for i := 1; i < len(edges); i++ {
			assert.Greater(t, edges[i].ID, edges[i-1].ID)
		}
	})

	t.Run("AllToAnyCode", func(t *testing.T) {
		s := open(t, nil)
		_, err := s.Append(ctx, graph.Edge{TypeCode: "CRT", From: m1, To: o1})
		require.NoError(t, err)
		_, err = s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m2, To: o1})
		require.NoError(t, err)

		edges, err := s.AllTo(ctx, o1, nil)
		require.NoError(t, err)
		assert.Len(t, edges, 2)
	})

	t.Run("SingularAppendConverges", func(t *testing.T) {
		s := open(t, []string{"FOL"})
		first, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
		require.NoError(t, err)
		again, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
		require.NoError(t, err)

		assert.Equal(t, first.ID, again.ID)

		edges, err := s.AllFrom(ctx, m1, []string{"FOL"})
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})

	t.Run("SingularDifferentPairsUnconstrained", func(t *testing.T) {
		s := open(t, []string{"FOL"})
		_, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
		require.NoError(t, err)
		_, err = s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m2, To: o1})
		require.NoError(t, err)

		edges, err := s.AllTo(ctx, o1, []string{"FOL"})
		require.NoError(t, err)
		assert.Len(t, edges, 2)
	})

	t.Run("ConcurrentSingularAppend", func(t *testing.T) {
		s := open(t, []string{"FOL"})

		const n = 16
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		edges, err := s.AllFrom(ctx, m1, []string{"FOL"})
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := open(t, []string{"FOL"})
		_, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
		require.NoError(t, err)

		count, err := s.Delete(ctx, []string{"FOL"}, m1, o1)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = s.Delete(ctx, []string{"FOL"}, m1, o1)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("DeleteThenRecreate", func(t *testing.T) {
		s := open(t, []string{"FOL"})
		first, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
		require.NoError(t, err)

		_, err = s.Delete(ctx, []string{"FOL"}, m1, o1)
		require.NoError(t, err)

		second, err := s.Append(ctx, graph.Edge{TypeCode: "FOL", From: m1, To: o1})
		require.NoError(t, err)
		assert.Greater(t, second.ID, first.ID)
	})

	t.Run("PreservesTimestampAndVariant", func(t *testing.T) {
		s := open(t, nil)
		at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		_, err := s.Append(ctx, graph.Edge{TypeCode: "APP", From: m1, To: o1, CreatedAt: at, Variant: "approve"})
		require.NoError(t, err)

		latest, err := s.Latest(ctx, []string{"APP"}, &m1, &o1)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.True(t, latest.CreatedAt.Equal(at))
		assert.Equal(t, "approve", latest.Variant)
	})
}
