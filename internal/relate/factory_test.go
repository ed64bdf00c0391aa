package relate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/graph"
	"github.com/latticehq/lattice/internal/notify"
	"github.com/latticehq/lattice/internal/registry"
	"github.com/latticehq/lattice/internal/store"
)

var (
	m1 = graph.NodeRef{Kind: "member", ID: 1}
	o1 = graph.NodeRef{Kind: "organisation", ID: 1}
)

// captureDispatcher records every dispatched message.
type captureDispatcher struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (d *captureDispatcher) Notify(ctx context.Context, m notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, m)
	return nil
}

func (d *captureDispatcher) all() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.messages...)
}

func setupFactory(t *testing.T) (*Factory, store.Store, *captureDispatcher) {
	t.Helper()

	reg, err := registry.New([]graph.EdgeType{
		{Code: "CRT", FromKind: "member", Singular: true},
		{Code: "FOL", FromKind: "member", NotifyTargets: []string{"to"}, Singular: true},
		{Code: "POS", FromKind: "member"},
		{Code: "REG", FromKind: "member", ToKind: "organisation",
			ImpliedCodes: []string{"CRT"}, Singular: true},
		{Code: "APP", FromKind: "member"},
	})
	require.NoError(t, err)

	s := store.NewMemoryStore(reg.SingularCodes())
	t.Cleanup(func() { _ = s.Close() })

	d := &captureDispatcher{}
	return New(reg, s, d, notify.EndpointResolver{}), s, d
}

func TestMake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("StoresEdge", func(t *testing.T) {
		f, s, _ := setupFactory(t)

		edge, err := f.Make(ctx, "POS", m1, o1)
		require.NoError(t, err)
		assert.NotZero(t, edge.ID)
		assert.Equal(t, "POS", edge.TypeCode)

		ok, err := s.Exists(ctx, []string{"POS"}, &m1, &o1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		f, _, _ := setupFactory(t)

		_, err := f.Make(ctx, "XXX", m1, o1)
		assert.ErrorIs(t, err, ErrUnknownCode)
	})

	t.Run("Variant", func(t *testing.T) {
		f, s, _ := setupFactory(t)

		_, err := f.Make(ctx, "APP", m1, o1, WithVariant(graph.VariantDecline))
		require.NoError(t, err)

		latest, err := s.Latest(ctx, []string{"APP"}, &m1, &o1)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, graph.VariantDecline, latest.Variant)
	})

	t.Run("CreatedAtOverride", func(t *testing.T) {
		f, s, _ := setupFactory(t)

		at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		_, err := f.Make(ctx, "POS", m1, o1, WithCreatedAt(at))
		require.NoError(t, err)

		latest, err := s.Latest(ctx, []string{"POS"}, &m1, &o1)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.True(t, latest.CreatedAt.Equal(at))
	})

	t.Run("ImpliedCascade", func(t *testing.T) {
		// A single REG call materializes both the REG edge and the
		// implied CRT edge.
		f, s, _ := setupFactory(t)

		_, err := f.Make(ctx, "REG", m1, o1)
		require.NoError(t, err)

		edges, err := s.AllFrom(ctx, m1, nil)
		require.NoError(t, err)
		codes := make([]string, len(edges))
		for i, e := range edges {
			codes[i] = e.TypeCode
		}
		assert.ElementsMatch(t, []string{"REG", "CRT"}, codes)
	})

	t.Run("RetriedMakeConverges", func(t *testing.T) {
		f, s, _ := setupFactory(t)

		_, err := f.Make(ctx, "REG", m1, o1)
		require.NoError(t, err)
		_, err = f.Make(ctx, "REG", m1, o1)
		require.NoError(t, err)

		edges, err := s.AllFrom(ctx, m1, nil)
		require.NoError(t, err)
		assert.Len(t, edges, 2, "REG and implied CRT, each singular, appear once")
	})

	t.Run("ConcurrentSingularMake", func(t *testing.T) {
		f, s, _ := setupFactory(t)

		const n = 16
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := f.Make(ctx, "FOL", m1, o1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		edges, err := s.AllFrom(ctx, m1, []string{"FOL"})
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})

	t.Run("NotifiesResolvedRecipients", func(t *testing.T) {
		f, _, d := setupFactory(t)

		_, err := f.Make(ctx, "FOL", m1, o1)
		require.NoError(t, err)

		msgs := d.all()
		require.Len(t, msgs, 1)
		assert.Equal(t, m1, msgs[0].Sender)
		assert.Equal(t, []graph.NodeRef{o1}, msgs[0].Recipients)
	})

	t.Run("NoNotifyTargetsNoMessage", func(t *testing.T) {
		f, _, d := setupFactory(t)

		_, err := f.Make(ctx, "POS", m1, o1)
		require.NoError(t, err)
		assert.Empty(t, d.all())
	})
}

func TestRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("IdempotentDoubleRemove", func(t *testing.T) {
		f, _, _ := setupFactory(t)

		_, err := f.Make(ctx, "FOL", m1, o1)
		require.NoError(t, err)

		count, err := f.Remove(ctx, "FOL", m1, o1)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = f.Remove(ctx, "FOL", m1, o1)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		f, _, _ := setupFactory(t)

		_, err := f.Remove(ctx, "XXX", m1, o1)
		assert.ErrorIs(t, err, ErrUnknownCode)
	})

	t.Run("NotifiesOnRemoval", func(t *testing.T) {
		f, _, d := setupFactory(t)

		_, err := f.Make(ctx, "FOL", m1, o1)
		require.NoError(t, err)
		_, err = f.Remove(ctx, "FOL", m1, o1)
		require.NoError(t, err)

		assert.Len(t, d.all(), 2)
	})

	t.Run("NoMessageWhenNothingRemoved", func(t *testing.T) {
		f, _, d := setupFactory(t)

		_, err := f.Remove(ctx, "FOL", m1, o1)
		require.NoError(t, err)
		assert.Empty(t, d.all())
	})

	t.Run("FollowUnfollowRefollow", func(t *testing.T) {
		f, s, _ := setupFactory(t)

		_, err := f.Make(ctx, "FOL", m1, o1)
		require.NoError(t, err)
		_, err = f.Remove(ctx, "FOL", m1, o1)
		require.NoError(t, err)
		_, err = f.Make(ctx, "FOL", m1, o1)
		require.NoError(t, err)

		edges, err := s.AllFrom(ctx, m1, []string{"FOL"})
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})
}
