// Package relate provides the relationship factory for Lattice.
//
// The Factory is the only component that writes edges: it materializes a
// permitted action as an edge plus its implied edges, and removes
// relationships for unfollow/unlike/leave style actions. Notification
// dispatch rides on both paths but never affects their outcome.
package relate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/latticehq/lattice/internal/graph"
	"github.com/latticehq/lattice/internal/notify"
	"github.com/latticehq/lattice/internal/registry"
	"github.com/latticehq/lattice/internal/store"
)

// ErrUnknownCode is returned when an action code has no registered edge
// type.
var ErrUnknownCode = errors.New("unknown edge type code")

// MakeOption customizes a single Make call.
type MakeOption func(*makeConfig)

type makeConfig struct {
	variant   string
	createdAt time.Time
}

// WithVariant records which concrete action produced the edge (e.g.
// "approve" vs "decline" for an approval edge).
func WithVariant(v string) MakeOption {
	return func(c *makeConfig) { c.variant = v }
}

// WithCreatedAt overrides the edge timestamp. Used by tests and backfill
// tooling; the default is the current time.
func WithCreatedAt(t time.Time) MakeOption {
	return func(c *makeConfig) { c.createdAt = t }
}

// Factory creates and removes edges for actions.
type Factory struct {
	reg        *registry.Registry
	edges      store.Store
	dispatcher notify.Dispatcher
	recipients notify.RecipientResolver
}

// New creates a Factory. A nil dispatcher or resolver disables
// notifications.
func New(reg *registry.Registry, edges store.Store, dispatcher notify.Dispatcher, recipients notify.RecipientResolver) *Factory {
	return &Factory{
		reg:        reg,
		edges:      edges,
		dispatcher: dispatcher,
		recipients: recipients,
	}
}

// Make materializes the action as an edge from from to to, plus one edge
// per implied code. Implication expands a single level: implied edges of
// implied edges are not created. Appends of singular types converge on
// the existing edge, so a retried Make reaches the same end state.
func (f *Factory) Make(ctx context.Context, code string, from, to graph.NodeRef, opts ...MakeOption) (*graph.Edge, error) {
	t, ok := f.reg.ByCode(code)
	if !ok {
		return nil, fmt.Errorf("edge type %q: %w", code, ErrUnknownCode)
	}

	var cfg makeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	stored, err := f.edges.Append(ctx, graph.Edge{
		TypeCode:  code,
		From:      from,
		To:        to,
		CreatedAt: cfg.createdAt,
		Variant:   cfg.variant,
	})
	if err != nil {
		return nil, fmt.Errorf("appending %s edge: %w", code, err)
	}

	for _, ic := range t.ImpliedCodes {
		if _, err := f.edges.Append(ctx, graph.Edge{
			TypeCode:  ic,
			From:      from,
			To:        to,
			CreatedAt: cfg.createdAt,
		}); err != nil {
			return nil, fmt.Errorf("appending implied %s edge: %w", ic, err)
		}
	}

	f.dispatch(ctx, t, from, to, "created")
	return stored, nil
}

// Remove deletes every edge of the code between the pair and returns the
// count. Removing a relationship that does not exist is a no-op success.
func (f *Factory) Remove(ctx context.Context, code string, from, to graph.NodeRef) (int, error) {
	t, ok := f.reg.ByCode(code)
	if !ok {
		return 0, fmt.Errorf("edge type %q: %w", code, ErrUnknownCode)
	}

	count, err := f.edges.Delete(ctx, []string{code}, from, to)
	if err != nil {
		return 0, fmt.Errorf("removing %s edges: %w", code, err)
	}
	if count > 0 {
		f.dispatch(ctx, t, from, to, "removed")
	}
	return count, nil
}

// dispatch hands a notification to the dispatcher. Delivery is
// best-effort and never fails the edge write that triggered it.
func (f *Factory) dispatch(ctx context.Context, t graph.EdgeType, from, to graph.NodeRef, event string) {
	if f.dispatcher == nil || f.recipients == nil || len(t.NotifyTargets) == 0 {
		return
	}
	recipients := f.recipients.Resolve(ctx, t.NotifyTargets, from, to)
	if len(recipients) == 0 {
		return
	}

	m := notify.NewMessage(from, recipients,
		fmt.Sprintf("relationship %s %s", t.Code, event), "", "relationship/"+event)
	m.Extra = map[string]string{
		"code": t.Code,
		"from": from.String(),
		"to":   to.String(),
	}
	_ = f.dispatcher.Notify(ctx, m)
}
