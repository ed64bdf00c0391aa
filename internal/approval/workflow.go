// Package approval implements the approval workflow for Lattice.
//
// Approval is a thin state machine over edge history: a target's state is
// always derived from the latest approval edge (or from automatic-mode
// configuration), never stored, so the derived state can never drift from
// the history that produced it.
package approval

import (
	"context"
	"fmt"

	"github.com/latticehq/lattice/internal/graph"
	"github.com/latticehq/lattice/internal/notify"
	"github.com/latticehq/lattice/internal/registry"
	"github.com/latticehq/lattice/internal/relate"
	"github.com/latticehq/lattice/internal/store"
)

// Mode selects how targets of a kind become approved.
type Mode int

const (
	// Automatic treats every creation as immediately approved.
	Automatic Mode = iota

	// Manual keeps targets pending until an explicit approve or decline.
	Manual
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "automatic"
}

// ParseMode parses "automatic" or "manual".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "automatic":
		return Automatic, nil
	case "manual":
		return Manual, nil
	default:
		return Automatic, fmt.Errorf("invalid approval mode %q", s)
	}
}

// Config is the immutable approval configuration. There is no hidden
// process-wide mode toggle; callers needing a different mode for one
// evaluation pass it explicitly to StateUnderMode.
type Config struct {
	// ModeFor maps target kind to approval mode. Kinds not listed are
	// Automatic.
	ModeFor map[string]Mode

	// ApprovalCode is the edge type code of approval edges.
	ApprovalCode string

	// CreationCode is the edge type code of creation edges, used to find
	// the original creator on transitions.
	CreationCode string

	// DefaultRecipient receives transition notifications when no creator
	// can be found in the history.
	DefaultRecipient graph.NodeRef
}

func (c Config) withDefaults() Config {
	if c.ApprovalCode == "" {
		c.ApprovalCode = graph.CodeApproval
	}
	if c.CreationCode == "" {
		c.CreationCode = graph.CodeCreate
	}
	return c
}

// Warning flags a completed operation whose history looked inconsistent,
// such as an approval transition with no discoverable creator. It is a
// loggable result, not an error: the operation still completed with its
// documented fallback.
type Warning struct {
	Target graph.NodeRef
	Reason string
}

// String renders the warning for logging.
func (w *Warning) String() string {
	return fmt.Sprintf("inconsistent history for %s: %s", w.Target, w.Reason)
}

// Workflow derives approval state and drives approve/decline transitions.
type Workflow struct {
	cfg        Config
	reg        *registry.Registry
	edges      store.Store
	factory    *relate.Factory
	dispatcher notify.Dispatcher
	recipients notify.RecipientResolver
}

// New creates a Workflow. A nil dispatcher or resolver disables
// notifications.
func New(cfg Config, reg *registry.Registry, edges store.Store, factory *relate.Factory, dispatcher notify.Dispatcher, recipients notify.RecipientResolver) *Workflow {
	return &Workflow{
		cfg:        cfg.withDefaults(),
		reg:        reg,
		edges:      edges,
		factory:    factory,
		dispatcher: dispatcher,
		recipients: recipients,
	}
}

// ModeFor returns the configured mode for a target kind.
func (w *Workflow) ModeFor(kind string) Mode {
	return w.cfg.ModeFor[kind]
}

// StateOf derives the target's approval state under its configured mode.
func (w *Workflow) StateOf(ctx context.Context, target graph.NodeRef) (graph.ApprovalState, error) {
	return w.StateUnderMode(ctx, target, w.ModeFor(target.Kind))
}

// StateUnderMode derives the approval state under an explicit mode,
// allowing callers to scope a mode override to a single evaluation.
func (w *Workflow) StateUnderMode(ctx context.Context, target graph.NodeRef, mode Mode) (graph.ApprovalState, error) {
	if mode == Automatic {
		return graph.Approved, nil
	}

	latest, err := w.edges.Latest(ctx, []string{w.cfg.ApprovalCode}, nil, &target)
	if err != nil {
		return graph.Pending, err
	}
	if latest == nil {
		return graph.Pending, nil
	}
	switch latest.Variant {
	case graph.VariantApprove:
		return graph.Approved, nil
	case graph.VariantDecline:
		return graph.Declined, nil
	default:
		return graph.Pending, nil
	}
}

// Approve records an approval edge and notifies the creator. The returned
// Warning is non-nil when no creator could be found and the configured
// default recipient was notified instead.
func (w *Workflow) Approve(ctx context.Context, approver, target graph.NodeRef) (*Warning, error) {
	return w.transition(ctx, approver, target, graph.VariantApprove)
}

// Decline records a decline edge and notifies the creator, with the same
// Warning contract as Approve.
func (w *Workflow) Decline(ctx context.Context, approver, target graph.NodeRef) (*Warning, error) {
	return w.transition(ctx, approver, target, graph.VariantDecline)
}

func (w *Workflow) transition(ctx context.Context, approver, target graph.NodeRef, variant string) (*Warning, error) {
	if _, err := w.factory.Make(ctx, w.cfg.ApprovalCode, approver, target, relate.WithVariant(variant)); err != nil {
		return nil, err
	}

	creator, err := w.creatorOf(ctx, target)
	if err != nil {
		return nil, err
	}

	var warning *Warning
	recipient := creator
	if creator.IsZero() {
		warning = &Warning{
			Target: target,
			Reason: fmt.Sprintf("no %s edge found for %s transition, notifying default recipient", w.cfg.CreationCode, variant),
		}
		recipient = w.cfg.DefaultRecipient
	}

	if w.dispatcher != nil && !recipient.IsZero() {
		m := notify.NewMessage(approver, []graph.NodeRef{recipient},
			fmt.Sprintf("%s was %sd", target, variant), "", "approval/"+variant)
		m.Extra = map[string]string{"target": target.String(), "variant": variant}
		_ = w.dispatcher.Notify(ctx, m)
	}

	return warning, nil
}

// creatorOf returns the From of the earliest creation edge to target, or
// the zero NodeRef if the history holds none.
func (w *Workflow) creatorOf(ctx context.Context, target graph.NodeRef) (graph.NodeRef, error) {
	edges, err := w.edges.AllTo(ctx, target, []string{w.cfg.CreationCode})
	if err != nil {
		return graph.NodeRef{}, err
	}
	if len(edges) == 0 {
		return graph.NodeRef{}, nil
	}
	return edges[0].From, nil
}

// NotifyPending informs the approvers of a newly created manual-mode
// target. Approvers are resolved from the edge types that carry notify
// targets for the approval code against the target's kind. Automatic-mode
// targets need no approval and produce no notification.
func (w *Workflow) NotifyPending(ctx context.Context, creator, target graph.NodeRef) error {
	if w.ModeFor(target.Kind) != Manual || w.dispatcher == nil || w.recipients == nil {
		return nil
	}

	seen := make(map[graph.NodeRef]bool)
	var approvers []graph.NodeRef
	for _, t := range w.reg.All() {
		if t.Code != w.cfg.ApprovalCode && t.ParentCode != w.cfg.ApprovalCode {
			continue
		}
		if t.ToKind != "" && t.ToKind != target.Kind {
			continue
		}
		if len(t.NotifyTargets) == 0 {
			continue
		}
		for _, r := range w.recipients.Resolve(ctx, t.NotifyTargets, creator, target) {
			if !seen[r] {
				seen[r] = true
				approvers = append(approvers, r)
			}
		}
	}
	if len(approvers) == 0 {
		return nil
	}

	m := notify.NewMessage(creator, approvers,
		fmt.Sprintf("%s is pending approval", target), "", "approval/pending")
	m.Extra = map[string]string{"target": target.String()}
	return w.dispatcher.Notify(ctx, m)
}
