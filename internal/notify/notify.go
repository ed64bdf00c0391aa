// Package notify defines the outbound notification boundary for Lattice.
//
// The engine only ever hands a Dispatcher fully-resolved recipients;
// template rendering and delivery live entirely outside it. Dispatch is
// best-effort: a failed or dropped notification never rolls back the edge
// write that triggered it.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/latticehq/lattice/internal/graph"
)

// Message is a single outbound notification.
type Message struct {
	// ID uniquely identifies the message for logging and deduplication.
	ID uuid.UUID

	// Sender is the node whose action produced the notification.
	Sender graph.NodeRef

	// Recipients are the resolved target nodes.
	Recipients []graph.NodeRef

	// Subject and Body carry the human-readable content.
	Subject string
	Body    string

	// TemplateRef is an opaque reference to the rendering template.
	TemplateRef string

	// Extra carries template parameters.
	Extra map[string]string
}

// NewMessage creates a Message with a fresh ID.
func NewMessage(sender graph.NodeRef, recipients []graph.NodeRef, subject, body, templateRef string) Message {
	return Message{
		ID:          uuid.New(),
		Sender:      sender,
		Recipients:  recipients,
		Subject:     subject,
		Body:        body,
		TemplateRef: templateRef,
	}
}

// Dispatcher delivers notifications. Implementations decide transport and
// rendering.
type Dispatcher interface {
	Notify(ctx context.Context, m Message) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, m Message) error

// Notify implements Dispatcher.
func (f DispatcherFunc) Notify(ctx context.Context, m Message) error {
	return f(ctx, m)
}

// RecipientResolver turns the opaque notify-target references configured
// on an edge type into concrete node references. The from/to pair of the
// triggering edge is supplied so references like "to" can resolve to an
// endpoint.
type RecipientResolver interface {
	Resolve(ctx context.Context, refs []string, from, to graph.NodeRef) []graph.NodeRef
}

// ResolverFunc adapts a function to the RecipientResolver interface.
type ResolverFunc func(ctx context.Context, refs []string, from, to graph.NodeRef) []graph.NodeRef

// Resolve implements RecipientResolver.
func (f ResolverFunc) Resolve(ctx context.Context, refs []string, from, to graph.NodeRef) []graph.NodeRef {
	return f(ctx, refs, from, to)
}

// EndpointResolver resolves the built-in "from" and "to" references to
// the triggering edge's endpoints and drops anything else. It is the
// default resolver for deployments without a directory collaborator.
type EndpointResolver struct{}

// Resolve implements RecipientResolver.
func (EndpointResolver) Resolve(ctx context.Context, refs []string, from, to graph.NodeRef) []graph.NodeRef {
	var out []graph.NodeRef
	for _, ref := range refs {
		switch ref {
		case "from":
			out = append(out, from)
		case "to":
			out = append(out, to)
		}
	}
	return out
}
