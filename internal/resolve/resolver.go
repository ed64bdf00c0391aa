// Package resolve implements the permission resolution engine for Lattice.
//
// A single stateless Resolver answers "may this actor perform this action
// against this target?" by combining, in order: admin bypass, hierarchy
// expansion of the requested action codes, the caller's role/permission
// check, the required-previous edge rule, an implied-edge fallback over
// the pair's history, and finally any registered domain hooks. A refusal
// is a boolean false, never an error.
package resolve

import (
	"context"

	"github.com/latticehq/lattice/internal/graph"
	"github.com/latticehq/lattice/internal/registry"
	"github.com/latticehq/lattice/internal/store"
)

// Authorizer is the caller-supplied role/permission collaborator. The
// engine treats permission references as opaque; any satisfied reference
// is enough ("any wins").
type Authorizer interface {
	SatisfiesAny(ctx context.Context, actor graph.NodeRef, permissionRefs []string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, actor graph.NodeRef, permissionRefs []string) (bool, error)

// SatisfiesAny implements Authorizer.
func (f AuthorizerFunc) SatisfiesAny(ctx context.Context, actor graph.NodeRef, permissionRefs []string) (bool, error) {
	return f(ctx, actor, permissionRefs)
}

// DomainHook is a per-target-kind domain rule (e.g. "member must have a
// confirmed email"). All hooks registered for a kind must pass for a
// permission to finally succeed.
type DomainHook func(ctx context.Context, actor, target graph.NodeRef, codes []string) (bool, error)

// ActorSource supplies the current actor when a check omits one,
// mirroring "logged in member or guest".
type ActorSource interface {
	CurrentActor(ctx context.Context) graph.NodeRef
}

// CheckRequest carries the inputs of a permission check.
type CheckRequest struct {
	// Codes are the requested action codes. Root codes match every child
	// code registered under them.
	Codes []string

	// Actor performs the action. Zero value means "use the ActorSource".
	Actor graph.NodeRef

	// Target receives the action.
	Target graph.NodeRef

	// ActorRoles are the actor's role names, consulted for admin bypass.
	ActorRoles []string

	// HasInstances is true when Actor and Target are concrete records
	// rather than bare kinds; only then are the required-previous and
	// implied-edge rules evaluated.
	HasInstances bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAdminGroups sets the global admin group list; membership in any of
// them short-circuits every check.
func WithAdminGroups(groups ...string) Option {
	return func(r *Resolver) { r.adminGroups = groups }
}

// WithActorSource sets the fallback actor supplier for checks that omit
// an actor.
func WithActorSource(src ActorSource) Option {
	return func(r *Resolver) { r.actors = src }
}

// WithCreationCode overrides the code CreatorOf checks for.
func WithCreationCode(code string) Option {
	return func(r *Resolver) { r.creationCode = code }
}

// Resolver is the stateless permission resolution service.
//
// Aside from RegisterHook, which must happen during setup, a Resolver is
// safe for unsynchronized concurrent use.
type Resolver struct {
	reg          *registry.Registry
	edges        store.Store
	authz        Authorizer
	actors       ActorSource
	hooks        map[string][]DomainHook
	adminGroups  []string
	creationCode string
}

// New creates a Resolver over the given catalogue, edge store, and
// authorization collaborator. A nil authorizer skips the role check.
func New(reg *registry.Registry, edges store.Store, authz Authorizer, opts ...Option) *Resolver {
	r := &Resolver{
		reg:          reg,
		edges:        edges,
		authz:        authz,
		hooks:        make(map[string][]DomainHook),
		creationCode: graph.CodeCreate,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterHook appends a domain hook for the target kind. Hooks run in
// registration order and all must pass. Not safe to call concurrently
// with Check; register during setup.
func (r *Resolver) RegisterHook(targetKind string, h DomainHook) {
	r.hooks[targetKind] = append(r.hooks[targetKind], h)
}

// Check decides whether the actor may perform the requested action codes
// against the target. "Not authorized" is false with a nil error; errors
// are reserved for collaborator and storage failures.
func (r *Resolver) Check(ctx context.Context, req CheckRequest) (bool, error) {
	actor := req.Actor
	if actor.IsZero() && r.actors != nil {
		actor = r.actors.CurrentActor(ctx)
	}

	// Step 1: admin bypass, any matching group wins.
	if rolesIntersect(req.ActorRoles, r.adminGroups) {
		return true, nil
	}
	for _, t := range r.reg.ForKinds(actor.Kind, req.Target.Kind, []string{graph.CodeAdmin}) {
		if rolesIntersect(req.ActorRoles, t.AdminBypassGroups) {
			return true, nil
		}
	}

	// Step 2: expand the requested codes against the kind pair. A root
	// code matches every child registered under it; a child code matches
	// only itself.
	candidates := r.reg.ForKinds(actor.Kind, req.Target.Kind, req.Codes)
	if len(candidates) == 0 {
		return false, nil
	}

	// Step 3: role/permission check over the candidates' refs, any wins.
	var refs []string
	for _, t := range candidates {
		if t.PermissionRef != "" {
			refs = append(refs, t.PermissionRef)
		}
	}
	if len(refs) > 0 && r.authz != nil {
		ok, err := r.authz.SatisfiesAny(ctx, actor, refs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	// Steps 4 and 5: required-previous rules, evaluated only against
	// concrete instances.
	if req.HasInstances {
		ok, err := r.requirementsMet(ctx, candidates, actor, req.Target)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	// Step 6: domain hooks for the target kind, all must pass.
	for _, h := range r.hooks[req.Target.Kind] {
		ok, err := h(ctx, actor, req.Target, req.Codes)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// CreatorOf reports whether actor holds a creation edge to target. Call
// sites that grant creators implicit authority compose this with Check
// themselves; the bypass is deliberately not folded into Check.
func (r *Resolver) CreatorOf(ctx context.Context, actor, target graph.NodeRef) (bool, error) {
	return r.edges.Exists(ctx, []string{r.creationCode}, &actor, &target)
}

// requirementsMet applies the required-previous rule: OR across the
// candidate types (one satisfied type is enough), AND within a single
// type's chain. Candidates whose requirement is unmet fall through to the
// implied-edge search before the check fails.
func (r *Resolver) requirementsMet(ctx context.Context, candidates []graph.EdgeType, actor, target graph.NodeRef) (bool, error) {
	var unmet [][]string
	for _, t := range candidates {
		if t.RequiredPreviousCode == "" {
			return true, nil
		}
		reqCodes := r.requiredCodes(t.RequiredPreviousCode, actor.Kind, target.Kind)
		ok, err := r.edges.Exists(ctx, reqCodes, &actor, &target)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		unmet = append(unmet, reqCodes)
	}

	// Implied-edge fallback: an edge type in the pair's history that
	// implies the required code satisfies the requirement as if the
	// implied edge had been created directly.
	implied, err := r.impliedBetween(ctx, actor, target)
	if err != nil {
		return false, err
	}
	for _, reqCodes := range unmet {
		for _, c := range reqCodes {
			if implied[c] {
				return true, nil
			}
		}
	}
	return false, nil
}

// requiredCodes resolves a required-previous code for the kind pair,
// following one level of hierarchy when the code is a parent with no
// direct kind-pair match.
func (r *Resolver) requiredCodes(code, fromKind, toKind string) []string {
	if t, ok := r.reg.ByCode(code); ok && t.Matches(fromKind, toKind) {
		return []string{code}
	}
	if children := r.reg.Children(code); len(children) > 0 {
		return append([]string{code}, children...)
	}
	return []string{code}
}

// impliedBetween collects every code implied by the edge history between
// the two nodes, in either direction.
func (r *Resolver) impliedBetween(ctx context.Context, a, b graph.NodeRef) (map[string]bool, error) {
	out := make(map[string]bool)
	scan := func(from, to graph.NodeRef) error {
		edges, err := r.edges.AllFrom(ctx, from, nil)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if e.To != to {
				continue
			}
			t, ok := r.reg.ByCode(e.TypeCode)
			if !ok {
				continue
			}
			for _, ic := range t.ImpliedCodes {
				out[ic] = true
			}
		}
		return nil
	}
	if err := scan(a, b); err != nil {
		return nil, err
	}
	if err := scan(b, a); err != nil {
		return nil, err
	}
	return out, nil
}

func rolesIntersect(roles, groups []string) bool {
	for _, role := range roles {
		for _, g := range groups {
			if role == g {
				return true
			}
		}
	}
	return false
}
