// Package graph provides the relationship graph data model for Lattice.
//
// It defines the core node reference, edge type, and edge values that
// represent domain entities (members, organisations, posts, etc.) and the
// typed, timestamped relationships between them (creates, likes, follows,
// approves, etc.).
package graph

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Code values for the standard action catalogue. Root codes name broad
// categories; M*O codes are member-to-organisation children of those roots.
const (
	CodeCreate   = "CRT"
	CodeEdit     = "EDT"
	CodeDelete   = "DEL"
	CodeView     = "VEW"
	CodeLike     = "LIK"
	CodeFollow   = "FOL"
	CodeJoin     = "JOI"
	CodePost     = "POS"
	CodeApproval = "APP"
	CodeRegister = "REG"
	CodeAdmin    = "ADM"

	CodeMemberAdminOrg  = "MAO"
	CodeMemberRunOrg    = "MRO"
	CodeMemberLikeOrg   = "MLO"
	CodeMemberFollowOrg = "MFO"
	CodeMemberJoinOrg   = "MJO"
)

// Variant values recorded on approval edges. Decline is modelled as a
// negative variant of the same code, not a separate code.
const (
	VariantApprove = "approve"
	VariantDecline = "decline"
)

// NodeRef identifies any domain entity by kind and numeric id.
//
// The engine never inspects domain fields; kind+id is the whole identity.
// The zero value means "no node".
type NodeRef struct {
	// Kind is the entity kind (e.g. "member", "organisation", "post").
	Kind string `json:"kind" yaml:"kind"`

	// ID is the entity's numeric identifier within its kind.
	ID int64 `json:"id" yaml:"id"`
}

// IsZero reports whether the reference is the absent-node zero value.
func (n NodeRef) IsZero() bool {
	return n.Kind == "" && n.ID == 0
}

// String renders the reference as "kind:id".
func (n NodeRef) String() string {
	return n.Kind + ":" + strconv.FormatInt(n.ID, 10)
}

// ParseNodeRef parses a "kind:id" string into a NodeRef.
func ParseNodeRef(s string) (NodeRef, error) {
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return NodeRef{}, fmt.Errorf("invalid node reference %q: want kind:id", s)
	}
	id, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return NodeRef{}, fmt.Errorf("invalid node reference %q: %w", s, err)
	}
	return NodeRef{Kind: s[:idx], ID: id}, nil
}

// EdgeType is the schema for a class of relationships.
//
// EdgeTypes are loaded once at startup and immutable for the process
// lifetime; Edge records reference them by Code.
type EdgeType struct {
	// Code is the short unique identifier (e.g. "CRT", "LIK", "APP").
	Code string `yaml:"code"`

	// FromKind and ToKind are the node kinds this edge type connects.
	// An empty kind is a wildcard matching any kind.
	FromKind string `yaml:"from_kind"`
	ToKind   string `yaml:"to_kind"`

	// ParentCode optionally names the broader root category this code
	// belongs to (e.g. "MLO" has parent "LIK"). The hierarchy is exactly
	// two levels deep: a parent code must not itself have a parent.
	ParentCode string `yaml:"parent"`

	// RequiredPreviousCode optionally names another edge type that must
	// already have an edge between the same two nodes before this one is
	// allowed.
	RequiredPreviousCode string `yaml:"requires"`

	// ImpliedCodes are edge types also materialized whenever an edge of
	// this type is created.
	ImpliedCodes []string `yaml:"implies"`

	// PermissionRef is an opaque reference to a role/permission check
	// resolved by the caller's authorization layer.
	PermissionRef string `yaml:"permission"`

	// AdminBypassGroups are role names that short-circuit all other checks.
	AdminBypassGroups []string `yaml:"admin_groups"`

	// NotifyTargets are opaque recipient references resolved by the
	// notification collaborator on edge creation and removal.
	NotifyTargets []string `yaml:"notify"`

	// Singular marks edge types with at most one active edge per
	// (from, to) pair, like follow or like. Append-only types (posts,
	// replies) leave this false.
	Singular bool `yaml:"singular"`
}

// Matches reports whether this edge type connects the given kind pair,
// treating an empty FromKind or ToKind as a wildcard.
func (t EdgeType) Matches(fromKind, toKind string) bool {
	if t.FromKind != "" && t.FromKind != fromKind {
		return false
	}
	if t.ToKind != "" && t.ToKind != toKind {
		return false
	}
	return true
}

// InCodeSet reports whether the type's own code or its parent code is in
// the given set. This is the hierarchy rule: a check against a root code
// matches every child of that root.
func (t EdgeType) InCodeSet(codes []string) bool {
	for _, c := range codes {
		if t.Code == c || (t.ParentCode != "" && t.ParentCode == c) {
			return true
		}
	}
	return false
}

// Edge is an instantiated, immutable historical fact: a specific action
// occurred between two specific entities at a point in time.
type Edge struct {
	// ID is assigned by the store on append; creation order is the
	// ordering contract for "latest"/"earliest" queries.
	ID int64 `json:"id"`

	// TypeCode is the EdgeType this edge realizes.
	TypeCode string `json:"type_code"`

	// From and To are the endpoints.
	From NodeRef `json:"from"`
	To   NodeRef `json:"to"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// Variant optionally records which concrete action produced the edge
	// (e.g. "approve" vs "decline" for an APP edge).
	Variant string `json:"variant,omitempty"`
}

// ApprovalState is the derived approval status of a target. It is always
// recomputed from edge history, never stored.
type ApprovalState int

const (
	Pending ApprovalState = iota
	Approved
	Declined
)

// String returns the lowercase state name.
func (s ApprovalState) String() string {
	switch s {
	case Approved:
		return "approved"
	case Declined:
		return "declined"
	default:
		return "pending"
	}
}
