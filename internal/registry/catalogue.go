package registry

import "github.com/latticehq/lattice/internal/graph"

// defaultCatalogue is the built-in action catalogue covering the standard
// member/organisation vocabulary. Deployments normally ship their own
// YAML catalogue; this one backs the CLI and tests.
var defaultCatalogue = []graph.EdgeType{
	{
		Code:          graph.CodeCreate,
		FromKind:      "member",
		PermissionRef: "PERM_SOCIAL_CREATE",
		Singular:      true,
	},
	{
		Code:                 graph.CodeEdit,
		FromKind:             "member",
		RequiredPreviousCode: graph.CodeCreate,
		PermissionRef:        "PERM_SOCIAL_EDIT",
	},
	{
		Code:                 graph.CodeDelete,
		FromKind:             "member",
		RequiredPreviousCode: graph.CodeCreate,
		PermissionRef:        "PERM_SOCIAL_DELETE",
	},
	{
		Code:          graph.CodeView,
		PermissionRef: "PERM_SOCIAL_VIEW",
	},
	{
		Code:          graph.CodeLike,
		FromKind:      "member",
		PermissionRef: "PERM_SOCIAL_LIKE",
		Singular:      true,
	},
	{
		Code:          graph.CodeFollow,
		FromKind:      "member",
		PermissionRef: "PERM_SOCIAL_FOLLOW",
		Singular:      true,
	},
	{
		Code:          graph.CodeJoin,
		FromKind:      "member",
		PermissionRef: "PERM_SOCIAL_JOIN",
		Singular:      true,
	},
	{
		Code:          graph.CodePost,
		FromKind:      "member",
		PermissionRef: "PERM_SOCIAL_POST",
	},
	{
		Code:          graph.CodeApproval,
		FromKind:      "member",
		PermissionRef: "PERM_SOCIAL_APPROVE",
		NotifyTargets: []string{"approvers"},
	},
	{
		Code:          graph.CodeRegister,
		FromKind:      "member",
		ToKind:        "organisation",
		ImpliedCodes:  []string{graph.CodeCreate},
		PermissionRef: "PERM_SOCIAL_REGISTER",
		Singular:      true,
	},
	{
		Code:              graph.CodeAdmin,
		PermissionRef:     "PERM_SOCIAL_ADMIN",
		AdminBypassGroups: []string{"administrators"},
	},

	// Member-to-organisation children of the root categories.
	{
		Code:              graph.CodeMemberAdminOrg,
		FromKind:          "member",
		ToKind:            "organisation",
		ParentCode:        graph.CodeAdmin,
		PermissionRef:     "PERM_ORG_ADMIN",
		AdminBypassGroups: []string{"administrators"},
	},
	{
		Code:                 graph.CodeMemberRunOrg,
		FromKind:             "member",
		ToKind:               "organisation",
		ParentCode:           graph.CodeAdmin,
		RequiredPreviousCode: graph.CodeCreate,
		PermissionRef:        "PERM_ORG_RUN",
	},
	{
		Code:          graph.CodeMemberLikeOrg,
		FromKind:      "member",
		ToKind:        "organisation",
		ParentCode:    graph.CodeLike,
		PermissionRef: "PERM_SOCIAL_LIKE",
		Singular:      true,
	},
	{
		Code:          graph.CodeMemberFollowOrg,
		FromKind:      "member",
		ToKind:        "organisation",
		ParentCode:    graph.CodeFollow,
		PermissionRef: "PERM_SOCIAL_FOLLOW",
		NotifyTargets: []string{"to"},
		Singular:      true,
	},
	{
		Code:          graph.CodeMemberJoinOrg,
		FromKind:      "member",
		ToKind:        "organisation",
		ParentCode:    graph.CodeJoin,
		PermissionRef: "PERM_SOCIAL_JOIN",
		NotifyTargets: []string{"to"},
		Singular:      true,
	},
}

// Default returns the built-in catalogue as a validated Registry.
func Default() *Registry {
	reg, err := New(defaultCatalogue)
	if err != nil {
		// The built-in catalogue is covered by tests; reaching this is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return reg
}
