package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeRef(t *testing.T) {
	t.Parallel()

	t.Run("String", func(t *testing.T) {
		n := NodeRef{Kind: "member", ID: 42}
		assert.Equal(t, "member:42", n.String())
	})

	t.Run("IsZero", func(t *testing.T) {
		assert.True(t, NodeRef{}.IsZero())
		assert.False(t, NodeRef{Kind: "member", ID: 1}.IsZero())
	})

	t.Run("ParseRoundTrip", func(t *testing.T) {
		n, err := ParseNodeRef("organisation:7")
		require.NoError(t, err)
		assert.Equal(t, NodeRef{Kind: "organisation", ID: 7}, n)
		assert.Equal(t, "organisation:7", n.String())
	})

	t.Run("ParseInvalid", func(t *testing.T) {
		for _, s := range []string{"", "member", ":1", "member:", "member:abc"} {
			_, err := ParseNodeRef(s)
			assert.Error(t, err, "input %q", s)
		}
	})
}

func TestEdgeTypeMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		et       EdgeType
		from, to string
		want     bool
	}{
		{"ExactMatch", EdgeType{FromKind: "member", ToKind: "organisation"}, "member", "organisation", true},
		{"FromMismatch", EdgeType{FromKind: "member", ToKind: "organisation"}, "organisation", "organisation", false},
		{"ToMismatch", EdgeType{FromKind: "member", ToKind: "organisation"}, "member", "post", false},
		{"WildcardTo", EdgeType{FromKind: "member"}, "member", "anything", true},
		{"WildcardBoth", EdgeType{}, "a", "b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.et.Matches(tt.from, tt.to))
		})
	}
}

func TestEdgeTypeInCodeSet(t *testing.T) {
	t.Parallel()

	child := EdgeType{Code: CodeMemberLikeOrg, ParentCode: CodeLike}

	t.Run("OwnCode", func(t *testing.T) {
		assert.True(t, child.InCodeSet([]string{CodeMemberLikeOrg}))
	})

	t.Run("ParentCode", func(t *testing.T) {
		assert.True(t, child.InCodeSet([]string{CodeLike}))
	})

	t.Run("NoMatch", func(t *testing.T) {
		assert.False(t, child.InCodeSet([]string{CodeFollow}))
	})
}

func TestApprovalStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "approved", Approved.String())
	assert.Equal(t, "declined", Declined.String())
}
