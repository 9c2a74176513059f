package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDocumentAccess(t *testing.T) {
	anonymous := ResolveAccess(nil)
	publicMember := ResolveAccess(&Subject{MemberID: "1", Tier: TierPublic})
	member := ResolveAccess(&Subject{MemberID: "2", Tier: TierInnerCircle})
	elite := ResolveAccess(&Subject{MemberID: "3", Tier: TierInnerCircleElite})
	staff := ResolveAccess(&Subject{MemberID: "4", Tier: TierPublic, Staff: true})

	publicDoc := Document{Slug: "essay", Tiers: []string{"public"}}
	allDoc := Document{Slug: "catalog", Tiers: []string{"all"}}
	memberDoc := Document{Slug: "toolkit", Tiers: []string{"inner-circle"}}
	mixedDoc := Document{Slug: "pack", Tiers: []string{"basic", "enterprise", "premium"}}
	privateDoc := Document{Slug: "board-notes", Tiers: []string{"restricted"}}
	internalDoc := Document{Slug: "draft", Internal: true}

	cases := []struct {
		name     string
		decision Decision
		doc      Document
		allowed  bool
		reason   string
		required Tier
	}{
		{"public doc for anonymous", anonymous, publicDoc, true, "", ""},
		{"all doc for anonymous", anonymous, allDoc, true, "", ""},
		{"member doc for anonymous", anonymous, memberDoc, false, DenyAuthRequired, TierInnerCircle},
		{"member doc for public member", publicMember, memberDoc, false, DenyInnerCircleRequired, TierInnerCircle},
		{"member doc for member", member, memberDoc, true, "", ""},
		{"mixed doc requires highest tier", member, mixedDoc, false, DenyInsufficientTier, TierInnerCircleElite},
		{"mixed doc for elite", elite, mixedDoc, true, "", ""},
		{"private doc for elite", elite, privateDoc, false, DenyPrivateOnly, TierPrivate},
		{"private doc for staff", staff, privateDoc, true, "", ""},
		{"internal doc for elite", elite, internalDoc, false, DenyPrivateOnly, TierPrivate},
		{"staff sees paid content", staff, mixedDoc, true, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CheckDocumentAccess(tc.decision, tc.doc, "")
			assert.Equal(t, tc.allowed, got.Allowed)
			assert.Equal(t, tc.reason, got.Reason)
			assert.Equal(t, tc.required, got.RequiredTier)
			if !tc.allowed {
				assert.NotEmpty(t, got.RedirectURL)
			}
		})
	}
}

func TestRequiredTierSkipsUnknownNames(t *testing.T) {
	assert.Equal(t, TierPublic, Document{Tiers: []string{"gold"}}.RequiredTier())
	assert.Equal(t, TierInnerCircle, Document{Tiers: []string{"gold", "inner-circle"}}.RequiredTier())

	anonymous := ResolveAccess(nil)
	assert.True(t, CheckDocumentAccess(anonymous, Document{Slug: "x", Tiers: []string{"gold"}}, "").Allowed)
	assert.False(t, CheckDocumentAccess(anonymous, Document{Slug: "x", Tiers: []string{"gold"}, RequiresInnerCircle: true}, "").Allowed)
}

func TestCheckDocumentAccessRedirects(t *testing.T) {
	member := ResolveAccess(&Subject{MemberID: "2", Tier: TierInnerCircle})
	got := CheckDocumentAccess(member, Document{Slug: "pack", Tiers: []string{"elite"}}, "/vault/pack")

	assert.Equal(t, "/inner-circle/upgrade?required=inner-circle-elite&returnTo=%2Fvault%2Fpack", got.RedirectURL)

	got = CheckDocumentAccess(ResolveAccess(nil), Document{Slug: "pack", RequiresInnerCircle: true}, "")
	assert.Equal(t, "/login", got.RedirectURL)
}

func TestFilterByAccess(t *testing.T) {
	docs := []Document{
		{Slug: "a", Tiers: []string{"public"}},
		{Slug: "b", Tiers: []string{"inner-circle"}},
		{Slug: "c", Tiers: []string{"inner-circle-plus"}},
		{Slug: "d", Internal: true},
	}

	visible := FilterByAccess(ResolveAccess(&Subject{Tier: TierInnerCircle}), docs)
	slugs := make([]string, 0, len(visible))
	for _, doc := range visible {
		slugs = append(slugs, doc.Slug)
	}
	assert.Equal(t, []string{"a", "b"}, slugs)

	assert.Len(t, FilterByAccess(ResolveAccess(&Subject{Staff: true}), docs), 4)
}
