package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityTableIsTotal(t *testing.T) {
	for _, tier := range Tiers() {
		caps, ok := CapabilitiesFor(tier)
		require.Truef(t, ok, "tier %s has no capability set", tier)

		decision := ResolveAccess(&Subject{MemberID: "1", Tier: tier})
		assert.Equal(t, tier, decision.Tier)
		assert.Equal(t, caps, decision.Capabilities)
	}
}

func TestResolveAccessAnonymousIsPublic(t *testing.T) {
	decision := ResolveAccess(nil)

	assert.Equal(t, TierPublic, decision.Tier)
	assert.False(t, decision.HasAccess)
	assert.False(t, decision.Capabilities.CanViewInnerCircle)
	assert.Equal(t, SourceAnonymous, decision.Source)
	assert.Equal(t, ReasonAnonymous, decision.Reason)
}

func TestResolveAccessIsDeterministic(t *testing.T) {
	subject := &Subject{MemberID: "42", Tier: TierInnerCirclePlus}
	first := ResolveAccess(subject)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveAccess(subject))
	}
	assert.Equal(t, &Subject{MemberID: "42", Tier: TierInnerCirclePlus}, subject)
}

func TestResolveAccessPriority(t *testing.T) {
	cases := []struct {
		name     string
		subject  Subject
		tier     Tier
		source   string
		internal bool
	}{
		{
			name:    "membership only",
			subject: Subject{Tier: TierInnerCircle},
			tier:    TierInnerCircle,
			source:  SourceMembership,
		},
		{
			name:    "override above membership wins",
			subject: Subject{Tier: TierInnerCircle, Override: TierInnerCircleElite},
			tier:    TierInnerCircleElite,
			source:  SourceOverride,
		},
		{
			name:    "membership above override wins",
			subject: Subject{Tier: TierInnerCircleElite, Override: TierInnerCircle},
			tier:    TierInnerCircleElite,
			source:  SourceMembership,
		},
		{
			name:    "equal rank keeps the higher priority rule",
			subject: Subject{Tier: TierInnerCirclePlus, Override: TierInnerCirclePlus},
			tier:    TierInnerCirclePlus,
			source:  SourceOverride,
		},
		{
			name:     "staff beats everything",
			subject:  Subject{Tier: TierInnerCircleElite, Override: TierInnerCircleElite, Staff: true},
			tier:     TierPrivate,
			source:   SourceStaff,
			internal: true,
		},
		{
			name:    "unknown member tier falls back to public",
			subject: Subject{Tier: Tier("gold")},
			tier:    TierPublic,
			source:  SourceMembership,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subject := tc.subject
			decision := ResolveAccess(&subject)
			assert.Equal(t, tc.tier, decision.Tier)
			assert.Equal(t, tc.source, decision.Source)
			assert.Equal(t, tc.internal, decision.Capabilities.IsInternalStaff)
		})
	}
}

func TestResolveAccessPublicMemberHasNoAccess(t *testing.T) {
	decision := ResolveAccess(&Subject{MemberID: "7", Tier: TierPublic})

	assert.False(t, decision.HasAccess)
	assert.Equal(t, ReasonNoAccess, decision.Reason)
	assert.Equal(t, "7", decision.MemberID)
}

func TestParseTierAliases(t *testing.T) {
	cases := map[string]Tier{
		"free":               TierPublic,
		"Basic":              TierInnerCircle,
		"inner_circle":       TierInnerCircle,
		"premium":            TierInnerCirclePlus,
		"inner-circle-plus":  TierInnerCirclePlus,
		"enterprise":         TierInnerCircleElite,
		" elite ":            TierInnerCircleElite,
		"restricted":         TierPrivate,
		"internal":           TierPrivate,
		"inner-circle-elite": TierInnerCircleElite,
	}
	for raw, want := range cases {
		got, err := ParseTier(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseTier("gold")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestHighestTier(t *testing.T) {
	assert.Equal(t, TierPublic, Highest())
	assert.Equal(t, TierInnerCircleElite, Highest(TierInnerCircle, TierInnerCircleElite, TierInnerCirclePlus))
	assert.Equal(t, TierPrivate, Highest(TierInnerCircleElite, TierPrivate))
	assert.Equal(t, TierInnerCircle, Highest(Tier("bogus"), TierInnerCircle))
}

func TestHashEmailNormalizes(t *testing.T) {
	assert.Equal(t, HashEmail("reader@example.com"), HashEmail("  Reader@Example.COM "))
	assert.Len(t, HashEmail("reader@example.com"), 64)
}
