package access

// Subject is an already verified identity. A nil Subject is an anonymous request.
type Subject struct {
	MemberID string
	Tier     Tier
	// Override is an administrative tier grant; empty means none.
	Override Tier
	Staff    bool
}

// Decision sources, in priority order.
const (
	SourceStaff      = "staff"
	SourceOverride   = "override"
	SourceMembership = "membership"
	SourceAnonymous  = "anonymous"
)

const (
	ReasonAnonymous   = "anonymous"
	ReasonNoAccess    = "no_entitlement"
	ReasonUnavailable = "unavailable"
)

// Decision is the only artifact handed to the content layer.
type Decision struct {
	Tier         Tier         `json:"tier"`
	HasAccess    bool         `json:"has_access"`
	MemberID     string       `json:"member_id,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Source       string       `json:"source"`
	Capabilities Capabilities `json:"capabilities"`
}

type rule struct {
	source  string
	applies func(*Subject) bool
	tier    func(*Subject) Tier
}

// rules are evaluated in this order; on equal rank the earlier rule wins.
var rules = []rule{
	{
		source:  SourceStaff,
		applies: func(s *Subject) bool { return s.Staff },
		tier:    func(*Subject) Tier { return TierPrivate },
	},
	{
		source:  SourceOverride,
		applies: func(s *Subject) bool { return s.Override.Valid() },
		tier:    func(s *Subject) Tier { return s.Override },
	},
	{
		source:  SourceMembership,
		applies: func(s *Subject) bool { return s.Tier.Valid() },
		tier:    func(s *Subject) Tier { return s.Tier },
	},
}

// ResolveAccess maps a subject to its access decision. It is pure and total.
func ResolveAccess(subject *Subject) Decision {
	if subject == nil {
		return Anonymous(ReasonAnonymous)
	}

	tier := TierPublic
	source := SourceMembership
	matched := false
	for _, r := range rules {
		if !r.applies(subject) {
			continue
		}
		candidate := r.tier(subject)
		if !matched || candidate.Rank() > tier.Rank() {
			tier = candidate
			source = r.source
			matched = true
		}
	}

	caps, ok := CapabilitiesFor(tier)
	if !ok {
		tier = TierPublic
		caps, _ = CapabilitiesFor(TierPublic)
	}

	decision := Decision{
		Tier:         tier,
		HasAccess:    caps.CanViewInnerCircle,
		MemberID:     subject.MemberID,
		Source:       source,
		Capabilities: caps,
	}
	if !decision.HasAccess {
		decision.Reason = ReasonNoAccess
	}
	return decision
}

// Anonymous returns the public decision with reason, used for unauthenticated
// requests and for every failed or unavailable verification.
func Anonymous(reason string) Decision {
	caps, _ := CapabilitiesFor(TierPublic)
	return Decision{
		Tier:         TierPublic,
		HasAccess:    false,
		Reason:       reason,
		Source:       SourceAnonymous,
		Capabilities: caps,
	}
}
