package access

// Capabilities are the boolean grants handed to the content layer.
type Capabilities struct {
	CanViewInnerCircle bool `json:"can_view_inner_circle"`
	CanViewPlus        bool `json:"can_view_plus"`
	CanViewElite       bool `json:"can_view_elite"`
	CanViewPrivate     bool `json:"can_view_private"`
	IsInternalStaff    bool `json:"is_internal_staff"`
}

var capabilityTable = map[Tier]Capabilities{
	TierPublic: {},
	TierInnerCircle: {
		CanViewInnerCircle: true,
	},
	TierInnerCirclePlus: {
		CanViewInnerCircle: true,
		CanViewPlus:        true,
	},
	TierInnerCircleElite: {
		CanViewInnerCircle: true,
		CanViewPlus:        true,
		CanViewElite:       true,
	},
	TierPrivate: {
		CanViewInnerCircle: true,
		CanViewPlus:        true,
		CanViewElite:       true,
		CanViewPrivate:     true,
		IsInternalStaff:    true,
	},
}

// CapabilitiesFor returns the capability set of tier. The second value is false
// only for values outside the Tier enum, which callers treat as public.
func CapabilitiesFor(tier Tier) (Capabilities, bool) {
	caps, ok := capabilityTable[tier]
	return caps, ok
}
