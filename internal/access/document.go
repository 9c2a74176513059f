package access

import (
	"net/url"
	"strings"
)

// Document denial reasons.
const (
	DenyAuthRequired        = "AUTH_REQUIRED"
	DenyInnerCircleRequired = "INNER_CIRCLE_REQUIRED"
	DenyInsufficientTier    = "INSUFFICIENT_TIER"
	DenyPrivateOnly         = "PRIVATE_ONLY"
)

// TierAll marks a document as unrestricted.
const TierAll = "all"

// Document is a piece of gated content as described by the content layer.
type Document struct {
	Slug                string   `json:"slug"`
	Tiers               []string `json:"tiers"`
	RequiresInnerCircle bool     `json:"requires_inner_circle"`
	Internal            bool     `json:"internal"`
}

type DocumentDecision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RequiredTier Tier   `json:"required_tier,omitempty"`
	CurrentTier  Tier   `json:"current_tier"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

// RequiredTier is the most restrictive tier named by the document. Unknown tier
// names are skipped, so a document tagged only with unknown names is public.
// Use Internal or RequiresInnerCircle to gate such a document.
func (d Document) RequiredTier() Tier {
	if d.Internal {
		return TierPrivate
	}
	tiers := make([]Tier, 0, len(d.Tiers))
	for _, raw := range d.Tiers {
		if strings.EqualFold(strings.TrimSpace(raw), TierAll) {
			continue
		}
		tier, err := ParseTier(raw)
		if err != nil {
			continue
		}
		tiers = append(tiers, tier)
	}
	return Highest(tiers...)
}

func (d Document) gated() bool {
	return d.RequiresInnerCircle || d.RequiredTier() != TierPublic
}

// CheckDocumentAccess evaluates a resolved decision against a document. returnTo
// is stamped on redirect URLs when non-empty.
func CheckDocumentAccess(decision Decision, doc Document, returnTo string) DocumentDecision {
	current := decision.Tier
	if !current.Valid() {
		current = TierPublic
	}
	required := doc.RequiredTier()

	deny := func(reason string, requiredTier Tier) DocumentDecision {
		return DocumentDecision{
			Allowed:      false,
			Reason:       reason,
			RequiredTier: requiredTier,
			CurrentTier:  current,
			RedirectURL:  redirectURL(reason, requiredTier, returnTo),
		}
	}

	if doc.gated() && !decision.Capabilities.CanViewInnerCircle {
		if decision.Source == SourceAnonymous {
			return deny(DenyAuthRequired, TierInnerCircle)
		}
		return deny(DenyInnerCircleRequired, TierInnerCircle)
	}

	if required == TierPrivate {
		if !decision.Capabilities.CanViewPrivate {
			return deny(DenyPrivateOnly, TierPrivate)
		}
		return DocumentDecision{Allowed: true, CurrentTier: current}
	}

	if !current.AtLeast(required) {
		return deny(DenyInsufficientTier, required)
	}
	return DocumentDecision{Allowed: true, CurrentTier: current}
}

// FilterByAccess keeps the documents the decision may view, in input order.
func FilterByAccess(decision Decision, docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if CheckDocumentAccess(decision, doc, "").Allowed {
			out = append(out, doc)
		}
	}
	return out
}

func redirectURL(reason string, required Tier, returnTo string) string {
	var base string
	query := url.Values{}
	switch reason {
	case DenyAuthRequired:
		base = "/login"
	case DenyInnerCircleRequired:
		base = "/inner-circle"
	case DenyInsufficientTier:
		base = "/inner-circle/upgrade"
		if required != "" {
			query.Set("required", string(required))
		}
	case DenyPrivateOnly:
		base = "/access-denied"
	default:
		base = "/"
	}
	if returnTo = strings.TrimSpace(returnTo); returnTo != "" {
		query.Set("returnTo", returnTo)
	}
	if len(query) == 0 {
		return base
	}
	return base + "?" + query.Encode()
}
