package access

import (
	"errors"
	"strings"
)

// Tier is a named content access level.
type Tier string

const (
	TierPublic           Tier = "public"
	TierInnerCircle      Tier = "inner-circle"
	TierInnerCirclePlus  Tier = "inner-circle-plus"
	TierInnerCircleElite Tier = "inner-circle-elite"
	TierPrivate          Tier = "private"
)

var ErrInvalidTier = errors.New("invalid_tier")

// Tiers lists every tier in ascending privilege order.
func Tiers() []Tier {
	return []Tier{
		TierPublic,
		TierInnerCircle,
		TierInnerCirclePlus,
		TierInnerCircleElite,
		TierPrivate,
	}
}

var tierRank = map[Tier]int{
	TierPublic:           0,
	TierInnerCircle:      1,
	TierInnerCirclePlus:  2,
	TierInnerCircleElite: 3,
	// private is a separate class, not the next rung of the paid ladder
	TierPrivate: 99,
}

var tierAliases = map[string]Tier{
	"public":             TierPublic,
	"free":               TierPublic,
	"inner-circle":       TierInnerCircle,
	"member":             TierInnerCircle,
	"basic":              TierInnerCircle,
	"inner-circle-plus":  TierInnerCirclePlus,
	"plus":               TierInnerCirclePlus,
	"premium":            TierInnerCirclePlus,
	"inner-circle-elite": TierInnerCircleElite,
	"elite":              TierInnerCircleElite,
	"enterprise":         TierInnerCircleElite,
	"private":            TierPrivate,
	"restricted":         TierPrivate,
	"internal":           TierPrivate,
}

// ParseTier normalizes a tier name or one of its aliases.
func ParseTier(raw string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if tier, ok := tierAliases[normalized]; ok {
		return tier, nil
	}
	return "", ErrInvalidTier
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank orders tiers by privilege; unknown tiers rank below public.
func (t Tier) Rank() int {
	rank, ok := tierRank[t]
	if !ok {
		return -1
	}
	return rank
}

// AtLeast reports whether t grants at least the privilege of other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

func (t Tier) String() string { return string(t) }

// Highest returns the most privileged of the given tiers, or public.
func Highest(tiers ...Tier) Tier {
	best := TierPublic
	for _, tier := range tiers {
		if !tier.Valid() {
			continue
		}
		if tier.Rank() > best.Rank() {
			best = tier
		}
	}
	return best
}
