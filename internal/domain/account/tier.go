package account

import (
	"strings"

	"github.com/cozmiclearning/backend/internal/domain/shared"
)

// Tier is an ordered subscription level. Higher tiers never get less quota.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPremium
	TierComplete
	TierEnterprise
)

var tierNames = [...]string{"free", "basic", "premium", "complete", "enterprise"}

// Tiers returns every tier from least to most permissive.
func Tiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPremium, TierComplete, TierEnterprise}
}

// String returns the lowercase tier name
func (t Tier) String() string {
	if !t.IsValid() {
		return "unknown"
	}
	return tierNames[t]
}

// IsValid returns true if the tier is one of the known levels
func (t Tier) IsValid() bool {
	return t >= TierFree && t <= TierEnterprise
}

// Less reports whether t is a lower tier than other.
func (t Tier) Less(other Tier) bool {
	return t < other
}

// ParseTier converts a stored or configured tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierFree, shared.ErrInvalidTier
}
