package admission

import (
	"fmt"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
)

// DefaultWindow is the rolling window quotas are counted over.
const DefaultWindow = time.Hour

// QuotaTable is the raw (Tier, Feature) -> limit mapping as configured.
type QuotaTable map[account.Tier]map[Feature]int

// DefaultQuotaTable returns the per-hour limits for each plan.
func DefaultQuotaTable() QuotaTable {
	return QuotaTable{
		account.TierFree:       {FeatureAskQuestion: 10, FeaturePractice: 30, FeaturePowerGrid: 5, FeatureLessonPlan: 3},
		account.TierBasic:      {FeatureAskQuestion: 30, FeaturePractice: 100, FeaturePowerGrid: 20, FeatureLessonPlan: 10},
		account.TierPremium:    {FeatureAskQuestion: 100, FeaturePractice: 300, FeaturePowerGrid: 50, FeatureLessonPlan: 30},
		account.TierComplete:   {FeatureAskQuestion: 300, FeaturePractice: 1000, FeaturePowerGrid: 200, FeatureLessonPlan: 100},
		account.TierEnterprise: {FeatureAskQuestion: 1000, FeaturePractice: 3000, FeaturePowerGrid: 500, FeatureLessonPlan: 300},
	}
}

// QuotaPolicy is an immutable, validated quota table. It is safe for
// concurrent use.
type QuotaPolicy struct {
	window time.Duration
	limits [len(tierIndex)][]int
}

// tierIndex fixes the array size of QuotaPolicy.limits to the tier count.
var tierIndex = [...]account.Tier{
	account.TierFree, account.TierBasic, account.TierPremium, account.TierComplete, account.TierEnterprise,
}

var featureIndex = map[Feature]int{
	FeatureAskQuestion: 0,
	FeaturePractice:    1,
	FeaturePowerGrid:   2,
	FeatureLessonPlan:  3,
}

// NewQuotaPolicy validates table and freezes it into a QuotaPolicy.
// Every tier must define every feature, limits must be non-negative and, for
// each feature, limits must not decrease as the tier increases.
func NewQuotaPolicy(window time.Duration, table QuotaTable) (*QuotaPolicy, error) {
	if window <= 0 {
		return nil, fmt.Errorf("quota window must be positive, got %s", window)
	}

	p := &QuotaPolicy{window: window}
	for _, tier := range tierIndex {
		row, ok := table[tier]
		if !ok {
			return nil, fmt.Errorf("quota table has no entry for tier %s", tier)
		}
		p.limits[tier] = make([]int, len(featureIndex))
		for _, f := range Features() {
			limit, ok := row[f]
			if !ok {
				return nil, fmt.Errorf("quota table has no %s limit for tier %s", f, tier)
			}
			if limit < 0 {
				return nil, fmt.Errorf("quota %s/%s must not be negative, got %d", tier, f, limit)
			}
			p.limits[tier][featureIndex[f]] = limit
		}
		for f := range row {
			if !f.IsValid() {
				return nil, fmt.Errorf("quota table references unknown feature %q for tier %s", f, tier)
			}
		}
	}
	for t := range table {
		if !t.IsValid() {
			return nil, fmt.Errorf("quota table references unknown tier %d", int(t))
		}
	}

	for i := 1; i < len(tierIndex); i++ {
		lower, higher := tierIndex[i-1], tierIndex[i]
		for _, f := range Features() {
			lo, hi := p.limits[lower][featureIndex[f]], p.limits[higher][featureIndex[f]]
			if lo > hi {
				return nil, fmt.Errorf("quota for %s decreases from %s (%d) to %s (%d)", f, lower, lo, higher, hi)
			}
		}
	}

	return p, nil
}

// Window returns the rolling window length
func (p *QuotaPolicy) Window() time.Duration {
	return p.window
}

// Limit returns the number of invocations of feature allowed per window for
// tier. A tier outside the table gets the most restrictive limit. An unknown
// feature gets zero.
func (p *QuotaPolicy) Limit(tier account.Tier, feature Feature) int {
	idx, ok := featureIndex[feature]
	if !ok {
		return 0
	}
	if !tier.IsValid() {
		tier = account.TierFree
	}
	return p.limits[tier][idx]
}
