package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Principal is an authenticated caller together with its subscription state
// as read at the start of the request.
type Principal struct {
	ID                 uuid.UUID
	Tier               Tier
	SubscriptionActive bool
	TrialEndsAt        *time.Time
}

// EffectiveTier returns the tier that quota decisions use at now.
// A paid tier without an active subscription only holds while its trial runs;
// after the trial ends the principal is treated as free.
func (p Principal) EffectiveTier(now time.Time) Tier {
	if !p.Tier.IsValid() {
		return TierFree
	}
	if p.Tier == TierFree || p.SubscriptionActive {
		return p.Tier
	}
	if p.TrialEndsAt != nil && now.Before(*p.TrialEndsAt) {
		return p.Tier
	}
	return TierFree
}

// SubscriptionChange is the effect of a billing event on one account.
type SubscriptionChange struct {
	AccountID   uuid.UUID
	Tier        Tier
	Active      bool
	TrialEndsAt *time.Time
}

// Repository loads principals and applies subscription changes.
type Repository interface {
	// FindByID returns shared.ErrNotFound when the account does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	// UpdateSubscription returns shared.ErrNotFound when the account does not exist.
	UpdateSubscription(ctx context.Context, change SubscriptionChange) error
}
