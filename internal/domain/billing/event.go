package billing

import (
	"context"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/google/uuid"
)

// TierChangeEvent sets an account's tier and subscription state.
type TierChangeEvent struct {
	EventID     string
	AccountID   uuid.UUID
	Tier        account.Tier
	Active      bool
	TrialEndsAt *time.Time
	OccurredAt  time.Time
}

// Change returns the account update this event applies.
func (e TierChangeEvent) Change() account.SubscriptionChange {
	return account.SubscriptionChange{
		AccountID:   e.AccountID,
		Tier:        e.Tier,
		Active:      e.Active,
		TrialEndsAt: e.TrialEndsAt,
	}
}

// EventRepository remembers which events have been applied.
type EventRepository interface {
	Exists(ctx context.Context, eventID string) (bool, error)
	// Save returns shared.ErrAlreadyExists when eventID was already recorded.
	Save(ctx context.Context, event TierChangeEvent, processedAt time.Time) error
}
