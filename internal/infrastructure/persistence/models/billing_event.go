package models

import (
	"time"

	"github.com/cozmiclearning/backend/internal/domain/billing"
	"github.com/google/uuid"
)

// BillingEventModel records an applied billing event. EventID is unique so a
// replayed event cannot be applied twice.
type BillingEventModel struct {
	EventID     string    `gorm:"type:varchar(255);primaryKey"`
	AccountID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Tier        string    `gorm:"type:varchar(20);not null"`
	Active      bool      `gorm:"not null"`
	OccurredAt  time.Time `gorm:"not null"`
	ProcessedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for BillingEventModel
func (BillingEventModel) TableName() string {
	return "billing_events"
}

// BillingEventModelFromDomain converts a tier change event to its model.
func BillingEventModelFromDomain(e billing.TierChangeEvent, processedAt time.Time) *BillingEventModel {
	return &BillingEventModel{
		EventID:     e.EventID,
		AccountID:   e.AccountID,
		Tier:        e.Tier.String(),
		Active:      e.Active,
		OccurredAt:  e.OccurredAt,
		ProcessedAt: processedAt,
	}
}
