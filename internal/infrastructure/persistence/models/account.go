package models

import (
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/google/uuid"
)

// AccountModel is the persistence model for accounts and their subscription.
type AccountModel struct {
	BaseModel
	Email              string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Tier               string `gorm:"type:varchar(20);not null;default:'free'"`
	SubscriptionActive bool   `gorm:"not null;default:false"`
	TrialEndsAt        *time.Time
}

// TableName returns the table name for AccountModel
func (AccountModel) TableName() string {
	return "accounts"
}

// ToPrincipal converts the model to a domain principal. A stored tier the
// application does not know resolves to free.
func (m *AccountModel) ToPrincipal() *account.Principal {
	tier, _ := account.ParseTier(m.Tier)
	return &account.Principal{
		ID:                 m.ID,
		Tier:               tier,
		SubscriptionActive: m.SubscriptionActive,
		TrialEndsAt:        m.TrialEndsAt,
	}
}

// NewAccountModel creates a model for a new account.
func NewAccountModel(email string, tier account.Tier, now time.Time) *AccountModel {
	return &AccountModel{
		BaseModel: BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Email:     email,
		Tier:      tier.String(),
	}
}
