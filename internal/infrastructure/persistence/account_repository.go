package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountRepository implements account.Repository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormAccountRepository) WithTx(tx *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: tx}
}

// FindByID loads the principal for an account
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*account.Principal, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("find account %s: %w", id, err)
	}
	return model.ToPrincipal(), nil
}

// UpdateSubscription applies a subscription change to an existing account
func (r *GormAccountRepository) UpdateSubscription(ctx context.Context, change account.SubscriptionChange) error {
	result := r.db.WithContext(ctx).
		Model(&models.AccountModel{}).
		Where("id = ?", change.AccountID).
		Updates(map[string]any{
			"tier":                change.Tier.String(),
			"subscription_active": change.Active,
			"trial_ends_at":       change.TrialEndsAt,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update subscription for %s: %w", change.AccountID, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Create inserts an account. Used for provisioning and tests.
func (r *GormAccountRepository) Create(ctx context.Context, model *models.AccountModel) error {
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

var _ account.Repository = (*GormAccountRepository)(nil)
