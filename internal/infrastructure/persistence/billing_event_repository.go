package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/billing"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillingEventRepository implements billing.EventRepository using GORM
type GormBillingEventRepository struct {
	db *gorm.DB
}

// NewGormBillingEventRepository creates a new GormBillingEventRepository
func NewGormBillingEventRepository(db *gorm.DB) *GormBillingEventRepository {
	return &GormBillingEventRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormBillingEventRepository) WithTx(tx *gorm.DB) *GormBillingEventRepository {
	return &GormBillingEventRepository{db: tx}
}

// Exists reports whether eventID has been applied
func (r *GormBillingEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BillingEventModel{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check billing event %s: %w", eventID, err)
	}
	return count > 0, nil
}

// Save records an applied event
func (r *GormBillingEventRepository) Save(ctx context.Context, event billing.TierChangeEvent, processedAt time.Time) error {
	err := r.db.WithContext(ctx).Create(models.BillingEventModelFromDomain(event, processedAt)).Error
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("save billing event %s: %w", event.EventID, err)
	}
	return nil
}

var _ billing.EventRepository = (*GormBillingEventRepository)(nil)
