package persistence

import (
	"context"
	"fmt"

	"github.com/cozmiclearning/backend/internal/domain/activity"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormActivityRepository implements activity.Repository using GORM
type GormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a new GormActivityRepository
func NewGormActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormActivityRepository) WithTx(tx *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: tx}
}

// Save inserts a feature activity
func (r *GormActivityRepository) Save(ctx context.Context, a *activity.Activity) error {
	if err := r.db.WithContext(ctx).Create(models.FeatureActivityModelFromDomain(a)).Error; err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	return nil
}

var _ activity.Repository = (*GormActivityRepository)(nil)
