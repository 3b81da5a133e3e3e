package models

import (
	"github.com/cozmiclearning/backend/internal/domain/activity"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/google/uuid"
)

// FeatureActivityModel is the persistence model for a recorded feature invocation.
type FeatureActivityModel struct {
	BaseModel
	AccountID uuid.UUID `gorm:"type:uuid;not null;index:idx_feature_activities_account_feature"`
	Feature   string    `gorm:"type:varchar(32);not null;index:idx_feature_activities_account_feature"`
	RequestID string    `gorm:"type:varchar(64)"`
	Result    string    `gorm:"type:text"`
}

// TableName returns the table name for FeatureActivityModel
func (FeatureActivityModel) TableName() string {
	return "feature_activities"
}

// FeatureActivityModelFromDomain converts a domain activity to its model.
func FeatureActivityModelFromDomain(a *activity.Activity) *FeatureActivityModel {
	m := &FeatureActivityModel{
		AccountID: a.AccountID,
		Feature:   string(a.Feature),
		RequestID: a.RequestID,
		Result:    a.Result,
	}
	m.FromDomainBaseEntity(a.BaseEntity)
	return m
}

// ToDomain converts the model to a domain activity.
func (m *FeatureActivityModel) ToDomain() *activity.Activity {
	return &activity.Activity{
		BaseEntity: m.BaseModel.ToDomain(),
		AccountID:  m.AccountID,
		Feature:    admission.Feature(m.Feature),
		RequestID:  m.RequestID,
		Result:     m.Result,
	}
}
