// Package activity records invocations of gated features.
package activity

import (
	"context"
	"strings"

	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Activity is one admitted and completed invocation of a feature.
type Activity struct {
	shared.BaseEntity
	AccountID uuid.UUID
	Feature   admission.Feature
	RequestID string
	// Result is the opaque output reference returned by the executor, if any.
	Result string
}

// NewActivity validates and creates an activity for accountID.
func NewActivity(accountID uuid.UUID, feature admission.Feature, requestID string) (*Activity, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Account ID cannot be empty")
	}
	if !feature.IsValid() {
		return nil, shared.ErrUnknownFeature
	}
	return &Activity{
		BaseEntity: shared.NewBaseEntity(),
		AccountID:  accountID,
		Feature:    feature,
		RequestID:  strings.TrimSpace(requestID),
	}, nil
}

// Repository persists activities.
type Repository interface {
	Save(ctx context.Context, a *Activity) error
}
