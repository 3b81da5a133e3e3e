package admission

import (
	"fmt"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/shared"
)

// DeniedError reports that a principal used up its quota for a feature.
type DeniedError struct {
	Feature    Feature
	Tier       account.Tier
	Limit      int
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *DeniedError) Error() string {
	return fmt.Sprintf("quota exceeded for %s on %s tier: limit %d per window, retry after %s",
		e.Feature, e.Tier, e.Limit, e.RetryAfter)
}

// FaultKind reports a denial; it is an expected outcome, not a failure.
func (e *DeniedError) FaultKind() shared.FaultKind {
	return shared.FaultDenied
}
