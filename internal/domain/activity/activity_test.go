package activity

import (
	"testing"

	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActivity(t *testing.T) {
	accountID := uuid.New()

	t.Run("valid", func(t *testing.T) {
		a, err := NewActivity(accountID, admission.FeaturePractice, " req-1 ")
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, a.ID)
		assert.Equal(t, accountID, a.AccountID)
		assert.Equal(t, admission.FeaturePractice, a.Feature)
		assert.Equal(t, "req-1", a.RequestID)
		assert.False(t, a.CreatedAt.IsZero())
	})

	t.Run("nil account", func(t *testing.T) {
		_, err := NewActivity(uuid.Nil, admission.FeaturePractice, "")
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "INVALID_ACCOUNT", de.Code)
	})

	t.Run("unknown feature", func(t *testing.T) {
		_, err := NewActivity(accountID, admission.Feature("essay"), "")
		assert.ErrorIs(t, err, shared.ErrUnknownFeature)
	})
}
