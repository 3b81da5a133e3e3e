package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var now = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// MockWindowStore is a mock implementation of admission.WindowStore
type MockWindowStore struct {
	mock.Mock
}

func (m *MockWindowStore) Acquire(ctx context.Context, key admission.Key, limit int, window time.Duration, now time.Time) (admission.Decision, error) {
	args := m.Called(ctx, key, limit, window, now)
	return args.Get(0).(admission.Decision), args.Error(1)
}

func (m *MockWindowStore) Peek(ctx context.Context, key admission.Key, limit int, window time.Duration, now time.Time) (admission.Decision, error) {
	args := m.Called(ctx, key, limit, window, now)
	return args.Get(0).(admission.Decision), args.Error(1)
}

func newController(t *testing.T) *Controller {
	t.Helper()
	policy, err := admission.NewQuotaPolicy(admission.DefaultWindow, admission.DefaultQuotaTable())
	require.NoError(t, err)
	store := cache.NewMemoryWindowStore(cache.WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })
	return NewController(policy, store)
}

func freePrincipal() account.Principal {
	return account.Principal{ID: uuid.New(), Tier: account.TierFree}
}

func TestController_Admit_FreeTierAskQuestion(t *testing.T) {
	c := newController(t)
	p := freePrincipal()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := c.Admit(ctx, p, admission.FeatureAskQuestion, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err, "call %d", i+1)
		assert.True(t, d.Allowed)
	}

	d, err := c.Admit(ctx, p, admission.FeatureAskQuestion, now.Add(time.Minute))
	require.Error(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	var denied *admission.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, admission.FeatureAskQuestion, denied.Feature)
	assert.Equal(t, account.TierFree, denied.Tier)
	assert.Equal(t, 10, denied.Limit)
	assert.Equal(t, 59*time.Minute, denied.RetryAfter)
	assert.Equal(t, shared.FaultDenied, shared.KindOf(err))
}

func TestController_Admit_ConcurrentCallsNeverOverAdmit(t *testing.T) {
	c := newController(t)
	p := freePrincipal()
	var allowed, denied atomic.Int32

	var g errgroup.Group
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			_, err := c.Admit(context.Background(), p, admission.FeaturePowerGrid, now)
			var de *admission.DeniedError
			switch {
			case err == nil:
				allowed.Add(1)
			case errors.As(err, &de):
				denied.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(5), allowed.Load())
	assert.Equal(t, int32(35), denied.Load())
}

func TestController_Admit_TierChangeTakesEffectNextCall(t *testing.T) {
	c := newController(t)
	p := freePrincipal()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Admit(ctx, p, admission.FeatureLessonPlan, now)
		require.NoError(t, err)
	}
	_, err := c.Admit(ctx, p, admission.FeatureLessonPlan, now)
	require.Error(t, err)

	p.Tier = account.TierBasic
	p.SubscriptionActive = true
	d, err := c.Admit(ctx, p, admission.FeatureLessonPlan, now)
	require.NoError(t, err)
	assert.Equal(t, 10, d.Limit)
	assert.Equal(t, 6, d.Remaining)
}

func TestController_Admit_ExpiredTrialUsesFreeLimits(t *testing.T) {
	c := newController(t)
	ended := now.Add(-time.Hour)
	p := account.Principal{ID: uuid.New(), Tier: account.TierPremium, TrialEndsAt: &ended}

	d, err := c.Admit(context.Background(), p, admission.FeaturePractice, now)
	require.NoError(t, err)
	assert.Equal(t, 30, d.Limit)

	running := now.Add(time.Hour)
	p.TrialEndsAt = &running
	d, err = c.Admit(context.Background(), p, admission.FeaturePractice, now)
	require.NoError(t, err)
	assert.Equal(t, 300, d.Limit)
}

func TestController_Admit_UnknownTierFallsBackToFree(t *testing.T) {
	c := newController(t)
	p := account.Principal{ID: uuid.New(), Tier: account.Tier(42), SubscriptionActive: true}

	d, err := c.Admit(context.Background(), p, admission.FeatureAskQuestion, now)
	require.NoError(t, err)
	assert.Equal(t, 10, d.Limit)
}

func TestController_Admit_UnknownFeature(t *testing.T) {
	policy, err := admission.NewQuotaPolicy(admission.DefaultWindow, admission.DefaultQuotaTable())
	require.NoError(t, err)
	store := new(MockWindowStore)
	c := NewController(policy, store)

	_, err = c.Admit(context.Background(), freePrincipal(), admission.Feature("essay_grader"), now)
	assert.ErrorIs(t, err, shared.ErrUnknownFeature)
	store.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestController_Admit_StoreFailure(t *testing.T) {
	policy, err := admission.NewQuotaPolicy(admission.DefaultWindow, admission.DefaultQuotaTable())
	require.NoError(t, err)
	store := new(MockWindowStore)
	store.On("Acquire", mock.Anything, mock.Anything, 10, time.Hour, now).
		Return(admission.Decision{}, errors.New("connection refused"))
	c := NewController(policy, store)

	_, err = c.Admit(context.Background(), freePrincipal(), admission.FeatureAskQuestion, now)
	require.Error(t, err)
	assert.Equal(t, shared.FaultUnhandled, shared.KindOf(err))
	store.AssertExpectations(t)
}

func TestController_Usage(t *testing.T) {
	c := newController(t)
	p := freePrincipal()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Admit(ctx, p, admission.FeaturePractice, now)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := c.Admit(ctx, p, admission.FeaturePowerGrid, now)
		require.NoError(t, err)
	}

	usage, err := c.Usage(ctx, p, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, usage, len(admission.Features()))

	byFeature := make(map[admission.Feature]FeatureUsage)
	for _, u := range usage {
		byFeature[u.Feature] = u
	}

	practice := byFeature[admission.FeaturePractice]
	assert.Equal(t, 30, practice.Limit)
	assert.Equal(t, 3, practice.Used)
	assert.Equal(t, 27, practice.Remaining)
	assert.Zero(t, practice.ResetIn)

	powergrid := byFeature[admission.FeaturePowerGrid]
	assert.Equal(t, 0, powergrid.Remaining)
	assert.Equal(t, 50*time.Minute, powergrid.ResetIn)

	assert.Equal(t, 0, byFeature[admission.FeatureAskQuestion].Used)

	// Usage never consumes a slot.
	d, err := c.Admit(ctx, p, admission.FeaturePractice, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 26, d.Remaining)
}
