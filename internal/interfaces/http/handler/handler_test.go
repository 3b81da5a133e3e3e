package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cozmiclearning/backend/internal/application/activity"
	appadmission "github.com/cozmiclearning/backend/internal/application/admission"
	"github.com/cozmiclearning/backend/internal/application/billing"
	"github.com/cozmiclearning/backend/internal/domain/account"
	domainactivity "github.com/cozmiclearning/backend/internal/domain/activity"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	domainbilling "github.com/cozmiclearning/backend/internal/domain/billing"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/cache"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/cozmiclearning/backend/internal/interfaces/http/middleware"
	"github.com/cozmiclearning/backend/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv is a migrated database with one account and the request context
// middleware the router would install.
type testEnv struct {
	db        *persistence.Database
	principal account.Principal
	committer *persistence.Committer
}

func newTestEnv(t *testing.T, tier account.Tier) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return &testEnv{
		db:        db,
		principal: testutil.CreateAccount(t, db.DB, tier, tier != account.TierFree),
		committer: persistence.NewCommitter(persistence.DefaultRetryPolicy(), persistence.WithSleep(testutil.NoSleep)),
	}
}

func (e *testEnv) router(authenticated bool) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Session(e.db.DB))
	if authenticated {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.PrincipalKey, e.principal)
			c.Next()
		})
	}
	return r
}

func gormActivities(tx *gorm.DB) domainactivity.Repository {
	return persistence.NewGormActivityRepository(tx)
}

func TestFeatureHandler_Invoke(t *testing.T) {
	env := newTestEnv(t, account.TierBasic)
	svc := activity.NewService(env.committer, gormActivities,
		activity.WithExecutor(activity.ExecutorFunc(func(_ context.Context, inv activity.Invocation) (string, error) {
			return "lesson-" + inv.Input["topic"].(string), nil
		})))
	h := NewFeatureHandler(svc)

	r := env.router(true)
	r.POST("/features/:feature/invocations", h.Invoke)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, testutil.JSONRequest(t, http.MethodPost, "/features/lesson_plan/invocations",
		dto.InvokeFeatureRequest{Input: map[string]any{"topic": "fractions"}}))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := testutil.DecodeData[dto.ActivityResponse](t, w)
	assert.Equal(t, "lesson_plan", data.Feature)
	assert.Equal(t, "lesson-fractions", data.Result)
	assert.NotEmpty(t, data.RequestID)
}

func TestFeatureHandler_Invoke_EmptyBody(t *testing.T) {
	env := newTestEnv(t, account.TierFree)
	h := NewFeatureHandler(activity.NewService(env.committer, gormActivities))

	r := env.router(true)
	r.POST("/features/:feature/invocations", h.Invoke)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/features/practice/invocations", nil))

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestFeatureHandler_Invoke_ExecutorFailure(t *testing.T) {
	env := newTestEnv(t, account.TierBasic)
	svc := activity.NewService(env.committer, gormActivities,
		activity.WithExecutor(activity.ExecutorFunc(func(context.Context, activity.Invocation) (string, error) {
			return "", errors.New("model endpoint returned 529 overloaded")
		})))
	h := NewFeatureHandler(svc)

	r := env.router(true)
	r.POST("/features/:feature/invocations", h.Invoke)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/features/powergrid/invocations", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, dto.ErrCodeUpstream, testutil.DecodeError(t, w).Code)
	assert.NotContains(t, w.Body.String(), "529")
}

func TestFeatureHandler_Invoke_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, account.TierBasic)
	h := NewFeatureHandler(activity.NewService(env.committer, gormActivities))

	r := env.router(true)
	r.POST("/features/:feature/invocations", h.Invoke)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, testutil.JSONRequest(t, http.MethodPost, "/features/practice/invocations", `{"input":`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidJSON, testutil.DecodeError(t, w).Code)
}

func TestFeatureHandler_Invoke_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, account.TierBasic)
	h := NewFeatureHandler(activity.NewService(env.committer, gormActivities))

	r := env.router(false)
	r.POST("/features/:feature/invocations", h.Invoke)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/features/practice/invocations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsageHandler_GetUsage(t *testing.T) {
	env := newTestEnv(t, account.TierFree)
	policy, err := admission.NewQuotaPolicy(admission.DefaultWindow, admission.DefaultQuotaTable())
	require.NoError(t, err)
	store := cache.NewMemoryWindowStore(cache.WithSweepInterval(0))
	t.Cleanup(func() { _ = store.Close() })
	controller := appadmission.NewController(policy, store)

	for i := 0; i < 3; i++ {
		_, err := controller.Admit(context.Background(), env.principal, admission.FeatureLessonPlan, time.Now())
		require.NoError(t, err)
	}

	r := env.router(true)
	r.GET("/usage", NewUsageHandler(controller).GetUsage)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usage", nil))
	require.Equal(t, http.StatusOK, w.Code)

	data := testutil.DecodeData[dto.UsageResponse](t, w)
	assert.Equal(t, "free", data.Tier)
	assert.Equal(t, 3600, data.WindowSeconds)
	require.Len(t, data.Features, len(admission.Features()))

	for _, f := range data.Features {
		if f.Feature != "lesson_plan" {
			assert.Zero(t, f.Used, f.Feature)
			continue
		}
		assert.Equal(t, 3, f.Limit)
		assert.Equal(t, 3, f.Used)
		assert.Zero(t, f.Remaining)
		assert.Greater(t, f.ResetInSeconds, 3500)
	}
}

func newBillingHandler() *BillingHandler {
	svc := billing.NewTierChangeService(
		persistence.NewCommitter(persistence.DefaultRetryPolicy(), persistence.WithSleep(testutil.NoSleep)),
		func(tx *gorm.DB) account.Repository { return persistence.NewGormAccountRepository(tx) },
		func(tx *gorm.DB) domainbilling.EventRepository { return persistence.NewGormBillingEventRepository(tx) },
	)
	return NewBillingHandler(svc)
}

func TestBillingHandler_ApplyEvent(t *testing.T) {
	env := newTestEnv(t, account.TierFree)
	r := env.router(false)
	r.POST("/billing/events", newBillingHandler().ApplyEvent)

	event := map[string]any{
		"event_id":            "evt_100",
		"account_id":          env.principal.ID.String(),
		"tier":                "premium",
		"subscription_active": true,
	}

	for i, duplicate := range []bool{false, true} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, testutil.JSONRequest(t, http.MethodPost, "/billing/events", event))

		require.Equal(t, http.StatusOK, w.Code, "delivery %d: %s", i+1, w.Body.String())
		result := testutil.DecodeData[billing.ApplyResult](t, w)
		assert.Equal(t, duplicate, result.Duplicate, "delivery %d", i+1)
	}

	p, err := persistence.NewGormAccountRepository(env.db.DB).FindByID(context.Background(), env.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, account.TierPremium, p.Tier)
}

func TestBillingHandler_ApplyEvent_Errors(t *testing.T) {
	env := newTestEnv(t, account.TierFree)
	r := env.router(false)
	r.POST("/billing/events", newBillingHandler().ApplyEvent)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"event_id":`, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"unknown tier", `{"event_id":"e1","account_id":"` + env.principal.ID.String() + `","tier":"gold"}`, http.StatusBadRequest, dto.ErrCodeInvalidTier},
		{"missing fields", `{"tier":"basic"}`, http.StatusBadRequest, dto.ErrCodeValidation},
		{"unknown account", `{"event_id":"e2","account_id":"00000000-0000-4000-8000-000000000000","tier":"basic"}`, http.StatusNotFound, dto.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, testutil.JSONRequest(t, http.MethodPost, "/billing/events", tt.body))

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, testutil.DecodeError(t, w).Code)
		})
	}
}

func TestBaseHandler_HandleError_PushesUnknownErrors(t *testing.T) {
	var h BaseHandler
	tc := testutil.NewTestContext(t)

	h.HandleError(tc.Context, shared.Exhausted(3, errors.New("database is locked")))

	assert.True(t, tc.Context.IsAborted())
	require.Len(t, tc.Context.Errors, 1)
	assert.False(t, tc.Context.Writer.Written())
}

func TestBaseHandler_HandleError_MapsDomainErrors(t *testing.T) {
	var h BaseHandler
	tc := testutil.NewTestContext(t)
	tc.SetRequestID("req-7")

	h.HandleError(tc.Context, shared.ErrUnknownFeature)

	assert.Equal(t, http.StatusNotFound, tc.ResponseCode())
	testutil.AssertErrorResponse(t, tc, dto.ErrCodeUnknownFeature)
	assert.Empty(t, tc.Context.Errors)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, account.TierFree)

	tests := []struct {
		name   string
		checks map[string]Checker
		status int
		state  string
	}{
		{"all up", map[string]Checker{"database": env.db}, http.StatusOK, "ok"},
		{"one down", map[string]Checker{
			"database": env.db,
			"redis":    CheckerFunc(func() error { return errors.New("refused") }),
		}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(tt.checks).Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, w.Code)
			var resp dto.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.state, resp.Status)
		})
	}
}
