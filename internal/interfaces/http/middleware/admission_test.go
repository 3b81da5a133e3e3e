package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	appadmission "github.com/cozmiclearning/backend/internal/application/admission"
	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/infrastructure/cache"
	"github.com/cozmiclearning/backend/internal/interfaces/http/dto"
	"github.com/cozmiclearning/backend/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Acquire(context.Context, admission.Key, int, time.Duration, time.Time) (admission.Decision, error) {
	return admission.Decision{}, errors.New("redis: connection pool timeout")
}

func (failingStore) Peek(context.Context, admission.Key, int, time.Duration, time.Time) (admission.Decision, error) {
	return admission.Decision{}, errors.New("redis: connection pool timeout")
}

func newTestController(t *testing.T, store admission.WindowStore) *appadmission.Controller {
	t.Helper()
	policy, err := admission.NewQuotaPolicy(admission.DefaultWindow, admission.DefaultQuotaTable())
	require.NoError(t, err)
	if store == nil {
		mem := cache.NewMemoryWindowStore(cache.WithSweepInterval(0))
		t.Cleanup(func() { _ = mem.Close() })
		store = mem
	}
	return appadmission.NewController(policy, store)
}

func newAdmissionRouter(t *testing.T, controller *appadmission.Controller, p account.Principal, sink *recordingSink) *gin.Engine {
	t.Helper()
	r := newBoundaryRouter(t, sink, nil)
	r.Use(withPrincipal(p))
	r.POST("/features/:feature/invocations", AdmissionFromParam(controller, "feature"), func(c *gin.Context) {
		d, ok := GetDecision(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"remaining": d.Remaining})
	})
	r.POST("/ask", Admission(controller, admission.FeatureAskQuestion), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAdmission_FreeTierAskQuestionQuota(t *testing.T) {
	sink := &recordingSink{}
	r := newAdmissionRouter(t, newTestController(t, nil), testutil.Principal("free", account.TierFree), sink)

	for i := 1; i <= 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ask", nil))
		require.Equal(t, http.StatusNoContent, w.Code, "call %d", i)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(10-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ask", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 3500)
	assert.LessOrEqual(t, retryAfter, 3600)

	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeRateLimited, resp.Error.Code)
	assert.Equal(t, retryAfter, resp.Error.RetryAfterSeconds)
	assert.Empty(t, sink.all())
}

func TestAdmission_FeatureFromParam(t *testing.T) {
	r := newAdmissionRouter(t, newTestController(t, nil), testutil.Principal("basic", account.TierBasic), &recordingSink{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/features/lesson_plan/invocations", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"remaining":9}`, w.Body.String())
}

func TestAdmission_UnknownFeature(t *testing.T) {
	r := newAdmissionRouter(t, newTestController(t, nil), testutil.Principal("basic", account.TierBasic), &recordingSink{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/features/essay/invocations", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeUnknownFeature, decodeResponse(t, w).Error.Code)
}

func TestAdmission_StoreFailureFailsClosed(t *testing.T) {
	sink := &recordingSink{}
	r := newAdmissionRouter(t, newTestController(t, failingStore{}), testutil.Principal("p", account.TierPremium), sink)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ask", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis")
	require.Len(t, sink.all(), 1)
	assert.Equal(t, "unhandled", sink.all()[0].Classification)
}

func TestAdmission_RequiresPrincipal(t *testing.T) {
	r := gin.New()
	r.POST("/ask", Admission(newTestController(t, nil), admission.FeatureAskQuestion), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ask", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
