// Package admission gates expensive features behind per-tier usage quotas.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// FeatureUsage is a principal's standing for one feature in the current window.
type FeatureUsage struct {
	Feature   admission.Feature
	Limit     int
	Used      int
	Remaining int
	// ResetIn is set when the quota is used up.
	ResetIn time.Duration
}

// Controller decides whether a principal may invoke a feature now. A slot is
// consumed as soon as it is granted, whether or not the gated work succeeds.
type Controller struct {
	policy  *admission.QuotaPolicy
	store   admission.WindowStore
	metrics *telemetry.ResilienceMetrics
	logger  *zap.Logger
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithMetrics records admission decisions
func WithMetrics(m *telemetry.ResilienceMetrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the fallback logger used when ctx carries none
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller. Construct one per process and share it.
func NewController(policy *admission.QuotaPolicy, store admission.WindowStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		policy: policy,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the quota policy in use
func (c *Controller) Policy() *admission.QuotaPolicy {
	return c.policy
}

// Admit records one invocation of feature by p if the quota allows it.
// A denial returns the decision together with an *admission.DeniedError.
func (c *Controller) Admit(ctx context.Context, p account.Principal, feature admission.Feature, now time.Time) (admission.Decision, error) {
	if !feature.IsValid() {
		return admission.Decision{}, shared.ErrUnknownFeature
	}

	tier := p.EffectiveTier(now)
	limit := c.policy.Limit(tier, feature)

	start := time.Now()
	d, err := c.store.Acquire(ctx, admission.Key{PrincipalID: p.ID, Feature: feature}, limit, c.policy.Window(), now)
	if err != nil {
		return admission.Decision{}, fmt.Errorf("acquire usage window: %w", err)
	}
	c.metrics.RecordAdmission(ctx, string(feature), tier.String(), d.Allowed, time.Since(start))

	log := c.loggerFor(ctx).With(
		zap.String("principal_id", p.ID.String()),
		zap.String("feature", string(feature)),
		zap.String("tier", tier.String()),
		zap.Int("limit", limit),
	)
	if !d.Allowed {
		log.Info("Admission denied", zap.Duration("retry_after", d.RetryAfter))
		return d, &admission.DeniedError{
			Feature:    feature,
			Tier:       tier,
			Limit:      limit,
			RetryAfter: d.RetryAfter,
		}
	}
	log.Debug("Admission granted", zap.Int("remaining", d.Remaining))
	return d, nil
}

// Usage reports p's standing for every feature without consuming anything.
func (c *Controller) Usage(ctx context.Context, p account.Principal, now time.Time) ([]FeatureUsage, error) {
	tier := p.EffectiveTier(now)
	features := admission.Features()
	usage := make([]FeatureUsage, 0, len(features))

	for _, f := range features {
		limit := c.policy.Limit(tier, f)
		d, err := c.store.Peek(ctx, admission.Key{PrincipalID: p.ID, Feature: f}, limit, c.policy.Window(), now)
		if err != nil {
			return nil, fmt.Errorf("peek usage window for %s: %w", f, err)
		}
		u := FeatureUsage{
			Feature:   f,
			Limit:     limit,
			Used:      limit - d.Remaining,
			Remaining: d.Remaining,
		}
		if !d.Allowed {
			u.ResetIn = d.RetryAfter
		}
		usage = append(usage, u)
	}
	return usage, nil
}

func (c *Controller) loggerFor(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return c.logger
}
