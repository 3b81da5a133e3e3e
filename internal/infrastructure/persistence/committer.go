package persistence

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Operation is one attempt's worth of writes. It runs inside a fresh
// transaction on every attempt and must be safe to repeat.
type Operation func(ctx context.Context, tx *gorm.DB) error

// RetryPolicy bounds the attempts of a resilient commit.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond}
}

// Delay returns the wait after the failed attempt with zero-based index attempt.
// It saturates at math.MaxInt64 instead of wrapping.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt >= 63 || p.InitialDelay > math.MaxInt64>>uint(attempt) {
		return math.MaxInt64
	}
	return p.InitialDelay << uint(attempt)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	return p
}

// Committer runs operations in a transaction, retrying on lock contention.
type Committer struct {
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *telemetry.ResilienceMetrics
	sleep   func(time.Duration)
}

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithCommitLogger sets the fallback logger used when ctx carries none.
func WithCommitLogger(l *zap.Logger) CommitterOption {
	return func(c *Committer) { c.logger = l }
}

// WithCommitMetrics records attempts, retries and latency.
func WithCommitMetrics(m *telemetry.ResilienceMetrics) CommitterOption {
	return func(c *Committer) { c.metrics = m }
}

// WithSleep replaces time.Sleep for backoff waits.
func WithSleep(sleep func(time.Duration)) CommitterOption {
	return func(c *Committer) { c.sleep = sleep }
}

// NewCommitter creates a Committer with the default policy for Commit.
func NewCommitter(policy RetryPolicy, opts ...CommitterOption) *Committer {
	c := &Committer{
		policy: policy.normalized(),
		logger: zap.NewNop(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the default policy.
func (c *Committer) Policy() RetryPolicy {
	return c.policy
}

// Commit runs op with the default policy.
func (c *Committer) Commit(ctx context.Context, s *Session, op Operation) error {
	return c.CommitWithPolicy(ctx, s, c.policy, op)
}

// CommitWithPolicy runs op in a transaction on s, retrying transient failures.
//
// Every failed attempt is rolled back before the next one starts or before
// returning. A permanent failure is returned at once. When all attempts fail
// transiently the result is a FaultExhausted error wrapping the last failure.
// Attempts are not interrupted by cancellation of ctx.
func (c *Committer) CommitWithPolicy(ctx context.Context, s *Session, policy RetryPolicy, op Operation) error {
	policy = policy.normalized()
	ctx = context.WithoutCancel(ctx)
	log := c.loggerFor(ctx)

	ctx, span := telemetry.StartSpan(ctx, "commit", attribute.Int("commit.max_attempts", policy.MaxAttempts))
	defer span.End()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err := ClassifyError(c.attempt(ctx, s, op))
		if err == nil {
			c.metrics.RecordCommitAttempt(ctx, "success")
			c.metrics.RecordCommit(ctx, "success", time.Since(start))
			span.SetAttributes(attribute.Int("commit.attempts", attempt+1))
			if attempt > 0 {
				log.Info("Commit succeeded after retry", zap.Int("attempts", attempt+1))
			}
			return nil
		}

		if !shared.IsTransient(err) {
			c.metrics.RecordCommitAttempt(ctx, "permanent")
			c.metrics.RecordCommit(ctx, "permanent", time.Since(start))
			telemetry.RecordError(span, err)
			return err
		}

		c.metrics.RecordCommitAttempt(ctx, "transient")
		lastErr = err
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		log.Warn("Commit hit lock contention, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		c.metrics.RecordCommitRetry(ctx)
		c.sleep(delay)
	}

	exhausted := shared.Exhausted(policy.MaxAttempts, lastErr)
	c.metrics.RecordCommit(ctx, "exhausted", time.Since(start))
	telemetry.RecordError(span, exhausted)
	log.Error("Commit exhausted retries",
		zap.Int("attempts", policy.MaxAttempts),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(lastErr),
	)
	return exhausted
}

func (c *Committer) attempt(ctx context.Context, s *Session, op Operation) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := op(ctx, tx); err != nil {
		c.rollback(ctx, s)
		return err
	}
	if err := s.Commit(); err != nil {
		c.rollback(ctx, s)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (c *Committer) rollback(ctx context.Context, s *Session) {
	if err := s.Rollback(); err != nil {
		c.loggerFor(ctx).Warn("Rollback after failed attempt returned an error", zap.Error(err))
	}
}

func (c *Committer) loggerFor(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return c.logger
}
