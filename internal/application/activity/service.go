// Package activity runs admitted feature invocations and records them.
package activity

import (
	"context"
	"fmt"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/activity"
	"github.com/cozmiclearning/backend/internal/domain/admission"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Invocation is one admitted request to use a feature.
type Invocation struct {
	Principal account.Principal
	Feature   admission.Feature
	RequestID string
	Input     map[string]any
}

// Executor performs the expensive work behind a feature, typically a call to
// the content generation backend. It returns an opaque result reference.
type Executor interface {
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, inv Invocation) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}

// ExecutionError wraps a failed executor call. It is permanent: the commit
// layer never retries it.
type ExecutionError struct {
	Feature admission.Feature
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Feature, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// FaultKind implements the classification used by the commit layer.
func (e *ExecutionError) FaultKind() shared.FaultKind { return shared.FaultPermanent }

// RepositoryFactory binds an activity repository to a transaction.
type RepositoryFactory func(tx *gorm.DB) activity.Repository

// Service invokes gated features.
type Service struct {
	committer  *persistence.Committer
	activities RepositoryFactory
	executor   Executor
	logger     *zap.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithExecutor sets the collaborator that performs the feature work.
func WithExecutor(e Executor) ServiceOption {
	return func(s *Service) {
		s.executor = e
	}
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a new activity service
func NewService(committer *persistence.Committer, activities RepositoryFactory, opts ...ServiceOption) *Service {
	s := &Service{
		committer:  committer,
		activities: activities,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke runs the feature for an already admitted principal and records the
// activity through a resilient commit on session. Without an executor only the
// activity is recorded.
func (s *Service) Invoke(ctx context.Context, session *persistence.Session, inv Invocation) (*activity.Activity, error) {
	a, err := activity.NewActivity(inv.Principal.ID, inv.Feature, inv.RequestID)
	if err != nil {
		return nil, err
	}

	if s.executor != nil {
		result, err := s.executor.Execute(ctx, inv)
		if err != nil {
			return nil, &ExecutionError{Feature: inv.Feature, Err: err}
		}
		a.Result = result
	}

	err = s.committer.Commit(ctx, session, func(ctx context.Context, tx *gorm.DB) error {
		return s.activities(tx).Save(ctx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("record %s activity: %w", inv.Feature, err)
	}

	s.loggerFor(ctx).Debug("Feature invoked",
		zap.String("feature", inv.Feature.String()),
		zap.String("account_id", inv.Principal.ID.String()),
		zap.String("activity_id", a.ID.String()),
	)
	return a, nil
}

func (s *Service) loggerFor(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return s.logger
}
