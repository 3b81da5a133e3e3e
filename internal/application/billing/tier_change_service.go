// Package billing applies subscription changes reported by the billing provider.
package billing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cozmiclearning/backend/internal/domain/account"
	"github.com/cozmiclearning/backend/internal/domain/billing"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/cozmiclearning/backend/internal/infrastructure/logger"
	"github.com/cozmiclearning/backend/internal/infrastructure/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TierChangeCommand is a tier change event as delivered by the billing provider.
type TierChangeCommand struct {
	EventID            string     `json:"event_id" validate:"required,max=255"`
	AccountID          string     `json:"account_id" validate:"required,uuid"`
	Tier               string     `json:"tier" validate:"required"`
	SubscriptionActive bool       `json:"subscription_active"`
	TrialEndsAt        *time.Time `json:"trial_ends_at"`
	OccurredAt         *time.Time `json:"occurred_at"`
}

// ApplyResult reports what Apply did with an event.
type ApplyResult struct {
	EventID   string       `json:"event_id"`
	AccountID uuid.UUID    `json:"account_id"`
	Tier      account.Tier `json:"-"`
	// Duplicate is true when the event had already been applied.
	Duplicate bool `json:"duplicate"`
}

// AccountRepositoryFactory binds an account repository to a transaction.
type AccountRepositoryFactory func(tx *gorm.DB) account.Repository

// EventRepositoryFactory binds a billing event repository to a transaction.
type EventRepositoryFactory func(tx *gorm.DB) billing.EventRepository

// errAppliedConcurrently rolls back an attempt whose event was recorded by
// another request between the existence check and the insert.
var errAppliedConcurrently = shared.Permanent(errors.New("billing event applied concurrently"))

// TierChangeService applies tier change events exactly once per event id.
type TierChangeService struct {
	committer *persistence.Committer
	accounts  AccountRepositoryFactory
	events    EventRepositoryFactory
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// TierChangeOption configures a TierChangeService
type TierChangeOption func(*TierChangeService)

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) TierChangeOption {
	return func(s *TierChangeService) {
		s.logger = l
	}
}

// WithClock overrides the processing time source.
func WithClock(now func() time.Time) TierChangeOption {
	return func(s *TierChangeService) {
		s.now = now
	}
}

// NewTierChangeService creates a new tier change service
func NewTierChangeService(
	committer *persistence.Committer,
	accounts AccountRepositoryFactory,
	events EventRepositoryFactory,
	opts ...TierChangeOption,
) *TierChangeService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &TierChangeService{
		committer: committer,
		accounts:  accounts,
		events:    events,
		validate:  v,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply validates cmd and, in one resilient commit, updates the account and
// records the event. An event id seen before is acknowledged without changes.
func (s *TierChangeService) Apply(ctx context.Context, session *persistence.Session, cmd TierChangeCommand) (*ApplyResult, error) {
	event, err := s.toEvent(cmd)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{EventID: event.EventID, AccountID: event.AccountID, Tier: event.Tier}
	err = s.committer.Commit(ctx, session, func(ctx context.Context, tx *gorm.DB) error {
		result.Duplicate = false
		events := s.events(tx)

		seen, err := events.Exists(ctx, event.EventID)
		if err != nil {
			return err
		}
		if seen {
			result.Duplicate = true
			return nil
		}

		if err := s.accounts(tx).UpdateSubscription(ctx, event.Change()); err != nil {
			return err
		}
		if err := events.Save(ctx, event, s.now()); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				return errAppliedConcurrently
			}
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errAppliedConcurrently):
		result.Duplicate = true
	case err != nil:
		return nil, fmt.Errorf("apply billing event %s: %w", event.EventID, err)
	}

	log := s.loggerFor(ctx).With(
		zap.String("event_id", event.EventID),
		zap.String("account_id", event.AccountID.String()),
		zap.String("tier", event.Tier.String()),
	)
	if result.Duplicate {
		log.Info("Billing event already applied")
	} else {
		log.Info("Subscription tier changed", zap.Bool("active", event.Active))
	}
	return result, nil
}

func (s *TierChangeService) toEvent(cmd TierChangeCommand) (billing.TierChangeEvent, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return billing.TierChangeEvent{}, validationError(err)
	}

	tier, err := account.ParseTier(cmd.Tier)
	if err != nil {
		return billing.TierChangeEvent{}, err
	}
	accountID, err := uuid.Parse(cmd.AccountID)
	if err != nil {
		return billing.TierChangeEvent{}, shared.NewDomainError("VALIDATION_ERROR", "account_id: Invalid UUID format")
	}

	occurredAt := s.now()
	if cmd.OccurredAt != nil {
		occurredAt = *cmd.OccurredAt
	}
	return billing.TierChangeEvent{
		EventID:     strings.TrimSpace(cmd.EventID),
		AccountID:   accountID,
		Tier:        tier,
		Active:      cmd.SubscriptionActive,
		TrialEndsAt: cmd.TrialEndsAt,
		OccurredAt:  occurredAt,
	}, nil
}

func (s *TierChangeService) loggerFor(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return s.logger
}

// validationError turns validator output into a permanent domain error that
// names the offending fields.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.NewDomainError("VALIDATION_ERROR", "Invalid billing event")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return shared.NewDomainError("VALIDATION_ERROR", "Invalid billing event: "+strings.Join(fields, ", "))
}
