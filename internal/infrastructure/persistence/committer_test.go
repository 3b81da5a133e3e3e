package persistence

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cozmiclearning/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var updateTier = regexp.QuoteMeta("UPDATE accounts SET tier")

func updateTierOp(id uuid.UUID) (Operation, *int) {
	calls := 0
	return func(ctx context.Context, tx *gorm.DB) error {
		calls++
		return tx.Exec("UPDATE accounts SET tier = ? WHERE id = ?", "basic", id).Error
	}, &calls
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 400*time.Millisecond, p.Delay(2))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
}

func TestRetryPolicy_DelaySaturates(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 100, InitialDelay: 100 * time.Millisecond}
	for _, attempt := range []int{40, 62, 63, 64, 99} {
		assert.Equal(t, time.Duration(math.MaxInt64), p.Delay(attempt), "attempt %d", attempt)
	}
	assert.Greater(t, p.Delay(30), p.Delay(29))
	assert.Equal(t, time.Duration(0), RetryPolicy{MaxAttempts: 100}.Delay(70))
}

func TestNewCommitter_NormalizesPolicy(t *testing.T) {
	c := NewCommitter(RetryPolicy{MaxAttempts: 0, InitialDelay: -time.Second})
	assert.Equal(t, 1, c.Policy().MaxAttempts)
	assert.Equal(t, time.Duration(0), c.Policy().InitialDelay)
}

func TestCommitter_SucceedsFirstTry(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(rec.sleep))

	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	op, calls := updateTierOp(uuid.New())
	require.NoError(t, c.Commit(context.Background(), s, op))

	assert.Equal(t, 1, *calls)
	assert.Empty(t, rec.delays)
	assert.False(t, s.InTransaction())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_RetriesTransientLockThenSucceeds(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(rec.sleep))
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(updateTier).WillReturnError(deadlock)
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	op, calls := updateTierOp(uuid.New())
	require.NoError(t, c.Commit(context.Background(), s, op))

	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_BackoffDoubles(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(RetryPolicy{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond}, WithSleep(rec.sleep))
	locked := &pgconn.PgError{Code: "55P03"}

	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(updateTier).WillReturnError(locked)
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	op, _ := updateTierOp(uuid.New())
	require.NoError(t, c.Commit(context.Background(), s, op))

	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
	}, rec.delays)
}

func TestCommitter_ExhaustsRetries(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(rec.sleep))
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access"}

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(updateTier).WillReturnError(serialization)
		mock.ExpectRollback()
	}

	op, calls := updateTierOp(uuid.New())
	err := c.Commit(context.Background(), s, op)
	require.Error(t, err)

	assert.Equal(t, shared.FaultExhausted, shared.KindOf(err))
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.ErrorIs(t, err, serialization)

	var fault *shared.Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, 3, fault.Attempts)

	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays,
		"no wait after the final attempt")
	assert.False(t, s.InTransaction())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_PermanentFailureIsNotRetried(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(rec.sleep))
	violation := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}

	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnError(violation)
	mock.ExpectRollback()

	op, calls := updateTierOp(uuid.New())
	err := c.Commit(context.Background(), s, op)

	require.Error(t, err)
	assert.Equal(t, shared.FaultPermanent, shared.KindOf(err))
	assert.ErrorIs(t, err, violation)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, rec.delays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_DomainErrorReturnedAsIs(t *testing.T) {
	s, mock := newMockSession(t)
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(func(time.Duration) { t.Fatal("unexpected sleep") }))

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := c.Commit(context.Background(), s, func(ctx context.Context, tx *gorm.DB) error {
		return shared.ErrInvalidTier
	})
	assert.Same(t, shared.ErrInvalidTier, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_TransientCommitFailure(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(rec.sleep))

	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	op, calls := updateTierOp(uuid.New())
	require.NoError(t, c.Commit(context.Background(), s, op))
	assert.Equal(t, 2, *calls)
	assert.Len(t, rec.delays, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_CommitWithPolicy(t *testing.T) {
	s, mock := newMockSession(t)
	rec := &recordingSleep{}
	c := NewCommitter(DefaultRetryPolicy(), WithSleep(rec.sleep))

	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	op, calls := updateTierOp(uuid.New())
	err := c.CommitWithPolicy(context.Background(), s, RetryPolicy{MaxAttempts: 1}, op)

	assert.Equal(t, shared.FaultExhausted, shared.KindOf(err))
	assert.Equal(t, 1, *calls)
	assert.Empty(t, rec.delays)
}

func TestCommitter_IgnoresCancellation(t *testing.T) {
	s, mock := newMockSession(t)
	c := NewCommitter(DefaultRetryPolicy())

	mock.ExpectBegin()
	mock.ExpectExec(updateTier).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op, _ := updateTierOp(uuid.New())
	require.NoError(t, c.Commit(ctx, s, op))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitter_OpenTransactionIsPermanent(t *testing.T) {
	s, mock := newMockSession(t)
	c := NewCommitter(DefaultRetryPolicy())

	mock.ExpectBegin()
	_, err := s.Begin(context.Background())
	require.NoError(t, err)

	op, calls := updateTierOp(uuid.New())
	err = c.Commit(context.Background(), s, op)
	assert.ErrorIs(t, err, ErrTransactionOpen)
	assert.Equal(t, shared.FaultPermanent, shared.KindOf(err))
	assert.Zero(t, *calls)
}
