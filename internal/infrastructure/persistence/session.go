package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

var (
	// ErrTransactionOpen is returned by Begin when the session already holds a transaction.
	ErrTransactionOpen = errors.New("session already has an open transaction")
	// ErrNoTransaction is returned by Commit when there is nothing to commit.
	ErrNoTransaction = errors.New("session has no open transaction")
)

// Session is the request-scoped unit of work. It holds at most one open
// transaction; Rollback is safe to call any number of times.
type Session struct {
	db *gorm.DB

	mu sync.Mutex
	tx *gorm.DB
}

// NewSession creates a session on db.
func NewSession(db *gorm.DB) *Session {
	return &Session{db: db}
}

// Begin opens a transaction bound to ctx.
func (s *Session) Begin(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return nil, ErrTransactionOpen
	}
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	s.tx = tx
	return tx, nil
}

// Commit commits the open transaction. The transaction is finished whether or
// not the commit succeeds.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit().Error
}

// Rollback discards the open transaction, if any.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// DB returns the open transaction, or the session's database handle.
func (s *Session) DB() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}
