package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cozmiclearning/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockSession returns a session over a sqlmock-backed postgres dialector.
func newMockSession(t *testing.T) (*Session, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewSession(db), mock
}

// newSQLiteDatabase opens a migrated sqlite database in a temp dir.
func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
	db, err := NewDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recordingSleep captures backoff waits instead of sleeping.
type recordingSleep struct {
	delays []time.Duration
	hook   func(n int)
}

func (r *recordingSleep) sleep(d time.Duration) {
	r.delays = append(r.delays, d)
	if r.hook != nil {
		r.hook(len(r.delays))
	}
}
