// Package sqlite is the embedded SQLite backend of the progression store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/progress"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite/migrations"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
	"github.com/Keldarne/cirque-app-sub003/pkg/retry"
)

const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides SQLite-backed persistence for attempts, validations,
// the catalog and leaderboard standings.
type Store struct {
	sqlDB   *sql.DB
	retrier *retry.Retrier
}

// Open opens a SQLite store at the provided path and applies migrations.
func Open(path string, log *logger.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sqlDB, err := sql.Open("sqlite", "file:"+path+sep+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	log = log.With(logger.Component("sqlite"))
	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Debug("database busy, retrying transaction",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
	store := &Store{
		sqlDB:   sqlDB,
		retrier: retry.StorageRetrier(isTransient, onRetry),
	}
	if err := ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// DB exposes the handle for tests and seed tooling.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

// WithinTx runs fn inside an immediate transaction. Busy and locked errors
// roll back and re-run fn.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progress.Tx) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = sqlTx.Rollback() }()

		if err := fn(ctx, progress.Tx{
			Attempts:    &attemptRepo{q: sqlTx},
			Validations: &validationRepo{q: sqlTx},
		}); err != nil {
			return err
		}
		if err := sqlTx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// Attempts returns the ledger outside any transaction.
func (s *Store) Attempts() attempt.Ledger {
	return &attemptRepo{q: s.sqlDB}
}

// Validations returns the validation repository outside any transaction.
func (s *Store) Validations() validation.Repository {
	return &validationRepo{q: s.sqlDB}
}

func sqliteCode(err error) (int, bool) {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0, false
	}
	return sqliteErr.Code(), true
}

func isTransient(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	code &= 0xff
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}

func isUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}
