package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/progress"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
	"github.com/Keldarne/cirque-app-sub003/pkg/retry"
)

// Store is the PostgreSQL progression store. It implements the unit of
// work, the catalog, the user directory and the leaderboard repository.
type Store struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewStore wraps an open connection.
func NewStore(conn *Connection, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("postgres"))
	return &Store{
		conn:    conn,
		retrier: retry.StorageRetrier(IsTransient, logRetry(log)),
	}
}

// logRetry reports each retried transaction.
func logRetry(log *logger.Logger) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("transient transaction failure, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
}

// Connection returns the underlying connection.
func (s *Store) Connection() *Connection {
	return s.conn
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// WithinTx runs fn in a read committed transaction, retrying on
// serialization failures, deadlocks and dropped connections.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progress.Tx) error) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			return fn(ctx, progress.Tx{
				Attempts:    &attemptRepo{q: tx},
				Validations: &validationRepo{q: tx},
			})
		})
	})
}

// Attempts returns the ledger outside any transaction.
func (s *Store) Attempts() attempt.Ledger {
	return &attemptRepo{q: s.conn.Pool()}
}

// Validations returns the validation repository outside any transaction.
func (s *Store) Validations() validation.Repository {
	return &validationRepo{q: s.conn.Pool()}
}

// Migrate applies pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := NewMigrator(s.conn).Migrate(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}
