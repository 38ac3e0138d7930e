// Package progress defines the transactional boundary shared by the attempt
// ledger and the validation store: an attempt and the validation it creates
// commit together or not at all.
package progress

import (
	"context"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
)

// Tx exposes repositories bound to one storage transaction.
type Tx struct {
	Attempts    attempt.Ledger
	Validations validation.Repository
}

// UnitOfWork runs fn inside a storage transaction. The transaction commits
// when fn returns nil and rolls back otherwise. Implementations may re-run
// fn after a transient storage failure, so fn must not have side effects
// outside tx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
