// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENSURE VALIDATED
// Idempotent creation of the validation for (user, step, progression). The
// first success wins; later calls return the stored row untouched.
// ══════════════════════════════════════════════════════════════════════════════

// EnsureOutcome reports what EnsureValidated found or created.
type EnsureOutcome struct {
	Validation validation.Validation
	// Created is true when this call inserted the row.
	Created bool
	// RecoveredConflict is true when a concurrent insert won the race and
	// its row was returned instead.
	RecoveredConflict bool
}

// EnsureValidated returns the validation for k, creating it at now when absent.
// A uniqueness conflict from a concurrent writer is resolved by re-reading
// the winner; shared.ErrConflict never escapes.
func EnsureValidated(ctx context.Context, repo validation.Repository, k validation.Key, step catalog.Step, now time.Time) (EnsureOutcome, error) {
	existing, err := repo.Find(ctx, k)
	switch {
	case err == nil:
		return EnsureOutcome{Validation: existing}, nil
	case !shared.IsNotFound(err):
		return EnsureOutcome{}, fmt.Errorf("ensure_validated: find: %w", err)
	}

	v := validation.New(k, step, now)
	err = repo.Insert(ctx, v)
	if err == nil {
		return EnsureOutcome{Validation: v, Created: true}, nil
	}
	if !shared.IsConflict(err) {
		return EnsureOutcome{}, fmt.Errorf("ensure_validated: insert: %w", err)
	}

	winner, err := repo.Find(ctx, k)
	if shared.IsNotFound(err) {
		return EnsureOutcome{}, fmt.Errorf("ensure_validated: conflict reported but no row for %+v", k)
	}
	if err != nil {
		return EnsureOutcome{}, fmt.Errorf("ensure_validated: re-read after conflict: %w", err)
	}
	return EnsureOutcome{Validation: winner, RecoveredConflict: true}, nil
}
