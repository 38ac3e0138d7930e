package attempt

import (
	"context"
)

// Query selects ledger rows for one user. Zero-valued filters match everything.
type Query struct {
	UserID        int64
	StepID        int64
	FigureID      int64
	ProgressionID int64
	SucceededOnly bool
}

// Ledger is the append-only attempt store.
type Ledger interface {
	// Append stores a and assigns a.Seq.
	Append(ctx context.Context, a *Attempt) error

	// CountFailures counts failing attempts for (user, step) across every
	// progression.
	CountFailures(ctx context.Context, userID, stepID int64) (int, error)

	// List returns matching attempts ordered by (OccurredAt, Seq).
	List(ctx context.Context, q Query) ([]Attempt, error)
}
