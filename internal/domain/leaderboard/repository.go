package leaderboard

import (
	"context"
	"time"
)

// StandingsQuery describes one aggregation over first validations.
type StandingsQuery struct {
	// Since/Until bound the first-validation time of counted steps when
	// Since is non-zero (weekly boards).
	Since time.Time
	Until time.Time

	// GroupID restricts ranked users to one group when non-zero.
	GroupID int64

	// ExcludeZero drops users without XP in the window.
	ExcludeZero bool

	// Limit caps rows returned after ordering with Less. Zero means no cap.
	Limit int
}

// Repository computes XP standings in a single pass, already ordered by Less.
type Repository interface {
	Standings(ctx context.Context, q StandingsQuery) ([]Standing, error)
}

// Cache stores ranked boards. Get reports ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, scope Scope, limit int) ([]Entry, bool, error)
	Set(ctx context.Context, scope Scope, limit int, entries []Entry) error
	// InvalidateAll drops every cached board.
	InvalidateAll(ctx context.Context) error
}
