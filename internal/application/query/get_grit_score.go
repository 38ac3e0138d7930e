package query

import (
	"context"
	"fmt"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/grit"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GRIT SCORE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetGritScoreQuery selects the attempt history to score.
type GetGritScoreQuery struct {
	UserID int64
	// Scope is "step", "figure" or "user".
	Scope string
	// ScopeID is the step or figure id; ignored for the user scope.
	ScopeID int64
}

// Validate checks the query.
func (q GetGritScoreQuery) Validate() error {
	if err := shared.RequireID("grit", "Query", "user_id", q.UserID); err != nil {
		return err
	}
	scope, ok := grit.ParseScope(q.Scope)
	if !ok {
		return shared.InvalidArgument("grit", "Query", "scope", q.Scope, "must be step, figure or user")
	}
	if scope != grit.ScopeUser {
		return shared.RequireID("grit", "Query", "scope_id", q.ScopeID)
	}
	return nil
}

// GetGritScoreResult is the grit of one history.
type GetGritScoreResult struct {
	UserID   int64   `json:"user_id"`
	Scope    string  `json:"scope"`
	ScopeID  int64   `json:"scope_id,omitempty"`
	Score    float64 `json:"score"`
	Attempts int     `json:"attempts"`
	Failures int     `json:"failures"`
}

// GetGritScoreHandler handles GetGritScoreQuery.
type GetGritScoreHandler struct {
	users    user.Directory
	catalog  catalog.Catalog
	attempts attempt.Ledger
}

// NewGetGritScoreHandler creates a new GetGritScoreHandler.
func NewGetGritScoreHandler(users user.Directory, cat catalog.Catalog, attempts attempt.Ledger) *GetGritScoreHandler {
	return &GetGritScoreHandler{users: users, catalog: cat, attempts: attempts}
}

// Handle executes the query.
func (h *GetGritScoreHandler) Handle(ctx context.Context, q GetGritScoreQuery) (*GetGritScoreResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.users.GetUser(ctx, q.UserID); err != nil {
		return nil, fmt.Errorf("get_grit_score: get user: %w", err)
	}

	scope, _ := grit.ParseScope(q.Scope)
	aq := attempt.Query{UserID: q.UserID}
	switch scope {
	case grit.ScopeStep:
		if _, err := h.catalog.GetStep(ctx, q.ScopeID); err != nil {
			return nil, fmt.Errorf("get_grit_score: get step: %w", err)
		}
		aq.StepID = q.ScopeID
	case grit.ScopeFigure:
		if _, err := h.catalog.GetFigure(ctx, q.ScopeID); err != nil {
			return nil, fmt.Errorf("get_grit_score: get figure: %w", err)
		}
		aq.FigureID = q.ScopeID
	case grit.ScopeUser:
		q.ScopeID = 0
	}

	history, err := h.attempts.List(ctx, aq)
	if err != nil {
		return nil, fmt.Errorf("get_grit_score: list attempts: %w", err)
	}
	outcomes := attempt.Outcomes(history)

	failures := 0
	for _, ok := range outcomes {
		if !ok {
			failures++
		}
	}

	var score float64
	if scope == grit.ScopeStep {
		score = grit.Score(outcomes)
	} else {
		steps := make([]grit.Outcome, len(history))
		for i, a := range history {
			steps[i] = grit.Outcome{StepID: a.StepID, Succeeded: a.Succeeded}
		}
		score = grit.ScoreSteps(steps)
	}

	return &GetGritScoreResult{
		UserID:   q.UserID,
		Scope:    string(scope),
		ScopeID:  q.ScopeID,
		Score:    score,
		Attempts: len(outcomes),
		Failures: failures,
	}, nil
}
