package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STEP PROGRESS QUERY
// Exposes the validation state machine of one (user, step, progression) and
// the current advisory block on the step.
// ══════════════════════════════════════════════════════════════════════════════

// GetStepProgressQuery selects the tuple.
type GetStepProgressQuery struct {
	UserID        int64
	StepID        int64
	ProgressionID int64
}

// Validate checks the query.
func (q GetStepProgressQuery) Validate() error {
	return shared.RequireIDs("validation", "Query",
		shared.ID("user_id", q.UserID),
		shared.ID("step_id", q.StepID),
		shared.ID("progression_id", q.ProgressionID),
	)
}

// ValidationDTO is a stored validation.
type ValidationDTO struct {
	UserID        int64     `json:"user_id"`
	StepID        int64     `json:"step_id"`
	ProgressionID int64     `json:"progression_id"`
	ValidatedAt   time.Time `json:"validated_at"`
	Side          string    `json:"side"`
}

// NewValidationDTO maps a validation for transport.
func NewValidationDTO(v validation.Validation) *ValidationDTO {
	return &ValidationDTO{
		UserID:        v.UserID,
		StepID:        v.StepID,
		ProgressionID: v.ProgressionID,
		ValidatedAt:   v.ValidatedAt,
		Side:          string(v.Side),
	}
}

// GetStepProgressResult describes the tuple's state.
type GetStepProgressResult struct {
	UserID        int64  `json:"user_id"`
	StepID        int64  `json:"step_id"`
	ProgressionID int64  `json:"progression_id"`
	State         string `json:"state"`

	// Attempts counts attempts within the progression.
	Attempts int `json:"attempts"`
	// TotalFailures counts failures on the step across all progressions.
	TotalFailures     int  `json:"total_failures"`
	CriticalThreshold int  `json:"critical_threshold"`
	IsBlocked         bool `json:"is_blocked"`

	Validation *ValidationDTO `json:"validation,omitempty"`
}

// GetStepProgressHandler handles GetStepProgressQuery.
type GetStepProgressHandler struct {
	users       user.Directory
	catalog     catalog.Catalog
	attempts    attempt.Ledger
	validations validation.Repository
}

// NewGetStepProgressHandler creates a new GetStepProgressHandler.
func NewGetStepProgressHandler(users user.Directory, cat catalog.Catalog, attempts attempt.Ledger, validations validation.Repository) *GetStepProgressHandler {
	return &GetStepProgressHandler{users: users, catalog: cat, attempts: attempts, validations: validations}
}

// Handle executes the query.
func (h *GetStepProgressHandler) Handle(ctx context.Context, q GetStepProgressQuery) (*GetStepProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := h.users.GetUser(ctx, q.UserID); err != nil {
		return nil, fmt.Errorf("get_step_progress: get user: %w", err)
	}
	step, err := h.catalog.GetStep(ctx, q.StepID)
	if err != nil {
		return nil, fmt.Errorf("get_step_progress: get step: %w", err)
	}

	history, err := h.attempts.List(ctx, attempt.Query{UserID: q.UserID, StepID: q.StepID})
	if err != nil {
		return nil, fmt.Errorf("get_step_progress: list attempts: %w", err)
	}

	var inProgression []attempt.Attempt
	failures := 0
	for _, a := range history {
		if !a.Succeeded {
			failures++
		}
		if a.ProgressionID == q.ProgressionID {
			inProgression = append(inProgression, a)
		}
	}

	result := &GetStepProgressResult{
		UserID:            q.UserID,
		StepID:            q.StepID,
		ProgressionID:     q.ProgressionID,
		State:             string(validation.DeriveState(inProgression)),
		Attempts:          len(inProgression),
		TotalFailures:     failures,
		CriticalThreshold: step.CriticalFailureThreshold,
	}
	if n := len(history); n > 0 {
		last := history[n-1]
		result.IsBlocked = attempt.IsBlocked(last.Succeeded, failures, step.CriticalFailureThreshold)
	}

	v, err := h.validations.Find(ctx, validation.Key{UserID: q.UserID, StepID: q.StepID, ProgressionID: q.ProgressionID})
	switch {
	case err == nil:
		result.Validation = NewValidationDTO(v)
		result.State = string(validation.StateValidated)
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("get_step_progress: find validation: %w", err)
	}
	return result, nil
}
