// Package validation holds the per (user, step, progression) mastery state
// machine: unattempted, attempted, validated. Validated is terminal.
package validation

import (
	"context"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Side records which body side a validation counts for.
type Side string

const (
	SideLeft          Side = "left"
	SideRight         Side = "right"
	SideNotApplicable Side = "non_applicable"
)

// SideFromStep maps a catalog side onto a validation side.
func SideFromStep(s catalog.Side) Side {
	switch s {
	case catalog.SideLeft:
		return SideLeft
	case catalog.SideRight:
		return SideRight
	default:
		return SideNotApplicable
	}
}

// State of a step for one (user, progression).
type State string

const (
	StateUnattempted State = "unattempted"
	StateAttempted   State = "attempted"
	StateValidated   State = "validated"
)

// Key identifies a validation.
type Key struct {
	UserID        int64
	StepID        int64
	ProgressionID int64
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Validation is the record that a user mastered a step within a progression.
// Created once by the first success, never mutated or deleted.
type Validation struct {
	UserID        int64
	StepID        int64
	ProgressionID int64
	ValidatedAt   time.Time
	Side          Side
}

// Key returns the uniqueness key of v.
func (v Validation) Key() Key {
	return Key{UserID: v.UserID, StepID: v.StepID, ProgressionID: v.ProgressionID}
}

// New builds the validation created by a first success at validatedAt.
func New(k Key, step catalog.Step, validatedAt time.Time) Validation {
	return Validation{
		UserID:        k.UserID,
		StepID:        k.StepID,
		ProgressionID: k.ProgressionID,
		ValidatedAt:   validatedAt.UTC(),
		Side:          SideFromStep(step.Side),
	}
}

// DeriveState folds an ordered attempt sequence for one (user, step,
// progression) into its state. Once a success is seen the state stays
// validated whatever follows.
func DeriveState(attempts []attempt.Attempt) State {
	state := StateUnattempted
	for _, a := range attempts {
		if a.Succeeded {
			return StateValidated
		}
		state = StateAttempted
	}
	return state
}

// ══════════════════════════════════════════════════════════════════════════════
// PORT
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores validations.
type Repository interface {
	// Find returns the validation for k or shared.ErrNotFound.
	Find(ctx context.Context, k Key) (Validation, error)

	// Insert stores v. A row already present for v.Key() yields
	// shared.ErrConflict.
	Insert(ctx context.Context, v Validation) error

	// ListByUser returns every validation of the user, ordered by
	// (ValidatedAt, StepID, ProgressionID).
	ListByUser(ctx context.Context, userID int64) ([]Validation, error)
}

// FirstByStep collapses validations across progressions, keeping the
// earliest one per step.
func FirstByStep(vs []Validation) map[int64]Validation {
	first := make(map[int64]Validation, len(vs))
	for _, v := range vs {
		cur, ok := first[v.StepID]
		if !ok || v.ValidatedAt.Before(cur.ValidatedAt) {
			first[v.StepID] = v
		}
	}
	return first
}
