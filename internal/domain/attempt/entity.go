// Package attempt models the append-only ledger of practice attempts and
// the advisory blocking policy derived from it.
package attempt

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
)

// MaxNoteLength bounds the free-text note, in characters.
const MaxNoteLength = 2000

// Attempt is one immutable practice try at a step.
type Attempt struct {
	ID            uuid.UUID
	UserID        int64
	StepID        int64
	ProgressionID int64
	Succeeded     bool
	OccurredAt    time.Time
	// Note is empty when the learner left none.
	Note              string
	SharedWithTeacher bool

	// Seq is the storage insertion sequence. Together with OccurredAt it
	// gives the ledger a total order.
	Seq int64
}

// NewAttempt validates the input and builds an attempt stamped at occurredAt,
// truncated to the millisecond precision every store keeps.
func NewAttempt(userID, stepID, progressionID int64, succeeded bool, note string, sharedWithTeacher bool, occurredAt time.Time) (*Attempt, error) {
	const op = "New"
	if err := shared.RequireIDs("attempt", op,
		shared.ID("user_id", userID),
		shared.ID("step_id", stepID),
		shared.ID("progression_id", progressionID),
	); err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(note); n > MaxNoteLength {
		return nil, shared.InvalidArgument("attempt", op, "note", n, "longer than 2000 characters")
	}
	return &Attempt{
		ID:                uuid.New(),
		UserID:            userID,
		StepID:            stepID,
		ProgressionID:     progressionID,
		Succeeded:         succeeded,
		OccurredAt:        occurredAt.UTC().Truncate(time.Millisecond),
		Note:              note,
		SharedWithTeacher: sharedWithTeacher,
	}, nil
}

// Before reports whether a precedes b in ledger order.
func (a Attempt) Before(b Attempt) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.Before(b.OccurredAt)
	}
	return a.Seq < b.Seq
}

// Outcomes projects attempts onto their success flags, preserving order.
func Outcomes(attempts []Attempt) []bool {
	out := make([]bool, len(attempts))
	for i, a := range attempts {
		out[i] = a.Succeeded
	}
	return out
}
