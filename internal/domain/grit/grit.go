// Package grit computes the persistence signal of an ordered attempt history.
package grit

// Score returns a value in [0,1] for outcomes ordered oldest first
// (true = success):
//
//   - no attempts: 0
//   - no failures: 1
//   - otherwise 0.5*recoveryRate + 0.5*finalOutcome, where recoveryRate is
//     the share of failures followed by another attempt and finalOutcome is
//     1 when the last attempt succeeded.
func Score(outcomes []bool) float64 {
	n := len(outcomes)
	if n == 0 {
		return 0
	}
	failures, recovered := 0, 0
	for i, ok := range outcomes {
		if ok {
			continue
		}
		failures++
		if i < n-1 {
			recovered++
		}
	}
	return combine(failures, recovered, outcomes[n-1])
}

// Outcome is one attempt of a history spanning several steps.
type Outcome struct {
	StepID    int64
	Succeeded bool
}

// ScoreSteps scores a history that mixes steps, oldest first. A failure is
// recovered only by a later attempt on the same step; moving on to another
// step abandons it. The final outcome is the last attempt overall. On a
// single-step history it equals Score.
func ScoreSteps(outcomes []Outcome) float64 {
	n := len(outcomes)
	if n == 0 {
		return 0
	}

	// pending holds each step's failures not yet followed by a retry.
	pending := make(map[int64]int)
	failures, recovered := 0, 0
	for _, o := range outcomes {
		recovered += pending[o.StepID]
		pending[o.StepID] = 0
		if !o.Succeeded {
			failures++
			pending[o.StepID] = 1
		}
	}
	return combine(failures, recovered, outcomes[n-1].Succeeded)
}

func combine(failures, recovered int, lastSucceeded bool) float64 {
	if failures == 0 {
		return 1
	}
	recoveryRate := float64(recovered) / float64(failures)
	final := 0.0
	if lastSucceeded {
		final = 1
	}
	return 0.5*recoveryRate + 0.5*final
}

// Scope selects which attempts feed the score.
type Scope string

const (
	ScopeStep   Scope = "step"
	ScopeFigure Scope = "figure"
	ScopeUser   Scope = "user"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeStep, ScopeFigure, ScopeUser:
		return Scope(s), true
	}
	return "", false
}
