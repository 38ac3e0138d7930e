package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
)

type attemptRepo struct {
	q Querier
}

func (r *attemptRepo) Append(ctx context.Context, a *attempt.Attempt) error {
	if a == nil {
		return fmt.Errorf("attempt is required")
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO attempts (id, user_id, step_id, progression_id, succeeded, occurred_at, note, shared_with_teacher)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`,
		a.ID.String(),
		a.UserID,
		a.StepID,
		a.ProgressionID,
		a.Succeeded,
		a.OccurredAt,
		a.Note,
		a.SharedWithTeacher,
	).Scan(&a.Seq)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (r *attemptRepo) CountFailures(ctx context.Context, userID, stepID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id = $1 AND step_id = $2 AND NOT succeeded`,
		userID, stepID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

func (r *attemptRepo) List(ctx context.Context, q attempt.Query) ([]attempt.Attempt, error) {
	var (
		conds = []string{"a.user_id = $1"}
		args  = []any{q.UserID}
		join  string
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.StepID != 0 {
		add("a.step_id = $%d", q.StepID)
	}
	if q.FigureID != 0 {
		join = " JOIN steps s ON s.id = a.step_id"
		add("s.figure_id = $%d", q.FigureID)
	}
	if q.ProgressionID != 0 {
		add("a.progression_id = $%d", q.ProgressionID)
	}
	if q.SucceededOnly {
		conds = append(conds, "a.succeeded")
	}

	rows, err := r.q.Query(ctx, `
		SELECT a.seq, a.id::text, a.user_id, a.step_id, a.progression_id, a.succeeded,
		       a.occurred_at, a.note, a.shared_with_teacher
		FROM attempts a`+join+`
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY a.occurred_at, a.seq
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []attempt.Attempt
	for rows.Next() {
		var (
			a          attempt.Attempt
			id         string
			occurredAt time.Time
		)
		if err := rows.Scan(&a.Seq, &id, &a.UserID, &a.StepID, &a.ProgressionID, &a.Succeeded, &occurredAt, &a.Note, &a.SharedWithTeacher); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse attempt id %q: %w", id, err)
		}
		a.OccurredAt = occurredAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}
