package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

type attemptRepo struct {
	q querier
}

func (r *attemptRepo) Append(ctx context.Context, a *attempt.Attempt) error {
	if a == nil {
		return fmt.Errorf("attempt is required")
	}
	res, err := r.q.ExecContext(ctx, `
INSERT INTO attempts (id, user_id, step_id, progression_id, succeeded, occurred_at, note, shared_with_teacher)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(),
		a.UserID,
		a.StepID,
		a.ProgressionID,
		a.Succeeded,
		timeutil.ToMillis(a.OccurredAt),
		a.Note,
		a.SharedWithTeacher,
	)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append attempt: read seq: %w", err)
	}
	a.Seq = seq
	return nil
}

func (r *attemptRepo) CountFailures(ctx context.Context, userID, stepID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id = ? AND step_id = ? AND succeeded = 0`,
		userID, stepID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

func (r *attemptRepo) List(ctx context.Context, q attempt.Query) ([]attempt.Attempt, error) {
	var (
		conds = []string{"a.user_id = ?"}
		args  = []any{q.UserID}
		join  string
	)
	if q.StepID != 0 {
		conds = append(conds, "a.step_id = ?")
		args = append(args, q.StepID)
	}
	if q.FigureID != 0 {
		join = " JOIN steps s ON s.id = a.step_id"
		conds = append(conds, "s.figure_id = ?")
		args = append(args, q.FigureID)
	}
	if q.ProgressionID != 0 {
		conds = append(conds, "a.progression_id = ?")
		args = append(args, q.ProgressionID)
	}
	if q.SucceededOnly {
		conds = append(conds, "a.succeeded = 1")
	}

	rows, err := r.q.QueryContext(ctx, `
SELECT a.seq, a.id, a.user_id, a.step_id, a.progression_id, a.succeeded, a.occurred_at, a.note, a.shared_with_teacher
FROM attempts a`+join+`
WHERE `+strings.Join(conds, " AND ")+`
ORDER BY a.occurred_at, a.seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []attempt.Attempt
	for rows.Next() {
		var (
			a          attempt.Attempt
			id         string
			occurredAt int64
		)
		if err := rows.Scan(&a.Seq, &id, &a.UserID, &a.StepID, &a.ProgressionID, &a.Succeeded, &occurredAt, &a.Note, &a.SharedWithTeacher); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse attempt id %q: %w", id, err)
		}
		a.OccurredAt = timeutil.FromMillis(occurredAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}
