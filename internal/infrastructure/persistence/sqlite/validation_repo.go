package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

type validationRepo struct {
	q querier
}

func (r *validationRepo) Find(ctx context.Context, k validation.Key) (validation.Validation, error) {
	var (
		v           = validation.Validation{UserID: k.UserID, StepID: k.StepID, ProgressionID: k.ProgressionID}
		validatedAt int64
		side        string
	)
	err := r.q.QueryRowContext(ctx, `
SELECT validated_at, side FROM validations
WHERE user_id = ? AND step_id = ? AND progression_id = ?`,
		k.UserID, k.StepID, k.ProgressionID,
	).Scan(&validatedAt, &side)
	if errors.Is(err, sql.ErrNoRows) {
		return validation.Validation{}, shared.NotFound("validation", "Find", "validation",
			fmt.Sprintf("%d/%d/%d", k.UserID, k.StepID, k.ProgressionID))
	}
	if err != nil {
		return validation.Validation{}, fmt.Errorf("find validation: %w", err)
	}
	v.ValidatedAt = timeutil.FromMillis(validatedAt)
	v.Side = validation.Side(side)
	return v, nil
}

func (r *validationRepo) Insert(ctx context.Context, v validation.Validation) error {
	res, err := r.q.ExecContext(ctx, `
INSERT INTO validations (user_id, step_id, progression_id, validated_at, side)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, step_id, progression_id) DO NOTHING`,
		v.UserID, v.StepID, v.ProgressionID, timeutil.ToMillis(v.ValidatedAt), string(v.Side),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.Conflict("validation", "Insert", "validation already exists", err)
		}
		return fmt.Errorf("insert validation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert validation: rows affected: %w", err)
	}
	if n == 0 {
		return shared.Conflict("validation", "Insert", "validation already exists", nil)
	}
	return nil
}

func (r *validationRepo) ListByUser(ctx context.Context, userID int64) ([]validation.Validation, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT user_id, step_id, progression_id, validated_at, side FROM validations
WHERE user_id = ?
ORDER BY validated_at, step_id, progression_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var out []validation.Validation
	for rows.Next() {
		var (
			v           validation.Validation
			validatedAt int64
			side        string
		)
		if err := rows.Scan(&v.UserID, &v.StepID, &v.ProgressionID, &validatedAt, &side); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		v.ValidatedAt = timeutil.FromMillis(validatedAt)
		v.Side = validation.Side(side)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validations: %w", err)
	}
	return out, nil
}
