package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
)

type validationRepo struct {
	q Querier
}

func (r *validationRepo) Find(ctx context.Context, k validation.Key) (validation.Validation, error) {
	var (
		v           = validation.Validation{UserID: k.UserID, StepID: k.StepID, ProgressionID: k.ProgressionID}
		validatedAt time.Time
		side        string
	)
	err := r.q.QueryRow(ctx, `
		SELECT validated_at, side FROM validations
		WHERE user_id = $1 AND step_id = $2 AND progression_id = $3
	`, k.UserID, k.StepID, k.ProgressionID).Scan(&validatedAt, &side)
	if IsNoRows(err) {
		return validation.Validation{}, shared.NotFound("validation", "Find", "validation",
			fmt.Sprintf("%d/%d/%d", k.UserID, k.StepID, k.ProgressionID))
	}
	if err != nil {
		return validation.Validation{}, fmt.Errorf("find validation: %w", err)
	}
	v.ValidatedAt = validatedAt.UTC()
	v.Side = validation.Side(side)
	return v, nil
}

// Insert uses ON CONFLICT DO NOTHING so a lost race does not abort the
// surrounding transaction.
func (r *validationRepo) Insert(ctx context.Context, v validation.Validation) error {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO validations (user_id, step_id, progression_id, validated_at, side)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, step_id, progression_id) DO NOTHING
	`, v.UserID, v.StepID, v.ProgressionID, v.ValidatedAt, string(v.Side))
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.Conflict("validation", "Insert", "validation already exists", err)
		}
		return fmt.Errorf("insert validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflict("validation", "Insert", "validation already exists", nil)
	}
	return nil
}

func (r *validationRepo) ListByUser(ctx context.Context, userID int64) ([]validation.Validation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, step_id, progression_id, validated_at, side FROM validations
		WHERE user_id = $1
		ORDER BY validated_at, step_id, progression_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var out []validation.Validation
	for rows.Next() {
		var (
			v    validation.Validation
			side string
		)
		if err := rows.Scan(&v.UserID, &v.StepID, &v.ProgressionID, &v.ValidatedAt, &side); err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		v.ValidatedAt = v.ValidatedAt.UTC()
		v.Side = validation.Side(side)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validations: %w", err)
	}
	return out, nil
}
