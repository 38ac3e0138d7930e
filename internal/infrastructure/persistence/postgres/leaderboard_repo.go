package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
)

// Standings sums, per user, the XP of each step at its first validation
// across progressions, then orders and limits in SQL.
func (s *Store) Standings(ctx context.Context, q leaderboard.StandingsQuery) ([]leaderboard.Standing, error) {
	var (
		args   []any
		window string
		conds  []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !q.Since.IsZero() {
		window = fmt.Sprintf(" WHERE fv.first_at >= %s AND fv.first_at <= %s", arg(q.Since), arg(q.Until))
	}
	if q.GroupID != 0 {
		conds = append(conds, "u.id IN (SELECT user_id FROM user_group_members WHERE group_id = "+arg(q.GroupID)+")")
	}
	if q.ExcludeZero {
		conds = append(conds, "COALESCE(earned.total, 0) > 0")
	}

	var sb strings.Builder
	sb.WriteString(`
		WITH first_validation AS (
			SELECT user_id, step_id, MIN(validated_at) AS first_at
			FROM validations
			GROUP BY user_id, step_id
		),
		earned AS (
			SELECT fv.user_id, SUM(st.xp_reward) AS total
			FROM first_validation fv
			JOIN steps st ON st.id = fv.step_id` + window + `
			GROUP BY fv.user_id
		)
		SELECT u.id, u.display_name, u.created_at, COALESCE(earned.total, 0)::int AS xp
		FROM users u
		LEFT JOIN earned ON earned.user_id = u.id`)
	if len(conds) > 0 {
		sb.WriteString("\n\t\tWHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString("\n\t\tORDER BY xp DESC, u.created_at ASC, u.id ASC")
	if q.Limit > 0 {
		sb.WriteString("\n\t\tLIMIT " + arg(q.Limit))
	}

	rows, err := s.conn.Pool().Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("standings: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (leaderboard.Standing, error) {
		var (
			st        leaderboard.Standing
			createdAt time.Time
		)
		err := row.Scan(&st.UserID, &st.DisplayName, &createdAt, &st.XP)
		st.CreatedAt = createdAt.UTC()
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan standings: %w", err)
	}
	return out, nil
}
