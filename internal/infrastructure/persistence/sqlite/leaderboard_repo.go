package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

// Standings sums, per user, the XP of each step at its first validation
// across progressions. Users without validations score zero.
func (s *Store) Standings(ctx context.Context, q leaderboard.StandingsQuery) ([]leaderboard.Standing, error) {
	var (
		window    string
		windowArg []any
		conds     []string
		args      []any
	)
	if !q.Since.IsZero() {
		window = ` AND fv.first_at >= ? AND fv.first_at <= ?`
		windowArg = []any{timeutil.ToMillis(q.Since), timeutil.ToMillis(q.Until)}
	}
	if q.GroupID != 0 {
		conds = append(conds, `u.id IN (SELECT user_id FROM user_group_members WHERE group_id = ?)`)
		args = append(args, q.GroupID)
	}

	query := `
WITH first_validation AS (
    SELECT user_id, step_id, MIN(validated_at) AS first_at
    FROM validations
    GROUP BY user_id, step_id
),
earned AS (
    SELECT fv.user_id, SUM(st.xp_reward) AS total
    FROM first_validation fv
    JOIN steps st ON st.id = fv.step_id
    WHERE 1 = 1` + window + `
    GROUP BY fv.user_id
)
SELECT u.id, u.display_name, u.created_at, COALESCE(earned.total, 0) AS xp
FROM users u
LEFT JOIN earned ON earned.user_id = u.id`
	if q.ExcludeZero {
		conds = append(conds, `COALESCE(earned.total, 0) > 0`)
	}
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	query += "\nORDER BY xp DESC, u.created_at ASC, u.id ASC"
	if q.Limit > 0 {
		query += fmt.Sprintf("\nLIMIT %d", q.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, append(windowArg, args...)...)
	if err != nil {
		return nil, fmt.Errorf("standings: %w", err)
	}
	defer rows.Close()

	var out []leaderboard.Standing
	for rows.Next() {
		var (
			st        leaderboard.Standing
			createdAt int64
		)
		if err := rows.Scan(&st.UserID, &st.DisplayName, &createdAt, &st.XP); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		st.CreatedAt = timeutil.FromMillis(createdAt)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate standings: %w", err)
	}
	return out, nil
}
