package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const stepColumns = `id, figure_id, step_order, critical_failure_threshold, xp_reward, side, required`

func scanStep(row pgx.Row) (catalog.Step, error) {
	var (
		s    catalog.Step
		side string
	)
	if err := row.Scan(&s.ID, &s.FigureID, &s.Order, &s.CriticalFailureThreshold, &s.XPReward, &side, &s.Required); err != nil {
		return catalog.Step{}, err
	}
	parsed, err := catalog.ParseSide(side)
	if err != nil {
		return catalog.Step{}, fmt.Errorf("step %d: %w", s.ID, err)
	}
	s.Side = parsed
	return s, nil
}

// GetStep returns one step.
func (s *Store) GetStep(ctx context.Context, stepID int64) (catalog.Step, error) {
	step, err := scanStep(s.conn.Pool().QueryRow(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = $1`, stepID))
	if IsNoRows(err) {
		return catalog.Step{}, shared.NotFound("catalog", "GetStep", "step", stepID)
	}
	if err != nil {
		return catalog.Step{}, fmt.Errorf("get step: %w", err)
	}
	return step, nil
}

// GetFigure returns one figure with its ordered steps.
func (s *Store) GetFigure(ctx context.Context, figureID int64) (catalog.Figure, error) {
	f := catalog.Figure{ID: figureID}
	err := s.conn.Pool().QueryRow(ctx,
		`SELECT discipline_id, name FROM figures WHERE id = $1`, figureID,
	).Scan(&f.DisciplineID, &f.Name)
	if IsNoRows(err) {
		return catalog.Figure{}, shared.NotFound("catalog", "GetFigure", "figure", figureID)
	}
	if err != nil {
		return catalog.Figure{}, fmt.Errorf("get figure: %w", err)
	}
	if f.Steps, err = s.listSteps(ctx, `WHERE figure_id = $1`, figureID); err != nil {
		return catalog.Figure{}, err
	}
	return f, nil
}

// ListFigures returns every figure with its steps.
func (s *Store) ListFigures(ctx context.Context) ([]catalog.Figure, error) {
	rows, err := s.conn.Pool().Query(ctx, `SELECT id, discipline_id, name FROM figures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list figures: %w", err)
	}
	figures, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Figure, error) {
		var f catalog.Figure
		err := row.Scan(&f.ID, &f.DisciplineID, &f.Name)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan figures: %w", err)
	}

	steps, err := s.listSteps(ctx, "")
	if err != nil {
		return nil, err
	}
	byFigure := make(map[int64][]catalog.Step)
	for _, st := range steps {
		byFigure[st.FigureID] = append(byFigure[st.FigureID], st)
	}
	for i := range figures {
		figures[i].Steps = byFigure[figures[i].ID]
	}
	return figures, nil
}

// ListDisciplines returns every discipline.
func (s *Store) ListDisciplines(ctx context.Context) ([]catalog.Discipline, error) {
	rows, err := s.conn.Pool().Query(ctx, `SELECT id, name FROM disciplines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list disciplines: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Discipline, error) {
		var d catalog.Discipline
		err := row.Scan(&d.ID, &d.Name)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan disciplines: %w", err)
	}
	return out, nil
}

func (s *Store) listSteps(ctx context.Context, where string, args ...any) ([]catalog.Step, error) {
	rows, err := s.conn.Pool().Query(ctx,
		`SELECT `+stepColumns+` FROM steps `+where+` ORDER BY figure_id, step_order, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Step, error) {
		return scanStep(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan steps: %w", err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// GetUser returns one user.
func (s *Store) GetUser(ctx context.Context, userID int64) (user.User, error) {
	var (
		u         = user.User{ID: userID}
		role      string
		createdAt time.Time
	)
	err := s.conn.Pool().QueryRow(ctx,
		`SELECT display_name, role, created_at FROM users WHERE id = $1`, userID,
	).Scan(&u.DisplayName, &role, &createdAt)
	if IsNoRows(err) {
		return user.User{}, shared.NotFound("user", "GetUser", "user", userID)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Role = user.Role(role)
	u.CreatedAt = createdAt.UTC()
	return u, nil
}

// GroupExists reports whether the group is known.
func (s *Store) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	var exists bool
	err := s.conn.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_groups WHERE id = $1)`, groupID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("group exists: %w", err)
	}
	return exists, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITERS
// ══════════════════════════════════════════════════════════════════════════════

// CreateUser inserts or updates a user.
func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	role := u.Role
	if role == "" {
		role = user.RoleStudent
	}
	_, err := s.conn.Pool().Exec(ctx, `
		INSERT INTO users (id, display_name, role, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, role = EXCLUDED.role
	`, u.ID, u.DisplayName, string(role), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateGroup inserts a group.
func (s *Store) CreateGroup(ctx context.Context, groupID int64, name string) error {
	if _, err := s.conn.Pool().Exec(ctx,
		`INSERT INTO user_groups (id, name) VALUES ($1, $2)`, groupID, name); err != nil {
		if IsUniqueViolation(err) {
			return shared.Conflict("user", "CreateGroup", "group already exists", err)
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// AddGroupMember puts a user in a group. Adding twice is a no-op.
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.conn.Pool().Exec(ctx,
		`INSERT INTO user_group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// CreateDiscipline inserts a discipline.
func (s *Store) CreateDiscipline(ctx context.Context, d catalog.Discipline) error {
	if _, err := s.conn.Pool().Exec(ctx,
		`INSERT INTO disciplines (id, name) VALUES ($1, $2)`, d.ID, d.Name); err != nil {
		return fmt.Errorf("create discipline: %w", err)
	}
	return nil
}

// CreateFigure inserts a figure and its steps in one transaction.
func (s *Store) CreateFigure(ctx context.Context, f catalog.Figure) error {
	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO figures (id, discipline_id, name) VALUES ($1, $2, $3)`,
			f.ID, f.DisciplineID, f.Name); err != nil {
			return fmt.Errorf("create figure: %w", err)
		}
		batch := &pgx.Batch{}
		for _, st := range f.Steps {
			side, err := catalog.ParseSide(string(st.Side))
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO steps (`+stepColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				st.ID, f.ID, st.Order, st.CriticalFailureThreshold, st.XPReward, string(side), st.Required)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("create steps: %w", err)
		}
		return nil
	})
}
