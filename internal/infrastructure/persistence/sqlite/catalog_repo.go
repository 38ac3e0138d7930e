package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

const stepColumns = `id, figure_id, step_order, critical_failure_threshold, xp_reward, side, required`

func scanStep(scan func(dest ...any) error) (catalog.Step, error) {
	var (
		s    catalog.Step
		side string
	)
	if err := scan(&s.ID, &s.FigureID, &s.Order, &s.CriticalFailureThreshold, &s.XPReward, &side, &s.Required); err != nil {
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
	step, err := scanStep(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM steps WHERE id = ?`, stepID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT discipline_id, name FROM figures WHERE id = ?`, figureID,
	).Scan(&f.DisciplineID, &f.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Figure{}, shared.NotFound("catalog", "GetFigure", "figure", figureID)
	}
	if err != nil {
		return catalog.Figure{}, fmt.Errorf("get figure: %w", err)
	}
	steps, err := s.listSteps(ctx, `WHERE figure_id = ?`, figureID)
	if err != nil {
		return catalog.Figure{}, err
	}
	f.Steps = steps
	return f, nil
}

// ListFigures returns every figure with its steps.
func (s *Store) ListFigures(ctx context.Context) ([]catalog.Figure, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, discipline_id, name FROM figures ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list figures: %w", err)
	}
	var figures []catalog.Figure
	for rows.Next() {
		var f catalog.Figure
		if err := rows.Scan(&f.ID, &f.DisciplineID, &f.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan figure: %w", err)
		}
		figures = append(figures, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate figures: %w", err)
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
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name FROM disciplines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list disciplines: %w", err)
	}
	defer rows.Close()

	var out []catalog.Discipline
	for rows.Next() {
		var d catalog.Discipline
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("scan discipline: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) listSteps(ctx context.Context, where string, args ...any) ([]catalog.Step, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM steps `+where+` ORDER BY figure_id, step_order, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []catalog.Step
	for rows.Next() {
		st, err := scanStep(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
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
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT display_name, role, created_at FROM users WHERE id = ?`, userID,
	).Scan(&u.DisplayName, &role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, shared.NotFound("user", "GetUser", "user", userID)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Role = user.Role(role)
	u.CreatedAt = timeutil.FromMillis(createdAt)
	return u, nil
}

// GroupExists reports whether the group is known.
func (s *Store) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM user_groups WHERE id = ?`, groupID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("group exists: %w", err)
	}
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITERS
// Catalog and directory rows are owned upstream; these writers seed them.
// ══════════════════════════════════════════════════════════════════════════════

// CreateUser inserts or replaces a user.
func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	role := u.Role
	if role == "" {
		role = user.RoleStudent
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, display_name, role, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role`,
		u.ID, u.DisplayName, string(role), timeutil.ToMillis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateGroup inserts a group.
func (s *Store) CreateGroup(ctx context.Context, groupID int64, name string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO user_groups (id, name) VALUES (?, ?)`, groupID, name); err != nil {
		if isUniqueViolation(err) {
			return shared.Conflict("user", "CreateGroup", "group already exists", err)
		}
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// AddGroupMember puts a user in a group. Adding twice is a no-op.
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO user_group_members (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		groupID, userID); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// CreateDiscipline inserts a discipline.
func (s *Store) CreateDiscipline(ctx context.Context, d catalog.Discipline) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO disciplines (id, name) VALUES (?, ?)`, d.ID, d.Name); err != nil {
		return fmt.Errorf("create discipline: %w", err)
	}
	return nil
}

// CreateFigure inserts a figure and its steps in one transaction.
func (s *Store) CreateFigure(ctx context.Context, f catalog.Figure) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create figure: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO figures (id, discipline_id, name) VALUES (?, ?, ?)`,
		f.ID, f.DisciplineID, f.Name); err != nil {
		return fmt.Errorf("create figure: %w", err)
	}
	for _, st := range f.Steps {
		side, err := catalog.ParseSide(string(st.Side))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO steps (`+stepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			st.ID, f.ID, st.Order, st.CriticalFailureThreshold, st.XPReward, string(side), st.Required); err != nil {
			return fmt.Errorf("create step %d: %w", st.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create figure: commit: %w", err)
	}
	return nil
}
