package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	_, err := m.conn.Pool().Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %w", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_directory_and_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_attempts_and_validations", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL,
    role VARCHAR(20) NOT NULL DEFAULT 'student',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('student', 'teacher', 'admin'))
);

CREATE TABLE IF NOT EXISTS user_groups (
    id BIGINT PRIMARY KEY,
    name VARCHAR(100) NOT NULL
);

CREATE TABLE IF NOT EXISTS user_group_members (
    group_id BIGINT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS disciplines (
    id BIGINT PRIMARY KEY,
    name VARCHAR(100) NOT NULL
);

CREATE TABLE IF NOT EXISTS figures (
    id BIGINT PRIMARY KEY,
    discipline_id BIGINT NOT NULL REFERENCES disciplines(id),
    name VARCHAR(200) NOT NULL
);

CREATE TABLE IF NOT EXISTS steps (
    id BIGINT PRIMARY KEY,
    figure_id BIGINT NOT NULL REFERENCES figures(id),
    step_order INTEGER NOT NULL,
    critical_failure_threshold INTEGER NOT NULL,
    xp_reward INTEGER NOT NULL DEFAULT 0,
    side VARCHAR(10) NOT NULL DEFAULT 'none',
    required BOOLEAN NOT NULL DEFAULT TRUE,

    CONSTRAINT valid_threshold CHECK (critical_failure_threshold >= 1),
    CONSTRAINT valid_xp_reward CHECK (xp_reward >= 0),
    CONSTRAINT valid_side CHECK (side IN ('left', 'right', 'none'))
);

CREATE INDEX IF NOT EXISTS idx_steps_figure ON steps(figure_id, step_order);
`

const migration001Down = `
DROP TABLE IF EXISTS steps;
DROP TABLE IF EXISTS figures;
DROP TABLE IF EXISTS disciplines;
DROP TABLE IF EXISTS user_group_members;
DROP TABLE IF EXISTS user_groups;
DROP TABLE IF EXISTS users;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS attempts (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    user_id BIGINT NOT NULL REFERENCES users(id),
    step_id BIGINT NOT NULL REFERENCES steps(id),
    progression_id BIGINT NOT NULL,
    succeeded BOOLEAN NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    shared_with_teacher BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT valid_note CHECK (char_length(note) <= 2000)
);

CREATE INDEX IF NOT EXISTS idx_attempts_user_step ON attempts(user_id, step_id, occurred_at, seq);
CREATE INDEX IF NOT EXISTS idx_attempts_failures ON attempts(user_id, step_id) WHERE NOT succeeded;

CREATE TABLE IF NOT EXISTS validations (
    user_id BIGINT NOT NULL REFERENCES users(id),
    step_id BIGINT NOT NULL REFERENCES steps(id),
    progression_id BIGINT NOT NULL,
    validated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    side VARCHAR(20) NOT NULL,

    PRIMARY KEY (user_id, step_id, progression_id),
    CONSTRAINT valid_validation_side CHECK (side IN ('left', 'right', 'non_applicable'))
);

CREATE INDEX IF NOT EXISTS idx_validations_step_time ON validations(step_id, validated_at);
`

const migration002Down = `
DROP TABLE IF EXISTS validations;
DROP TABLE IF EXISTS attempts;
`
