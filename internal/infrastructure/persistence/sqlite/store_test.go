package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/catalog"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/progress"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite/migrations"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite/sqlitetest"
)

var (
	_ progress.UnitOfWork    = (*sqlite.Store)(nil)
	_ catalog.Catalog        = (*sqlite.Store)(nil)
	_ leaderboard.Repository = (*sqlite.Store)(nil)
)

func appendAttempt(t *testing.T, s *sqlite.Store, userID, stepID int64, ok bool, at time.Time) *attempt.Attempt {
	t.Helper()
	a, err := attempt.NewAttempt(userID, stepID, sqlitetest.Progression, ok, "", false, at)
	require.NoError(t, err)
	require.NoError(t, s.Attempts().Append(context.Background(), a))
	return a
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := sqlite.Open("  ", nil)
	assert.Error(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	s := sqlitetest.Open(t)
	require.NoError(t, sqlite.ApplyMigrations(s.DB(), migrations.FS))
}

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	got := sqlite.ExtractUpMigration("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;")
	assert.Equal(t, "\nCREATE TABLE a (id INTEGER);\n", got)
	assert.Equal(t, "SELECT 1;", sqlite.ExtractUpMigration("SELECT 1;"))
}

func TestCatalogReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)

	step, err := s.GetStep(ctx, sqlitetest.ClimbLeft)
	require.NoError(t, err)
	assert.Equal(t, sqlitetest.Climb, step.FigureID)
	assert.Equal(t, catalog.SideLeft, step.Side)
	assert.Equal(t, 5, step.CriticalFailureThreshold)
	assert.True(t, step.Required)

	_, err = s.GetStep(ctx, 999)
	assert.True(t, shared.IsNotFound(err))

	fig, err := s.GetFigure(ctx, sqlitetest.Cascade)
	require.NoError(t, err)
	require.Len(t, fig.Steps, 2)
	assert.Equal(t, sqlitetest.CascadeThree, fig.Steps[0].ID)
	assert.False(t, fig.Steps[1].Required)

	figures, err := s.ListFigures(ctx)
	require.NoError(t, err)
	require.Len(t, figures, 2)
	assert.Len(t, figures[0].Steps, 3)

	disciplines, err := s.ListDisciplines(ctx)
	require.NoError(t, err)
	assert.Len(t, disciplines, 2)

	u, err := s.GetUser(ctx, sqlitetest.Bob)
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.DisplayName)
	assert.True(t, u.CreatedAt.Equal(sqlitetest.Epoch.AddDate(0, 1, 0)))

	_, err = s.GetUser(ctx, 404)
	assert.True(t, shared.IsNotFound(err))

	ok, err := s.GroupExists(ctx, sqlitetest.Troupe)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.GroupExists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectsZeroThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)

	err := s.CreateFigure(ctx, catalog.Figure{ID: 30, DisciplineID: sqlitetest.Silks, Name: "Drop", Steps: []catalog.Step{
		{ID: 301, Order: 1, CriticalFailureThreshold: 0, XPReward: 5},
	}})
	assert.Error(t, err)

	_, err = s.GetFigure(ctx, 30)
	assert.True(t, shared.IsNotFound(err), "figure insert must roll back with its steps")
}

func TestRejectsUnknownSide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)

	err := s.CreateFigure(ctx, catalog.Figure{ID: 31, DisciplineID: sqlitetest.Silks, Name: "Split", Steps: []catalog.Step{
		{ID: 311, Order: 1, CriticalFailureThreshold: 3, XPReward: 5, Side: catalog.SideLeft},
		{ID: 312, Order: 2, CriticalFailureThreshold: 3, XPReward: 5, Side: "both"},
	}})
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = s.GetFigure(ctx, 31)
	assert.True(t, shared.IsNotFound(err))
}

func TestAttemptLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	first := appendAttempt(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, false, at)
	second := appendAttempt(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, true, at)
	appendAttempt(t, s, sqlitetest.Alice, sqlitetest.CascadeThree, false, at.Add(-time.Hour))
	appendAttempt(t, s, sqlitetest.Bob, sqlitetest.ClimbBase, false, at)
	assert.Less(t, first.Seq, second.Seq)

	n, err := s.Attempts().CountFailures(ctx, sqlitetest.Alice, sqlitetest.ClimbBase)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := s.Attempts().List(ctx, attempt.Query{UserID: sqlitetest.Alice})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, sqlitetest.CascadeThree, all[0].StepID, "ordered by occurred_at first")
	assert.Equal(t, first.ID, all[1].ID, "equal timestamps fall back to seq")
	assert.Equal(t, second.ID, all[2].ID)
	assert.True(t, all[2].OccurredAt.Equal(at))

	byFigure, err := s.Attempts().List(ctx, attempt.Query{UserID: sqlitetest.Alice, FigureID: sqlitetest.Climb})
	require.NoError(t, err)
	assert.Len(t, byFigure, 2)

	wins, err := s.Attempts().List(ctx, attempt.Query{UserID: sqlitetest.Alice, SucceededOnly: true})
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.True(t, wins[0].Succeeded)
}

func TestAttemptNoteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)

	a, err := attempt.NewAttempt(sqlitetest.Chloe, sqlitetest.ClimbLeft, 3, false, "grip slipped", true, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Attempts().Append(ctx, a))

	got, err := s.Attempts().List(ctx, attempt.Query{UserID: sqlitetest.Chloe, ProgressionID: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "grip slipped", got[0].Note)
	assert.True(t, got[0].SharedWithTeacher)
	assert.Equal(t, int64(3), got[0].ProgressionID)
}

func TestValidationInsertConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	k := validation.Key{UserID: sqlitetest.Alice, StepID: sqlitetest.ClimbLeft, ProgressionID: sqlitetest.Progression}
	_, err := s.Validations().Find(ctx, k)
	assert.True(t, shared.IsNotFound(err))

	v := validation.Validation{UserID: k.UserID, StepID: k.StepID, ProgressionID: k.ProgressionID, ValidatedAt: at, Side: validation.SideLeft}
	require.NoError(t, s.Validations().Insert(ctx, v))

	err = s.Validations().Insert(ctx, validation.Validation{UserID: k.UserID, StepID: k.StepID, ProgressionID: k.ProgressionID, ValidatedAt: at.Add(time.Hour), Side: validation.SideLeft})
	assert.True(t, shared.IsConflict(err))

	got, err := s.Validations().Find(ctx, k)
	require.NoError(t, err)
	assert.True(t, got.ValidatedAt.Equal(at), "first validation is never overwritten")
	assert.Equal(t, validation.SideLeft, got.Side)

	other := v
	other.ProgressionID = 2
	other.ValidatedAt = at.Add(-time.Hour)
	require.NoError(t, s.Validations().Insert(ctx, other))

	list, err := s.Validations().ListByUser(ctx, sqlitetest.Alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ProgressionID)
}

func TestWithinTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx progress.Tx) error {
		a, err := attempt.NewAttempt(sqlitetest.Alice, sqlitetest.ClimbBase, sqlitetest.Progression, true, "", false, time.Now())
		require.NoError(t, err)
		require.NoError(t, tx.Attempts.Append(ctx, a))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := s.Attempts().List(ctx, attempt.Query{UserID: sqlitetest.Alice})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStandings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := sqlitetest.OpenSeeded(t)
	now := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

	insert := func(userID, stepID, progressionID int64, at time.Time) {
		t.Helper()
		require.NoError(t, s.Validations().Insert(ctx, validation.Validation{
			UserID: userID, StepID: stepID, ProgressionID: progressionID, ValidatedAt: at, Side: validation.SideNotApplicable,
		}))
	}
	// Alice: 10 XP ten days ago, plus the same step again in another
	// progression yesterday, which must not count twice.
	insert(sqlitetest.Alice, sqlitetest.ClimbBase, 1, now.AddDate(0, 0, -10))
	insert(sqlitetest.Alice, sqlitetest.ClimbBase, 2, now.AddDate(0, 0, -1))
	// Bob: 15 XP yesterday.
	insert(sqlitetest.Bob, sqlitetest.CascadeThree, 1, now.AddDate(0, 0, -1))

	global, err := s.Standings(ctx, leaderboard.StandingsQuery{})
	require.NoError(t, err)
	require.Len(t, global, 3)
	assert.Equal(t, sqlitetest.Bob, global[0].UserID)
	assert.Equal(t, 15, global[0].XP)
	assert.Equal(t, sqlitetest.Alice, global[1].UserID)
	assert.Equal(t, 10, global[1].XP)
	assert.Equal(t, sqlitetest.Chloe, global[2].UserID)
	assert.Equal(t, 0, global[2].XP)

	weekly, err := s.Standings(ctx, leaderboard.StandingsQuery{
		Since: now.AddDate(0, 0, -7), Until: now, ExcludeZero: true,
	})
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, sqlitetest.Bob, weekly[0].UserID)

	group, err := s.Standings(ctx, leaderboard.StandingsQuery{GroupID: sqlitetest.Troupe, Limit: 1})
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, sqlitetest.Alice, group[0].UserID)
}
