package query_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keldarne/cirque-app-sub003/internal/application/query"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/attempt"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/decay"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/validation"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite"
	"github.com/Keldarne/cirque-app-sub003/internal/infrastructure/persistence/sqlite/sqlitetest"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

var now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func validate(t *testing.T, s *sqlite.Store, userID, stepID, progressionID int64, at time.Time) {
	t.Helper()
	step, err := s.GetStep(context.Background(), stepID)
	require.NoError(t, err)
	k := validation.Key{UserID: userID, StepID: stepID, ProgressionID: progressionID}
	require.NoError(t, s.Validations().Insert(context.Background(), validation.New(k, step, at)))
}

func try(t *testing.T, s *sqlite.Store, userID, stepID, progressionID int64, ok bool, at time.Time) {
	t.Helper()
	a, err := attempt.NewAttempt(userID, stepID, progressionID, ok, "", false, at)
	require.NoError(t, err)
	require.NoError(t, s.Attempts().Append(context.Background(), a))
}

// mapCache is an in-memory leaderboard cache.
type mapCache struct {
	mu    sync.Mutex
	items map[leaderboard.Scope]map[int][]leaderboard.Entry
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[leaderboard.Scope]map[int][]leaderboard.Entry)}
}

func (c *mapCache) Get(_ context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[scope][limit]
	return e, ok, nil
}

func (c *mapCache) Set(_ context.Context, scope leaderboard.Scope, limit int, entries []leaderboard.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[scope] == nil {
		c.items[scope] = make(map[int][]leaderboard.Entry)
	}
	c.items[scope][limit] = entries
	return nil
}

func (c *mapCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[leaderboard.Scope]map[int][]leaderboard.Entry)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func leaderboardFixture(t *testing.T) (*query.GetLeaderboardHandler, *mapCache) {
	t.Helper()
	s := sqlitetest.OpenSeeded(t)
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 1, now.AddDate(0, 0, -10))
	validate(t, s, sqlitetest.Bob, sqlitetest.CascadeThree, 1, now.AddDate(0, 0, -1))

	cache := newMapCache()
	h := query.NewGetLeaderboardHandler(query.GetLeaderboardDeps{
		Repository: s,
		Users:      s,
		Cache:      cache,
		Config:     query.DefaultLeaderboardConfig(),
		Clock:      timeutil.NewManualClock(now),
	})
	return h, cache
}

func userIDs(entries []query.LeaderboardEntryDTO) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	return ids
}

func TestLeaderboard_Global(t *testing.T) {
	h, _ := leaderboardFixture(t)

	res, err := h.Handle(context.Background(), query.GetLeaderboardQuery{Scope: "global"})
	require.NoError(t, err)
	assert.Equal(t, []int64{sqlitetest.Bob, sqlitetest.Alice, sqlitetest.Chloe}, userIDs(res.Entries))
	assert.Equal(t, 20, res.Limit)
	for i, e := range res.Entries {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, 15, res.Entries[0].XP)
	assert.Equal(t, 0, res.Entries[2].XP)
	assert.False(t, res.FromCache)
	assert.Nil(t, res.WindowStart)
}

func TestLeaderboard_WeeklyWindow(t *testing.T) {
	h, cache := leaderboardFixture(t)

	res, err := h.Handle(context.Background(), query.GetLeaderboardQuery{Scope: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, []int64{sqlitetest.Bob}, userIDs(res.Entries), "validations older than seven days do not count")
	require.NotNil(t, res.WindowStart)
	assert.True(t, res.WindowStart.Equal(now.AddDate(0, 0, -7)))
	assert.True(t, res.WindowEnd.Equal(now))

	_, ok, _ := cache.Get(context.Background(), leaderboard.Weekly(), 20)
	assert.False(t, ok, "weekly boards are not cached")
}

func TestLeaderboard_WeeklyExcludesGlobalLeader(t *testing.T) {
	s := sqlitetest.OpenSeeded(t)
	old := now.AddDate(0, 0, -10)
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 1, old)
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbLeft, 1, old)
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbRight, 1, old)
	validate(t, s, sqlitetest.Bob, sqlitetest.CascadeFive, 1, now.AddDate(0, 0, -1))

	h := query.NewGetLeaderboardHandler(query.GetLeaderboardDeps{
		Repository: s,
		Users:      s,
		Config:     query.DefaultLeaderboardConfig(),
		Clock:      timeutil.NewManualClock(now),
	})
	ctx := context.Background()

	global, err := h.Handle(ctx, query.GetLeaderboardQuery{Scope: "global"})
	require.NoError(t, err)
	assert.Equal(t, []int64{sqlitetest.Alice, sqlitetest.Bob, sqlitetest.Chloe}, userIDs(global.Entries))
	assert.Equal(t, 50, global.Entries[0].XP)

	weekly, err := h.Handle(ctx, query.GetLeaderboardQuery{Scope: "weekly"})
	require.NoError(t, err)
	require.Len(t, weekly.Entries, 1)
	assert.Equal(t, sqlitetest.Bob, weekly.Entries[0].UserID)
	assert.Equal(t, 5, weekly.Entries[0].XP)
	assert.Equal(t, 1, weekly.Entries[0].Rank)
}

func TestLeaderboard_Group(t *testing.T) {
	h, _ := leaderboardFixture(t)

	res, err := h.Handle(context.Background(), query.GetLeaderboardQuery{Scope: "group", GroupID: sqlitetest.Troupe})
	require.NoError(t, err)
	assert.Equal(t, []int64{sqlitetest.Alice, sqlitetest.Chloe}, userIDs(res.Entries))

	_, err = h.Handle(context.Background(), query.GetLeaderboardQuery{Scope: "group", GroupID: 99})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), query.GetLeaderboardQuery{Scope: "group"})
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestLeaderboard_ServesFromCache(t *testing.T) {
	h, _ := leaderboardFixture(t)
	ctx := context.Background()

	first, err := h.Handle(ctx, query.GetLeaderboardQuery{Scope: "global", Limit: 2})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Entries, 2)

	second, err := h.Handle(ctx, query.GetLeaderboardQuery{Scope: "global", Limit: 2})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Entries, second.Entries)
}

func TestLeaderboard_Limits(t *testing.T) {
	h, _ := leaderboardFixture(t)
	ctx := context.Background()

	res, err := h.Handle(ctx, query.GetLeaderboardQuery{Scope: "global", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Limit)

	_, err = h.Handle(ctx, query.GetLeaderboardQuery{Scope: "global", Limit: -1})
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = h.Handle(ctx, query.GetLeaderboardQuery{Scope: "monthly"})
	assert.True(t, shared.IsInvalidArgument(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

func TestProfileStatistics(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 1, now.AddDate(0, 0, -3))
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbLeft, 1, now.AddDate(0, 0, -2))
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbRight, 1, now.AddDate(0, 0, -1))
	validate(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 2, now)

	h := query.NewGetProfileStatisticsHandler(s, s, s.Validations(), nil)
	res, err := h.Handle(context.Background(), query.GetProfileStatisticsQuery{UserID: sqlitetest.Alice})
	require.NoError(t, err)

	assert.Equal(t, "Alice", res.DisplayName)
	assert.Equal(t, 1, res.FiguresValidated)
	assert.Equal(t, 4, res.StepsValidated)
	assert.Equal(t, 50, res.XPTotal, "a step validated in two progressions pays once")
	assert.Equal(t, query.LateralityDTO{Left: 1, Right: 1, Imbalance: 0}, res.Laterality)

	require.Len(t, res.Radar, 2)
	assert.Equal(t, "Aerial silks", res.Radar[0].DisciplineName)
	assert.InDelta(t, 1.0, res.Radar[0].Ratio, 1e-9)
	assert.Equal(t, 0, res.Radar[1].Validated)
	assert.Equal(t, 2, res.Radar[1].Total)
}

func TestProfileStatistics_UnknownUser(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)

	h := query.NewGetProfileStatisticsHandler(s, s, s.Validations(), nil)
	_, err := h.Handle(context.Background(), query.GetProfileStatisticsQuery{UserID: 404})
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// DECAY PROFILE
// ══════════════════════════════════════════════════════════════════════════════

func TestDecayProfile(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)

	// Validated long ago but practiced three days ago: fresh.
	validate(t, s, sqlitetest.Bob, sqlitetest.ClimbBase, 1, now.AddDate(0, 0, -100))
	try(t, s, sqlitetest.Bob, sqlitetest.ClimbBase, 1, true, now.AddDate(0, 0, -3))
	// Failures never refresh a step.
	validate(t, s, sqlitetest.Bob, sqlitetest.ClimbLeft, 1, now.AddDate(0, 0, -20))
	try(t, s, sqlitetest.Bob, sqlitetest.ClimbLeft, 1, false, now.AddDate(0, 0, -1))
	validate(t, s, sqlitetest.Bob, sqlitetest.CascadeThree, 1, now.AddDate(0, 0, -200))
	// The same step in a second progression counts once.
	validate(t, s, sqlitetest.Bob, sqlitetest.CascadeThree, 2, now.AddDate(0, 0, -60))

	h := query.NewGetDecayProfileHandler(query.GetDecayProfileDeps{
		Users:       s,
		Catalog:     s,
		Validations: s.Validations(),
		Attempts:    s.Attempts(),
		Policy:      decay.DefaultPolicy(),
		Clock:       timeutil.NewManualClock(now),
	})
	res, err := h.Handle(context.Background(), query.GetDecayProfileQuery{UserID: sqlitetest.Bob})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, map[string]int{"fresh": 1, "fragile": 1, "stale": 0, "forgotten": 1}, res.Counts)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, sqlitetest.CascadeThree, res.Steps[0].StepID, "stalest first")
	assert.Equal(t, "forgotten", res.Steps[0].Bucket)
	assert.Equal(t, sqlitetest.Juggling, res.Steps[0].DisciplineID)
	assert.Equal(t, sqlitetest.ClimbBase, res.Steps[2].StepID)
	assert.InDelta(t, 3.0, res.Steps[2].ElapsedDays, 1e-9)
}

func TestDecayProfile_PerDisciplineThresholds(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)
	validate(t, s, sqlitetest.Alice, sqlitetest.CascadeThree, 1, now.AddDate(0, 0, -5))

	juggling, err := decay.ThresholdsFromDays(3, 10, 30)
	require.NoError(t, err)
	h := query.NewGetDecayProfileHandler(query.GetDecayProfileDeps{
		Users:       s,
		Catalog:     s,
		Validations: s.Validations(),
		Attempts:    s.Attempts(),
		Policy:      decay.Policy{Default: decay.DefaultThresholds(), PerDiscipline: map[int64]decay.Thresholds{sqlitetest.Juggling: juggling}},
		Clock:       timeutil.NewManualClock(now),
	})
	res, err := h.Handle(context.Background(), query.GetDecayProfileQuery{UserID: sqlitetest.Alice})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts["fragile"])
}

func TestDecayProfile_NoValidations(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)

	h := query.NewGetDecayProfileHandler(query.GetDecayProfileDeps{
		Users: s, Catalog: s, Validations: s.Validations(), Attempts: s.Attempts(),
	})
	res, err := h.Handle(context.Background(), query.GetDecayProfileQuery{UserID: sqlitetest.Chloe})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Len(t, res.Counts, 4)
	assert.Empty(t, res.Steps)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRIT
// ══════════════════════════════════════════════════════════════════════════════

func TestGritScore(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)
	ctx := context.Background()

	// Step history F F S: both failures recovered, last succeeded.
	try(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 1, false, now.Add(-3*time.Hour))
	try(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 1, false, now.Add(-2*time.Hour))
	try(t, s, sqlitetest.Alice, sqlitetest.ClimbBase, 1, true, now.Add(-time.Hour))
	// Juggling history ends on an unrecovered failure.
	try(t, s, sqlitetest.Alice, sqlitetest.CascadeThree, 1, false, now)

	h := query.NewGetGritScoreHandler(s, s, s.Attempts())

	step, err := h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Alice, Scope: "step", ScopeID: sqlitetest.ClimbBase})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, step.Score, 1e-9)
	assert.Equal(t, 3, step.Attempts)
	assert.Equal(t, 2, step.Failures)

	figure, err := h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Alice, Scope: "figure", ScopeID: sqlitetest.Cascade})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, figure.Score, 1e-9)

	// F F S F: 2 of 3 failures recovered, last failed.
	all, err := h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Alice, Scope: "user"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, all.Score, 1e-9)
	assert.Equal(t, int64(0), all.ScopeID)

	none, err := h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Bob, Scope: "user"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, none.Score)

	// Chloe fails one step and moves on to another: the failure is abandoned.
	try(t, s, sqlitetest.Chloe, sqlitetest.ClimbBase, 1, false, now.Add(-time.Hour))
	try(t, s, sqlitetest.Chloe, sqlitetest.CascadeThree, 1, true, now)
	moved, err := h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Chloe, Scope: "user"})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, moved.Score, 1e-9)
	assert.Equal(t, 1, moved.Failures)

	_, err = h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Alice, Scope: "figure", ScopeID: 999})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, query.GetGritScoreQuery{UserID: sqlitetest.Alice, Scope: "step"})
	assert.True(t, shared.IsInvalidArgument(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestStepProgress(t *testing.T) {
	t.Parallel()
	s := sqlitetest.OpenSeeded(t)
	ctx := context.Background()
	h := query.NewGetStepProgressHandler(s, s, s.Attempts(), s.Validations())
	q := query.GetStepProgressQuery{UserID: sqlitetest.Chloe, StepID: sqlitetest.CascadeThree, ProgressionID: 1}

	res, err := h.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "unattempted", res.State)
	assert.False(t, res.IsBlocked)

	// Failures in another progression block here too, but do not change
	// this progression's state.
	try(t, s, sqlitetest.Chloe, sqlitetest.CascadeThree, 2, false, now.Add(-2*time.Hour))
	try(t, s, sqlitetest.Chloe, sqlitetest.CascadeThree, 2, false, now.Add(-time.Hour))
	res, err = h.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "unattempted", res.State)
	assert.Equal(t, 2, res.TotalFailures)
	assert.True(t, res.IsBlocked)

	try(t, s, sqlitetest.Chloe, sqlitetest.CascadeThree, 1, true, now)
	validate(t, s, sqlitetest.Chloe, sqlitetest.CascadeThree, 1, now)
	res, err = h.Handle(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "validated", res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.IsBlocked)
	require.NotNil(t, res.Validation)
	assert.Equal(t, "non_applicable", res.Validation.Side)
}
