package leaderboard

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankStandings_TieBreakChain(t *testing.T) {
	early := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	entries := RankStandings([]Standing{
		{UserID: 4, DisplayName: "dora", CreatedAt: late, XP: 50},
		{UserID: 3, DisplayName: "cleo", CreatedAt: early, XP: 50},
		{UserID: 2, DisplayName: "bram", CreatedAt: early, XP: 50},
		{UserID: 1, DisplayName: "ada", CreatedAt: early, XP: 10},
		{UserID: 5, DisplayName: "eli", CreatedAt: late, XP: 90},
	}, 0)

	require.Len(t, entries, 5)
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
		assert.Equal(t, Rank(i+1), e.Rank)
	}
	assert.Equal(t, []int64{5, 2, 3, 4, 1}, ids)
}

func TestRankStandings_Truncates(t *testing.T) {
	standings := make([]Standing, 30)
	for i := range standings {
		standings[i] = Standing{UserID: int64(i + 1), XP: i}
	}

	entries := RankStandings(standings, 10)

	require.Len(t, entries, 10)
	assert.Equal(t, 29, entries[0].XP)
	assert.Equal(t, Rank(10), entries[9].Rank)
}

func TestRankStandings_IndependentOfInputOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	standings := make([]Standing, 40)
	for i := range standings {
		standings[i] = Standing{
			UserID:    int64(i + 1),
			CreatedAt: base.Add(time.Duration(i%3) * time.Hour),
			XP:        (i % 5) * 10,
		}
	}
	want := RankStandings(standings, 0)

	r := rand.New(rand.NewSource(7))
	for n := 0; n < 5; n++ {
		r.Shuffle(len(standings), func(i, j int) { standings[i], standings[j] = standings[j], standings[i] })
		assert.Equal(t, want, RankStandings(standings, 0))
	}
}

func TestParseScopeKind(t *testing.T) {
	k, ok := ParseScopeKind("weekly")
	assert.True(t, ok)
	assert.Equal(t, ScopeWeekly, k)

	_, ok = ParseScopeKind("monthly")
	assert.False(t, ok)
}
