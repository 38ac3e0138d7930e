// Package leaderboard ranks learners by XP earned from validated steps.
package leaderboard

import (
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a 1-based position. Ranks within one board are unique.
type Rank int

// ScopeKind selects which XP is summed and who is ranked.
type ScopeKind string

const (
	// ScopeGlobal: lifetime XP, every user.
	ScopeGlobal ScopeKind = "global"
	// ScopeWeekly: XP of steps first validated inside the trailing window.
	ScopeWeekly ScopeKind = "weekly"
	// ScopeGroup: lifetime XP, members of one group.
	ScopeGroup ScopeKind = "group"
)

// Scope is a ScopeKind plus the group id for group boards.
type Scope struct {
	Kind    ScopeKind
	GroupID int64
}

// Global returns the global scope.
func Global() Scope { return Scope{Kind: ScopeGlobal} }

// Weekly returns the weekly scope.
func Weekly() Scope { return Scope{Kind: ScopeWeekly} }

// Group returns the scope of one group.
func Group(groupID int64) Scope { return Scope{Kind: ScopeGroup, GroupID: groupID} }

// ParseScopeKind validates a scope name.
func ParseScopeKind(s string) (ScopeKind, bool) {
	switch ScopeKind(s) {
	case ScopeGlobal, ScopeWeekly, ScopeGroup:
		return ScopeKind(s), true
	}
	return "", false
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// Standing is a user's XP total before ranking.
type Standing struct {
	UserID      int64
	DisplayName string
	CreatedAt   time.Time
	XP          int
}

// Entry is one ranked row of a leaderboard.
type Entry struct {
	Rank        Rank
	UserID      int64
	DisplayName string
	XP          int
}

// Less is the total order of a board: XP descending, then account
// creation ascending, then user id ascending.
func Less(a, b Standing) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.UserID < b.UserID
}

// RankStandings orders standings with Less, truncates to limit (when positive) and
// assigns ranks 1..n without gaps or shared positions.
func RankStandings(standings []Standing, limit int) []Entry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool { return Less(sorted[i], sorted[j]) })

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	entries := make([]Entry, len(sorted))
	for i, s := range sorted {
		entries[i] = Entry{
			Rank:        Rank(i + 1),
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			XP:          s.XP,
		}
	}
	return entries
}
