// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/shared"
	"github.com/Keldarne/cirque-app-sub003/internal/domain/user"
	"github.com/Keldarne/cirque-app-sub003/pkg/logger"
	"github.com/Keldarne/cirque-app-sub003/pkg/metrics"
	"github.com/Keldarne/cirque-app-sub003/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Ranks users by XP for the global, weekly or group scope.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the leaderboard request parameters.
type GetLeaderboardQuery struct {
	// Scope is "global", "weekly" or "group".
	Scope string

	// GroupID is required for the group scope.
	GroupID int64

	// Limit: 0 means the configured default, values above the maximum are clamped.
	Limit int
}

// Validate checks the query and applies limit defaults.
func (q *GetLeaderboardQuery) Validate(defaultLimit, maxLimit int) error {
	const op = "Query"
	if q.Limit < 0 {
		return shared.InvalidArgument("leaderboard", op, "limit", q.Limit, "cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	kind, ok := leaderboard.ParseScopeKind(q.Scope)
	if !ok {
		return shared.InvalidArgument("leaderboard", op, "scope", q.Scope, "must be global, weekly or group")
	}
	if kind == leaderboard.ScopeGroup {
		return shared.RequireID("leaderboard", op, "group_id", q.GroupID)
	}
	return nil
}

// LeaderboardEntryDTO is one ranked row.
type LeaderboardEntryDTO struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	XP          int    `json:"xp"`
}

// GetLeaderboardResult contains the ranked board.
type GetLeaderboardResult struct {
	Scope   string                `json:"scope"`
	GroupID int64                 `json:"group_id,omitempty"`
	Limit   int                   `json:"limit"`
	Entries []LeaderboardEntryDTO `json:"entries"`

	// WindowStart/WindowEnd bound weekly boards.
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`

	// FromCache is true when the board was served from the cache.
	FromCache   bool      `json:"from_cache"`
	GeneratedAt time.Time `json:"generated_at"`
}

// LeaderboardConfig holds the tunables of the leaderboard query.
type LeaderboardConfig struct {
	WeeklyWindow time.Duration
	DefaultLimit int
	MaxLimit     int
}

// DefaultLeaderboardConfig returns a 7 day window and 20/100 limits.
func DefaultLeaderboardConfig() LeaderboardConfig {
	return LeaderboardConfig{
		WeeklyWindow: timeutil.Days(7),
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardHandler handles GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	repo    leaderboard.Repository
	users   user.Directory
	cache   leaderboard.Cache
	config  LeaderboardConfig
	clock   timeutil.Clock
	metrics *metrics.Manager
	log     *logger.Logger
}

// GetLeaderboardDeps wires the handler. Cache, Metrics, Logger and Clock are optional.
type GetLeaderboardDeps struct {
	Repository leaderboard.Repository
	Users      user.Directory
	Cache      leaderboard.Cache
	Config     LeaderboardConfig
	Clock      timeutil.Clock
	Metrics    *metrics.Manager
	Logger     *logger.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(d GetLeaderboardDeps) *GetLeaderboardHandler {
	if d.Config.MaxLimit == 0 {
		d.Config = DefaultLeaderboardConfig()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &GetLeaderboardHandler{
		repo:    d.Repository,
		users:   d.Users,
		cache:   d.Cache,
		config:  d.Config,
		clock:   d.Clock,
		metrics: d.Metrics,
		log:     d.Logger.With(logger.Component("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	start := time.Now()
	defer func() { h.metrics.ObserveOperation("get_leaderboard", time.Since(start)) }()

	if err := q.Validate(h.config.DefaultLimit, h.config.MaxLimit); err != nil {
		return nil, err
	}
	kind, _ := leaderboard.ParseScopeKind(q.Scope)
	scope := leaderboard.Scope{Kind: kind}
	if kind == leaderboard.ScopeGroup {
		scope.GroupID = q.GroupID
		ok, err := h.users.GroupExists(ctx, q.GroupID)
		if err != nil {
			return nil, fmt.Errorf("get_leaderboard: group lookup: %w", err)
		}
		if !ok {
			return nil, shared.NotFound("leaderboard", "Query", "group", q.GroupID)
		}
	}
	h.metrics.RecordLeaderboardQuery(string(kind))

	now := h.clock.Now()
	result := &GetLeaderboardResult{
		Scope:       string(kind),
		GroupID:     scope.GroupID,
		Limit:       q.Limit,
		GeneratedAt: now,
	}

	// Weekly boards slide with the clock and are never cached.
	cacheable := h.cache != nil && kind != leaderboard.ScopeWeekly
	if cacheable {
		if entries, ok := h.fromCache(ctx, scope, q.Limit); ok {
			result.Entries = toEntryDTOs(entries)
			result.FromCache = true
			return result, nil
		}
	}

	sq := leaderboard.StandingsQuery{GroupID: scope.GroupID, Limit: q.Limit}
	if kind == leaderboard.ScopeWeekly {
		w := timeutil.Trailing(now, h.config.WeeklyWindow)
		sq.Since, sq.Until, sq.ExcludeZero = w.From, w.To, true
		result.WindowStart, result.WindowEnd = &w.From, &w.To
	}

	standings, err := h.repo.Standings(ctx, sq)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: standings: %w", err)
	}
	entries := leaderboard.RankStandings(standings, q.Limit)
	result.Entries = toEntryDTOs(entries)

	if cacheable {
		if err := h.cache.Set(ctx, scope, q.Limit, entries); err != nil {
			h.log.Warn("failed to cache leaderboard", logger.Scope(string(kind)), logger.Err(err))
		}
	}
	return result, nil
}

func (h *GetLeaderboardHandler) fromCache(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.Entry, bool) {
	entries, ok, err := h.cache.Get(ctx, scope, limit)
	switch {
	case err != nil:
		h.metrics.RecordCacheResult("error")
		h.log.Warn("leaderboard cache read failed", logger.Scope(string(scope.Kind)), logger.Err(err))
		return nil, false
	case !ok:
		h.metrics.RecordCacheResult("miss")
		return nil, false
	default:
		h.metrics.RecordCacheResult("hit")
		return entries, true
	}
}

func toEntryDTOs(entries []leaderboard.Entry) []LeaderboardEntryDTO {
	out := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntryDTO{
			Rank:        int(e.Rank),
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			XP:          e.XP,
		}
	}
	return out
}
