package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Keldarne/cirque-app-sub003/internal/domain/leaderboard"
	"github.com/Keldarne/cirque-app-sub003/pkg/circuitbreaker"
)

// TTLLeaderboardCache is the default lifetime of a cached board.
const TTLLeaderboardCache = 5 * time.Minute

// LeaderboardCache stores ranked boards as JSON, one key per
// (scope, group, limit). Calls go through a circuit breaker so an
// unreachable Redis fails fast and reads fall back to storage.
type LeaderboardCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewLeaderboardCache wraps cache. A nil breaker disables tripping; a
// breaker should classify errors with IsBackendFailure.
func NewLeaderboardCache(cache *Cache, ttl time.Duration, breaker *circuitbreaker.CircuitBreaker) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{cache: cache, ttl: ttl, breaker: breaker}
}

type cachedEntry struct {
	Rank        int    `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	XP          int    `json:"xp"`
}

// BoardKey returns the key of one board.
func BoardKey(scope leaderboard.Scope, limit int) string {
	return fmt.Sprintf("%s%s:%d:%d", PrefixLeaderboard, scope.Kind, scope.GroupID, limit)
}

// IsBackendFailure reports whether err means Redis itself is unhealthy.
// Misses and callers that gave up do not count against the breaker.
func IsBackendFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrCacheMiss) &&
		!errors.Is(err, context.Canceled)
}

func (c *LeaderboardCache) run(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// Get returns the cached board, ok=false on a miss.
func (c *LeaderboardCache) Get(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.Entry, bool, error) {
	var stored []cachedEntry
	err := c.run(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, BoardKey(scope, limit), &stored)
	})
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leaderboard cache get: %w", err)
	}

	entries := make([]leaderboard.Entry, len(stored))
	for i, e := range stored {
		entries[i] = leaderboard.Entry{
			Rank:        leaderboard.Rank(e.Rank),
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			XP:          e.XP,
		}
	}
	return entries, true, nil
}

// Set stores a board for the configured TTL.
func (c *LeaderboardCache) Set(ctx context.Context, scope leaderboard.Scope, limit int, entries []leaderboard.Entry) error {
	stored := make([]cachedEntry, len(entries))
	for i, e := range entries {
		stored[i] = cachedEntry{Rank: int(e.Rank), UserID: e.UserID, DisplayName: e.DisplayName, XP: e.XP}
	}
	err := c.run(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, BoardKey(scope, limit), stored, c.ttl)
	})
	if err != nil {
		return fmt.Errorf("leaderboard cache set: %w", err)
	}
	return nil
}

// InvalidateAll deletes every cached board.
func (c *LeaderboardCache) InvalidateAll(ctx context.Context) error {
	err := c.run(ctx, func(ctx context.Context) error {
		return c.cache.DeleteByPattern(ctx, PrefixLeaderboard+"*")
	})
	if err != nil {
		return fmt.Errorf("leaderboard cache invalidate: %w", err)
	}
	return nil
}
