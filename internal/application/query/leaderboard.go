// Package query contains read operations following CQRS pattern.
// Queries never modify ledger state; they only read and return data.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/accountable-hub/progression/internal/domain/leaderboard"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD AGGREGATOR
// Ranks users by completed goals, completed milestones and points. When a
// cache is configured, pages and positions come from the same cached
// snapshot so they always agree; otherwise every call recomputes the
// ordering from the source.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardAggregatorConfig contains configuration for the aggregator.
type LeaderboardAggregatorConfig struct {
	Logger *slog.Logger
	Clock  func() time.Time

	// MissRebuildAge bounds how often a lookup for a user absent from the
	// cached snapshot may rebuild it: only snapshots at least this old are
	// rebuilt, younger ones answer ErrUserNotFound. Defaults to 30s.
	MissRebuildAge time.Duration
}

// DefaultMissRebuildAge is used when MissRebuildAge is not set.
const DefaultMissRebuildAge = 30 * time.Second

// LeaderboardAggregator answers leaderboard queries.
type LeaderboardAggregator struct {
	source         leaderboard.Source
	cache          leaderboard.Cache
	logger         *slog.Logger
	now            func() time.Time
	missRebuildAge time.Duration
}

// NewLeaderboardAggregator creates a new aggregator. cache may be nil.
func NewLeaderboardAggregator(source leaderboard.Source, cache leaderboard.Cache, config LeaderboardAggregatorConfig) *LeaderboardAggregator {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}
	if config.MissRebuildAge <= 0 {
		config.MissRebuildAge = DefaultMissRebuildAge
	}
	return &LeaderboardAggregator{
		source:         source,
		cache:          cache,
		logger:         config.Logger.With(logger.Component("leaderboard")),
		now:            config.Clock,
		missRebuildAge: config.MissRebuildAge,
	}
}

// Rank returns page (1-based) of the leaderboard. pageSize must be between 1
// and leaderboard.MaxPageSize.
func (a *LeaderboardAggregator) Rank(ctx context.Context, page, pageSize int) (leaderboard.Page, error) {
	if err := leaderboard.ValidatePage(page, pageSize); err != nil {
		return leaderboard.Page{}, err
	}

	if a.cache != nil {
		p, err := a.cache.Page(ctx, page, pageSize)
		if err == nil {
			return p, nil
		}
		a.logCacheError("page", err)
	}

	snap, err := a.Rebuild(ctx)
	if err != nil {
		return leaderboard.Page{}, err
	}
	return leaderboard.Paginate(snap.Entries, page, pageSize), nil
}

// PositionOf returns the 1-based rank of userID under the same ordering as
// Rank, or shared.ErrUserNotFound.
func (a *LeaderboardAggregator) PositionOf(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, shared.ErrInvalidUserID
	}

	if a.cache != nil {
		pos, err := a.cache.Position(ctx, userID)
		switch {
		case err == nil:
			return pos, nil
		case shared.IsNotFound(err):
			// The user may have joined since the snapshot was built, but a
			// recent snapshot is trusted.
			if !a.snapshotOlderThan(ctx, a.missRebuildAge) {
				return 0, err
			}
		default:
			a.logCacheError("position", err)
		}
	}

	snap, err := a.Rebuild(ctx)
	if err != nil {
		return 0, err
	}
	return leaderboard.PositionIn(snap.Entries, userID)
}

// Rebuild computes the ordering from the source and, when a cache is
// configured, replaces the cached snapshot with it.
func (a *LeaderboardAggregator) Rebuild(ctx context.Context) (leaderboard.Snapshot, error) {
	entries, err := a.source.Entries(ctx)
	if err != nil {
		return leaderboard.Snapshot{}, shared.WrapError("leaderboard", "Rebuild", shared.ErrInvalidState,
			"failed to read leaderboard source", err)
	}
	leaderboard.Sort(entries)

	snap := leaderboard.Snapshot{Entries: entries, BuiltAt: a.now()}
	if a.cache != nil {
		if err := a.cache.Store(ctx, snap); err != nil {
			a.logger.Warn("failed to store leaderboard snapshot", logger.Err(err))
		}
	}
	return snap, nil
}

// snapshotOlderThan reports whether the cached snapshot is at least age old.
// An unreadable build time counts as old.
func (a *LeaderboardAggregator) snapshotOlderThan(ctx context.Context, age time.Duration) bool {
	builtAt, err := a.cache.BuiltAt(ctx)
	if err != nil {
		a.logCacheError("built_at", err)
		return true
	}
	return a.now().Sub(builtAt) >= age
}

func (a *LeaderboardAggregator) logCacheError(op string, err error) {
	if errors.Is(err, leaderboard.ErrCacheMiss) {
		a.logger.Debug("leaderboard cache miss", logger.Operation(op))
		return
	}
	a.logger.Warn("leaderboard cache unavailable, reading source", logger.Operation(op), logger.Err(err))
}
