package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accountable-hub/progression/internal/domain/leaderboard"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/circuitbreaker"
	"github.com/accountable-hub/progression/pkg/retry"
)

// GuardedLeaderboardCache puts a retry and a circuit breaker in front of a
// leaderboard.Cache. A call that still fails after its retry counts once
// against the breaker; while the breaker is open every call is reported as a
// cache miss, so the aggregator serves from the source without waiting on a
// dead Redis for each request.
type GuardedLeaderboardCache struct {
	inner   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
}

var _ leaderboard.Cache = (*GuardedLeaderboardCache)(nil)

// NewGuardedLeaderboardCache wraps inner. Misses and unknown users are normal
// answers: they are neither retried nor counted against the breaker.
func NewGuardedLeaderboardCache(inner leaderboard.Cache, onStateChange func(name string, from, to circuitbreaker.State)) *GuardedLeaderboardCache {
	return &GuardedLeaderboardCache{
		inner:   inner,
		breaker: circuitbreaker.CacheBreaker("leaderboard-cache", isCacheFailure, onStateChange),
		retrier: retry.CacheRetrier(isCacheFailure),
	}
}

// Breaker exposes the breaker for health reporting.
func (g *GuardedLeaderboardCache) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

func isCacheFailure(err error) bool {
	return !errors.Is(err, leaderboard.ErrCacheMiss) && !shared.IsNotFound(err) && !shared.IsValidation(err)
}

// call runs fn with a retry, under the breaker.
func (g *GuardedLeaderboardCache) call(ctx context.Context, fn func(context.Context) error) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retrier.Do(ctx, fn)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", leaderboard.ErrCacheMiss, err)
	}
	return err
}

// Store implements leaderboard.Cache.
func (g *GuardedLeaderboardCache) Store(ctx context.Context, snap leaderboard.Snapshot) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.inner.Store(ctx, snap)
	})
}

// Page implements leaderboard.Cache.
func (g *GuardedLeaderboardCache) Page(ctx context.Context, page, pageSize int) (leaderboard.Page, error) {
	var p leaderboard.Page
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		p, err = g.inner.Page(ctx, page, pageSize)
		return err
	})
	return p, err
}

// Position implements leaderboard.Cache.
func (g *GuardedLeaderboardCache) Position(ctx context.Context, userID string) (int, error) {
	var pos int
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		pos, err = g.inner.Position(ctx, userID)
		return err
	})
	return pos, err
}

// BuiltAt implements leaderboard.Cache.
func (g *GuardedLeaderboardCache) BuiltAt(ctx context.Context) (time.Time, error) {
	var at time.Time
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		at, err = g.inner.BuiltAt(ctx)
		return err
	})
	return at, err
}

// Invalidate implements leaderboard.Cache.
func (g *GuardedLeaderboardCache) Invalidate(ctx context.Context) error {
	return g.call(ctx, g.inner.Invalidate)
}
