package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/leaderboard"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/circuitbreaker"
	"github.com/accountable-hub/progression/pkg/retry"
)

// flakyCache returns errs in order, then err for every later call.
type flakyCache struct {
	errs  []error
	err   error
	calls int
}

func (f *flakyCache) next() error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.err
}

func (f *flakyCache) Store(context.Context, leaderboard.Snapshot) error {
	return f.next()
}

func (f *flakyCache) Page(context.Context, int, int) (leaderboard.Page, error) {
	return leaderboard.Page{}, f.next()
}

func (f *flakyCache) Position(context.Context, string) (int, error) {
	if err := f.next(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (f *flakyCache) BuiltAt(context.Context) (time.Time, error) {
	if err := f.next(); err != nil {
		return time.Time{}, err
	}
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), nil
}

func (f *flakyCache) Invalidate(context.Context) error {
	return f.next()
}

func newGuarded(inner leaderboard.Cache, onStateChange func(string, circuitbreaker.State, circuitbreaker.State)) *GuardedLeaderboardCache {
	g := NewGuardedLeaderboardCache(inner, onStateChange)
	g.retrier = g.retrier.With(retry.WithInitialDelay(0))
	return g
}

func TestGuardedLeaderboardCache_TripsToMiss(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{err: errors.New("connection refused")}

	var transitions []circuitbreaker.State
	g := newGuarded(inner, func(_ string, _, to circuitbreaker.State) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 3; i++ {
		_, err := g.Page(ctx, 1, 10)
		assert.NotErrorIs(t, err, leaderboard.ErrCacheMiss)
	}
	assert.Equal(t, []circuitbreaker.State{circuitbreaker.StateOpen}, transitions)
	// Each failed call was retried once before counting.
	assert.Equal(t, 6, inner.calls)

	_, err := g.Position(ctx, "u1")
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	_, err = g.BuiltAt(ctx)
	assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	assert.ErrorIs(t, g.Store(ctx, leaderboard.Snapshot{}), leaderboard.ErrCacheMiss)
	assert.Equal(t, 6, inner.calls)
}

func TestGuardedLeaderboardCache_TransientErrorIsRetried(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{errs: []error{errors.New("i/o timeout")}}
	g := newGuarded(inner, nil)

	pos, err := g.Position(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 2, inner.calls)
	assert.True(t, g.Breaker().IsClosed())
}

func TestGuardedLeaderboardCache_MissesDoNotTrip(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{err: leaderboard.ErrCacheMiss}
	g := newGuarded(inner, nil)

	for i := 0; i < 5; i++ {
		_, err := g.Page(ctx, 1, 10)
		assert.ErrorIs(t, err, leaderboard.ErrCacheMiss)
	}
	inner.err = shared.ErrUserNotFound
	for i := 0; i < 5; i++ {
		_, err := g.Position(ctx, "ghost")
		assert.True(t, shared.IsNotFound(err))
	}
	assert.True(t, g.Breaker().IsClosed())
	// Answers are never retried.
	assert.Equal(t, 10, inner.calls)

	inner.err = nil
	at, err := g.BuiltAt(ctx)
	require.NoError(t, err)
	assert.False(t, at.IsZero())
	require.NoError(t, g.Invalidate(ctx))
}
