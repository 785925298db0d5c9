package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/level"
	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/streak"
	"github.com/accountable-hub/progression/internal/domain/xp"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPointsRepository_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Points()

	_, err := repo.Get(ctx, "user-1")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	acc := points.NewAccount("user-1", now)
	require.NoError(t, acc.Credit(10, now))
	require.NoError(t, repo.Save(ctx, acc))
	assert.Equal(t, int64(1), acc.Version)

	// A second writer that also started from "no account" loses.
	other := points.NewAccount("user-1", now)
	require.NoError(t, other.Credit(5, now))
	err = repo.Save(ctx, other)
	assert.True(t, shared.IsConcurrentModification(err))

	a, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, a.Credit(1, now))
	require.NoError(t, repo.Save(ctx, a))

	require.NoError(t, b.Credit(2, now))
	assert.True(t, shared.IsConcurrentModification(repo.Save(ctx, b)))

	got, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Balance)
	assert.Equal(t, int64(2), got.Version)
}

func TestPointsRepository_RedemptionsSavedWithBalance(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Points()

	acc := points.NewAccount("user-1", now)
	require.NoError(t, acc.Credit(10, now))
	_, err := acc.Redeem("Sticker", 4, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, acc))

	list, err := repo.Redemptions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Sticker", list[0].RewardLabel)

	// Saved redemptions are not written twice.
	require.NoError(t, acc.Credit(1, now))
	require.NoError(t, repo.Save(ctx, acc))
	list, err = repo.Redemptions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLevelRepository_AppendsXPWithState(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	st := level.NewState("user-1")
	for i, amount := range []int64{30, 80} {
		_, err := st.ApplyXP(amount, now)
		require.NoError(t, err)
		e, err := xp.NewEntry("user-1", amount, "grant", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, store.Levels().Save(ctx, st, level.Change{Entry: &e}))
	}

	stale := level.NewState("user-1")
	assert.True(t, shared.IsConcurrentModification(store.Levels().Save(ctx, stale, level.Change{})))

	total, err := store.XP().Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(110), total)

	list, err := store.XP().List(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(80), list[0].Amount, "newest first")

	list, err = store.XP().List(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStreakRepository_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Streaks()

	st := streak.NewState("user-1")
	st.RecordCheckIn(now)
	require.NoError(t, repo.Save(ctx, st))

	stale, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)

	st.RecordCheckIn(now.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, st))

	stale.Reset(now)
	assert.True(t, shared.IsConcurrentModification(repo.Save(ctx, stale)))
}

func TestBadgeRepository_AwardPaysOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	award := badge.NewAward("user-1", "goal_getter", badge.TierBronze, now)
	created, err := store.Badges().AwardTier(ctx, award, 10)
	require.NoError(t, err)
	assert.True(t, created)

	again := badge.NewAward("user-1", "goal_getter", badge.TierBronze, now)
	created, err = store.Badges().AwardTier(ctx, again, 10)
	require.NoError(t, err)
	assert.False(t, created)

	acc, err := store.Points().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.Balance)

	awards, err := store.Badges().Awards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, award.ID, awards[0].ID)
}

func TestLeaderboardSource_MergesAccountsAndGoalStats(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	acc := points.NewAccount("alice", now)
	require.NoError(t, acc.Credit(40, now))
	require.NoError(t, store.Points().Save(ctx, acc))
	store.SetGoalStats("alice", GoalStats{CompletedGoals: 2, CompletedMilestones: 5})
	store.SetGoalStats("bob", GoalStats{CompletedGoals: 1})

	entries, err := store.Leaderboard().Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]int64{}
	for _, e := range entries {
		byID[e.UserID] = e.TotalPoints
		if e.UserID == "alice" {
			assert.Equal(t, int64(2), e.CompletedGoals)
			assert.Equal(t, int64(5), e.CompletedMilestones)
		}
	}
	assert.Equal(t, int64(40), byID["alice"])
	assert.Equal(t, int64(0), byID["bob"])
}
