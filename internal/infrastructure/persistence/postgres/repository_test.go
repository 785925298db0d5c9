package postgres

import (
	"context"
	"os"
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

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestConnection migrates DATABASE_TEST_URL and empties every table.
// Point it at a throwaway database.
func newTestConnection(t *testing.T) *Connection {
	t.Helper()

	url := os.Getenv("DATABASE_TEST_URL")
	if url == "" {
		t.Skip("DATABASE_TEST_URL not set")
	}

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.URL = url
	conn, err := NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, `TRUNCATE point_redemptions, points_accounts, level_rewards, level_states,
		xp_entries, streak_states, badge_awards, goal_completion_stats`)
	require.NoError(t, err)
	return conn
}

func TestPointsRepository_VersionGuard(t *testing.T) {
	ctx := context.Background()
	repo := NewPointsRepository(newTestConnection(t))

	_, err := repo.Get(ctx, "u1")
	assert.True(t, shared.IsNotFound(err))

	acc := points.NewAccount("u1", testNow)
	require.NoError(t, acc.Credit(100, testNow))
	_, err = acc.Redeem("Mug", 30, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, acc))

	stale, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	fresh := stale.Clone()

	require.NoError(t, fresh.Debit(10, testNow))
	require.NoError(t, repo.Save(ctx, fresh))

	require.NoError(t, stale.Debit(5, testNow))
	assert.True(t, shared.IsConcurrentModification(repo.Save(ctx, stale)))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Balance)
	assert.Equal(t, int64(40), got.TotalSpent)

	reds, err := repo.Redemptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reds, 1)
	assert.Equal(t, "Mug", reds[0].RewardLabel)
}

func TestLevelRepository_SaveWithEntry(t *testing.T) {
	ctx := context.Background()
	repo := NewLevelRepository(newTestConnection(t))

	st := level.NewState("u1")
	_, err := st.ApplyXP(125, testNow)
	require.NoError(t, err)
	entry, err := xp.NewEntry("u1", 125, "goal", testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, st, level.Change{Entry: &entry}))

	reward, err := st.AddReward(level.RewardDiscount, "5%", testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, st, level.Change{Reward: &reward}))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Level)
	assert.Equal(t, int64(25), got.PointsIntoLevel)
	assert.Len(t, got.Rewards, 1)

	entries, err := repo.List(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	total, err := repo.Total(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(125), total)
}

func TestStreakRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStreakRepository(newTestConnection(t))

	st := streak.NewState("u1")
	st.RecordCheckIn(testNow)
	require.NoError(t, repo.Save(ctx, st))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.StreakCount)
	require.NotNil(t, got.LastCheckIn)
	assert.True(t, got.LastCheckIn.Equal(testNow))
}

func TestBadgeRepository_PaysOnce(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t)
	badges := NewBadgeRepository(conn)

	award := badge.NewAward("u1", "goal_getter", badge.TierBronze, testNow)
	inserted, err := badges.AwardTier(ctx, award, 10)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = badges.AwardTier(ctx, badge.NewAward("u1", "goal_getter", badge.TierBronze, testNow), 10)
	require.NoError(t, err)
	assert.False(t, inserted)

	acc, err := NewPointsRepository(conn).Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.Balance)

	awards, err := badges.Awards(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, awards, 1)
}

func TestLeaderboardSource_JoinsGoalStats(t *testing.T) {
	ctx := context.Background()
	conn := newTestConnection(t)

	_, err := conn.Exec(ctx, `INSERT INTO goal_completion_stats (user_id, completed_goals) VALUES ('bob', 5)`)
	require.NoError(t, err)
	acc := points.NewAccount("alice", testNow)
	require.NoError(t, acc.Credit(40, testNow))
	require.NoError(t, NewPointsRepository(conn).Save(ctx, acc))

	entries, err := NewLeaderboardSource(conn).Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]int64{}
	for _, e := range entries {
		byID[e.UserID] = e.CompletedGoals*1000 + e.TotalPoints
	}
	assert.Equal(t, int64(5000), byID["bob"])
	assert.Equal(t, int64(40), byID["alice"])
}
