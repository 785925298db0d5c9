package level

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNextThreshold(t *testing.T) {
	thresholds := []int64{InitialThreshold}
	for i := 0; i < 5; i++ {
		thresholds = append(thresholds, NextThreshold(thresholds[len(thresholds)-1]))
	}
	assert.Equal(t, []int64{100, 120, 144, 172, 206, 247}, thresholds)
}

func TestApplyXP_Scenario(t *testing.T) {
	st := NewState("user-1")
	st.PointsIntoLevel = 95

	ups, err := st.ApplyXP(30, now)
	require.NoError(t, err)
	assert.Equal(t, 1, ups)
	assert.Equal(t, int64(25), st.PointsIntoLevel)
	assert.Equal(t, 2, st.Level)
	assert.Equal(t, int64(120), st.NextLevelThreshold)

	ups, err = st.ApplyXP(250, now)
	require.NoError(t, err)
	assert.Equal(t, 2, ups)
	assert.Equal(t, int64(11), st.PointsIntoLevel)
	assert.Equal(t, 4, st.Level)
	assert.Equal(t, int64(172), st.NextLevelThreshold)
	assert.Equal(t, int64(280), st.TotalXP)
}

// simulate is a straightforward reference for the cascade.
func simulate(into, threshold, amount int64) (int64, int64, int) {
	into += amount
	ups := 0
	for into >= threshold {
		into -= threshold
		threshold = threshold * 12 / 10
		ups++
	}
	return into, threshold, ups
}

func TestApplyXP_MatchesReferenceSimulation(t *testing.T) {
	for _, amount := range []int64{1, 99, 100, 101, 219, 220, 1000, 5000, 123456} {
		st := NewState("user-1")
		ups, err := st.ApplyXP(amount, now)
		require.NoError(t, err)

		wantInto, wantThreshold, wantUps := simulate(0, InitialThreshold, amount)
		assert.Equal(t, wantUps, ups, "amount %d", amount)
		assert.Equal(t, wantInto, st.PointsIntoLevel, "amount %d", amount)
		assert.Equal(t, wantThreshold, st.NextLevelThreshold, "amount %d", amount)
		assert.Equal(t, 1+wantUps, st.Level, "amount %d", amount)
		assert.Less(t, st.PointsIntoLevel, st.NextLevelThreshold)
	}
}

func TestApplyXP_ExactThresholdLevelsUp(t *testing.T) {
	st := NewState("user-1")
	ups, err := st.ApplyXP(100, now)
	require.NoError(t, err)
	assert.Equal(t, 1, ups)
	assert.Equal(t, int64(0), st.PointsIntoLevel)
	assert.Equal(t, 2, st.Level)
}

func TestApplyXP_ZeroIsNoop(t *testing.T) {
	st := NewState("user-1")
	st.PointsIntoLevel = 40

	ups, err := st.ApplyXP(0, now)
	require.NoError(t, err)
	assert.Equal(t, 0, ups)
	assert.Equal(t, int64(40), st.PointsIntoLevel)
	assert.True(t, st.UpdatedAt.IsZero())
}

func TestApplyXP_RejectsNegative(t *testing.T) {
	st := NewState("user-1")
	_, err := st.ApplyXP(-5, now)
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
	assert.Equal(t, 1, st.Level)
}

func TestAddReward(t *testing.T) {
	st := NewState("user-1")

	_, err := st.AddReward(RewardDiscount, "10%", now)
	require.NoError(t, err)
	_, err = st.AddReward(RewardDiscount, "10%", now)
	require.NoError(t, err)
	assert.Len(t, st.Rewards, 2, "duplicates are allowed")

	_, err = st.AddReward("trophy", "x", now)
	assert.ErrorIs(t, err, shared.ErrInvalidRewardType)
	assert.Len(t, st.Rewards, 2)
}

func TestClone_CopiesRewards(t *testing.T) {
	st := NewState("user-1")
	_, _ = st.AddReward(RewardBadge, "first", now)

	c := st.Clone()
	c.Rewards[0].Value = "changed"
	assert.Equal(t, "first", st.Rewards[0].Value)
}
