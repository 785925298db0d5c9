package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := newFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureBadgeAutoEvaluation, "u1"))
	assert.True(t, ff.IsEnabled(FeatureLeaderboardCache, ""))
	assert.False(t, ff.IsEnabled("unknown.feature", "u1"))
	assert.Len(t, ff.GetAllFeatures(), 3)
}

func TestFeatureFlags_Environment(t *testing.T) {
	t.Setenv("FEATURE_LEADERBOARD_CACHE", "false")
	t.Setenv("FEATURE_BADGES_AUTO_EVALUATION", "40")
	t.Setenv("FEATURE_LEADERBOARD_WARMUP", "maybe")

	ff := LoadFeatureFlags()
	all := ff.GetAllFeatures()

	assert.False(t, ff.IsEnabled(FeatureLeaderboardCache, ""))
	assert.Equal(t, 40, all[FeatureBadgeAutoEvaluation].RolloutPercent)
	assert.True(t, all[FeatureLeaderboardWarmup].Enabled)
}

func TestFeatureFlags_Rollout(t *testing.T) {
	ff := newFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeAutoEvaluation, 50))

	in := 0
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("user-%d", i)
		got := ff.IsEnabled(FeatureBadgeAutoEvaluation, id)
		assert.Equal(t, got, ff.IsEnabled(FeatureBadgeAutoEvaluation, id), "bucket must be stable")
		if got {
			in++
		}
	}
	assert.Greater(t, in, 0)
	assert.Less(t, in, 200)

	require.NoError(t, ff.DisableFeature(FeatureBadgeAutoEvaluation))
	assert.False(t, ff.IsEnabled(FeatureBadgeAutoEvaluation, "user-1"))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureBadgeAutoEvaluation, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("nope"), ErrFeatureNotFound)
}

func TestFeatureFlags_OverridesAndWindow(t *testing.T) {
	ff := newFeatureFlags()
	gate := ff.For(FeatureBadgeAutoEvaluation)

	ff.SetUserOverride("u1", FeatureBadgeAutoEvaluation, false)
	assert.False(t, gate("u1"))
	assert.True(t, gate("u2"))

	ff.ClearUserOverrides("u1")
	assert.True(t, gate("u1"))

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ff.now = func() time.Time { return now }
	from := now.Add(time.Hour)
	ff.features[FeatureBadgeAutoEvaluation].EnabledFrom = &from
	assert.False(t, gate("u1"))

	now = now.Add(2 * time.Hour)
	assert.True(t, gate("u1"))
}
