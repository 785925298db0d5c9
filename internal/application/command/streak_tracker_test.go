package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/infrastructure/persistence/memory"
)

func TestStreakTracker_GraceWindow(t *testing.T) {
	ctx := context.Background()
	tracker := NewStreakTracker(memory.NewStore().Streaks(), nil, testConfig())
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	st, err := tracker.RecordCheckIn(ctx, "user-1", start)
	require.NoError(t, err)
	assert.Equal(t, 1, st.StreakCount)

	st, err = tracker.RecordCheckIn(ctx, "user-1", start.Add(35*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, st.StreakCount)

	st, err = tracker.RecordCheckIn(ctx, "user-1", start.Add(35*time.Hour+37*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, st.StreakCount)
	assert.Equal(t, 2, st.LongestStreak)
}

func TestStreakTracker_ZeroTimeUsesClock(t *testing.T) {
	tracker := NewStreakTracker(memory.NewStore().Streaks(), nil, testConfig())

	st, err := tracker.RecordCheckIn(context.Background(), "user-1", time.Time{})
	require.NoError(t, err)
	require.NotNil(t, st.LastCheckIn)
	assert.Equal(t, testNow, *st.LastCheckIn)
}

func TestStreakTracker_Reset(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	tracker := NewStreakTracker(memory.NewStore().Streaks(), pub, testConfig())

	st, err := tracker.ResetStreak(ctx, "never-checked-in")
	require.NoError(t, err)
	assert.Equal(t, 0, st.StreakCount)
	assert.Empty(t, pub.ofType(shared.EventStreakReset))

	_, err = tracker.RecordCheckIn(ctx, "user-1", testNow)
	require.NoError(t, err)
	_, err = tracker.RecordCheckIn(ctx, "user-1", testNow.Add(20*time.Hour))
	require.NoError(t, err)

	st, err = tracker.ResetStreak(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.StreakCount)
	assert.Nil(t, st.LastCheckIn)
	assert.Equal(t, 2, st.LongestStreak)

	got, err := tracker.GetState(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.StreakCount)
	assert.Equal(t, 2, got.LongestStreak)

	assert.Len(t, pub.ofType(shared.EventStreakUpdated), 2)
	assert.Len(t, pub.ofType(shared.EventStreakReset), 1)
}
