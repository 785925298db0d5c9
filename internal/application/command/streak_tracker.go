package command

import (
	"context"
	"time"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/streak"
	"github.com/accountable-hub/progression/pkg/logger"
)

// StreakTracker records daily check-ins. Callers that want once-per-day
// semantics must gate calls themselves; every check-in inside the grace
// window extends the streak.
type StreakTracker struct {
	ledger
	repo streak.Repository
}

// NewStreakTracker creates a new StreakTracker.
func NewStreakTracker(repo streak.Repository, publisher shared.EventPublisher, config LedgerConfig) *StreakTracker {
	return &StreakTracker{
		ledger: newLedger("streak_tracker", config, publisher),
		repo:   repo,
	}
}

// RecordCheckIn applies a check-in at now. A zero now means the current
// time.
func (t *StreakTracker) RecordCheckIn(ctx context.Context, userID string, now time.Time) (*streak.State, error) {
	if now.IsZero() {
		now = t.now()
	}

	var (
		result    *streak.State
		continued bool
	)
	err := t.mutate(ctx, "RecordCheckIn", userID, func(ctx context.Context) error {
		st, err := t.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		continued = st.RecordCheckIn(now)
		if err := t.repo.Save(ctx, st); err != nil {
			return err
		}
		result = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !continued {
		t.logger.Debug("streak started", logger.UserID(userID), logger.Streak(result.StreakCount))
	}
	t.publish(shared.NewStreakChangedEvent(shared.EventStreakUpdated, userID,
		result.StreakCount, result.LongestStreak, continued))
	return result, nil
}

// ResetStreak clears the streak. A user who never checked in is already in
// the reset state and nothing is written.
func (t *StreakTracker) ResetStreak(ctx context.Context, userID string) (*streak.State, error) {
	var (
		result  *streak.State
		changed bool
	)
	err := t.mutate(ctx, "ResetStreak", userID, func(ctx context.Context) error {
		st, err := t.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		if st.IsNew() {
			result, changed = st, false
			return nil
		}
		st.Reset(t.now())
		if err := t.repo.Save(ctx, st); err != nil {
			return err
		}
		result, changed = st, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		t.logger.Info("streak reset", logger.UserID(userID))
		t.publish(shared.NewStreakChangedEvent(shared.EventStreakReset, userID, 0, result.LongestStreak, false))
	}
	return result, nil
}

// GetState returns the streak, or the reset state for an unknown user.
func (t *StreakTracker) GetState(ctx context.Context, userID string) (*streak.State, error) {
	return t.loadOrNew(ctx, userID)
}

func (t *StreakTracker) loadOrNew(ctx context.Context, userID string) (*streak.State, error) {
	st, err := t.repo.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return streak.NewState(userID), nil
	}
	return st, err
}
