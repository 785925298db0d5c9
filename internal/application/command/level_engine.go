package command

import (
	"context"
	"log/slog"

	"github.com/accountable-hub/progression/internal/domain/level"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/xp"
	"github.com/accountable-hub/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL ENGINE
// Consumes XP grants. Each grant is appended to the XP history and applied
// to the level state in the same write.
// ══════════════════════════════════════════════════════════════════════════════

// XPGrantResult describes the outcome of AddXP.
type XPGrantResult struct {
	// State is the level state after the grant.
	State *level.State

	// Entry is the history row written for the grant.
	Entry xp.Entry

	// LevelUps is the number of thresholds crossed by this grant.
	LevelUps int
}

// LevelEngine applies XP and level rewards.
type LevelEngine struct {
	ledger
	repo level.Repository
}

// NewLevelEngine creates a new LevelEngine.
func NewLevelEngine(repo level.Repository, publisher shared.EventPublisher, config LedgerConfig) *LevelEngine {
	return &LevelEngine{
		ledger: newLedger("level_engine", config, publisher),
		repo:   repo,
	}
}

// AddXP records a grant of amount XP and runs the level-up cascade. A zero
// amount is a valid grant: it is logged to the history and changes nothing
// else.
func (e *LevelEngine) AddXP(ctx context.Context, userID string, amount int64, reason string) (*XPGrantResult, error) {
	entry, err := xp.NewEntry(userID, amount, reason, e.now())
	if err != nil {
		return nil, err
	}

	var (
		result   *XPGrantResult
		oldLevel int
	)
	err = e.mutate(ctx, "AddXP", userID, func(ctx context.Context) error {
		st, err := e.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		oldLevel = st.Level

		ups, err := st.ApplyXP(amount, entry.OccurredAt)
		if err != nil {
			return err
		}
		if err := e.repo.Save(ctx, st, level.Change{Entry: &entry}); err != nil {
			return err
		}
		result = &XPGrantResult{State: st, Entry: entry, LevelUps: ups}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := []shared.Event{
		shared.NewXPGrantedEvent(userID, amount, reason, result.State.TotalXP),
	}
	if result.LevelUps > 0 {
		e.logger.Info("level up",
			logger.UserID(userID), logger.Level(result.State.Level), logger.XP(result.State.TotalXP), slog.Int("levels_gained", result.LevelUps))
		events = append(events, shared.NewLevelUpEvent(userID, oldLevel, result.State.Level, result.State.NextLevelThreshold))
	}
	e.publish(events...)

	return result, nil
}

// AddReward appends a reward to the user's reward list. Rewards are not
// deduplicated.
func (e *LevelEngine) AddReward(ctx context.Context, userID string, rewardType level.RewardType, value string) (*level.State, error) {
	if !rewardType.IsValid() {
		return nil, shared.Wrap(shared.ErrInvalidRewardType, "AddReward", "unknown reward type %q", rewardType)
	}

	var result *level.State
	err := e.mutate(ctx, "AddReward", userID, func(ctx context.Context) error {
		st, err := e.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		reward, err := st.AddReward(rewardType, value, e.now())
		if err != nil {
			return err
		}
		if err := e.repo.Save(ctx, st, level.Change{Reward: &reward}); err != nil {
			return err
		}
		result = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(shared.NewRewardAddedEvent(userID, string(rewardType), value))
	return result, nil
}

// GetState returns the level state, or the level 1 defaults for a user
// without XP.
func (e *LevelEngine) GetState(ctx context.Context, userID string) (*level.State, error) {
	return e.loadOrNew(ctx, userID)
}

func (e *LevelEngine) loadOrNew(ctx context.Context, userID string) (*level.State, error) {
	st, err := e.repo.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return level.NewState(userID), nil
	}
	return st, err
}
