// Package level holds a user's level and the cascading threshold rule that
// turns XP grants into level-ups.
package level

import (
	"context"
	"fmt"
	"time"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/xp"
)

// InitialThreshold is the XP needed to leave level 1.
const InitialThreshold int64 = 100

// NextThreshold returns floor(t * 1.2) using integer arithmetic only.
func NextThreshold(t int64) int64 {
	return t + t/5
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// RewardType classifies level rewards.
type RewardType string

const (
	RewardBadge         RewardType = "badge"
	RewardDiscount      RewardType = "discount"
	RewardCustomization RewardType = "customization"
)

// IsValid reports whether t is a known reward type.
func (t RewardType) IsValid() bool {
	switch t {
	case RewardBadge, RewardDiscount, RewardCustomization:
		return true
	}
	return false
}

// Reward is an entry in the user's reward list. Duplicates are allowed.
type Reward struct {
	Type       RewardType `json:"type"`
	Value      string     `json:"value"`
	AchievedAt time.Time  `json:"achieved_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is a user's level.
//
// Invariant: 0 <= PointsIntoLevel < NextLevelThreshold after every mutation.
type State struct {
	UserID             string   `json:"user_id"`
	PointsIntoLevel    int64    `json:"points_into_level"`
	Level              int      `json:"level"`
	NextLevelThreshold int64    `json:"next_level_threshold"`
	TotalXP            int64    `json:"total_xp"`
	Rewards            []Reward `json:"rewards"`

	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns the default state for a user without XP.
func NewState(userID string) *State {
	return &State{
		UserID:             userID,
		Level:              1,
		NextLevelThreshold: InitialThreshold,
		Rewards:            []Reward{},
	}
}

// IsNew reports whether the state has never been saved.
func (s *State) IsNew() bool {
	return s.Version == 0
}

// ApplyXP adds amount and runs the level-up cascade. It returns the number
// of levels gained. A zero amount leaves the state untouched.
func (s *State) ApplyXP(amount int64, now time.Time) (int, error) {
	if amount < 0 {
		return 0, shared.Wrap(shared.ErrInvalidAmount, "ApplyXP", "xp amount cannot be negative, got %d", amount)
	}
	if amount == 0 {
		return 0, nil
	}
	if s.PointsIntoLevel > maxInt64-amount || s.TotalXP > maxInt64-amount {
		return 0, shared.Wrap(shared.ErrInvalidAmount, "ApplyXP", "xp amount %d overflows level state", amount)
	}

	s.PointsIntoLevel += amount
	s.TotalXP += amount

	levelUps := 0
	for s.PointsIntoLevel >= s.NextLevelThreshold {
		s.PointsIntoLevel -= s.NextLevelThreshold
		s.Level++
		s.NextLevelThreshold = NextThreshold(s.NextLevelThreshold)
		levelUps++
	}

	s.UpdatedAt = now
	return levelUps, nil
}

// AddReward appends a reward.
func (s *State) AddReward(rewardType RewardType, value string, now time.Time) (Reward, error) {
	if !rewardType.IsValid() {
		return Reward{}, shared.Wrap(shared.ErrInvalidRewardType, "AddReward", "unknown reward type %q", rewardType)
	}
	r := Reward{Type: rewardType, Value: value, AchievedAt: now}
	s.Rewards = append(s.Rewards, r)
	s.UpdatedAt = now
	return r, nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Rewards = append([]Reward{}, s.Rewards...)
	return &c
}

// String returns a representation for logs.
func (s *State) String() string {
	return fmt.Sprintf("Level{user=%s, level=%d, into=%d/%d}",
		s.UserID, s.Level, s.PointsIntoLevel, s.NextLevelThreshold)
}

const maxInt64 = int64(^uint64(0) >> 1)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Change is what a single Save persists next to the new state.
type Change struct {
	// Entry is appended to the XP history.
	Entry *xp.Entry

	// Reward is appended to the reward list.
	Reward *Reward
}

// Repository persists level states.
type Repository interface {
	// Get returns the state, or shared.ErrUserNotFound.
	Get(ctx context.Context, userID string) (*State, error)

	// Save writes the state with compare-and-swap on Version and applies
	// change in the same transaction. On success the state's Version is
	// advanced; on a lost race shared.ErrConcurrentModification is returned
	// and nothing is written.
	Save(ctx context.Context, s *State, change Change) error
}
