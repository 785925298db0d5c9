// Package streak tracks consecutive check-ins with a grace window.
package streak

import (
	"context"
	"time"
)

// GraceWindow is the longest gap between two check-ins that still continues
// a streak. One and a half days lets a user check in at a different time of
// day without breaking the streak, while skipping a whole day still breaks it.
const GraceWindow = 36 * time.Hour

// State is a user's streak. StreakCount == 0 with a nil LastCheckIn is the
// reset state.
type State struct {
	UserID        string     `json:"user_id"`
	StreakCount   int        `json:"streak_count"`
	LastCheckIn   *time.Time `json:"last_check_in"`
	LongestStreak int        `json:"longest_streak"`

	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns the reset state for a user.
func NewState(userID string) *State {
	return &State{UserID: userID}
}

// IsNew reports whether the state has never been saved.
func (s *State) IsNew() bool {
	return s.Version == 0
}

// RecordCheckIn applies a check-in at now and reports whether the existing
// streak was continued. There is no once-per-day guard: every call inside
// the grace window increments the count.
func (s *State) RecordCheckIn(now time.Time) bool {
	continued := s.LastCheckIn != nil && now.Sub(*s.LastCheckIn) <= GraceWindow

	if continued {
		s.StreakCount++
	} else {
		s.StreakCount = 1
	}
	if s.StreakCount > s.LongestStreak {
		s.LongestStreak = s.StreakCount
	}

	at := now
	s.LastCheckIn = &at
	s.UpdatedAt = now
	return continued
}

// Reset clears the streak. LongestStreak is kept.
func (s *State) Reset(now time.Time) {
	s.StreakCount = 0
	s.LastCheckIn = nil
	s.UpdatedAt = now
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	if s.LastCheckIn != nil {
		t := *s.LastCheckIn
		c.LastCheckIn = &t
	}
	return &c
}

// Repository persists streak states.
type Repository interface {
	// Get returns the state, or shared.ErrUserNotFound.
	Get(ctx context.Context, userID string) (*State, error)

	// Save writes the state with compare-and-swap on Version. On success the
	// Version is advanced; on a lost race shared.ErrConcurrentModification
	// is returned.
	Save(ctx context.Context, s *State) error
}
