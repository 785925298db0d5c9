// Package memory provides thread-safe in-memory implementations of every
// progression repository. They follow the same compare-and-swap contract as
// the PostgreSQL repositories and are used in tests and in development when
// no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/leaderboard"
	"github.com/accountable-hub/progression/internal/domain/level"
	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/streak"
	"github.com/accountable-hub/progression/internal/domain/xp"
)

// GoalStats are the externally owned completion counts for one user.
type GoalStats struct {
	CompletedGoals      int64
	CompletedMilestones int64
}

// Store holds all ledgers behind one lock. A single lock keeps multi-ledger
// writes (award plus payout, XP entry plus level) atomic.
type Store struct {
	mu sync.RWMutex

	accounts    map[string]*points.Account
	redemptions map[string][]points.Redemption
	levels      map[string]*level.State
	xpEntries   map[string][]xp.Entry
	streaks     map[string]*streak.State
	awards      map[string]badge.Award
	awardOrder  map[string][]string
	goalStats   map[string]GoalStats
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]*points.Account),
		redemptions: make(map[string][]points.Redemption),
		levels:      make(map[string]*level.State),
		xpEntries:   make(map[string][]xp.Entry),
		streaks:     make(map[string]*streak.State),
		awards:      make(map[string]badge.Award),
		awardOrder:  make(map[string][]string),
		goalStats:   make(map[string]GoalStats),
	}
}

// Points returns the points repository view.
func (s *Store) Points() *PointsRepository { return &PointsRepository{s: s} }

// Levels returns the level repository view.
func (s *Store) Levels() *LevelRepository { return &LevelRepository{s: s} }

// XP returns the XP history view.
func (s *Store) XP() *XPRepository { return &XPRepository{s: s} }

// Streaks returns the streak repository view.
func (s *Store) Streaks() *StreakRepository { return &StreakRepository{s: s} }

// Badges returns the badge award repository view.
func (s *Store) Badges() *BadgeRepository { return &BadgeRepository{s: s} }

// Leaderboard returns the leaderboard source view.
func (s *Store) Leaderboard() *LeaderboardSource { return &LeaderboardSource{s: s} }

// SetGoalStats records completion counts, standing in for the goal service.
func (s *Store) SetGoalStats(userID string, stats GoalStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goalStats[userID] = stats
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS
// ══════════════════════════════════════════════════════════════════════════════

// PointsRepository implements points.Repository.
type PointsRepository struct{ s *Store }

var _ points.Repository = (*PointsRepository)(nil)

// Get implements points.Repository.
func (r *PointsRepository) Get(_ context.Context, userID string) (*points.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	acc, ok := r.s.accounts[userID]
	if !ok {
		return nil, shared.Wrap(shared.ErrUserNotFound, "GetAccount", "no points account for %q", userID)
	}
	return acc.Clone(), nil
}

// Save implements points.Repository.
func (r *PointsRepository) Save(_ context.Context, acc *points.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.checkAccountVersion(acc.UserID, acc.Version); err != nil {
		return err
	}

	next := acc.Version + 1
	stored := acc.Clone()
	stored.MarkSaved(next)
	r.s.accounts[acc.UserID] = stored
	r.s.redemptions[acc.UserID] = append(r.s.redemptions[acc.UserID], acc.PendingRedemptions()...)

	acc.MarkSaved(next)
	return nil
}

// Redemptions implements points.Repository.
func (r *PointsRepository) Redemptions(_ context.Context, userID string) ([]points.Redemption, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]points.Redemption{}, r.s.redemptions[userID]...), nil
}

// checkAccountVersion must be called with mu held.
func (s *Store) checkAccountVersion(userID string, version int64) error {
	current, exists := s.accounts[userID]
	switch {
	case version == 0 && exists:
		return shared.WrapError("points", "Save", shared.ErrConcurrentModification,
			"account created concurrently", nil)
	case version != 0 && (!exists || current.Version != version):
		return shared.WrapError("points", "Save", shared.ErrConcurrentModification,
			"account version changed", nil)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL & XP
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository implements level.Repository.
type LevelRepository struct{ s *Store }

var _ level.Repository = (*LevelRepository)(nil)

// Get implements level.Repository.
func (r *LevelRepository) Get(_ context.Context, userID string) (*level.State, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.levels[userID]
	if !ok {
		return nil, shared.Wrap(shared.ErrUserNotFound, "GetLevel", "no level state for %q", userID)
	}
	return st.Clone(), nil
}

// Save implements level.Repository.
func (r *LevelRepository) Save(_ context.Context, st *level.State, change level.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, exists := r.s.levels[st.UserID]
	if (st.Version == 0 && exists) || (st.Version != 0 && (!exists || current.Version != st.Version)) {
		return shared.WrapError("level", "Save", shared.ErrConcurrentModification, "level version changed", nil)
	}

	st.Version++
	r.s.levels[st.UserID] = st.Clone()
	if change.Entry != nil {
		r.s.xpEntries[st.UserID] = append(r.s.xpEntries[st.UserID], *change.Entry)
	}
	return nil
}

// XPRepository implements xp.Repository.
type XPRepository struct{ s *Store }

var _ xp.Repository = (*XPRepository)(nil)

// List implements xp.Repository.
func (r *XPRepository) List(_ context.Context, userID string, limit int) ([]xp.Entry, error) {
	r.s.mu.RLock()
	entries := append([]xp.Entry{}, r.s.xpEntries[userID]...)
	r.s.mu.RUnlock()

	// Stable keeps append order for equal timestamps; newest append first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Total implements xp.Repository.
func (r *XPRepository) Total(_ context.Context, userID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var total int64
	for _, e := range r.s.xpEntries[userID] {
		total += e.Amount
	}
	return total, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Repository.
type StreakRepository struct{ s *Store }

var _ streak.Repository = (*StreakRepository)(nil)

// Get implements streak.Repository.
func (r *StreakRepository) Get(_ context.Context, userID string) (*streak.State, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	st, ok := r.s.streaks[userID]
	if !ok {
		return nil, shared.Wrap(shared.ErrUserNotFound, "GetStreak", "no streak for %q", userID)
	}
	return st.Clone(), nil
}

// Save implements streak.Repository.
func (r *StreakRepository) Save(_ context.Context, st *streak.State) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, exists := r.s.streaks[st.UserID]
	if (st.Version == 0 && exists) || (st.Version != 0 && (!exists || current.Version != st.Version)) {
		return shared.WrapError("streak", "Save", shared.ErrConcurrentModification, "streak version changed", nil)
	}

	st.Version++
	r.s.streaks[st.UserID] = st.Clone()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.Repository.
type BadgeRepository struct{ s *Store }

var _ badge.Repository = (*BadgeRepository)(nil)

// AwardTier implements badge.Repository. The award check, the insert and the
// payout all happen under the store lock.
func (r *BadgeRepository) AwardTier(_ context.Context, award badge.Award, pts int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := award.Key()
	if _, exists := r.s.awards[key]; exists {
		return false, nil
	}

	if pts > 0 {
		acc, ok := r.s.accounts[award.UserID]
		if ok {
			acc = acc.Clone()
		} else {
			acc = points.NewAccount(award.UserID, award.AwardedAt)
		}
		if err := acc.Credit(pts, award.AwardedAt); err != nil {
			return false, err
		}
		acc.MarkSaved(acc.Version + 1)
		r.s.accounts[award.UserID] = acc
	}

	r.s.awards[key] = award
	r.s.awardOrder[award.UserID] = append(r.s.awardOrder[award.UserID], key)
	return true, nil
}

// Awards implements badge.Repository.
func (r *BadgeRepository) Awards(_ context.Context, userID string) ([]badge.Award, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	keys := r.s.awardOrder[userID]
	out := make([]badge.Award, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.s.awards[k])
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardSource implements leaderboard.Source over accounts and goal
// stats. Users appear once they have either.
type LeaderboardSource struct{ s *Store }

var _ leaderboard.Source = (*LeaderboardSource)(nil)

// Entries implements leaderboard.Source.
func (l *LeaderboardSource) Entries(_ context.Context) ([]leaderboard.Entry, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	rows := make(map[string]*leaderboard.Entry, len(l.s.accounts)+len(l.s.goalStats))
	row := func(id string) *leaderboard.Entry {
		e, ok := rows[id]
		if !ok {
			e = &leaderboard.Entry{UserID: id}
			rows[id] = e
		}
		return e
	}

	for id, acc := range l.s.accounts {
		row(id).TotalPoints = acc.Balance
	}
	for id, gs := range l.s.goalStats {
		e := row(id)
		e.CompletedGoals = gs.CompletedGoals
		e.CompletedMilestones = gs.CompletedMilestones
	}

	out := make([]leaderboard.Entry, 0, len(rows))
	for _, e := range rows {
		out = append(out, *e)
	}
	return out, nil
}
