// Package leaderboard contains the read-only ranking of users by completed
// goals, completed milestones and points.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

// MaxPageSize caps Rank requests.
const MaxPageSize = 100

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is a derived row of the leaderboard. It is never stored as source of
// truth; goal and milestone counts are owned by the goal service and
// TotalPoints is the user's points balance.
type Entry struct {
	UserID              string `json:"user_id"`
	CompletedGoals      int64  `json:"completed_goals"`
	CompletedMilestones int64  `json:"completed_milestones"`
	TotalPoints         int64  `json:"total_points"`
}

// Less reports whether a ranks before b: completed goals descending, then
// completed milestones descending, then total points descending, then user
// ID ascending. It is a strict total order over entries with distinct user
// IDs.
func Less(a, b Entry) bool {
	if a.CompletedGoals != b.CompletedGoals {
		return a.CompletedGoals > b.CompletedGoals
	}
	if a.CompletedMilestones != b.CompletedMilestones {
		return a.CompletedMilestones > b.CompletedMilestones
	}
	if a.TotalPoints != b.TotalPoints {
		return a.TotalPoints > b.TotalPoints
	}
	return a.UserID < b.UserID
}

// Sort orders entries in place.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
}

// RankedEntry is an entry with its 1-based position.
type RankedEntry struct {
	Position int `json:"position"`
	Entry
}

// ══════════════════════════════════════════════════════════════════════════════
// PAGE
// ══════════════════════════════════════════════════════════════════════════════

// Page is one page of the ordered leaderboard.
type Page struct {
	Entries    []RankedEntry `json:"entries"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalCount int           `json:"total_count"`
	TotalPages int           `json:"total_pages"`
	HasNext    bool          `json:"has_next"`
	HasPrev    bool          `json:"has_prev"`
}

// ValidatePage checks paging arguments.
func ValidatePage(page, pageSize int) error {
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize {
		return shared.Wrap(shared.ErrInvalidPage, "Rank", "invalid page %d with size %d", page, pageSize)
	}
	return nil
}

// Paginate cuts a page out of an already sorted slice. Pages past the end
// are empty, not an error.
func Paginate(sorted []Entry, page, pageSize int) Page {
	total := len(sorted)
	p := Page{
		Entries:    []RankedEntry{},
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasPrev:    page > 1,
	}

	start := (page - 1) * pageSize
	if start >= total {
		return p
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	for i := start; i < end; i++ {
		p.Entries = append(p.Entries, RankedEntry{Position: i + 1, Entry: sorted[i]})
	}
	p.HasNext = end < total
	return p
}

// PositionIn returns the 1-based position of userID in a sorted slice, or
// shared.ErrUserNotFound.
func PositionIn(sorted []Entry, userID string) (int, error) {
	for i, e := range sorted {
		if e.UserID == userID {
			return i + 1, nil
		}
	}
	return 0, shared.Wrap(shared.ErrUserNotFound, "PositionOf", "user %q is not on the leaderboard", userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Source reads the current, unordered leaderboard rows.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// ErrCacheMiss is returned by a Cache that holds no snapshot.
var ErrCacheMiss = errors.New("leaderboard cache miss")

// Snapshot is a fully ordered leaderboard captured at a point in time.
type Snapshot struct {
	Entries []Entry   `json:"entries"`
	BuiltAt time.Time `json:"built_at"`
}

// Cache holds the most recent ordered snapshot.
type Cache interface {
	// Store replaces the cached snapshot. Entries must already be sorted.
	Store(ctx context.Context, snapshot Snapshot) error

	// Page returns a page of the cached ordering, or ErrCacheMiss.
	Page(ctx context.Context, page, pageSize int) (Page, error)

	// Position returns the 1-based position of userID, ErrCacheMiss when
	// empty, or shared.ErrUserNotFound when the user is absent.
	Position(ctx context.Context, userID string) (int, error)

	// BuiltAt reports when the cached snapshot was built, or ErrCacheMiss.
	BuiltAt(ctx context.Context) (time.Time, error)

	// Invalidate drops the snapshot.
	Invalidate(ctx context.Context) error
}

// String returns a representation for logs.
func (e Entry) String() string {
	return fmt.Sprintf("Entry{user=%s, goals=%d, milestones=%d, points=%d}",
		e.UserID, e.CompletedGoals, e.CompletedMilestones, e.TotalPoints)
}
