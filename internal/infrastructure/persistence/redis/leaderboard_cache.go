package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/accountable-hub/progression/internal/domain/leaderboard"
	"github.com/accountable-hub/progression/internal/domain/shared"
)

// LeaderboardCache stores the ordered leaderboard snapshot in Redis.
//
// Architecture:
//   - Sorted Set "leaderboard:order" stores userID -> position (0-based)
//   - Hash "leaderboard:entries" stores userID -> Entry JSON
//   - String "leaderboard:meta" stores build time and size; its presence
//     marks the snapshot as valid, so an empty leaderboard is still a hit
//
// The ordering is computed once by the aggregator, so the score is the
// position itself rather than a composite of the ranking keys.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// Key patterns for leaderboard cache.
const (
	keyLeaderboardOrder   = "leaderboard:order"
	keyLeaderboardEntries = "leaderboard:entries"
	keyLeaderboardMeta    = "leaderboard:meta"

	// DefaultLeaderboardTTL bounds how long a snapshot outlives its rebuild job.
	DefaultLeaderboardTTL = 15 * time.Minute
)

// LeaderboardMeta contains metadata about the cached snapshot.
type LeaderboardMeta struct {
	BuiltAt    time.Time `json:"built_at"`
	TotalCount int       `json:"total_count"`
}

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Store replaces the cached snapshot atomically.
func (l *LeaderboardCache) Store(ctx context.Context, snap leaderboard.Snapshot) error {
	zMembers := make([]redis.Z, 0, len(snap.Entries))
	hashData := make(map[string]interface{}, len(snap.Entries))

	for i, entry := range snap.Entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		zMembers = append(zMembers, redis.Z{Score: float64(i), Member: entry.UserID})
		hashData[entry.UserID] = data
	}

	metaData, err := json.Marshal(LeaderboardMeta{BuiltAt: snap.BuiltAt, TotalCount: len(snap.Entries)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, keyLeaderboardOrder, keyLeaderboardEntries, keyLeaderboardMeta)
	if len(zMembers) > 0 {
		pipe.ZAdd(ctx, keyLeaderboardOrder, zMembers...)
		pipe.HSet(ctx, keyLeaderboardEntries, hashData)
		pipe.Expire(ctx, keyLeaderboardOrder, l.ttl)
		pipe.Expire(ctx, keyLeaderboardEntries, l.ttl)
	}
	pipe.Set(ctx, keyLeaderboardMeta, metaData, l.ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate drops the snapshot.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	return l.cache.Delete(ctx, keyLeaderboardOrder, keyLeaderboardEntries, keyLeaderboardMeta)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Meta returns the snapshot metadata or leaderboard.ErrCacheMiss.
func (l *LeaderboardCache) Meta(ctx context.Context) (*LeaderboardMeta, error) {
	var meta LeaderboardMeta
	if err := l.cache.Get(ctx, keyLeaderboardMeta, &meta); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, leaderboard.ErrCacheMiss
		}
		return nil, err
	}
	return &meta, nil
}

// BuiltAt returns when the cached snapshot was built.
func (l *LeaderboardCache) BuiltAt(ctx context.Context) (time.Time, error) {
	meta, err := l.Meta(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return meta.BuiltAt, nil
}

// Page returns a page of the cached ordering. Page numbers start at 1.
func (l *LeaderboardCache) Page(ctx context.Context, page, pageSize int) (leaderboard.Page, error) {
	if err := leaderboard.ValidatePage(page, pageSize); err != nil {
		return leaderboard.Page{}, err
	}

	meta, err := l.Meta(ctx)
	if err != nil {
		return leaderboard.Page{}, err
	}

	total := meta.TotalCount
	p := leaderboard.Page{
		Entries:    []leaderboard.RankedEntry{},
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasPrev:    page > 1,
	}

	start := (page - 1) * pageSize
	if start >= total {
		return p, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	userIDs, err := l.cache.Client().ZRange(ctx, keyLeaderboardOrder, int64(start), int64(end-1)).Result()
	if err != nil {
		return leaderboard.Page{}, err
	}
	if len(userIDs) != end-start {
		// Keys expired between the meta read and the range read.
		return leaderboard.Page{}, leaderboard.ErrCacheMiss
	}

	raw, err := l.cache.Client().HMGet(ctx, keyLeaderboardEntries, userIDs...).Result()
	if err != nil {
		return leaderboard.Page{}, err
	}

	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return leaderboard.Page{}, leaderboard.ErrCacheMiss
		}
		var e leaderboard.Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return leaderboard.Page{}, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		p.Entries = append(p.Entries, leaderboard.RankedEntry{Position: start + i + 1, Entry: e})
	}
	p.HasNext = end < total

	return p, nil
}

// Position returns the 1-based position of userID in the snapshot.
func (l *LeaderboardCache) Position(ctx context.Context, userID string) (int, error) {
	if _, err := l.Meta(ctx); err != nil {
		return 0, err
	}

	// ZRank is 0-based and ascending, which is exactly the stored order.
	rank, err := l.cache.Client().ZRank(ctx, keyLeaderboardOrder, userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.Wrap(shared.ErrUserNotFound, "PositionOf", "user %q is not in the cached leaderboard", userID)
		}
		return 0, err
	}

	return int(rank) + 1, nil
}
