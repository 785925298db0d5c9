package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.Repository for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

var _ badge.Repository = (*BadgeRepository)(nil)

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// AwardTier inserts the award and pays pts in the same transaction. The
// unique (user_id, badge_id, tier) constraint decides which of several
// concurrent evaluations gets to pay.
func (r *BadgeRepository) AwardTier(ctx context.Context, award badge.Award, pts int64) (bool, error) {
	inserted := false

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO badge_awards (id, user_id, badge_id, tier, awarded_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, badge_id, tier) DO NOTHING
		`, award.ID, award.UserID, award.BadgeID, string(award.Tier), award.AwardedAt)
		if err != nil {
			return fmt.Errorf("failed to insert badge award: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		if pts <= 0 {
			return nil
		}

		// Bumping the version makes any in-flight ledger write retry
		// instead of overwriting the payout.
		_, err = tx.Exec(ctx, `
			INSERT INTO points_accounts (user_id, balance, total_earned, total_spent, version, created_at, updated_at)
			VALUES ($1, $2, $2, 0, 1, $3, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				balance = points_accounts.balance + EXCLUDED.balance,
				total_earned = points_accounts.total_earned + EXCLUDED.total_earned,
				version = points_accounts.version + 1,
				updated_at = EXCLUDED.updated_at
		`, award.UserID, pts, award.AwardedAt)
		if err != nil {
			return fmt.Errorf("failed to pay badge points: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// Awards lists the user's awards, oldest first.
func (r *BadgeRepository) Awards(ctx context.Context, userID string) ([]badge.Award, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, badge_id, tier, awarded_at
		FROM badge_awards
		WHERE user_id = $1
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query badge awards: %w", err)
	}
	defer rows.Close()

	awards := make([]badge.Award, 0)
	for rows.Next() {
		var (
			a    badge.Award
			tier string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.BadgeID, &tier, &a.AwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge award: %w", err)
		}
		a.Tier = badge.Tier(tier)
		awards = append(awards, a)
	}

	return awards, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardSource implements leaderboard.Source by joining points balances
// with goal completion counts. A user appears once either side has a row.
type LeaderboardSource struct {
	conn *Connection
}

var _ leaderboard.Source = (*LeaderboardSource)(nil)

// NewLeaderboardSource creates a new LeaderboardSource.
func NewLeaderboardSource(conn *Connection) *LeaderboardSource {
	return &LeaderboardSource{conn: conn}
}

// Entries implements leaderboard.Source.
func (s *LeaderboardSource) Entries(ctx context.Context) ([]leaderboard.Entry, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			COALESCE(p.user_id, g.user_id) AS user_id,
			COALESCE(g.completed_goals, 0),
			COALESCE(g.completed_milestones, 0),
			COALESCE(p.balance, 0)
		FROM points_accounts p
		FULL OUTER JOIN goal_completion_stats g ON g.user_id = p.user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard source: %w", err)
	}
	defer rows.Close()

	entries := make([]leaderboard.Entry, 0)
	for rows.Next() {
		var e leaderboard.Entry
		if err := rows.Scan(&e.UserID, &e.CompletedGoals, &e.CompletedMilestones, &e.TotalPoints); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
