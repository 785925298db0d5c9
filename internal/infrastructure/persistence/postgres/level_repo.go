package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/accountable-hub/progression/internal/domain/level"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LevelRepository implements level.Repository and xp.Repository for
// PostgreSQL. XP entries are written with the level state they produced.
type LevelRepository struct {
	conn *Connection
}

var (
	_ level.Repository = (*LevelRepository)(nil)
	_ xp.Repository    = (*LevelRepository)(nil)
)

// NewLevelRepository creates a new LevelRepository.
func NewLevelRepository(conn *Connection) *LevelRepository {
	return &LevelRepository{conn: conn}
}

// Get returns the level state and its rewards.
func (r *LevelRepository) Get(ctx context.Context, userID string) (*level.State, error) {
	query := `
		SELECT user_id, level, points_into_level, next_level_threshold, total_xp, version, updated_at
		FROM level_states
		WHERE user_id = $1
	`

	st := &level.State{}
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&st.UserID,
		&st.Level,
		&st.PointsIntoLevel,
		&st.NextLevelThreshold,
		&st.TotalXP,
		&st.Version,
		&st.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.Wrap(shared.ErrUserNotFound, "GetLevel", "no level state for %q", userID)
		}
		return nil, fmt.Errorf("failed to get level state: %w", err)
	}

	rewards, err := r.loadRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.Rewards = rewards

	return st, nil
}

func (r *LevelRepository) loadRewards(ctx context.Context, userID string) ([]level.Reward, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT reward_type, value, achieved_at
		FROM level_rewards
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query level rewards: %w", err)
	}
	defer rows.Close()

	rewards := make([]level.Reward, 0)
	for rows.Next() {
		var (
			rw  level.Reward
			typ string
		)
		if err := rows.Scan(&typ, &rw.Value, &rw.AchievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan level reward: %w", err)
		}
		rw.Type = level.RewardType(typ)
		rewards = append(rewards, rw)
	}

	return rewards, rows.Err()
}

// Save writes the state with compare-and-swap on version together with the
// XP entry or reward that changed it.
func (r *LevelRepository) Save(ctx context.Context, st *level.State, change level.Change) error {
	next := st.Version + 1

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			tag pgconn.CommandTag
			err error
		)
		if st.IsNew() {
			tag, err = tx.Exec(ctx, `
				INSERT INTO level_states (user_id, level, points_into_level, next_level_threshold, total_xp, version, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, st.UserID, st.Level, st.PointsIntoLevel, st.NextLevelThreshold, st.TotalXP, next, st.UpdatedAt)
		} else {
			tag, err = tx.Exec(ctx, `
				UPDATE level_states SET
					level = $1,
					points_into_level = $2,
					next_level_threshold = $3,
					total_xp = $4,
					version = $5,
					updated_at = $6
				WHERE user_id = $7 AND version = $8
			`, st.Level, st.PointsIntoLevel, st.NextLevelThreshold, st.TotalXP, next, st.UpdatedAt, st.UserID, st.Version)
		}
		if err != nil {
			return fmt.Errorf("failed to save level state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.WrapError("level", "Save", shared.ErrConcurrentModification,
				fmt.Sprintf("level state %s changed since version %d", st.UserID, st.Version), nil)
		}

		if e := change.Entry; e != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO xp_entries (id, user_id, amount, reason, occurred_at)
				VALUES ($1, $2, $3, $4, $5)
			`, e.ID, e.UserID, e.Amount, e.Reason, e.OccurredAt); err != nil {
				return fmt.Errorf("failed to insert xp entry: %w", err)
			}
		}

		if rw := change.Reward; rw != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO level_rewards (user_id, reward_type, value, achieved_at)
				VALUES ($1, $2, $3, $4)
			`, st.UserID, string(rw.Type), rw.Value, rw.AchievedAt); err != nil {
				return fmt.Errorf("failed to insert level reward: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	st.Version = next
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// XP History
// ─────────────────────────────────────────────────────────────────────────────

// List returns up to limit entries, newest first.
func (r *LevelRepository) List(ctx context.Context, userID string, limit int) ([]xp.Entry, error) {
	query := `
		SELECT id, user_id, amount, reason, occurred_at
		FROM xp_entries
		WHERE user_id = $1
		ORDER BY occurred_at DESC, seq DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query xp entries: %w", err)
	}
	defer rows.Close()

	entries := make([]xp.Entry, 0)
	for rows.Next() {
		var e xp.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan xp entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Total returns the sum of all grants.
func (r *LevelRepository) Total(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::BIGINT FROM xp_entries WHERE user_id = $1
	`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum xp entries: %w", err)
	}
	return total, nil
}
