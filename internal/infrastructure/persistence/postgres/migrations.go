package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: POINTS LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS points_accounts (
    user_id TEXT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0,
    total_earned BIGINT NOT NULL DEFAULT 0,
    total_spent BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_balance CHECK (balance >= 0),
    CONSTRAINT valid_totals CHECK (total_earned >= 0 AND total_spent >= 0)
);

CREATE INDEX IF NOT EXISTS idx_points_accounts_balance ON points_accounts(balance DESC);

CREATE TABLE IF NOT EXISTS point_redemptions (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES points_accounts(user_id),
    reward_label TEXT NOT NULL,
    points_spent BIGINT NOT NULL,
    redeemed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    seq BIGSERIAL NOT NULL,

    CONSTRAINT valid_points_spent CHECK (points_spent > 0),
    CONSTRAINT valid_reward_label CHECK (length(reward_label) > 0)
);

CREATE INDEX IF NOT EXISTS idx_point_redemptions_user ON point_redemptions(user_id, seq);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: LEVELS, XP AND STREAKS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS level_states (
    user_id TEXT PRIMARY KEY,
    level INTEGER NOT NULL DEFAULT 1,
    points_into_level BIGINT NOT NULL DEFAULT 0,
    next_level_threshold BIGINT NOT NULL DEFAULT 100,
    total_xp BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_progress CHECK (points_into_level >= 0 AND points_into_level < next_level_threshold)
);

CREATE TABLE IF NOT EXISTS level_rewards (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES level_states(user_id),
    reward_type VARCHAR(20) NOT NULL,
    value TEXT NOT NULL,
    achieved_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_reward_type CHECK (reward_type IN ('badge', 'discount', 'customization'))
);

CREATE INDEX IF NOT EXISTS idx_level_rewards_user ON level_rewards(user_id, id);

-- Append-only XP log
CREATE TABLE IF NOT EXISTS xp_entries (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount BIGINT NOT NULL,
    reason VARCHAR(255) NOT NULL DEFAULT '',
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    seq BIGSERIAL NOT NULL,

    CONSTRAINT valid_amount CHECK (amount >= 0)
);

CREATE INDEX IF NOT EXISTS idx_xp_entries_user_time ON xp_entries(user_id, occurred_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS streak_states (
    user_id TEXT PRIMARY KEY,
    streak_count INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_check_in TIMESTAMP WITH TIME ZONE,
    version BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_streak CHECK (streak_count >= 0 AND longest_streak >= streak_count)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: BADGES AND GOAL STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS badge_awards (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    badge_id VARCHAR(100) NOT NULL,
    tier VARCHAR(10) NOT NULL,
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL,
    seq BIGSERIAL NOT NULL,

    CONSTRAINT unique_badge_award UNIQUE (user_id, badge_id, tier),
    CONSTRAINT valid_tier CHECK (tier IN ('bronze', 'silver', 'gold'))
);

CREATE INDEX IF NOT EXISTS idx_badge_awards_user ON badge_awards(user_id, seq);

-- Maintained by the goal service; read here for leaderboard ordering.
CREATE TABLE IF NOT EXISTS goal_completion_stats (
    user_id TEXT PRIMARY KEY,
    completed_goals BIGINT NOT NULL DEFAULT 0,
    completed_milestones BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_counts CHECK (completed_goals >= 0 AND completed_milestones >= 0)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations are applied in order; versions are never reused.
var migrations = []Migration{
	{Version: 1, Name: "create_points_ledger", SQL: migration001Up},
	{Version: 2, Name: "create_levels_xp_streaks", SQL: migration002Up},
	{Version: 3, Name: "create_badges_goal_stats", SQL: migration003Up},
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn *Connection
}

// NewMigrator creates a Migrator over conn.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn}
}

// Migrate applies every pending migration, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if _, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Name, err)
		}
		ran++
	}
	return ran, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
