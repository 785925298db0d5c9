package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/streak"
)

// StreakRepository implements streak.Repository for PostgreSQL.
type StreakRepository struct {
	conn *Connection
}

var _ streak.Repository = (*StreakRepository)(nil)

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

// Get returns the streak for userID.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*streak.State, error) {
	query := `
		SELECT user_id, streak_count, longest_streak, last_check_in, version, updated_at
		FROM streak_states
		WHERE user_id = $1
	`

	st := &streak.State{}
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&st.UserID,
		&st.StreakCount,
		&st.LongestStreak,
		&st.LastCheckIn,
		&st.Version,
		&st.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.Wrap(shared.ErrUserNotFound, "GetStreak", "no streak for %q", userID)
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}

	return st, nil
}

// Save writes the streak with compare-and-swap on version.
func (r *StreakRepository) Save(ctx context.Context, st *streak.State) error {
	next := st.Version + 1

	var (
		tag pgconn.CommandTag
		err error
	)
	if st.IsNew() {
		tag, err = r.conn.Exec(ctx, `
			INSERT INTO streak_states (user_id, streak_count, longest_streak, last_check_in, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, st.UserID, st.StreakCount, st.LongestStreak, st.LastCheckIn, next, st.UpdatedAt)
	} else {
		tag, err = r.conn.Exec(ctx, `
			UPDATE streak_states SET
				streak_count = $1,
				longest_streak = $2,
				last_check_in = $3,
				version = $4,
				updated_at = $5
			WHERE user_id = $6 AND version = $7
		`, st.StreakCount, st.LongestStreak, st.LastCheckIn, next, st.UpdatedAt, st.UserID, st.Version)
	}
	if err != nil {
		return fmt.Errorf("failed to save streak: %w", conflictError(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("streak", "Save", shared.ErrConcurrentModification,
			fmt.Sprintf("streak %s changed since version %d", st.UserID, st.Version), nil)
	}

	st.Version = next
	return nil
}
