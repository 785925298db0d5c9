package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINTS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PointsRepository implements points.Repository for PostgreSQL.
type PointsRepository struct {
	conn *Connection
}

var _ points.Repository = (*PointsRepository)(nil)

// NewPointsRepository creates a new PointsRepository.
func NewPointsRepository(conn *Connection) *PointsRepository {
	return &PointsRepository{conn: conn}
}

// Get returns the account for userID.
func (r *PointsRepository) Get(ctx context.Context, userID string) (*points.Account, error) {
	query := `
		SELECT user_id, balance, total_earned, total_spent, version, created_at, updated_at
		FROM points_accounts
		WHERE user_id = $1
	`

	acc := &points.Account{}
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&acc.UserID,
		&acc.Balance,
		&acc.TotalEarned,
		&acc.TotalSpent,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.Wrap(shared.ErrUserNotFound, "GetAccount", "no points account for %q", userID)
		}
		return nil, fmt.Errorf("failed to get points account: %w", err)
	}

	return acc, nil
}

// Save writes the account and its pending redemptions in one transaction,
// guarded by the version column.
func (r *PointsRepository) Save(ctx context.Context, acc *points.Account) error {
	next := acc.Version + 1

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := saveAccount(ctx, tx, acc, next); err != nil {
			return err
		}

		for _, red := range acc.PendingRedemptions() {
			_, err := tx.Exec(ctx, `
				INSERT INTO point_redemptions (id, user_id, reward_label, points_spent, redeemed_at)
				VALUES ($1, $2, $3, $4, $5)
			`, red.ID, red.UserID, red.RewardLabel, red.PointsSpent, red.RedeemedAt)
			if err != nil {
				return fmt.Errorf("failed to insert redemption: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	acc.MarkSaved(next)
	return nil
}

// saveAccount inserts a new account, or updates an existing one only if its
// stored version is unchanged. A concurrent insert of the same account fails
// with a duplicate key, which WithTx reports as a concurrent modification.
func saveAccount(ctx context.Context, q Querier, acc *points.Account, next int64) error {
	var (
		tag pgconn.CommandTag
		err error
	)

	if acc.IsNew() {
		tag, err = q.Exec(ctx, `
			INSERT INTO points_accounts (user_id, balance, total_earned, total_spent, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, acc.UserID, acc.Balance, acc.TotalEarned, acc.TotalSpent, next, acc.CreatedAt, acc.UpdatedAt)
	} else {
		tag, err = q.Exec(ctx, `
			UPDATE points_accounts SET
				balance = $1,
				total_earned = $2,
				total_spent = $3,
				version = $4,
				updated_at = $5
			WHERE user_id = $6 AND version = $7
		`, acc.Balance, acc.TotalEarned, acc.TotalSpent, next, acc.UpdatedAt, acc.UserID, acc.Version)
	}

	if err != nil {
		if IsCheckViolation(err) {
			return shared.Wrap(shared.ErrInsufficientBalance, "SaveAccount", "balance would become negative")
		}
		return fmt.Errorf("failed to save points account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("points", "Save", shared.ErrConcurrentModification,
			fmt.Sprintf("account %s changed since version %d", acc.UserID, acc.Version), nil)
	}
	return nil
}

// Redemptions returns the user's redemptions in commit order.
func (r *PointsRepository) Redemptions(ctx context.Context, userID string) ([]points.Redemption, error) {
	query := `
		SELECT id, user_id, reward_label, points_spent, redeemed_at
		FROM point_redemptions
		WHERE user_id = $1
		ORDER BY seq
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	out := make([]points.Redemption, 0)
	for rows.Next() {
		var red points.Redemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.RewardLabel, &red.PointsSpent, &red.RedeemedAt); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		out = append(out, red)
	}

	return out, rows.Err()
}
