// Package points contains the redeemable points ledger: one account per user
// holding a non-negative balance and the history of redemptions.
package points

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

// Account is a user's points balance.
//
// Invariant: Balance >= 0 after every operation. Accounts are created lazily
// on the first credit and are never deleted.
type Account struct {
	UserID string

	// Balance is the redeemable amount.
	Balance int64

	// TotalEarned and TotalSpent are lifetime counters kept for audit.
	TotalEarned int64
	TotalSpent  int64

	// Version is the optimistic-concurrency token. Zero means the account
	// has never been persisted.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time

	// pending holds redemptions created since the account was loaded.
	pending []Redemption
}

// NewAccount returns an empty, not yet persisted account.
func NewAccount(userID string, now time.Time) *Account {
	return &Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsNew reports whether the account has never been saved.
func (a *Account) IsNew() bool {
	return a.Version == 0
}

// Credit adds a positive amount to the balance.
func (a *Account) Credit(amount int64, now time.Time) error {
	if amount <= 0 {
		return shared.Wrap(shared.ErrInvalidAmount, "Credit", "amount must be positive, got %d", amount)
	}
	if a.Balance > maxBalance-amount {
		return shared.Wrap(shared.ErrInvalidAmount, "Credit", "amount %d overflows balance", amount)
	}
	a.Balance += amount
	a.TotalEarned += amount
	a.UpdatedAt = now
	return nil
}

// Debit removes a positive amount from the balance. It fails without touching
// the account if the balance does not cover the amount.
func (a *Account) Debit(amount int64, now time.Time) error {
	if amount <= 0 {
		return shared.Wrap(shared.ErrInvalidAmount, "Debit", "amount must be positive, got %d", amount)
	}
	if amount > a.Balance {
		return shared.Wrap(shared.ErrInsufficientBalance, "Debit",
			"cannot spend %d points with a balance of %d", amount, a.Balance)
	}
	a.Balance -= amount
	a.TotalSpent += amount
	a.UpdatedAt = now
	return nil
}

// Redeem debits pointsSpent and records a redemption for rewardLabel. The
// redemption is persisted by the next Repository.Save together with the new
// balance.
func (a *Account) Redeem(rewardLabel string, pointsSpent int64, now time.Time) (Redemption, error) {
	rewardLabel = strings.TrimSpace(rewardLabel)
	if rewardLabel == "" {
		return Redemption{}, shared.ErrEmptyRewardLabel
	}
	if pointsSpent < 1 {
		return Redemption{}, shared.Wrap(shared.ErrInvalidAmount, "Redeem",
			"points spent must be at least 1, got %d", pointsSpent)
	}
	if err := a.Debit(pointsSpent, now); err != nil {
		return Redemption{}, err
	}

	r := Redemption{
		ID:          uuid.NewString(),
		UserID:      a.UserID,
		RewardLabel: rewardLabel,
		PointsSpent: pointsSpent,
		RedeemedAt:  now,
	}
	a.pending = append(a.pending, r)
	return r, nil
}

// PendingRedemptions returns redemptions that have not been saved yet.
func (a *Account) PendingRedemptions() []Redemption {
	out := make([]Redemption, len(a.pending))
	copy(out, a.pending)
	return out
}

// MarkSaved is called by repositories after a successful save.
func (a *Account) MarkSaved(version int64) {
	a.Version = version
	a.pending = nil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.pending = append([]Redemption(nil), a.pending...)
	return &c
}

// String returns a representation for logs.
func (a *Account) String() string {
	return fmt.Sprintf("Account{user=%s, balance=%d, v=%d}", a.UserID, a.Balance, a.Version)
}

const maxBalance = int64(^uint64(0) >> 1)

// ══════════════════════════════════════════════════════════════════════════════
// REDEMPTION
// ══════════════════════════════════════════════════════════════════════════════

// Redemption is an immutable record of points exchanged for a reward.
type Redemption struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	RewardLabel string    `json:"reward_label"`
	PointsSpent int64     `json:"points_spent"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}
