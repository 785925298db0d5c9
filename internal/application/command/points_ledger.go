package command

import (
	"context"

	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// POINTS LEDGER
// Holds the redeemable balance. Accounts are created on the first credit;
// reading a user without an account yields a zero balance.
// ══════════════════════════════════════════════════════════════════════════════

// PointsLedger applies credits, debits and redemptions.
type PointsLedger struct {
	ledger
	repo points.Repository
}

// NewPointsLedger creates a new PointsLedger.
func NewPointsLedger(repo points.Repository, publisher shared.EventPublisher, config LedgerConfig) *PointsLedger {
	return &PointsLedger{
		ledger: newLedger("points_ledger", config, publisher),
		repo:   repo,
	}
}

// AddPoints credits amount and returns the new balance.
func (p *PointsLedger) AddPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, shared.Wrap(shared.ErrInvalidAmount, "AddPoints", "amount must be positive, got %d", amount)
	}

	var balance int64
	err := p.mutate(ctx, "AddPoints", userID, func(ctx context.Context) error {
		acc, err := p.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		if err := acc.Credit(amount, p.now()); err != nil {
			return err
		}
		if err := p.repo.Save(ctx, acc); err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.logger.Debug("points credited", logger.UserID(userID), logger.Points(amount), logger.Balance(balance))
	p.publish(shared.NewPointsChangedEvent(shared.EventPointsEarned, userID, amount, balance, ""))
	return balance, nil
}

// SubtractPoints debits amount and returns the new balance. It fails with
// ErrInsufficientBalance when amount exceeds the balance; a user without an
// account has a balance of zero.
func (p *PointsLedger) SubtractPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, shared.Wrap(shared.ErrInvalidAmount, "SubtractPoints", "amount must be positive, got %d", amount)
	}

	var balance int64
	err := p.mutate(ctx, "SubtractPoints", userID, func(ctx context.Context) error {
		acc, err := p.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		if err := acc.Debit(amount, p.now()); err != nil {
			return err
		}
		if err := p.repo.Save(ctx, acc); err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.publish(shared.NewPointsChangedEvent(shared.EventPointsSpent, userID, amount, balance, ""))
	return balance, nil
}

// RecordRedemption spends pointsSpent on rewardLabel. The balance check, the
// debit and the redemption record commit together or not at all.
func (p *PointsLedger) RecordRedemption(ctx context.Context, userID, rewardLabel string, pointsSpent int64) (points.Redemption, error) {
	if pointsSpent < 1 {
		return points.Redemption{}, shared.Wrap(shared.ErrInvalidAmount, "RecordRedemption",
			"points spent must be at least 1, got %d", pointsSpent)
	}

	var (
		redemption points.Redemption
		balance    int64
	)
	err := p.mutate(ctx, "RecordRedemption", userID, func(ctx context.Context) error {
		acc, err := p.loadOrNew(ctx, userID)
		if err != nil {
			return err
		}
		r, err := acc.Redeem(rewardLabel, pointsSpent, p.now())
		if err != nil {
			return err
		}
		if err := p.repo.Save(ctx, acc); err != nil {
			return err
		}
		redemption, balance = r, acc.Balance
		return nil
	})
	if err != nil {
		return points.Redemption{}, err
	}

	p.logger.Info("reward redeemed",
		logger.UserID(userID), logger.Points(pointsSpent), logger.Balance(balance))
	p.publish(shared.NewPointsChangedEvent(shared.EventPointsRedeemed, userID, pointsSpent, balance, redemption.RewardLabel))
	return redemption, nil
}

// GetBalance returns the balance, or zero for a user without an account.
func (p *PointsLedger) GetBalance(ctx context.Context, userID string) (int64, error) {
	acc, err := p.repo.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// GetAccount returns the account, or ErrUserNotFound for callers that
// require one to exist.
func (p *PointsLedger) GetAccount(ctx context.Context, userID string) (*points.Account, error) {
	return p.repo.Get(ctx, userID)
}

// Redemptions returns the user's redemption history, oldest first.
func (p *PointsLedger) Redemptions(ctx context.Context, userID string) ([]points.Redemption, error) {
	return p.repo.Redemptions(ctx, userID)
}

func (p *PointsLedger) loadOrNew(ctx context.Context, userID string) (*points.Account, error) {
	acc, err := p.repo.Get(ctx, userID)
	if shared.IsNotFound(err) {
		return points.NewAccount(userID, p.now()), nil
	}
	return acc, err
}
