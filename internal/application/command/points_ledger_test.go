package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/infrastructure/persistence/memory"
)

func TestPointsLedger_AddAndSubtract(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	ledger := NewPointsLedger(memory.NewStore().Points(), pub, testConfig())

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	balance, err = ledger.AddPoints(ctx, "user-1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	balance, err = ledger.SubtractPoints(ctx, "user-1", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	acc, err := ledger.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acc.TotalEarned)
	assert.Equal(t, int64(20), acc.TotalSpent)

	assert.Len(t, pub.ofType(shared.EventPointsEarned), 1)
	assert.Len(t, pub.ofType(shared.EventPointsSpent), 1)
}

func TestPointsLedger_Validation(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(memory.NewStore().Points(), nil, testConfig())

	_, err := ledger.AddPoints(ctx, "user-1", 0)
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = ledger.AddPoints(ctx, "", 10)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = ledger.SubtractPoints(ctx, "user-1", -3)
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = ledger.GetAccount(ctx, "user-1")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestPointsLedger_SubtractMoreThanBalance(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	ledger := NewPointsLedger(memory.NewStore().Points(), pub, testConfig())

	_, err := ledger.SubtractPoints(ctx, "new-user", 1)
	assert.True(t, shared.IsInsufficientBalance(err))

	_, err = ledger.AddPoints(ctx, "user-1", 10)
	require.NoError(t, err)
	_, err = ledger.SubtractPoints(ctx, "user-1", 11)
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
	assert.Empty(t, pub.ofType(shared.EventPointsSpent))
}

func TestPointsLedger_ConcurrentCreditsAllApply(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(memory.NewStore().Points(), nil, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.AddPoints(ctx, "user-1", 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
}

func TestPointsLedger_RecordRedemption(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	ledger := NewPointsLedger(memory.NewStore().Points(), pub, testConfig())

	_, err := ledger.AddPoints(ctx, "user-1", 100)
	require.NoError(t, err)

	r, err := ledger.RecordRedemption(ctx, "user-1", "Coffee", 40)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", r.RewardLabel)
	assert.Equal(t, testNow, r.RedeemedAt)

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	list, err := ledger.Redemptions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)
	assert.Len(t, pub.ofType(shared.EventPointsRedeemed), 1)
}

func TestPointsLedger_FailedRedemptionLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(memory.NewStore().Points(), nil, testConfig())

	_, err := ledger.AddPoints(ctx, "user-1", 10)
	require.NoError(t, err)

	_, err = ledger.RecordRedemption(ctx, "user-1", "Hoodie", 11)
	assert.ErrorIs(t, err, shared.ErrInsufficientBalance)

	_, err = ledger.RecordRedemption(ctx, "user-1", "   ", 5)
	assert.ErrorIs(t, err, shared.ErrEmptyRewardLabel)

	_, err = ledger.RecordRedemption(ctx, "user-1", "Hoodie", 0)
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)

	list, err := ledger.Redemptions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestPointsLedger_ConcurrentRedemptionsNeverOverspend(t *testing.T) {
	ctx := context.Background()
	ledger := NewPointsLedger(memory.NewStore().Points(), nil, testConfig())

	_, err := ledger.AddPoints(ctx, "user-1", 100)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.RecordRedemption(ctx, "user-1", "Voucher", 30); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	list, err := ledger.Redemptions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestPointsLedger_ConflictsExhaustRetries(t *testing.T) {
	repo := &conflictingPoints{Repository: memory.NewStore().Points()}
	cfg := testConfig()
	cfg.MaxAttempts = 3
	ledger := NewPointsLedger(repo, nil, cfg)

	_, err := ledger.AddPoints(context.Background(), "user-1", 5)

	assert.True(t, shared.IsConcurrentModification(err))
	assert.Equal(t, 3, repo.saves)
}
