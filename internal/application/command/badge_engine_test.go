package command

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/infrastructure/persistence/memory"
)

func goalGetter() badge.Definition {
	return badge.Definition{
		ID:            "goal_getter",
		Name:          "Goal Getter",
		ConditionType: badge.ConditionGoalCompleted,
		Thresholds:    badge.TierValues{Bronze: 1, Silver: 10, Gold: 50},
		Points:        badge.TierValues{Bronze: 10, Silver: 50, Gold: 200},
	}
}

func newBadgeFixture(t *testing.T) (*BadgeEngine, *PointsLedger, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	catalog, rejected := badge.NewCatalog([]badge.Definition{
		goalGetter(),
		{
			ID:            "consistency_master",
			Name:          "Consistency Master",
			ConditionType: badge.ConditionConsistencyMaster,
			Thresholds:    badge.TierValues{Bronze: 7, Silver: 30, Gold: 100},
			Points:        badge.TierValues{Bronze: 20, Silver: 100, Gold: 500},
		},
	})
	require.Empty(t, rejected)

	pub := &recordingPublisher{}
	engine := NewBadgeEngine(catalog, store.Badges(), pub, testConfig())
	ledger := NewPointsLedger(store.Points(), nil, testConfig())
	return engine, ledger, pub
}

func TestBadgeEngine_AwardsReachableTiersOnce(t *testing.T) {
	ctx := context.Background()
	engine, ledger, pub := newBadgeFixture(t)

	tiers, err := engine.Evaluate(ctx, "user-1", goalGetter(), 12)
	require.NoError(t, err)
	assert.Equal(t, []badge.Tier{badge.TierSilver, badge.TierBronze}, tiers)

	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	tiers, err = engine.Evaluate(ctx, "user-1", goalGetter(), 12)
	require.NoError(t, err)
	assert.Empty(t, tiers)

	tiers, err = engine.Evaluate(ctx, "user-1", goalGetter(), 3)
	require.NoError(t, err)
	assert.Empty(t, tiers)

	tiers, err = engine.Evaluate(ctx, "user-1", goalGetter(), 50)
	require.NoError(t, err)
	assert.Equal(t, []badge.Tier{badge.TierGold}, tiers)

	balance, err = ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(260), balance)

	awards, err := engine.Awards(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, awards, 3)
	assert.Len(t, pub.ofType(shared.EventBadgeAwarded), 3)
}

func TestBadgeEngine_BelowBronzeAwardsNothing(t *testing.T) {
	engine, _, pub := newBadgeFixture(t)

	tiers, err := engine.Evaluate(context.Background(), "user-1", goalGetter(), 0)
	require.NoError(t, err)
	assert.NotNil(t, tiers)
	assert.Empty(t, tiers)
	assert.Empty(t, pub.ofType(shared.EventBadgeAwarded))
}

func TestBadgeEngine_InvalidDefinition(t *testing.T) {
	engine, _, _ := newBadgeFixture(t)

	def := goalGetter()
	def.Thresholds = badge.TierValues{Bronze: 10, Silver: 5, Gold: 50}

	_, err := engine.Evaluate(context.Background(), "user-1", def, 100)
	assert.ErrorIs(t, err, shared.ErrNonMonotonicTiers)

	awards, err := engine.Awards(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, awards)
}

func TestBadgeEngine_ConcurrentEvaluationsPayOnce(t *testing.T) {
	ctx := context.Background()
	engine, ledger, _ := newBadgeFixture(t)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tiers, err := engine.Evaluate(ctx, "user-1", goalGetter(), 60)
			assert.NoError(t, err)
			mu.Lock()
			total += len(tiers)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, total)
	balance, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(260), balance)
}

func TestBadgeEngine_EvaluateByIDAndCondition(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newBadgeFixture(t)

	_, err := engine.EvaluateByID(ctx, "user-1", "nope", 5)
	assert.ErrorIs(t, err, shared.ErrBadgeNotFound)

	tiers, err := engine.EvaluateByID(ctx, "user-1", "goal_getter", 1)
	require.NoError(t, err)
	assert.Equal(t, []badge.Tier{badge.TierBronze}, tiers)

	awarded, err := engine.EvaluateCondition(ctx, "user-1", badge.ConditionConsistencyMaster, 30)
	require.NoError(t, err)
	assert.Equal(t, map[string][]badge.Tier{
		"consistency_master": {badge.TierSilver, badge.TierBronze},
	}, awarded)

	awarded, err = engine.EvaluateCondition(ctx, "user-1", badge.ConditionPointEarner, 1_000_000)
	require.NoError(t, err)
	assert.Empty(t, awarded)
}

func TestBadgeEngine_NilCatalog(t *testing.T) {
	engine := NewBadgeEngine(nil, memory.NewStore().Badges(), nil, testConfig())
	assert.Equal(t, 0, engine.Catalog().Len())
}
