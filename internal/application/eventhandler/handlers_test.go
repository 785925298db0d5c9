package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/infrastructure/messaging"
	"github.com/accountable-hub/progression/pkg/logger"
)

type evaluation struct {
	userID    string
	condition badge.ConditionType
	counter   int64
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls []evaluation
	err   error
}

func (f *fakeEvaluator) EvaluateCondition(_ context.Context, userID string, condition badge.ConditionType, counter int64) (map[string][]badge.Tier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, evaluation{userID, condition, counter})
	return map[string][]badge.Tier{}, f.err
}

func TestOnStreakUpdated(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewOnStreakUpdatedHandler(eval, logger.Discard(), DefaultHandlerConfig())

	require.NoError(t, h.Handle(shared.NewStreakChangedEvent(shared.EventStreakUpdated, "user-1", 7, 7, true)))
	require.NoError(t, h.Handle(shared.NewStreakChangedEvent(shared.EventStreakReset, "user-1", 0, 7, false)))
	require.NoError(t, h.Handle(shared.NewXPGrantedEvent("user-1", 1, "", 1)))

	assert.Equal(t, []evaluation{{"user-1", badge.ConditionConsistencyMaster, 7}}, eval.calls)
}

func TestOnXPGranted(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewOnXPGrantedHandler(eval, logger.Discard(), HandlerConfig{})

	require.NoError(t, h.Handle(shared.NewXPGrantedEvent("user-1", 40, "goal", 140)))
	require.NoError(t, h.Handle(shared.NewXPGrantedEvent("user-1", 0, "noop", 140)))

	assert.Equal(t, []evaluation{{"user-1", badge.ConditionPointEarner, 140}}, eval.calls)
}

func TestHandlersSkipDisabledUsers(t *testing.T) {
	eval := &fakeEvaluator{}
	cfg := HandlerConfig{Enabled: func(userID string) bool { return userID != "opted-out" }}

	streaks := NewOnStreakUpdatedHandler(eval, logger.Discard(), cfg)
	grants := NewOnXPGrantedHandler(eval, logger.Discard(), cfg)

	require.NoError(t, streaks.Handle(shared.NewStreakChangedEvent(shared.EventStreakUpdated, "opted-out", 3, 3, true)))
	require.NoError(t, grants.Handle(shared.NewXPGrantedEvent("opted-out", 10, "", 10)))
	require.NoError(t, grants.Handle(shared.NewXPGrantedEvent("user-2", 10, "", 10)))

	assert.Equal(t, []evaluation{{"user-2", badge.ConditionPointEarner, 10}}, eval.calls)
}

func TestHandlersReturnEvaluationErrors(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("store down")}
	h := NewOnXPGrantedHandler(eval, logger.Discard(), DefaultHandlerConfig())

	assert.Error(t, h.Handle(shared.NewXPGrantedEvent("user-1", 5, "", 5)))
}

func TestRegister(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: logger.Discard()})
	eval := &fakeEvaluator{}

	require.NoError(t, Register(bus, eval, logger.Discard(), DefaultHandlerConfig()))

	require.NoError(t, bus.Publish(shared.NewStreakChangedEvent(shared.EventStreakUpdated, "user-1", 3, 3, true)))
	require.NoError(t, bus.Publish(shared.NewXPGrantedEvent("user-2", 10, "", 10)))
	require.NoError(t, bus.Publish(shared.NewPointsChangedEvent(shared.EventPointsEarned, "user-3", 1, 1, "")))

	assert.Equal(t, []evaluation{
		{"user-1", badge.ConditionConsistencyMaster, 3},
		{"user-2", badge.ConditionPointEarner, 10},
	}, eval.calls)
}
