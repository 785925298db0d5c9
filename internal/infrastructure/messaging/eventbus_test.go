package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/logger"
)

type countingObserver struct {
	mu        sync.Mutex
	published int
	failures  []error
}

func (o *countingObserver) ObservePublish(shared.EventType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published++
}

func (o *countingObserver) ObserveHandler(_ shared.EventType, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures = append(o.failures, err)
	}
}

func syncBus(obs Observer) *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Discard(), Observer: obs})
}

func TestPublish_SyncDeliversInOrder(t *testing.T) {
	bus := syncBus(nil)

	var got []string
	require.NoError(t, bus.Subscribe(shared.EventPointsEarned, func(e shared.Event) error {
		got = append(got, "typed")
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		got = append(got, "all:"+string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewPointsChangedEvent(shared.EventPointsEarned, "user-1", 5, 5, "")))
	require.NoError(t, bus.Publish(shared.NewPointsChangedEvent(shared.EventPointsSpent, "user-1", 5, 0, "")))

	assert.Equal(t, []string{"typed", "all:points.earned", "all:points.spent"}, got)
}

func TestPublish_HandlerFailuresAreContained(t *testing.T) {
	obs := &countingObserver{}
	bus := syncBus(obs)

	var reached bool
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return errors.New("nope") }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		reached = true
		return nil
	}))

	err := bus.Publish(shared.NewLevelUpEvent("user-1", 1, 2, 120))

	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, 1, obs.published)
	require.Len(t, obs.failures, 2)
	assert.ErrorIs(t, obs.failures[0], ErrHandlerPanic)
}

func TestPublish_AsyncWait(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Discard()})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewXPGrantedEvent("user-1", 1, "", int64(i))))
	}
	bus.Wait()

	assert.Equal(t, int32(20), handled.Load())
}

func TestClose(t *testing.T) {
	bus := syncBus(nil)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewXPGrantedEvent("user-1", 1, "", 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventXPGranted, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Error(t, bus.SubscribeAll(nil))
}
