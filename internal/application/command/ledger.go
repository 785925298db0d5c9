// Package command contains write operations (CQRS - Commands): the points
// ledger, level engine, streak tracker and badge engine.
package command

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/logger"
	"github.com/accountable-hub/progression/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-USER SERIALIZATION
// Every per-user mutation runs under a striped in-process lock and is then
// persisted with compare-and-swap. The lock removes contention between
// goroutines of this process; the version check catches writers in other
// processes, and lost races are retried a bounded number of times.
// ══════════════════════════════════════════════════════════════════════════════

const lockStripes = 256

// UserLocks is a fixed set of mutexes indexed by a hash of the user ID.
type UserLocks struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe for userID and returns its unlock function.
func (l *UserLocks) Lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// LedgerConfig configures the shared mechanics of every ledger service.
type LedgerConfig struct {
	// MaxAttempts bounds retries of a lost compare-and-swap.
	MaxAttempts int

	// Clock returns the current time. Defaults to time.Now in UTC.
	Clock func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultLedgerConfig returns default configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxAttempts: 5,
		Clock:       func() time.Time { return time.Now().UTC() },
		Logger:      slog.Default(),
	}
}

type ledger struct {
	component string
	locks     *UserLocks
	retrier   *retry.Retrier
	now       func() time.Time
	logger    *slog.Logger
	publisher shared.EventPublisher
}

func newLedger(component string, cfg LedgerConfig, publisher shared.EventPublisher) ledger {
	def := DefaultLedgerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	log := cfg.Logger.With(logger.Component(component))

	return ledger{
		component: component,
		locks:     &UserLocks{},
		retrier: retry.LedgerRetrier(cfg.MaxAttempts, shared.IsRetryable).With(
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Debug("write conflict, retrying",
					logger.Attempt(attempt), logger.Err(err), slog.Duration("delay", delay))
			}),
		),
		now:       cfg.Clock,
		logger:    log,
		publisher: publisher,
	}
}

// mutate runs fn under the user's lock and retries it while it loses
// compare-and-swap races. fn must reload state on every call. When the
// attempt budget runs out the caller gets ErrConcurrentModification wrapped
// with the operation name, never a silently dropped update.
func (l *ledger) mutate(ctx context.Context, op, userID string, fn func(ctx context.Context) error) error {
	if userID == "" {
		return shared.ErrInvalidUserID
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	err := l.retrier.Do(ctx, fn)
	if errors.Is(err, retry.ErrExhausted) {
		l.logger.Warn("giving up after repeated write conflicts",
			logger.Operation(op), logger.UserID(userID), logger.Attempt(l.retrier.MaxAttempts()))
		return shared.WrapError(l.component, op, shared.ErrConcurrentModification,
			"concurrent updates kept conflicting", err)
	}
	return err
}

// publish sends events after the lock is released. Delivery failures are
// logged and never undo the committed write.
func (l *ledger) publish(events ...shared.Event) {
	for _, e := range events {
		if err := l.publisher.Publish(e); err != nil {
			l.logger.Warn("failed to publish event",
				logger.EventType(string(e.EventType())), logger.UserID(e.AggregateID()), logger.Err(err))
		}
	}
}
