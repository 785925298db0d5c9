package command

import (
	"context"
	"sync"
	"time"

	"github.com/accountable-hub/progression/internal/domain/points"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/logger"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() LedgerConfig {
	return LedgerConfig{
		MaxAttempts: 5,
		Clock:       func() time.Time { return testNow },
		Logger:      logger.Discard(),
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// conflictingPoints loses every compare-and-swap.
type conflictingPoints struct {
	points.Repository
	saves int
}

func (c *conflictingPoints) Save(ctx context.Context, acc *points.Account) error {
	c.saves++
	return shared.WrapError("points", "Save", shared.ErrConcurrentModification, "version changed", nil)
}
