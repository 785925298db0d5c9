// Package eventhandler reacts to progression events. Its handlers feed
// counter changes into the badge engine so tier boundaries are checked on
// every change instead of being polled.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/shared"
)

// BadgeEvaluator is the part of the badge engine the handlers need.
type BadgeEvaluator interface {
	EvaluateCondition(ctx context.Context, userID string, condition badge.ConditionType, counter int64) (map[string][]badge.Tier, error)
}

// HandlerConfig is shared by the counter handlers.
type HandlerConfig struct {
	// Timeout bounds one evaluation triggered by an event.
	Timeout time.Duration

	// Enabled, when set, decides per user whether events trigger
	// evaluation at all.
	Enabled func(userID string) bool
}

func (c HandlerConfig) enabledFor(userID string) bool {
	return c.Enabled == nil || c.Enabled(userID)
}

// DefaultHandlerConfig returns default configuration.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{Timeout: 10 * time.Second}
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK UPDATED
// ══════════════════════════════════════════════════════════════════════════════

// OnStreakUpdatedHandler evaluates consistency badges with the new streak
// count.
type OnStreakUpdatedHandler struct {
	badges BadgeEvaluator
	logger *slog.Logger
	config HandlerConfig
}

// NewOnStreakUpdatedHandler creates a new OnStreakUpdatedHandler.
func NewOnStreakUpdatedHandler(badges BadgeEvaluator, logger *slog.Logger, config HandlerConfig) *OnStreakUpdatedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHandlerConfig().Timeout
	}
	return &OnStreakUpdatedHandler{
		badges: badges,
		logger: logger.With("handler", "on_streak_updated"),
		config: config,
	}
}

// Handle implements shared.EventHandler.
func (h *OnStreakUpdatedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.StreakChangedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}
	if e.StreakCount == 0 || !h.config.enabledFor(e.AggregateID()) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	awarded, err := h.badges.EvaluateCondition(ctx, e.AggregateID(), badge.ConditionConsistencyMaster, int64(e.StreakCount))
	if err != nil {
		h.logger.Error("failed to evaluate consistency badges",
			"user_id", e.AggregateID(),
			"streak", e.StreakCount,
			"error", err,
		)
		return err
	}
	if len(awarded) > 0 {
		h.logger.Debug("consistency badges awarded", "user_id", e.AggregateID(), "badges", len(awarded))
	}
	return nil
}
