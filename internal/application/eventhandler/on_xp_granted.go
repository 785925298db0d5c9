package eventhandler

import (
	"context"
	"log/slog"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/shared"
)

// OnXPGrantedHandler evaluates point-earner badges against the user's
// cumulative XP.
type OnXPGrantedHandler struct {
	badges BadgeEvaluator
	logger *slog.Logger
	config HandlerConfig
}

// NewOnXPGrantedHandler creates a new OnXPGrantedHandler.
func NewOnXPGrantedHandler(badges BadgeEvaluator, logger *slog.Logger, config HandlerConfig) *OnXPGrantedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHandlerConfig().Timeout
	}
	return &OnXPGrantedHandler{
		badges: badges,
		logger: logger.With("handler", "on_xp_granted"),
		config: config,
	}
}

// Handle implements shared.EventHandler.
func (h *OnXPGrantedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.XPGrantedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}
	// A zero grant cannot move the counter.
	if e.Amount == 0 || !h.config.enabledFor(e.AggregateID()) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if _, err := h.badges.EvaluateCondition(ctx, e.AggregateID(), badge.ConditionPointEarner, e.TotalXP); err != nil {
		h.logger.Error("failed to evaluate point earner badges",
			"user_id", e.AggregateID(),
			"total_xp", e.TotalXP,
			"error", err,
		)
		return err
	}
	return nil
}

// Register subscribes the counter handlers to bus.
func Register(bus shared.EventSubscriber, badges BadgeEvaluator, logger *slog.Logger, config HandlerConfig) error {
	if err := bus.Subscribe(shared.EventStreakUpdated, NewOnStreakUpdatedHandler(badges, logger, config).Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventXPGranted, NewOnXPGrantedHandler(badges, logger, config).Handle)
}
