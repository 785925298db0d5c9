package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Progression event types. Notification and analytics collaborators subscribe
// to these; the engine itself only reacts to the progress events.
const (
	// Points events
	EventPointsEarned   EventType = "points.earned"
	EventPointsSpent    EventType = "points.spent"
	EventPointsRedeemed EventType = "points.redeemed"

	// Progress events
	EventXPGranted     EventType = "progress.xp_granted"
	EventLevelUp       EventType = "progress.level_up"
	EventRewardAdded   EventType = "progress.reward_added"
	EventStreakUpdated EventType = "progress.streak_updated"
	EventStreakReset   EventType = "progress.streak_reset"

	// Badge events
	EventBadgeAwarded EventType = "badge.awarded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the user whose ledger produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, userID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: userID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsChangedEvent is emitted for credits, debits and redemptions. The
// event type tells them apart.
type PointsChangedEvent struct {
	BaseEvent
	Amount      int64  `json:"amount"`
	Balance     int64  `json:"balance"`
	RewardLabel string `json:"reward_label,omitempty"`
}

// Payload implements Event interface.
func (e PointsChangedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"amount":  e.Amount,
		"balance": e.Balance,
	}
	if e.RewardLabel != "" {
		p["reward_label"] = e.RewardLabel
	}
	return p
}

// NewPointsChangedEvent creates a new PointsChangedEvent.
func NewPointsChangedEvent(eventType EventType, userID string, amount, balance int64, rewardLabel string) PointsChangedEvent {
	return PointsChangedEvent{
		BaseEvent:   NewBaseEvent(eventType, userID),
		Amount:      amount,
		Balance:     balance,
		RewardLabel: rewardLabel,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGrantedEvent is emitted after every XP grant, including zero grants.
type XPGrantedEvent struct {
	BaseEvent
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	TotalXP int64  `json:"total_xp"`
}

// Payload implements Event interface.
func (e XPGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":   e.Amount,
		"reason":   e.Reason,
		"total_xp": e.TotalXP,
	}
}

// NewXPGrantedEvent creates a new XPGrantedEvent.
func NewXPGrantedEvent(userID string, amount int64, reason string, totalXP int64) XPGrantedEvent {
	return XPGrantedEvent{
		BaseEvent: NewBaseEvent(EventXPGranted, userID),
		Amount:    amount,
		Reason:    reason,
		TotalXP:   totalXP,
	}
}

// LevelUpEvent is emitted once per grant that crossed at least one threshold.
type LevelUpEvent struct {
	BaseEvent
	OldLevel           int   `json:"old_level"`
	NewLevel           int   `json:"new_level"`
	NextLevelThreshold int64 `json:"next_level_threshold"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level":            e.OldLevel,
		"new_level":            e.NewLevel,
		"next_level_threshold": e.NextLevelThreshold,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, nextThreshold int64) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:          NewBaseEvent(EventLevelUp, userID),
		OldLevel:           oldLevel,
		NewLevel:           newLevel,
		NextLevelThreshold: nextThreshold,
	}
}

// RewardAddedEvent is emitted when a level reward is appended.
type RewardAddedEvent struct {
	BaseEvent
	RewardType string `json:"reward_type"`
	Value      string `json:"value"`
}

// Payload implements Event interface.
func (e RewardAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"reward_type": e.RewardType,
		"value":       e.Value,
	}
}

// NewRewardAddedEvent creates a new RewardAddedEvent.
func NewRewardAddedEvent(userID, rewardType, value string) RewardAddedEvent {
	return RewardAddedEvent{
		BaseEvent:  NewBaseEvent(EventRewardAdded, userID),
		RewardType: rewardType,
		Value:      value,
	}
}

// StreakChangedEvent is emitted on check-in (EventStreakUpdated) and on
// administrative reset (EventStreakReset).
type StreakChangedEvent struct {
	BaseEvent
	StreakCount   int  `json:"streak_count"`
	LongestStreak int  `json:"longest_streak"`
	Continued     bool `json:"continued"`
}

// Payload implements Event interface.
func (e StreakChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"streak_count":   e.StreakCount,
		"longest_streak": e.LongestStreak,
		"continued":      e.Continued,
	}
}

// NewStreakChangedEvent creates a new StreakChangedEvent.
func NewStreakChangedEvent(eventType EventType, userID string, count, longest int, continued bool) StreakChangedEvent {
	return StreakChangedEvent{
		BaseEvent:     NewBaseEvent(eventType, userID),
		StreakCount:   count,
		LongestStreak: longest,
		Continued:     continued,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeAwardedEvent is emitted once per newly inserted tier.
type BadgeAwardedEvent struct {
	BaseEvent
	BadgeID       string `json:"badge_id"`
	BadgeName     string `json:"badge_name"`
	Tier          string `json:"tier"`
	PointsAwarded int64  `json:"points_awarded"`
}

// Payload implements Event interface.
func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":       e.BadgeID,
		"badge_name":     e.BadgeName,
		"tier":           e.Tier,
		"points_awarded": e.PointsAwarded,
	}
}

// NewBadgeAwardedEvent creates a new BadgeAwardedEvent.
func NewBadgeAwardedEvent(userID, badgeID, badgeName, tier string, points int64) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BaseEvent:     NewBaseEvent(EventBadgeAwarded, userID),
		BadgeID:       badgeID,
		BadgeName:     badgeName,
		Tier:          tier,
		PointsAwarded: points,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event. Services fall back to it when no bus is
// wired.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
