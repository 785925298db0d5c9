package command

import (
	"context"

	"github.com/accountable-hub/progression/internal/domain/badge"
	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE ENGINE
// Checks tier thresholds against a user's counter on every change. Each
// (user, badge, tier) is awarded at most once, ever, and its points are paid
// only by the call whose insert created the award row.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeEngine evaluates badge tiers.
type BadgeEngine struct {
	ledger
	catalog *badge.Catalog
	repo    badge.Repository
}

// NewBadgeEngine creates a new BadgeEngine. A nil catalog means no badges.
func NewBadgeEngine(catalog *badge.Catalog, repo badge.Repository, publisher shared.EventPublisher, config LedgerConfig) *BadgeEngine {
	if catalog == nil {
		catalog, _ = badge.NewCatalog(nil)
	}
	return &BadgeEngine{
		ledger:  newLedger("badge_engine", config, publisher),
		catalog: catalog,
		repo:    repo,
	}
}

// Catalog returns the loaded badge definitions.
func (b *BadgeEngine) Catalog() *badge.Catalog {
	return b.catalog
}

// Evaluate awards every tier of def that counter reaches and the user does
// not hold yet, and returns the newly awarded tiers, gold first. Thresholds
// are re-checked from scratch on every call, so a tier skipped earlier (or
// made reachable by a threshold edit) is still granted. Repeating a call with
// the same or a smaller counter awards nothing.
func (b *BadgeEngine) Evaluate(ctx context.Context, userID string, def badge.Definition, counter int64) ([]badge.Tier, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	awarded := []badge.Tier{}
	reachable := def.Reachable(counter)
	if len(reachable) == 0 {
		return awarded, nil
	}

	var events []shared.Event
	err := b.mutate(ctx, "Evaluate", userID, func(ctx context.Context) error {
		held, err := b.heldTiers(ctx, userID, def.ID)
		if err != nil {
			return err
		}

		now := b.now()
		for _, tier := range reachable {
			if held[tier] {
				continue
			}
			pts := def.Points.For(tier)
			inserted, err := b.repo.AwardTier(ctx, badge.NewAward(userID, def.ID, tier, now), pts)
			if err != nil {
				return err
			}
			if !inserted {
				// Lost the race to another evaluator; it paid.
				continue
			}
			held[tier] = true
			awarded = append(awarded, tier)
			events = append(events, shared.NewBadgeAwardedEvent(userID, def.ID, def.Name, string(tier), pts))
		}
		return nil
	})

	// Tiers inserted before a failure are committed; report them either way.
	if len(events) > 0 {
		for _, t := range awarded {
			b.logger.Info("badge awarded", logger.UserID(userID), logger.BadgeID(def.ID), logger.Tier(string(t)))
		}
		b.publish(events...)
	}
	return awarded, err
}

// EvaluateByID evaluates a catalogue badge by ID.
func (b *BadgeEngine) EvaluateByID(ctx context.Context, userID, badgeID string, counter int64) ([]badge.Tier, error) {
	def, err := b.catalog.Get(badgeID)
	if err != nil {
		return nil, err
	}
	return b.Evaluate(ctx, userID, def, counter)
}

// EvaluateCondition evaluates every catalogue badge watching condition and
// returns newly awarded tiers by badge ID. Badges with nothing new are
// omitted.
func (b *BadgeEngine) EvaluateCondition(ctx context.Context, userID string, condition badge.ConditionType, counter int64) (map[string][]badge.Tier, error) {
	result := make(map[string][]badge.Tier)
	for _, def := range b.catalog.ByCondition(condition) {
		tiers, err := b.Evaluate(ctx, userID, def, counter)
		if len(tiers) > 0 {
			result[def.ID] = tiers
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// Awards lists every award the user holds.
func (b *BadgeEngine) Awards(ctx context.Context, userID string) ([]badge.Award, error) {
	return b.repo.Awards(ctx, userID)
}

func (b *BadgeEngine) heldTiers(ctx context.Context, userID, badgeID string) (map[badge.Tier]bool, error) {
	awards, err := b.repo.Awards(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[badge.Tier]bool, 3)
	for _, a := range awards {
		if a.BadgeID == badgeID {
			held[a.Tier] = true
		}
	}
	return held, nil
}
