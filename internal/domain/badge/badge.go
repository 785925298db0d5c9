// Package badge contains tiered badge definitions and the awards granted
// from them.
package badge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Tier is one of bronze, silver or gold.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// TiersDescending is the order in which tiers are checked.
var TiersDescending = []Tier{TierGold, TierSilver, TierBronze}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	return t == TierBronze || t == TierSilver || t == TierGold
}

// ConditionType names the counter a badge watches.
type ConditionType string

const (
	ConditionGoalCompleted     ConditionType = "goal_completed"
	ConditionConsistencyMaster ConditionType = "consistency_master"
	ConditionPointEarner       ConditionType = "point_earner"
)

// TierValues holds one number per tier.
type TierValues struct {
	Bronze int64 `yaml:"bronze" json:"bronze"`
	Silver int64 `yaml:"silver" json:"silver"`
	Gold   int64 `yaml:"gold" json:"gold"`
}

// For returns the value for tier t.
func (v TierValues) For(t Tier) int64 {
	switch t {
	case TierGold:
		return v.Gold
	case TierSilver:
		return v.Silver
	default:
		return v.Bronze
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition is static badge configuration.
type Definition struct {
	ID            string        `yaml:"id" json:"id"`
	Name          string        `yaml:"name" json:"name"`
	ConditionType ConditionType `yaml:"condition" json:"condition_type"`
	Thresholds    TierValues    `yaml:"thresholds" json:"thresholds"`
	Points        TierValues    `yaml:"points" json:"points"`
}

// Validate checks the definition. Non-monotonic thresholds are a
// configuration error that disqualifies only this definition.
func (d Definition) Validate() error {
	if d.ID == "" {
		return configError("badge %q has no id", d.Name)
	}
	if d.ConditionType == "" {
		return configError("badge %q has no condition", d.ID)
	}
	t := d.Thresholds
	if t.Bronze < 0 || t.Bronze > t.Silver || t.Silver > t.Gold {
		return shared.Wrap(shared.ErrNonMonotonicTiers, "Validate",
			"badge %q thresholds %d/%d/%d are not ascending", d.ID, t.Bronze, t.Silver, t.Gold)
	}
	p := d.Points
	if p.Bronze < 0 || p.Silver < 0 || p.Gold < 0 {
		return configError("badge %q has negative tier points", d.ID)
	}
	return nil
}

func configError(format string, args ...any) error {
	return shared.NewDomainError("badge", "Validate", shared.ErrConfiguration, fmt.Sprintf(format, args...))
}

// Reachable returns the tiers whose threshold counter meets, gold first.
func (d Definition) Reachable(counter int64) []Tier {
	var tiers []Tier
	for _, t := range TiersDescending {
		if counter >= d.Thresholds.For(t) {
			tiers = append(tiers, t)
		}
	}
	return tiers
}

// ══════════════════════════════════════════════════════════════════════════════
// AWARD
// ══════════════════════════════════════════════════════════════════════════════

// Award records that a user holds a tier of a badge. At most one award exists
// per (UserID, BadgeID, Tier).
type Award struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	Tier      Tier      `json:"tier"`
	AwardedAt time.Time `json:"awarded_at"`
}

// NewAward builds an award with a fresh ID.
func NewAward(userID, badgeID string, tier Tier, now time.Time) Award {
	return Award{
		ID:        uuid.NewString(),
		UserID:    userID,
		BadgeID:   badgeID,
		Tier:      tier,
		AwardedAt: now,
	}
}

// Key is the uniqueness key of the award.
func (a Award) Key() string {
	return fmt.Sprintf("%s/%s/%s", a.UserID, a.BadgeID, a.Tier)
}

// Repository persists awards.
type Repository interface {
	// AwardTier inserts the award and, only if the insert created a new row,
	// credits points to the user's points account. Both happen in one
	// transaction. An existing award returns (false, nil) and pays nothing.
	AwardTier(ctx context.Context, award Award, points int64) (bool, error)

	// Awards lists every award held by the user, oldest first.
	Awards(ctx context.Context, userID string) ([]Award, error)
}
