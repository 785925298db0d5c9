// Package xp contains the append-only XP history.
package xp

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

// MaxReasonLength is the longest reason accepted, in characters.
const MaxReasonLength = 255

// Entry is one XP grant. Entries are never modified after creation.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEntry validates and builds an entry. Zero amounts are valid.
func NewEntry(userID string, amount int64, reason string, occurredAt time.Time) (Entry, error) {
	if userID == "" {
		return Entry{}, shared.ErrInvalidUserID
	}
	if amount < 0 {
		return Entry{}, shared.Wrap(shared.ErrInvalidAmount, "NewEntry", "xp amount cannot be negative, got %d", amount)
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return Entry{}, shared.ErrReasonTooLong
	}
	return Entry{
		ID:         uuid.NewString(),
		UserID:     userID,
		Amount:     amount,
		Reason:     reason,
		OccurredAt: occurredAt,
	}, nil
}

// Repository reads the XP history. Appends happen through the level
// repository so the entry and the level state commit together.
type Repository interface {
	// List returns up to limit entries for the user, newest first. A limit
	// of zero or less returns everything.
	List(ctx context.Context, userID string, limit int) ([]Entry, error)

	// Total returns the sum of all grants for the user.
	Total(ctx context.Context, userID string) (int64, error)
}
