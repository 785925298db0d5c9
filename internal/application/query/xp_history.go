package query

import (
	"context"

	"github.com/accountable-hub/progression/internal/domain/shared"
	"github.com/accountable-hub/progression/internal/domain/xp"
)

// DefaultHistoryLimit is used when a caller asks for a non-positive limit.
const DefaultHistoryLimit = 50

// XPHistory reads the append-only XP log, newest first.
type XPHistory struct {
	repo xp.Repository
}

// NewXPHistory creates a new XPHistory.
func NewXPHistory(repo xp.Repository) *XPHistory {
	return &XPHistory{repo: repo}
}

// List returns the most recent grants for userID.
func (h *XPHistory) List(ctx context.Context, userID string, limit int) ([]xp.Entry, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return h.repo.List(ctx, userID, limit)
}

// Total returns all XP ever granted to userID.
func (h *XPHistory) Total(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, shared.ErrInvalidUserID
	}
	return h.repo.Total(ctx, userID)
}
