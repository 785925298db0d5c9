// Package jobs contains the scheduled jobs of the progression service.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/accountable-hub/progression/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRebuilder recomputes and caches the leaderboard ordering.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context) (leaderboard.Snapshot, error)
}

// RebuildLeaderboardJob refreshes the cached leaderboard snapshot so that
// pages and positions served between runs are consistent with each other.
type RebuildLeaderboardJob struct {
	rebuilder LeaderboardRebuilder
	logger    *slog.Logger

	lastRebuildStats atomic.Pointer[RebuildStats]
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	TotalUsers  int
	Leader      string
}

// NewRebuildLeaderboardJob creates a new rebuild leaderboard job.
func NewRebuildLeaderboardJob(rebuilder LeaderboardRebuilder, logger *slog.Logger) *RebuildLeaderboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildLeaderboardJob{
		rebuilder: rebuilder,
		logger:    logger.With("job", "rebuild_leaderboard"),
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Recomputes the leaderboard ordering and replaces the cached snapshot"
}

// Run executes the rebuild job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	snap, err := j.rebuilder.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}

	stats := &RebuildStats{
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		TotalUsers:  len(snap.Entries),
	}
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	if len(snap.Entries) > 0 {
		stats.Leader = snap.Entries[0].UserID
	}
	j.lastRebuildStats.Store(stats)

	j.logger.Info("leaderboard rebuilt",
		"users", stats.TotalUsers,
		"leader", stats.Leader,
		"duration", stats.Duration.String(),
	)
	return nil
}

// LastStats returns the statistics of the last successful run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	return j.lastRebuildStats.Load()
}
