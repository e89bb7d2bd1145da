// Package scheduler runs the daily snapshot retention job.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/util"
)

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg    config.HistoryConfig
	pruner Pruner
	logger zerolog.Logger
	now    func() time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg config.HistoryConfig, pruner Pruner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		pruner: pruner,
		logger: util.ComponentLogger("scheduler"),
		now:    time.Now,
	}
}

// Start prunes once, then daily at the configured time, until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Str("prune_time", s.cfg.PruneTime).Msg("scheduler started")

	s.RunPrune(ctx)

	for {
		nextRun := s.nextRunTime()
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		s.logger.Debug().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("snapshot pruning scheduled")

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-timer.C:
			s.RunPrune(ctx)
		}
	}
}

// RunPrune deletes snapshots older than the retention window.
func (s *Scheduler) RunPrune(ctx context.Context) int64 {
	retention := s.cfg.RetentionDays
	if retention < 1 {
		retention = 1
	}
	cutoff := s.now().Add(-time.Duration(retention) * 24 * time.Hour)

	removed, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("snapshot pruning failed")
		return 0
	}

	s.logger.Info().
		Int64("deleted_rows", removed).
		Int("retention_days", retention).
		Time("cutoff", cutoff).
		Msg("snapshot pruning completed")
	return removed
}

// nextRunTime returns the next occurrence of the configured HH:MM.
func (s *Scheduler) nextRunTime() time.Time {
	parts := strings.Split(s.cfg.PruneTime, ":")

	hour, minute := 4, 0
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	return next
}
