// Package scheduler implements background task scheduling for flailbot,
// including recorder pruning and daily statistics collection.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/db"
)

// Store is the part of the recorder the scheduler maintains.
type Store interface {
	Prune(cutoff time.Time) (int64, error)
	Stats() (db.FeedStats, error)
	Path() string
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg   config.RecorderConfig
	store Store
	now   func() time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg config.RecorderConfig, store Store) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}
}

// Start begins running all scheduled tasks and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.cfg.RetentionDays > 0 {
		go s.runPruneLoop(ctx)
	}

	go s.runStatsCollectionLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runPruneLoop prunes the recorder at the configured time every day.
func (s *Scheduler) runPruneLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nextRun := s.calculateNextCleanupTime()
		sleepDuration := nextRun.Sub(s.now())

		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("recorder prune scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.runPrune()
		}
	}
}

// runPrune drops recorded rows older than the retention window.
func (s *Scheduler) runPrune() {
	cutoff := s.now().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)

	before := fileSize(s.store.Path())
	removed, err := s.store.Prune(cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("recorder prune failed")
		return
	}

	log.Info().
		Int64("deleted_rows", removed).
		Int("retention_days", s.cfg.RetentionDays).
		Str("database_size", formatBytes(before)).
		Msg("recorder prune completed")
}

// runStatsCollectionLoop collects daily statistics.
func (s *Scheduler) runStatsCollectionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats()
		}
	}
}

// collectStats logs the recorded kill feed totals.
func (s *Scheduler) collectStats() {
	stats, err := s.store.Stats()
	if err != nil {
		log.Warn().Err(err).Msg("stats collection failed")
		return
	}

	log.Info().
		Int("kills", stats.Kills).
		Int("deaths", stats.Deaths).
		Str("database_size", formatBytes(fileSize(s.store.Path()))).
		Msg("daily stats collected")
}

// calculateNextCleanupTime returns the next time the prune should run.
func (s *Scheduler) calculateNextCleanupTime() time.Time {
	parts := strings.Split(s.cfg.CleanupTime, ":")

	hour, minute := 4, 0 // Default: 4:00 AM
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
