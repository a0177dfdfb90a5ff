package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Scheduler runs [Maintenance] on a fixed interval.
type Scheduler struct {
	maintenance *Maintenance
	interval    time.Duration
	logger      *log.Logger
}

func NewScheduler(m *Maintenance, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{maintenance: m, interval: interval, logger: logger}
}

// Run performs maintenance immediately and then on every tick until ctx is done. It always returns nil
// once ctx ends, so it can run in the same errgroup as the HTTP server.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("maintenance scheduled", "interval", s.interval)
	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	result, err := s.maintenance.Run(ctx, nil)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("maintenance failed", "error", err)
		return
	}
	if result == nil {
		return
	}
	if err := result.Err(); err != nil {
		s.logger.Warn("maintenance finished with errors", "error", err)
	}

	migrated := 0
	if result.Migration != nil {
		migrated = result.Migration.Migrated
	}
	s.logger.Debug("maintenance finished", "removed", result.Removed(), "migrated", migrated, "took", time.Since(start).Round(time.Millisecond))
}
