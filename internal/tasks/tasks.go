package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
	"golang.org/x/sync/errgroup"
)

// CleanupResult is the number of rows one cleanup step removed.
type CleanupResult struct {
	Phase   Phase
	Removed int64
	Error   error
}

// MaintenanceResult contains the outcome of one [Maintenance.Run].
type MaintenanceResult struct {
	Cleanups  []CleanupResult  // One per cleanup step, in phase order
	Migration *MigrationResult // Nil when no blob store is configured
}

// Removed sums the rows removed by every cleanup step.
func (r *MaintenanceResult) Removed() int64 {
	var n int64
	for _, c := range r.Cleanups {
		n += c.Removed
	}
	return n
}

// Err returns the first failed step's error.
func (r *MaintenanceResult) Err() error {
	for _, c := range r.Cleanups {
		if c.Error != nil {
			return fmt.Errorf("%s: %w", c.Phase, c.Error)
		}
	}
	return nil
}

type cleanupStep struct {
	phase Phase
	run   func(ctx context.Context) (int64, error)
}

// Maintenance cleans up expired data and migrates large clipboard content to the blob store.
type Maintenance struct {
	repos  *services.Repositories
	store  storage.Store
	cfg    *shared.Config
	logger *log.Logger
}

// NewMaintenance creates a [Maintenance]. store may be nil, which skips storage migration.
func NewMaintenance(repos *services.Repositories, store storage.Store, cfg *shared.Config, logger *log.Logger) *Maintenance {
	if logger == nil {
		logger = log.Default()
	}
	return &Maintenance{repos: repos, store: store, cfg: cfg, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func (m *Maintenance) steps() []cleanupStep {
	return []cleanupStep{
		{phase: CleanupItems, run: m.cleanupItems},
		{phase: CleanupWsTokens, run: func(context.Context) (int64, error) { return m.repos.WsTokens.CleanupExpired() }},
		{phase: CleanupRegistrations, run: func(context.Context) (int64, error) { return m.repos.Registrations.CleanupExpired() }},
		{phase: CleanupSessions, run: func(context.Context) (int64, error) { return m.repos.Sessions.CleanupExpired() }},
	}
}

// cleanupItems drops items past the retention period along with their blobs.
func (m *Maintenance) cleanupItems(ctx context.Context) (int64, error) {
	days := m.cfg.Sync.RetentionDays
	if days <= 0 {
		return 0, nil
	}

	var urls []string
	if m.store != nil {
		var err error
		if urls, err = m.repos.Clipboard.ObjectURLsOlderThan(days); err != nil {
			return 0, err
		}
	}

	n, err := m.repos.Clipboard.CleanupOlderThan(days)
	if err != nil {
		return 0, err
	}

	for _, url := range urls {
		if err := m.store.Delete(ctx, url); err != nil {
			m.logger.Warn("failed to delete expired blob", "url", url, "error", err)
		}
	}
	return n, nil
}

// Run performs every cleanup step concurrently, then migrates storage.
//
// A failed cleanup step does not stop the others; failures are reported in the result.
// Run only returns an error when ctx is cancelled or the migration cannot start.
func (m *Maintenance) Run(ctx context.Context, progress chan<- ProgressUpdate) (*MaintenanceResult, error) {
	steps := m.steps()
	result := &MaintenanceResult{Cleanups: make([]CleanupResult, len(steps))}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, step := range steps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			n, err := step.run(gctx)
			result.Cleanups[i] = CleanupResult{Phase: step.phase, Removed: n, Error: err}

			mu.Lock()
			done++
			update := cleanupUpdate(step.phase, done, len(steps), n)
			if err != nil {
				update = cleanupFailedUpdate(step.phase, done, len(steps), err)
			}
			mu.Unlock()

			sendProgress(progress, update)
			if err != nil {
				m.logger.Error("maintenance step failed", "phase", step.phase, "error", err)
			} else if n > 0 {
				m.logger.Info("maintenance step finished", "phase", step.phase, "removed", n)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if m.store == nil {
		return result, nil
	}

	migration, err := m.MigrateStorage(ctx, progress, MigrationOpts{
		MinBytes:   m.cfg.Sync.ObjectMinBytes,
		NumWorkers: m.cfg.Maintenance.Workers,
		RateLimit:  m.cfg.Maintenance.Rate,
	})
	result.Migration = migration
	return result, err
}
