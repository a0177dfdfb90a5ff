package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
	"golang.org/x/time/rate"
)

// MigrationOpts contains configuration for moving file content into the blob store.
type MigrationOpts struct {
	MinBytes   int64   // Only items at least this large move (default: 1 MiB)
	BatchSize  int     // Files fetched per run (default: 100)
	NumWorkers int     // Concurrent workers (default: 4, max 16)
	RateLimit  float64 // Uploads per second (default: 10)
}

// FileMigrationResult is the outcome for one file.
type FileMigrationResult struct {
	FileID string
	ItemID string
	URL    string
	Bytes  int64
	Error  error
}

// MigrationResult summarizes a storage migration.
type MigrationResult struct {
	Total    int
	Migrated int
	Failed   int
	Bytes    int64
	Results  []FileMigrationResult
}

func (o *MigrationOpts) defaults() {
	if o.MinBytes <= 0 {
		o.MinBytes = 1 << 20
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 4
	}
	if o.NumWorkers > 16 {
		o.NumWorkers = 16
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 10
	}
}

// MigrateStorage moves one batch of file content at or above opts.MinBytes into the blob store.
//
// Uploads are paced by a rate limiter and spread over a worker pool. A file whose upload succeeded but
// whose row could not be updated has its blob removed again so nothing is orphaned.
func (m *Maintenance) MigrateStorage(ctx context.Context, prog chan<- ProgressUpdate, opts MigrationOpts) (*MigrationResult, error) {
	if m.store == nil {
		return nil, fmt.Errorf("%w: no blob store configured", shared.ErrServiceUnavailable)
	}
	opts.defaults()

	files, err := m.repos.Clipboard.FilesNeedingMigration(opts.MinBytes, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to find files to migrate: %w", err)
	}

	result := &MigrationResult{Total: len(files), Results: make([]FileMigrationResult, 0, len(files))}
	if len(files) == 0 {
		return result, nil
	}
	sendProgress(prog, migrationStartUpdate(len(files)))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan *models.ClipboardFile, len(files))
	results := make(chan FileMigrationResult, len(files))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go m.migrationWorker(ctx, &wg, limiter, jobs, results)
	}

	for _, f := range files {
		jobs <- f
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		result.Results = append(result.Results, res)
		if res.Error != nil {
			result.Failed++
			m.logger.Warn("failed to migrate clipboard file", "item", res.ItemID, "error", res.Error)
		} else {
			result.Migrated++
			result.Bytes += res.Bytes
		}
		sendProgress(prog, migratedUpdate(len(result.Results), len(files), res))
	}

	if result.Migrated > 0 {
		m.logger.Info("storage migration finished", "migrated", result.Migrated, "failed", result.Failed, "bytes", result.Bytes)
	}
	return result, ctx.Err()
}

// migrationWorker uploads files from jobs until the channel closes or ctx is done.
func (m *Maintenance) migrationWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan *models.ClipboardFile,
	results chan<- FileMigrationResult,
) {
	defer wg.Done()

	for f := range jobs {
		res := FileMigrationResult{FileID: f.ID(), ItemID: f.ClipboardItemID(), Bytes: int64(len(f.Content()))}
		if err := limiter.Wait(ctx); err != nil {
			res.Error = err
			results <- res
			continue
		}

		res.URL, res.Error = m.migrateFile(ctx, f)
		results <- res
	}
}

func (m *Maintenance) migrateFile(ctx context.Context, f *models.ClipboardFile) (string, error) {
	url, err := m.store.Put(ctx, f.ClipboardItemID(), []byte(f.Content()))
	if err != nil {
		return "", fmt.Errorf("failed to upload: %w", err)
	}

	if err := m.repos.Clipboard.SetObjectStorageURL(f.ID(), url, m.store.Compression()); err != nil {
		if delErr := m.store.Delete(ctx, url); delErr != nil {
			m.logger.Warn("failed to remove orphaned blob", "url", url, "error", delErr)
		}
		return "", fmt.Errorf("failed to record object url: %w", err)
	}
	return url, nil
}
