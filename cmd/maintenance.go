package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// MaintenanceRun performs one cleanup and storage migration pass.
//
// With --migrate-only the cleanup steps are skipped and --batch-size caps the number of files moved.
func (r *Runner) MaintenanceRun(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	m := tasks.NewMaintenance(b.repos, b.store, r.config, r.logger)
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	result := &tasks.MaintenanceResult{}
	if cmd.Bool("migrate-only") {
		result.Migration, err = m.MigrateStorage(ctx, progress, tasks.MigrationOpts{
			MinBytes:   r.config.Sync.ObjectMinBytes,
			BatchSize:  cmd.Int("batch-size"),
			NumWorkers: r.config.Maintenance.Workers,
			RateLimit:  r.config.Maintenance.Rate,
		})
	} else {
		result, err = m.Run(ctx, progress)
	}
	close(progress)
	<-done

	if err != nil {
		return fmt.Errorf("maintenance failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(maintenanceReport(result), true)
	}

	r.writePlainHeader("Maintenance")
	for _, c := range result.Cleanups {
		status := fmt.Sprintf("%d removed", c.Removed)
		if c.Error != nil {
			status = "failed: " + c.Error.Error()
		}
		r.writePlain("  %-24s %s\n", c.Phase, status)
	}
	if mr := result.Migration; mr != nil {
		r.writePlain("  %-24s %d/%d files, %d failed, %s\n", tasks.MigrateStorage, mr.Migrated, mr.Total, mr.Failed, shared.FormatBytes(mr.Bytes))
	} else if b.store == nil {
		r.writePlain("  %-24s skipped, no blob store configured\n", tasks.MigrateStorage)
	}
	return result.Err()
}

func maintenanceReport(result *tasks.MaintenanceResult) map[string]any {
	cleanups := make(map[string]any, len(result.Cleanups))
	for _, c := range result.Cleanups {
		entry := map[string]any{"removed": c.Removed}
		if c.Error != nil {
			entry["error"] = c.Error.Error()
		}
		cleanups[c.Phase.String()] = entry
	}

	report := map[string]any{"cleanup": cleanups, "removed": result.Removed()}
	if mr := result.Migration; mr != nil {
		report["migration"] = map[string]any{"total": mr.Total, "migrated": mr.Migrated, "failed": mr.Failed, "bytes": mr.Bytes}
	}
	return report
}
