package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/clipsync/internal/server"
	"github.com/desertthunder/clipsync/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the HTTP API and the maintenance scheduler until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		r.config.Server.Port = port
	}

	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	srv := server.New(b.svc, r.config, r.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	if !cmd.Bool("no-maintenance") {
		m := tasks.NewMaintenance(b.repos, b.store, r.config, r.logger)
		scheduler := tasks.NewScheduler(m, r.config.Maintenance.Interval.Duration, r.logger)
		g.Go(func() error { return scheduler.Run(ctx) })
	}

	r.logger.Info("clipsync server starting", "addr", r.config.Server.Addr(), "redis", r.config.Notify.RedisAddr != "")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	r.logger.Info("server stopped")
	return nil
}
