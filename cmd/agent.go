package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/clipsync/internal/agent"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// AgentRun watches the local clipboard and keeps it in sync with the server until interrupted.
func (r *Runner) AgentRun(ctx context.Context, cmd *cli.Command) error {
	id, _, err := agent.LoadIdentity(r.config.Agent)
	if err != nil {
		return err
	}
	client, err := r.apiClient("")
	if err != nil {
		return err
	}
	me, crypto, err := r.account(ctx, client, cmd.String("passphrase"))
	if err != nil {
		return err
	}

	clip, err := agent.NewSystemClipboard()
	if err != nil {
		return err
	}
	monitor := agent.NewMonitor(clip, r.config.Agent.ClipboardInterval.Duration, r.logger)

	queue := agent.NewQueue(r.config.Agent.QueuePath)
	if err := queue.Load(); err != nil {
		return err
	}

	manager := agent.NewSyncManager(client, crypto, monitor, queue, agent.OptionsFromConfig(r.config.Agent), r.logger)
	if dir := r.config.Agent.DropDir; dir != "" {
		manager.WithDropWatcher(agent.NewDropWatcher(dir, r.logger))
	}

	r.logger.Info("agent starting",
		"device", id.DeviceID,
		"user", me.Email,
		"server", client.BaseURL(),
		"encrypted", crypto.Enabled(),
		"queued", queue.Size(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	if every := cmd.Duration("stats-interval"); every > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					st := manager.Stats()
					r.logger.Info("sync stats",
						"healthy", st.IsHealthy(),
						"synced", st.ItemsSynced,
						"received", st.ItemsReceived,
						"queued", st.Queued,
						"seq", st.LastSeq,
					)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("agent stopped: %w", err)
	}

	st := manager.Stats()
	r.logger.Info("agent stopped", "synced", st.ItemsSynced, "received", st.ItemsReceived, "queued", st.Queued)
	return nil
}

// AgentStatus reports the server's health, the account this device belongs to and the offline queue.
func (r *Runner) AgentStatus(ctx context.Context, cmd *cli.Command) error {
	status := map[string]any{
		"server":     r.config.Agent.ServerURL,
		"device":     r.config.Agent.DeviceID,
		"registered": r.config.Agent.APIKey != "",
		"encryption": r.config.Agent.Encryption,
	}

	client := r.client("")
	if err := client.Health(ctx); err != nil {
		status["healthy"] = false
		status["error"] = err.Error()
	} else {
		status["healthy"] = true
	}

	if r.config.Agent.APIKey != "" {
		if me, err := client.Me(ctx); err != nil {
			status["account_error"] = err.Error()
		} else {
			status["user"] = me.Email
		}
	}

	queue := agent.NewQueue(r.config.Agent.QueuePath)
	if err := queue.Load(); err != nil {
		r.logger.Warn("failed to read queue", "path", r.config.Agent.QueuePath, "error", err)
	}
	status["queued"] = queue.Size()

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlainHeader("Agent status")
	r.writePlain("Server:     %s (healthy: %v)\n", status["server"], status["healthy"])
	if msg, ok := status["error"]; ok {
		r.writePlain("            %s\n", msg)
	}
	r.writePlain("Device:     %s\n", orDash(r.config.Agent.DeviceID))
	r.writePlain("Registered: %v\n", status["registered"])
	if user, ok := status["user"]; ok {
		r.writePlain("User:       %s\n", user)
	}
	r.writePlain("Encryption: %v\n", status["encryption"])
	return r.writePlain("Queued:     %d\n", queue.Size())
}

// AgentFlush makes one attempt to push every item waiting in the offline queue.
func (r *Runner) AgentFlush(ctx context.Context, cmd *cli.Command) error {
	client, err := r.apiClient("")
	if err != nil {
		return err
	}
	if r.config.Agent.QueuePath == "" {
		return fmt.Errorf("%w: agent.queue_path is not set", shared.ErrMissingConfig)
	}

	queue := agent.NewQueue(r.config.Agent.QueuePath)
	if err := queue.Load(); err != nil {
		return err
	}
	before := queue.Size()

	manager := agent.NewSyncManager(client, nil, nil, queue, agent.OptionsFromConfig(r.config.Agent), r.logger)
	synced, err := manager.FlushQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to flush queue: %w", err)
	}
	return r.writePlain("✓ Synced %d of %d queued items, %d remaining\n", synced, before, queue.Size())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
