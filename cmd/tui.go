package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/clipsync/internal/agent"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive clipboard history browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	client, err := r.apiClient(cmd.String("session"))
	if err != nil {
		return err
	}
	_, crypto, err := r.account(ctx, client, cmd.String("passphrase"))
	if err != nil {
		return err
	}
	clip, err := agent.NewSystemClipboard()
	if err != nil {
		return err
	}

	// Logs go to a file so they do not tear the rendered screen.
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, client, clip, crypto, cmd.Int("limit"))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
