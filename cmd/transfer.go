package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/clipsync/internal/agent"
	"github.com/desertthunder/clipsync/internal/formatter"
	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// ClipboardPush sends text (from the argument or stdin) or a file to the server as this device.
func (r *Runner) ClipboardPush(ctx context.Context, cmd *cli.Command) error {
	client, err := r.apiClient("")
	if err != nil {
		return err
	}
	_, crypto, err := r.account(ctx, client, cmd.String("passphrase"))
	if err != nil {
		return err
	}
	manager := agent.NewSyncManager(client, crypto, nil, nil, agent.OptionsFromConfig(r.config.Agent), r.logger)

	var req services.SyncRequest
	if path := cmd.String("file"); path != "" {
		req, err = r.sealFile(manager, path)
	} else {
		var text string
		if text, err = r.readText(cmd.StringArg("text")); err == nil {
			req, err = manager.Seal(models.TypeText, "text/plain", text, nil)
		}
	}
	if err != nil {
		return err
	}

	result, err := manager.Push(ctx, req)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	if !result.Created {
		return r.writePlain("Already synced as #%d\n", result.Seq)
	}
	return r.writePlain("✓ Pushed #%d (encrypted: %v)\n", result.Seq, crypto.Enabled())
}

func (r *Runner) readText(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.input, agent.MaxItemBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) > agent.MaxItemBytes {
		return "", fmt.Errorf("%w: input exceeds %s", shared.ErrInvalidInput, shared.FormatBytes(agent.MaxItemBytes))
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: nothing to push", shared.ErrMissingArgument)
	}
	return string(data), nil
}

func (r *Runner) sealFile(manager *agent.SyncManager, path string) (services.SyncRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return services.SyncRequest{}, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > agent.MaxItemBytes {
		return services.SyncRequest{}, fmt.Errorf("%w: %s exceeds %s", shared.ErrInvalidInput, path, shared.FormatBytes(agent.MaxItemBytes))
	}

	name := filepath.Base(path)
	mime := agent.MimeType(name)
	itemType := models.TypeFile
	if strings.HasPrefix(mime, "image/") {
		itemType = models.TypeImage
	}

	metadata := map[string]any{"filename": name, "originalSize": len(data)}
	return manager.Seal(itemType, mime, base64.StdEncoding.EncodeToString(data), metadata)
}

// ClipboardPull fetches items other devices pushed after --since and prints them.
// With --apply the newest text item is written to the local clipboard.
func (r *Runner) ClipboardPull(ctx context.Context, cmd *cli.Command) error {
	client, err := r.apiClient("")
	if err != nil {
		return err
	}
	_, crypto, err := r.account(ctx, client, cmd.String("passphrase"))
	if err != nil {
		return err
	}

	client.SetLastSeq(cmd.Int64("since"))
	result, err := client.Poll(ctx, cmd.Int("limit"), cmd.Duration("wait"))
	if err != nil {
		return err
	}

	export := formatter.BuildExport("", result.Items, crypto)
	if cmd.Bool("json") {
		if err := r.writeJSON(export, true); err != nil {
			return err
		}
	} else {
		text, err := formatter.ExportToText(export)
		if err != nil {
			return err
		}
		r.writePlain("%s", text)
		r.writePlain("Last seq: %d\n", result.LastSeq)
	}

	if !cmd.Bool("apply") {
		return nil
	}
	for i := len(export.Items) - 1; i >= 0; i-- {
		e := export.Items[i]
		if e.Type != models.TypeText || e.Locked {
			continue
		}
		clip, err := agent.NewSystemClipboard()
		if err != nil {
			return err
		}
		if err := clip.WriteAll(e.Content); err != nil {
			return fmt.Errorf("failed to write clipboard: %w", err)
		}
		r.logger.Info("applied item to clipboard", "seq", e.Seq)
		return nil
	}
	r.logger.Info("no text item to apply")
	return nil
}

// ClipboardHistory prints recent items, decrypted where the passphrase allows.
func (r *Runner) ClipboardHistory(ctx context.Context, cmd *cli.Command) error {
	export, err := r.history(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(export, true)
	}
	text, err := formatter.ExportToText(export)
	if err != nil {
		return err
	}
	return r.writePlain("%s", text)
}

// ClipboardExport writes recent history to a file in the chosen format.
func (r *Runner) ClipboardExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	export, err := r.history(ctx, cmd)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(export, format, cmd.String("output"))
	if err != nil {
		return err
	}

	if export.Locked > 0 {
		r.logger.Warn("some items could not be decrypted", "locked", export.Locked)
	}
	return r.writePlain("✓ Exported %d items to %s\n", len(export.Items), path)
}

func (r *Runner) history(ctx context.Context, cmd *cli.Command) (*formatter.Export, error) {
	client, err := r.apiClient(cmd.String("session"))
	if err != nil {
		return nil, err
	}
	me, crypto, err := r.account(ctx, client, cmd.String("passphrase"))
	if err != nil {
		return nil, err
	}

	items, err := client.ListItems(ctx, cmd.Int64("since"), cmd.Int("limit"))
	if err != nil {
		return nil, err
	}
	return formatter.BuildExport(me.Email, items, crypto), nil
}

// ClipboardClear deletes every item in the account's history.
func (r *Runner) ClipboardClear(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to delete all clipboard history", shared.ErrMissingArgument)
	}

	client, err := r.apiClient(cmd.String("session"))
	if err != nil {
		return err
	}

	n, err := client.ClearItems(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Deleted %d items\n", n)
}
