package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// UsersCreate adds an account.
func (r *Runner) UsersCreate(ctx context.Context, cmd *cli.Command) error {
	email := cmd.StringArg("email")
	if email == "" {
		return fmt.Errorf("%w: email is required", shared.ErrMissingArgument)
	}

	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Create(email, cmd.String("name"))
	if err != nil {
		return err
	}
	r.logger.Info("user created", "id", user.ID(), "email", user.Email())

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}
	return r.writePlain("✓ Created %s (%s)\n", user.Email(), user.ID())
}

// UsersList prints every account.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	users, err := b.svc.Users.List()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, true)
	}

	r.writePlainHeader(fmt.Sprintf("Users (%d)", len(users)))
	for _, u := range users {
		r.writePlain("  %-36s  %-30s  %s\n", u.ID(), u.Email(), u.CreatedAt().Local().Format(time.DateOnly))
	}
	return nil
}

// UsersToken issues a session token, which authenticates the user routes of the API.
func (r *Runner) UsersToken(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(cmd.StringArg("user"))
	if err != nil {
		return err
	}

	session, err := b.svc.Users.IssueSession(user.ID(), "clipsync-cli", "")
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(session, true)
	}
	r.writePlain("%s\n", session.Token())
	r.logger.Info("session issued", "user", user.Email(), "expires", session.ExpiresAt().Local().Format(time.DateTime))
	return nil
}

// UsersSummary shows what is stored for a user.
func (r *Runner) UsersSummary(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(cmd.StringArg("user"))
	if err != nil {
		return err
	}

	summary, err := b.svc.Users.Summary(user.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(summary, true)
	}

	r.writePlainHeader(user.Email())
	r.writePlain("Devices:         %d\n", summary.Devices)
	r.writePlain("Clipboard items: %d\n", summary.ClipboardItems)
	r.writePlain("Storage:         %s\n", shared.FormatBytes(summary.StorageBytes))
	r.writePlain("Latest seq:      %d\n", summary.LatestSeq)
	r.writePlain("Live ws tokens:  %d\n", summary.WsTokens)
	return nil
}

// UsersClear deletes a user and everything stored for them.
func (r *Runner) UsersClear(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("user")
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to delete all data for %s", shared.ErrMissingArgument, ref)
	}

	b, err := r.openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.svc.Users.Find(ref)
	if err != nil {
		return err
	}

	previous, err := b.svc.Users.DeleteAllData(ctx, user.ID())
	if err != nil {
		return err
	}

	r.logger.Warn("user data deleted", "user", user.Email(), "items", previous.ClipboardItems, "devices", previous.Devices)
	return r.writePlain("✓ Deleted %s: %d devices, %d clipboard items\n", user.Email(), previous.Devices, previous.ClipboardItems)
}
