// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func passphraseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "passphrase",
		Aliases: []string{"p"},
		Usage:   "Encryption passphrase (defaults to the variable named by agent.passphrase_env)",
		Sources: cli.EnvVars("CLIPSYNC_PASSPHRASE"),
	}
}

func sessionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "session",
		Usage:   "Session token to use instead of the device API key",
		Sources: cli.EnvVars("CLIPSYNC_SESSION"),
	}
}

// setupCommand handles database and config initialization.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the database",
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:   "rollback",
				Usage:  "Revert the most recent migration",
				Action: r.SetupRollback,
			},
			{
				Name:   "status",
				Usage:  "List applied migrations",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.SetupStatus,
			},
		},
	}
}

// serveCommand runs the sync server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the clipboard sync server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Address to listen on (overrides server.host)",
				Sources: cli.EnvVars("CLIPSYNC_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on (overrides server.port)",
				Sources: cli.EnvVars("CLIPSYNC_PORT"),
			},
			&cli.BoolFlag{
				Name:  "no-maintenance",
				Usage: "Do not run scheduled maintenance in this process",
			},
		},
		Action: r.Serve,
	}
}

// usersCommand manages accounts on the local database.
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage user accounts",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a user",
				Arguments: []cli.Argument{&cli.StringArg{Name: "email"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					jsonFlag(),
				},
				Action: r.UsersCreate,
			},
			{
				Name:   "list",
				Usage:  "List users",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.UsersList,
			},
			{
				Name:      "token",
				Usage:     "Issue a session token for a user",
				Arguments: []cli.Argument{&cli.StringArg{Name: "user"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.UsersToken,
			},
			{
				Name:      "summary",
				Usage:     "Show what the server stores for a user",
				Arguments: []cli.Argument{&cli.StringArg{Name: "user"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.UsersSummary,
			},
			{
				Name:      "clear",
				Usage:     "Delete a user and all of their data",
				Arguments: []cli.Argument{&cli.StringArg{Name: "user"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm deletion"},
				},
				Action: r.UsersClear,
			},
		},
	}
}

// devicesCommand handles device registration and API keys.
func devicesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "devices",
		Aliases: []string{"device"},
		Usage:   "Register devices and manage their API keys",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List a user's devices",
				Arguments: []cli.Argument{&cli.StringArg{Name: "user"}},
				Flags:     []cli.Flag{jsonFlag()},
				Action:    r.DevicesList,
			},
			{
				Name:      "registration",
				Usage:     "Create a registration token, or adopt one printed by an agent",
				Arguments: []cli.Argument{&cli.StringArg{Name: "user"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "Token printed by 'clipsync devices register'"},
					&cli.StringFlag{Name: "prefix", Usage: "Device id prefix the token is for (platform-xx)"},
					jsonFlag(),
				},
				Action: r.DevicesRegistration,
			},
			{
				Name:  "register",
				Usage: "Register this machine and save its API key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Device name (defaults to the hostname)"},
					&cli.StringFlag{Name: "token", Usage: "Registration token created on the server"},
					sessionFlag(),
					&cli.DurationFlag{Name: "timeout", Usage: "How long to wait for the token to be adopted", Value: 10 * time.Minute},
					&cli.DurationFlag{Name: "interval", Usage: "How often to retry while waiting", Value: 5 * time.Second},
				},
				Action: r.DevicesRegister,
			},
			{
				Name:      "complete",
				Usage:     "Exchange a token for a new API key for this already registered device",
				Arguments: []cli.Argument{&cli.StringArg{Name: "token"}},
				Action:    r.DevicesComplete,
			},
			{
				Name:  "key",
				Usage: "Generate an API key for a device",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "user"},
					&cli.StringArg{Name: "device"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verify", Usage: "Verify the device first"},
					jsonFlag(),
				},
				Action: r.DevicesKey,
			},
			{
				Name:  "revoke",
				Usage: "Revoke a device's API key",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "user"},
					&cli.StringArg{Name: "device"},
				},
				Action: r.DevicesRevoke,
			},
		},
	}
}

func historyFlags() []cli.Flag {
	return []cli.Flag{
		sessionFlag(),
		passphraseFlag(),
		&cli.Int64Flag{Name: "since", Usage: "Only items after this seq"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of items", Value: 100},
	}
}

// clipboardCommand pushes, pulls and exports clipboard items through the API.
func clipboardCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "clipboard",
		Aliases: []string{"clip"},
		Usage:   "Push, pull and export clipboard items",
		Commands: []*cli.Command{
			{
				Name:      "push",
				Usage:     "Push text (argument or stdin) or a file",
				Arguments: []cli.Argument{&cli.StringArg{Name: "text"}},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Push a file instead of text"},
					passphraseFlag(),
					jsonFlag(),
				},
				Action: r.ClipboardPush,
			},
			{
				Name:  "pull",
				Usage: "Fetch items pushed by other devices",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "since", Usage: "Only items after this seq"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of items", Value: 50},
					&cli.DurationFlag{Name: "wait", Usage: "Long poll for up to this long when nothing is new"},
					&cli.BoolFlag{Name: "apply", Usage: "Write the newest text item to the local clipboard"},
					passphraseFlag(),
					jsonFlag(),
				},
				Action: r.ClipboardPull,
			},
			{
				Name:   "history",
				Usage:  "Show clipboard history",
				Flags:  append(historyFlags(), jsonFlag()),
				Action: r.ClipboardHistory,
			},
			{
				Name:  "export",
				Usage: "Export clipboard history to a file",
				Flags: append(historyFlags(),
					&cli.StringFlag{Name: "format", Usage: "json, csv, markdown or text", Value: "json"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path"},
				),
				Action: r.ClipboardExport,
			},
			{
				Name:  "clear",
				Usage: "Delete all clipboard items",
				Flags: []cli.Flag{
					sessionFlag(),
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm deletion"},
				},
				Action: r.ClipboardClear,
			},
		},
	}
}

// agentCommand runs the desktop sync agent.
func agentCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Desktop clipboard sync agent",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Sync the local clipboard until interrupted",
				Flags: []cli.Flag{
					passphraseFlag(),
					&cli.DurationFlag{Name: "stats-interval", Usage: "Log sync counters this often (0 disables)", Value: 15 * time.Minute},
				},
				Action: r.AgentRun,
			},
			{
				Name:   "status",
				Usage:  "Show server health, registration and queue state",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AgentStatus,
			},
			{
				Name:   "flush",
				Usage:  "Retry every item in the offline queue once",
				Action: r.AgentFlush,
			},
		},
	}
}

// maintenanceCommand runs cleanup and storage migration once.
func maintenanceCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "maintenance",
		Usage: "Database cleanup and storage migration",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run every maintenance phase once",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate-only", Usage: "Only move large items to the blob store"},
					&cli.IntFlag{Name: "batch-size", Usage: "Items per migration batch", Value: 100},
					jsonFlag(),
				},
				Action: r.MaintenanceRun,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for browsing clipboard history.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse clipboard history interactively",
		Flags: []cli.Flag{
			sessionFlag(),
			passphraseFlag(),
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of items to load", Value: 100},
			&cli.StringFlag{Name: "log-file", Usage: "Where to write logs while the UI runs", Value: "./tmp/clipsync-tui.log"},
		},
		Action: r.TUI,
	}
}
