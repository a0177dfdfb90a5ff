package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/clipsync/internal/encryption"
	"github.com/desertthunder/clipsync/internal/notify"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
	"github.com/desertthunder/clipsync/internal/storage"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	input      io.Reader
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Input      io.Reader
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		input:      opts.Input,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) { r.logger = l }

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, usersCommand, devicesCommand, clipboardCommand, agentCommand, maintenanceCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the config named by --config and applies --debug.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	r.configPath = path
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("config file not found, using defaults", "path", path)
			return ctx, nil
		}
		return ctx, fmt.Errorf("failed to stat config: %w", err)
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

// saveConfig writes the in-memory config back to the file it came from.
func (r *Runner) saveConfig() error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// backend is the server side of the stack, opened by commands that work on the database directly.
type backend struct {
	db       *sql.DB
	repos    *services.Repositories
	store    storage.Store
	notifier notify.Notifier
	svc      *services.Services
}

func (b *backend) Close() error {
	return errors.Join(b.notifier.Close(), b.db.Close())
}

func (r *Runner) openBackend() (*backend, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var store storage.Store
	if dir := r.config.Storage.BlobDir; dir != "" {
		fs, err := storage.NewFileStore(dir, r.config.Storage.Compression)
		if err != nil {
			db.Close()
			return nil, err
		}
		store = fs
	}

	notifier, err := notify.FromConfig(r.config.Notify)
	if err != nil {
		db.Close()
		return nil, err
	}

	repos := services.NewRepositories(db, r.config.Sync.InlineMaxBytes)
	return &backend{
		db:       db,
		repos:    repos,
		store:    store,
		notifier: notifier,
		svc:      services.New(repos, store, notifier, r.config, r.logger),
	}, nil
}

// client returns an API client authenticated with token, or with the agent API key when token is empty.
func (r *Runner) client(token string) *services.Client {
	if token == "" {
		token = r.config.Agent.APIKey
	}
	return services.NewClient(r.config.Agent.ServerURL, token, r.httpClient)
}

// apiClient is [Runner.client] for commands that need a credential: a session token or the agent API key.
func (r *Runner) apiClient(session string) (*services.Client, error) {
	if session == "" && r.config.Agent.APIKey == "" {
		return nil, fmt.Errorf("%w: agent.api_key is not set, run 'clipsync devices register' or pass --session", shared.ErrMissingConfig)
	}
	return r.client(session), nil
}

// account looks up the user behind c and builds their encryption manager.
// Without a passphrase the manager is disabled and items are sent in the clear.
func (r *Runner) account(ctx context.Context, c *services.Client, passphrase string) (*services.UserInfo, *encryption.Manager, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if passphrase == "" && r.config.Agent.Encryption {
		passphrase = r.config.Agent.Passphrase()
	}
	if passphrase == "" {
		return me, encryption.NewManager(me.ID), nil
	}

	crypto, err := encryption.NewManagerWithPassphrase(me.ID, passphrase)
	if err != nil {
		return nil, nil, err
	}
	return me, crypto, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
