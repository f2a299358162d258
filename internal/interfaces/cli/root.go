// Package cli implements complyctl, the operator command line of the
// obligation engine.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output formats accepted by -o.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

type cliContextKey struct{}

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// JobRunner runs the cross-organization batch jobs on demand.
type JobRunner interface {
	ReconcileAll(ctx context.Context) (*app.JobReport, error)
	DispatchReminders(ctx context.Context, asOf time.Time) (*app.JobReport, error)
}

// OrganizationStore seeds organizations from catalog files.
type OrganizationStore interface {
	Upsert(ctx context.Context, org *repositories.Organization) error
}

// Backend is the opened engine the data commands operate on.
type Backend interface {
	Service() app.Service
	Jobs() JobRunner
	Organizations() OrganizationStore
	Close()
}

// Migrator applies the embedded schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
}

// Dependencies are the factories the command tree is built on. main supplies
// real implementations; tests supply fakes.
type Dependencies struct {
	LoadConfig  func(path string) (*config.Config, error)
	OpenBackend func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Backend, error)
	NewMigrator func(cfg *config.Config) Migrator
}

// ─────────────────────────────────────────────────────────────────────────────
// Root command
// ─────────────────────────────────────────────────────────────────────────────

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Timeout      time.Duration
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat string
	Timeout      time.Duration

	deps    Dependencies
	backend Backend
}

// Backend opens the engine on first use.
func (c *CLIContext) Backend(ctx context.Context) (Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	if c.deps.OpenBackend == nil {
		return nil, errors.Internal("no backend configured")
	}
	b, err := c.deps.OpenBackend(ctx, c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	c.backend = b
	return b, nil
}

// Migrator builds a migrator for the configured database.
func (c *CLIContext) Migrator() (Migrator, error) {
	if c.deps.NewMigrator == nil {
		return nil, errors.Internal("no migrator configured")
	}
	return c.deps.NewMigrator(c.Config), nil
}

// Close releases the backend if one was opened.
func (c *CLIContext) Close() {
	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
}

// WithTimeout bounds ctx by the --timeout flag.
func (c *CLIContext) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}

// NewRootCommand creates the root command with its global flags and every
// subcommand.
func NewRootCommand(deps Dependencies) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "complyctl",
		Short: "ComplyTrack compliance obligation engine CLI",
		Long: "complyctl manages the compliance obligation engine: schema migrations,\n" +
			"template catalogs, obligation instances, reminders and overdue reconciliation.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, deps)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./complytrack.yaml, then COMPLY_* env)")
	pf.StringVar(&opts.LogLevel, "log-level", logging.LevelWarn, "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", OutputTable, "output format (table, json)")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "operation timeout")

	cmd.AddCommand(
		NewMigrateCmd(),
		NewTemplatesCmd(),
		NewInstancesCmd(),
		NewRemindersCmd(),
		NewReconcileCmd(),
		NewRegenerateCmd(),
	)
	return cmd
}

func persistentPreRun(cmd *cobra.Command, opts *RootOptions, deps Dependencies) error {
	format := strings.ToLower(opts.OutputFormat)
	if format != OutputTable && format != OutputJSON {
		return errors.InvalidParam("invalid output format").WithDetailf("output=%q", opts.OutputFormat)
	}

	cfg, err := initConfig(opts, deps)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            opts.LogLevel,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		OutputFormat: format,
		Timeout:      opts.Timeout,
		deps:         deps,
	}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initConfig loads the explicit --config path, else the first file found in
// the search path, else the environment.
func initConfig(opts *RootOptions, deps Dependencies) (*config.Config, error) {
	load := deps.LoadConfig
	if load == nil {
		load = config.LoadOrEnv
	}
	if opts.ConfigPath != "" {
		return load(opts.ConfigPath)
	}

	searchPaths := []string{"./complytrack.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".complytrack", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/complytrack/config.yaml")

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return load(p)
		}
	}
	return load("")
}

// GetCLIContext extracts CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Internal("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Internal("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute runs the command tree, releases the backend the command opened and
// prints any error to stderr.
func Execute(deps Dependencies) error {
	rootCmd := NewRootCommand(deps)
	executed, err := rootCmd.ExecuteC()
	closeBackend(executed)
	if err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// Exit statuses returned by ExitCode.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitInvalid   = 2
	ExitNotFound  = 3
	ExitConflict  = 4
	ExitInvariant = 5
)

// ExitCode maps err to a process exit status by its error kind so scripts can
// branch without parsing stderr.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return ExitInvalid
	case errors.KindNotFound:
		return ExitNotFound
	case errors.KindConflict:
		return ExitConflict
	case errors.KindInvariantViolation:
		return ExitInvariant
	default:
		return ExitFailure
	}
}

// closeBackend closes whatever the executed command opened. Cobra skips
// post-run hooks when RunE fails, so this runs after ExecuteC instead.
func closeBackend(cmd *cobra.Command) {
	if cmd == nil || cmd.Context() == nil {
		return
	}
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		cliCtx.Close()
	}
}

// backendFor resolves the CLI context, a bounded context and the backend in
// one step for data commands.
func backendFor(cmd *cobra.Command) (context.Context, context.CancelFunc, *CLIContext, Backend, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := cliCtx.WithTimeout(cmd.Context())
	b, err := cliCtx.Backend(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, err
	}
	return ctx, cancel, cliCtx, b, nil
}

//Personal.AI order the ending
