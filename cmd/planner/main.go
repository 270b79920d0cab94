package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/planner/internal/config"
	"github.com/aristath/planner/internal/events"
	"github.com/aristath/planner/internal/observability"
	"github.com/aristath/planner/internal/persistence"
	"github.com/aristath/planner/internal/planner"
)

// app holds the global flags and everything opened for one invocation.
type app struct {
	dbPath     string
	configPath string
	logLevel   string
	logFormat  string
	profile    string

	cfg         *config.PlannerConfig
	globalPath  string
	projectPath string
	logger      *slog.Logger
	store       *persistence.SQLiteStore
	bus         *events.EventBus
	svc         *planner.Service
	shutdown    observability.ShutdownFunc
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Planner - dependency-aware day scheduling",
		Long: `Planner keeps a graph of tasks with durations, priorities, deadlines and
dependencies, and fits them into a working day with one of five greedy policies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.open(cmd.Context())
		},
		// No RunE - defaults to showing help when no subcommand is provided
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.dbPath, "db", "", "SQLite database path (default from config)")
	flags.StringVar(&a.configPath, "config", "", "Project config file (default .planner/config.json)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&a.profile, "profile", "", "Scheduling profile from the config")

	rootCmd.AddCommand(
		newTaskCmd(a),
		newScheduleCmd(a),
		newDepsCmd(a),
		newTUICmd(a),
	)
	return rootCmd, a
}

// open loads configuration and wires the logger, tracing, store, bus and service.
func (a *app) open(ctx context.Context) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home directory: %w", err)
	}
	a.globalPath = config.GlobalPath(homeDir)
	a.projectPath = config.ProjectPath()
	if a.configPath != "" {
		a.projectPath = a.configPath
	}

	a.cfg, err = config.Load(a.globalPath, a.projectPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Logging.Format = a.logFormat
	}
	if a.dbPath != "" {
		a.cfg.Storage.Path = a.dbPath
	}
	if a.profile != "" {
		if _, ok := a.cfg.Profile(a.profile); !ok {
			return fmt.Errorf("%w: %s", planner.ErrUnknownProfile, a.profile)
		}
	}

	a.logger = observability.NewLogger(a.cfg.Logging.Level, a.cfg.Logging.Format, os.Stderr)
	slog.SetDefault(a.logger)

	a.shutdown, err = observability.InitTracing(ctx, "planner", a.cfg.Tracing, os.Stderr)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	a.store, err = persistence.NewSQLiteStore(ctx, a.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	a.bus = events.NewEventBus()
	a.svc, err = planner.New(ctx, planner.Options{
		Store:     a.store,
		Config:    a.cfg,
		Logger:    a.logger,
		Publisher: a.bus,
	})
	if err != nil {
		return err
	}

	a.logger.Debug("planner opened", "db", a.cfg.Storage.Path)
	return nil
}

// close releases whatever open managed to create.
func (a *app) close() error {
	var errs []error
	if a.bus != nil {
		a.bus.Close()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, a := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
