// Package commands implements the rbtree command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bietje/RBtree/pkg/config"
	"github.com/bietje/RBtree/pkg/observability"
	"github.com/bietje/RBtree/pkg/version"
)

type initFunc func(cfg observability.Config, w io.Writer) (observability.Providers, error)

// app carries the state shared by all subcommands once the root hook ran.
type app struct {
	configPath string
	verbose    bool
	quiet      bool
	logJSON    bool
	noColor    bool

	initObs initFunc

	cfg       *config.Config
	providers observability.Providers
	metrics   *observability.TreeMetrics
}

// NewRootCommand builds the rbtree command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommandWithInit(observability.InitWithWriter)
}

func newRootCommandWithInit(initObs initFunc) *cobra.Command {
	a := &app{initObs: initObs}

	root := &cobra.Command{
		Use:   "rbtree",
		Short: "Red-black tree driver",
		Long: `rbtree exercises an arena backed red-black tree.

Commands:
  demo      Insert a few keys and print the tree
  run       Execute YAML scenarios against fresh trees
  bench     Randomized insert/delete workload with invariant checks`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default: rbtree.yaml in ., ./config or /etc/rbtree)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "only log warnings and skip status lines")
	flags.BoolVar(&a.logJSON, "log-json", false, "log as JSON")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newDemoCommand(a))
	root.AddCommand(newRunCommand(a))
	root.AddCommand(newBenchCommand(a))
	root.AddCommand(newVersionCommand())

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return err
	}

	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelWarn
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.SampleRatio
	obsCfg.LogLevel = level
	obsCfg.LogJSON = a.logJSON || cfg.Logging.Format == config.FormatJSON
	obsCfg.ShutdownTimeoutSec = int(cfg.Telemetry.ShutdownTimeout / time.Second)

	if cmd.Name() == benchCommandName {
		obsCfg.Mode = observability.ModeBench
	}

	providers, err := a.initObs(obsCfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewTreeMetrics(providers.Meter)
	if err != nil {
		return errors.Join(err, providers.Shutdown(context.Background()))
	}

	a.cfg = cfg
	a.providers = providers
	a.metrics = metrics

	providers.Logger.Debug("configuration loaded",
		"shards", cfg.Allocator.Shards, "limit", cfg.Allocator.Limit, "otlp", cfg.Telemetry.OTLPEndpoint != "")

	return nil
}

// withTelemetry flushes telemetry once fn returns. cobra skips post-run
// hooks after a failed run, so the flush cannot live in one.
func (a *app) withTelemetry(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.shutdown()

		return fn(cmd, args)
	}
}

func (a *app) shutdown() {
	if a.providers.Shutdown == nil {
		return
	}

	if err := a.providers.Shutdown(context.Background()); err != nil {
		a.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// status prints a colored progress line unless --quiet is set.
func (a *app) status(w io.Writer, attr color.Attribute, format string, args ...any) {
	if a.quiet {
		return
	}

	printer := color.New(attr)
	if a.noColor {
		printer.DisableColor()
	}

	printer.Fprintf(w, format, args...)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// Printing the version needs neither config nor telemetry.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rbtree %s\n", version.String())
		},
	}
}
