package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bietje/RBtree/pkg/observability"
	"github.com/bietje/RBtree/pkg/report"
	"github.com/bietje/RBtree/pkg/workload"
)

const (
	benchCommandName  = "bench"
	readHeaderTimeout = 5 * time.Second
	metricsMeterName  = "github.com/bietje/RBtree/bench"
)

type benchFlags struct {
	ops         int
	keySpace    int
	seed        int64
	deleteRatio float64
	shards      int
	trees       int
	checkEvery  int
	rounds      int
	plot        string
	metricsAddr string
}

func newBenchCommand(a *app) *cobra.Command {
	var bf benchFlags

	cmd := &cobra.Command{
		Use:   benchCommandName,
		Short: "Run a randomized insert/delete workload over sharded trees",
		Long: `Run a seeded random mix of inserts and deletes over several trees that
share sharded node allocators. Every touched tree is validated periodically,
all trees are validated after each round, and the allocators go through a
hibernate and boot cycle between rounds.

Flags that are not given fall back to the bench section of the config file.`,
		Args: cobra.NoArgs,
		RunE: a.withTelemetry(func(cmd *cobra.Command, _ []string) error {
			return a.runBench(cmd, bf)
		}),
	}

	flags := cmd.Flags()
	flags.IntVar(&bf.ops, "ops", 0, "number of operations")
	flags.IntVar(&bf.keySpace, "key-space", 0, "keys are drawn from [0, key-space)")
	flags.Int64Var(&bf.seed, "seed", 0, "random seed")
	flags.Float64Var(&bf.deleteRatio, "delete-ratio", 0, "share of deletes in [0, 1)")
	flags.IntVar(&bf.shards, "shards", 0, "allocator shards")
	flags.IntVar(&bf.trees, "trees", 1, "number of trees")
	flags.IntVar(&bf.checkEvery, "check-every", 0, "validate the touched tree every N operations (0 = only per round)")
	flags.IntVar(&bf.rounds, "rounds", 0, "rounds separated by hibernate and boot cycles")
	flags.StringVar(&bf.plot, "plot", "", "write an HTML height chart to this file")
	flags.StringVar(&bf.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the bench")

	return cmd
}

// override replaces *dst with val when the flag was given explicitly.
func override[T any](cmd *cobra.Command, name string, dst *T, val T) {
	if cmd.Flags().Changed(name) {
		*dst = val
	}
}

func (a *app) benchConfig(cmd *cobra.Command, bf benchFlags) workload.BenchConfig {
	cfg := workload.BenchConfig{
		Ops:                  a.cfg.Bench.Ops,
		KeySpace:             a.cfg.Bench.KeySpace,
		Seed:                 a.cfg.Bench.Seed,
		DeleteRatio:          a.cfg.Bench.DeleteRatio,
		Trees:                bf.trees,
		Shards:               a.cfg.Allocator.Shards,
		CheckEvery:           a.cfg.Bench.CheckEvery,
		Rounds:               a.cfg.Bench.Rounds,
		HibernationThreshold: a.cfg.Allocator.HibernationThreshold,
		Limit:                a.cfg.Allocator.Limit,
	}

	override(cmd, "ops", &cfg.Ops, bf.ops)
	override(cmd, "key-space", &cfg.KeySpace, bf.keySpace)
	override(cmd, "seed", &cfg.Seed, bf.seed)
	override(cmd, "delete-ratio", &cfg.DeleteRatio, bf.deleteRatio)
	override(cmd, "shards", &cfg.Shards, bf.shards)
	override(cmd, "check-every", &cfg.CheckEvery, bf.checkEvery)
	override(cmd, "rounds", &cfg.Rounds, bf.rounds)

	return cfg
}

func (a *app) runBench(cmd *cobra.Command, bf benchFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := a.providers.Logger

	metrics := a.metrics

	metricsAddr := a.cfg.Telemetry.MetricsAddr
	override(cmd, "metrics-addr", &metricsAddr, bf.metricsAddr)

	if metricsAddr != "" {
		promMetrics, stop, err := a.serveMetrics(ctx, cmd, metricsAddr)
		if err != nil {
			return err
		}

		defer stop()

		metrics = promMetrics
	}

	bench, err := workload.NewBench(a.benchConfig(cmd, bf),
		workload.WithTracer(a.providers.Tracer),
		workload.WithMetrics(metrics),
		workload.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	result, err := bench.Run(ctx)
	if err != nil {
		a.status(out, color.FgRed, "bench failed: %v\n", err)

		return err
	}

	a.status(out, color.FgGreen, "all invariants held over %d operations\n", result.Ops)

	if !a.quiet {
		if err := report.Summary(out, result); err != nil {
			return err
		}
	}

	if bf.plot != "" {
		if err := writePlot(bf.plot, result.Samples); err != nil {
			return err
		}

		a.status(out, color.FgCyan, "height chart written to %s\n", bf.plot)
	}

	return nil
}

// serveMetrics exposes a Prometheus scrape endpoint fed by fresh tree metrics
// until the returned stop function is called.
func (a *app) serveMetrics(
	ctx context.Context, cmd *cobra.Command, addr string,
) (*observability.TreeMetrics, func(), error) {
	handler, provider, err := observability.PrometheusHandler()
	if err != nil {
		return nil, nil, err
	}

	metrics, err := observability.NewTreeMetrics(provider.Meter(metricsMeterName))
	if err != nil {
		return nil, nil, err
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HTTPMiddleware(a.providers.Tracer, handler))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			a.providers.Logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	a.status(cmd.OutOrStdout(), color.FgCyan, "serving metrics on http://%s/metrics\n", listener.Addr())

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.providers.Logger.Warn("metrics server shutdown failed", "error", err)
		}
	}

	return metrics, stop, nil
}

func writePlot(path string, samples []workload.Sample) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return report.WriteHeightChart(file, samples)
}
