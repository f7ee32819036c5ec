package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bietje/RBtree/pkg/report"
	"github.com/bietje/RBtree/pkg/workload"
)

// ErrScenariosFailed is returned when at least one scenario did not pass.
var ErrScenariosFailed = errors.New("scenarios failed")

func newRunCommand(a *app) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Execute scenario files, each against a fresh tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withTelemetry(func(cmd *cobra.Command, args []string) error {
			return a.runScenarios(cmd, args, dump)
		}),
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "print the final tree of every scenario")

	return cmd
}

func (a *app) runScenarios(cmd *cobra.Command, paths []string, dump bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	opts := []workload.Option{
		workload.WithTracer(a.providers.Tracer),
		workload.WithMetrics(a.metrics),
		workload.WithLogger(a.providers.Logger),
		workload.WithLimit(a.cfg.Allocator.Limit),
	}

	if dump {
		opts = append(opts, workload.WithDump(out))
	}

	executor := workload.NewExecutor(opts...)

	var (
		results []workload.Result
		failed  int
	)

	for _, path := range paths {
		scenario, err := workload.LoadFile(path)
		if err != nil {
			failed++
			a.status(out, color.FgRed, "FAIL %s: %v\n", path, err)

			continue
		}

		result, err := executor.Run(ctx, scenario)
		if err != nil {
			failed++
			a.status(out, color.FgRed, "FAIL %v\n", err)

			continue
		}

		results = append(results, result)
		a.status(out, color.FgGreen, "PASS %s (%d steps, %d ops)\n", result.Name, result.Steps, result.Ops)
	}

	if !a.quiet && len(results) > 0 {
		if err := report.Scenarios(out, results); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, failed, len(paths))
	}

	return nil
}
