package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bietje/RBtree/pkg/observability"
	"github.com/bietje/RBtree/pkg/rbtree"
)

const demoTree = "demo"

func newDemoCommand(a *app) *cobra.Command {
	var keys []int64

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Insert sample keys, print the tree and tear it down",
		Args:  cobra.NoArgs,
		RunE: a.withTelemetry(func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd, keys)
		}),
	}

	cmd.Flags().Int64SliceVar(&keys, "keys", []int64{20, 7, 30}, "keys to insert, in order")

	return cmd
}

func (a *app) runDemo(cmd *cobra.Command, keys []int64) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ctx, span := a.providers.Tracer.Start(ctx, "rbtree.demo")
	defer span.End()

	ctx = observability.WithTree(ctx, demoTree)

	alloc := rbtree.NewAllocator[int64, string]()
	alloc.Limit = a.cfg.Allocator.Limit
	tree := rbtree.New[int64, string](alloc)

	for _, key := range keys {
		start := time.Now()

		_, err := tree.Insert(key, fmt.Sprintf("payload-%d", key))
		if err != nil {
			a.metrics.RecordOp(ctx, demoTree, observability.OpInsert, observability.StatusError, time.Since(start))
			a.metrics.AddNodes(ctx, demoTree, -int64(tree.Teardown()))

			return fmt.Errorf("insert %d: %w", key, err)
		}

		a.metrics.RecordOp(ctx, demoTree, observability.OpInsert, observability.StatusOK, time.Since(start))
		a.metrics.AddNodes(ctx, demoTree, 1)
		a.providers.Logger.DebugContext(ctx, "inserted", "key", key)
	}

	if err := tree.Validate(); err != nil {
		return fmt.Errorf("tree invalid after inserts: %w", err)
	}

	var opts []rbtree.DumpOption
	if !a.noColor {
		opts = append(opts, rbtree.WithColor())
	}

	if err := tree.Dump(out, opts...); err != nil {
		return err
	}

	stats := tree.Stats()
	a.status(out, color.FgCyan, "size %d, height %d, black height %d\n", stats.Size, stats.Height, stats.BlackHeight)

	freed := tree.Teardown()
	a.metrics.AddNodes(ctx, demoTree, -int64(freed))
	a.status(out, color.FgGreen, "teardown freed %d nodes\n", freed)

	return nil
}
