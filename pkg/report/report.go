// Package report renders bench and scenario results as terminal tables and
// HTML charts.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bietje/RBtree/pkg/workload"
)

// Summary writes the totals of a bench followed by one row per tree.
func Summary(w io.Writer, result workload.BenchResult) error {
	totals := table.NewWriter()
	totals.SetStyle(table.StyleLight)
	totals.SetTitle("Bench")
	totals.AppendHeader(table.Row{"Metric", "Value"})
	totals.AppendRows([]table.Row{
		{"Operations", humanize.Comma(int64(result.Ops))},
		{"Inserts", humanize.Comma(int64(result.Inserts))},
		{"Deletes", humanize.Comma(int64(result.Deletes))},
		{"Delete misses", humanize.Comma(int64(result.Misses))},
		{"Rejected inserts", humanize.Comma(int64(result.Rejected))},
		{"Validations", humanize.Comma(int64(result.Checks))},
		{"Rounds", strconv.Itoa(result.Rounds)},
		{"Elapsed", result.Elapsed.Round(time.Microsecond).String()},
		{"Throughput", opsPerSecond(result.Ops, result.Elapsed)},
		{"Arena capacity", humanize.Comma(int64(result.Capacity)) + " nodes"},
		{"Hibernated columns", humanize.Bytes(uint64(max(result.CompressedBytes, 0)))},
	})
	totals.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	trees := table.NewWriter()
	trees.SetStyle(table.StyleLight)
	trees.AppendHeader(table.Row{"Tree", "Size", "Height", "Black height", "Height bound"})

	live := 0

	for _, tree := range result.Trees {
		live += tree.Stats.Size
		trees.AppendRow(table.Row{
			tree.Name,
			humanize.Comma(int64(tree.Stats.Size)),
			tree.Stats.Height,
			tree.Stats.BlackHeight,
			HeightBound(tree.Stats.Size),
		})
	}

	trees.AppendFooter(table.Row{"Total", humanize.Comma(int64(live))})

	_, err := fmt.Fprintf(w, "%s\n%s\n", totals.Render(), trees.Render())
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

// Scenarios writes one row per executed scenario.
func Scenarios(w io.Writer, results []workload.Result) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Scenario", "Steps", "Ops", "Size", "Height", "In-order"})

	for _, result := range results {
		tbl.AppendRow(table.Row{
			result.Name,
			result.Steps,
			result.Ops,
			result.Stats.Size,
			result.Stats.Height,
			joinKeys(result.InOrder),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d scenarios", len(results))})

	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write scenarios: %w", err)
	}

	return nil
}

// maxShownKeys truncates long in-order listings.
const maxShownKeys = 12

func joinKeys(keys []int64) string {
	parts := make([]string, 0, min(len(keys), maxShownKeys)+1)

	for idx, key := range keys {
		if idx == maxShownKeys {
			parts = append(parts, fmt.Sprintf("... (+%d)", len(keys)-maxShownKeys))

			break
		}

		parts = append(parts, strconv.FormatInt(key, 10))
	}

	return strings.Join(parts, " ")
}

func opsPerSecond(ops int, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "n/a"
	}

	rate := float64(ops) / elapsed.Seconds()

	return humanize.CommafWithDigits(rate, 0) + " ops/s"
}
