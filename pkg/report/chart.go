package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/bietje/RBtree/pkg/workload"
)

const lineWidth = 2

// HeightBound is the largest height a red-black tree of n nodes may reach, 2·log2(n+1).
func HeightBound(n int) int {
	return int(math.Floor(2 * math.Log2(float64(n)+1)))
}

// HeightChart plots height and black height of the largest tree against the
// number of operations, together with the theoretical bound for its size.
func HeightChart(samples []workload.Sample) *charts.Line {
	labels := make([]string, len(samples))
	height := make([]opts.LineData, len(samples))
	black := make([]opts.LineData, len(samples))
	bound := make([]opts.LineData, len(samples))

	for idx, sample := range samples {
		labels[idx] = strconv.Itoa(sample.Ops)
		height[idx] = opts.LineData{Value: sample.Height}
		black[idx] = opts.LineData{Value: sample.BlackHeight}
		bound[idx] = opts.LineData{Value: HeightBound(sample.Size)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tree shape",
			Subtitle: "Largest tree, sampled during the bench",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Operations"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Levels"}),
	)
	line.SetXAxis(labels)
	line.AddSeries("Height", height,
		charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}))
	line.AddSeries("Black height", black,
		charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}))
	line.AddSeries("2·log2(n+1)", bound,
		charts.WithLineStyleOpts(opts.LineStyle{Width: 1, Type: "dashed"}))

	return line
}

// WriteHeightChart renders HeightChart as a standalone HTML page.
func WriteHeightChart(w io.Writer, samples []workload.Sample) error {
	if err := HeightChart(samples).Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	return nil
}
