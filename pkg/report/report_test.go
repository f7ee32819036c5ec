package report_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bietje/RBtree/pkg/rbtree"
	"github.com/bietje/RBtree/pkg/report"
	"github.com/bietje/RBtree/pkg/workload"
)

var errWrite = errors.New("write failed")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errWrite }

func TestHeightBound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, report.HeightBound(0))
	assert.Equal(t, 2, report.HeightBound(1))
	assert.Equal(t, 4, report.HeightBound(3))
	assert.Equal(t, 6, report.HeightBound(7))
	assert.Equal(t, 19, report.HeightBound(1000))
}

func TestSummary(t *testing.T) {
	t.Parallel()

	result := workload.BenchResult{
		Ops:             120000,
		Inserts:         70000,
		Deletes:         40000,
		Misses:          10000,
		Checks:          124,
		Rounds:          4,
		Elapsed:         2 * time.Second,
		Capacity:        30001,
		CompressedBytes: 2048,
		Trees: []workload.TreeSummary{
			{Name: "tree-0", Stats: rbtree.Stats{Size: 12000, Height: 16, BlackHeight: 8}},
			{Name: "tree-1", Stats: rbtree.Stats{Size: 18000, Height: 17, BlackHeight: 9}},
		},
	}

	var buf bytes.Buffer

	require.NoError(t, report.Summary(&buf, result))

	out := buf.String()
	assert.Contains(t, out, "120,000")
	assert.Contains(t, out, "60,000 ops/s")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "tree-1")
	assert.Contains(t, out, "30,000")
}

func TestSummaryZeroElapsed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, report.Summary(&buf, workload.BenchResult{}))
	assert.Contains(t, buf.String(), "n/a")
}

func TestScenarios(t *testing.T) {
	t.Parallel()

	long := make([]int64, 20)
	for idx := range long {
		long[idx] = int64(idx)
	}

	results := []workload.Result{
		{Name: "short", Steps: 2, Ops: 3, InOrder: []int64{5, 7, 9}, Stats: rbtree.Stats{Size: 3, Height: 2}},
		{Name: "long", Steps: 1, Ops: 20, InOrder: long, Stats: rbtree.Stats{Size: 20, Height: 6}},
	}

	var buf bytes.Buffer

	require.NoError(t, report.Scenarios(&buf, results))

	out := buf.String()
	assert.Contains(t, out, "5 7 9")
	assert.Contains(t, out, "... (+8)")
	// go-pretty upper-cases footers.
	assert.Contains(t, out, "TOTAL: 2 SCENARIOS")
}

func TestWriteErrors(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, report.Summary(failingWriter{}, workload.BenchResult{}), errWrite)
	require.ErrorIs(t, report.Scenarios(failingWriter{}, nil), errWrite)
}

func TestHeightChart(t *testing.T) {
	t.Parallel()

	samples := []workload.Sample{
		{Ops: 100, Size: 40, Height: 7, BlackHeight: 4},
		{Ops: 200, Size: 90, Height: 9, BlackHeight: 5},
	}

	line := report.HeightChart(samples)
	require.NotNil(t, line)
	assert.Len(t, line.MultiSeries, 3)

	var buf bytes.Buffer

	require.NoError(t, report.WriteHeightChart(&buf, samples))
	assert.Contains(t, buf.String(), "Black height")
	assert.Contains(t, buf.String(), "<html")
}
