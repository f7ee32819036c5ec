package workload_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bietje/RBtree/pkg/observability"
	"github.com/bietje/RBtree/pkg/rbtree"
	"github.com/bietje/RBtree/pkg/workload"
)

func mustLoad(t *testing.T, doc string) *workload.Scenario {
	t.Helper()

	sc, err := workload.Load(strings.NewReader(doc))
	require.NoError(t, err)

	return sc
}

func TestRunResult(t *testing.T) {
	t.Parallel()

	sc := mustLoad(t, `
name: ascending
steps:
  - insert: [1, 2, 3, 4, 5, 6, 7, 8, 9]
  - delete: [7]
  - search: [8]
`)

	result, err := workload.NewExecutor().Run(context.Background(), sc)
	require.NoError(t, err)

	assert.Equal(t, "ascending", result.Name)
	assert.Equal(t, 3, result.Steps)
	assert.Equal(t, 11, result.Ops)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 8, 9}, result.InOrder)
	assert.Equal(t, 8, result.Stats.Size)
}

func TestRunExpectationMismatch(t *testing.T) {
	t.Parallel()

	sc := mustLoad(t, `
name: wrong
steps:
  - insert: [3, 1, 2]
  - expect:
      inorder: [1, 3, 2]
`)

	_, err := workload.NewExecutor().Run(context.Background(), sc)
	require.ErrorIs(t, err, workload.ErrExpectation)
	assert.Contains(t, err.Error(), "wrong: step 2 (expect)")
	assert.Contains(t, err.Error(), "in-order keys differ")
	assert.Contains(t, err.Error(), "\n-")
	assert.Contains(t, err.Error(), "\n+")
}

func TestRunRootAndSizeMismatch(t *testing.T) {
	t.Parallel()

	for _, expect := range []string{"root: 1", "size: 4"} {
		sc := mustLoad(t, "name: x\nsteps:\n  - insert: [1, 2, 3]\n  - expect:\n      "+expect+"\n")

		_, err := workload.NewExecutor().Run(context.Background(), sc)
		require.ErrorIs(t, err, workload.ErrExpectation, expect)
	}

	sc := mustLoad(t, "name: x\nsteps:\n  - expect:\n      root: 1\n")
	_, err := workload.NewExecutor().Run(context.Background(), sc)
	require.ErrorIs(t, err, workload.ErrExpectation)
}

func TestRunMissingKeys(t *testing.T) {
	t.Parallel()

	sc := mustLoad(t, "name: x\nsteps:\n  - insert: [1]\n  - delete: [2]\n")
	_, err := workload.NewExecutor().Run(context.Background(), sc)
	require.ErrorIs(t, err, workload.ErrKeyNotFound)

	sc = mustLoad(t, "name: x\nsteps:\n  - search: [2]\n")
	_, err = workload.NewExecutor().Run(context.Background(), sc)
	require.ErrorIs(t, err, workload.ErrKeyNotFound)

	sc = mustLoad(t, "name: x\nsteps:\n  - insert: [2]\n  - absent: [2]\n")
	_, err = workload.NewExecutor().Run(context.Background(), sc)
	require.ErrorIs(t, err, workload.ErrExpectation)
}

func TestRunAllocationLimit(t *testing.T) {
	t.Parallel()

	sc := mustLoad(t, "name: x\nsteps:\n  - insert: [1, 2, 3]\n")

	_, err := workload.NewExecutor(workload.WithLimit(2)).Run(context.Background(), sc)
	require.ErrorIs(t, err, rbtree.ErrAllocatorExhausted)
}

func TestRunDump(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	sc := mustLoad(t, "name: x\nsteps:\n  - insert: [20, 7, 30]\n")

	_, err := workload.NewExecutor(workload.WithDump(&buf)).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "root 20 BLACK (parent none)")
	assert.Contains(t, buf.String(), "R 30 RED (parent 20)")
}

func TestRunTelemetry(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewTreeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	var logs bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogLevel = slog.LevelDebug

	executor := workload.NewExecutor(
		workload.WithTracer(tp.Tracer("test")),
		workload.WithMetrics(metrics),
		workload.WithLogger(observability.NewLogger(cfg, &logs)),
	)

	sc := mustLoad(t, "name: traced\nsteps:\n  - insert: [1, 2]\n  - delete: [1]\n  - search: [2]\n")

	_, err = executor.Run(context.Background(), sc)
	require.NoError(t, err)

	// One span per step plus the scenario span.
	spans := exporter.GetSpans()
	require.Len(t, spans, 4)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}

	assert.True(t, names["rbtree.ops.total"])
	assert.True(t, names["rbtree.nodes"])

	assert.Contains(t, logs.String(), "scenario passed")
	assert.Contains(t, logs.String(), "trace_id=")
}

func TestLineDiff(t *testing.T) {
	t.Parallel()

	diff := workload.LineDiff("1\n2\n3\n", "1\n3\n4\n")
	assert.Equal(t, " 1\n-2\n 3\n+4\n", diff)
	assert.Empty(t, workload.LineDiff("", ""))
}
