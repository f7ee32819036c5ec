package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bietje/RBtree/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.TreeMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tm, err := observability.NewTreeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return tm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	var total int64
	for _, point := range sum.DataPoints {
		total += point.Value
	}

	return total
}

func TestTreeMetrics_RecordOp(t *testing.T) {
	t.Parallel()

	tm, reader := setupTestMeter(t)
	ctx := context.Background()

	tm.RecordOp(ctx, "main", observability.OpInsert, observability.StatusOK, time.Microsecond)
	tm.RecordOp(ctx, "main", observability.OpSearch, observability.StatusMiss, time.Microsecond)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "rbtree.ops.total")))
	require.NotNil(t, findMetric(rm, "rbtree.op.duration.seconds"))
	assert.Nil(t, findMetric(rm, "rbtree.errors.total"))
}

func TestTreeMetrics_RecordError(t *testing.T) {
	t.Parallel()

	tm, reader := setupTestMeter(t)

	tm.RecordOp(context.Background(), "main", observability.OpDelete, observability.StatusError, time.Microsecond)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "rbtree.errors.total")))
}

func TestTreeMetrics_AddNodes(t *testing.T) {
	t.Parallel()

	tm, reader := setupTestMeter(t)
	ctx := context.Background()

	tm.AddNodes(ctx, "main", 5)
	tm.AddNodes(ctx, "main", -2)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), sumOf(t, findMetric(rm, "rbtree.nodes")))
}

func TestNewTreeMetrics_NoopMeter(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	tm, err := observability.NewTreeMetrics(providers.Meter)
	require.NoError(t, err)

	tm.RecordOp(context.Background(), "main", observability.OpBoot, observability.StatusOK, time.Millisecond)
	tm.AddNodes(context.Background(), "main", 1)
}
