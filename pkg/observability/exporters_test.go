package observability //nolint:testpackage // exercises unexported provider builders.

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNewResource(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ServiceVersion = "v0.3.0"
	cfg.Environment = "ci"
	cfg.Mode = ModeBench

	res, err := newResource(context.Background(), cfg)
	require.NoError(t, err)

	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}

	assert.Equal(t, "rbtree", attrs["service.name"])
	assert.Equal(t, "v0.3.0", attrs["service.version"])
	assert.Equal(t, "ci", attrs["deployment.environment"])
	assert.Equal(t, "bench", attrs["app.mode"])
}

func TestSampler(t *testing.T) {
	t.Parallel()

	root := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		// The ratio sampler looks at the low eight bytes only.
		TraceID: trace.TraceID{8: 0xff, 9: 0xff, 10: 0xff, 11: 0xff, 12: 0xff, 13: 0xff, 14: 0xff, 15: 0xff},
		Name:    "workload.bench",
	}

	assert.Equal(t, sdktrace.RecordAndSample, sampler(0).ShouldSample(root).Decision)
	assert.Equal(t, sdktrace.Drop, sampler(1e-9).ShouldSample(root).Decision)
}

func TestExportInterval(t *testing.T) {
	t.Parallel()

	assert.Equal(t, benchExportInterval, exportInterval(ModeBench))
	assert.Equal(t, cliExportInterval, exportInterval(ModeCLI))
}

func TestNoopProvidersWithoutEndpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	res, err := newResource(ctx, DefaultConfig())
	require.NoError(t, err)

	tp, stopTraces, err := newTracerProvider(ctx, DefaultConfig(), res)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	_, stopMetrics, err := newMeterProvider(ctx, DefaultConfig(), res)
	require.NoError(t, err)
	require.NoError(t, stopTraces(ctx))
	require.NoError(t, stopMetrics(ctx))
}
