package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricOpsTotal    = "rbtree.ops.total"
	metricOpDuration  = "rbtree.op.duration.seconds"
	metricErrorsTotal = "rbtree.errors.total"
	metricNodes       = "rbtree.nodes"

	attrOp     = "op"
	attrStatus = "status"
	attrTree   = "tree"
)

// Operation statuses.
const (
	StatusOK    = "ok"
	StatusMiss  = "miss"
	StatusError = "error"
)

// Tree operation names.
const (
	OpInsert    = "insert"
	OpDelete    = "delete"
	OpSearch    = "search"
	OpValidate  = "validate"
	OpHibernate = "hibernate"
	OpBoot      = "boot"
)

// durationBucketBoundaries covers 100ns to 100ms: single tree operations are
// fast, hibernation of a large allocator is not.
var durationBucketBoundaries = []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2, 1e-1}

// TreeMetrics holds the OTel instruments recording tree operations.
type TreeMetrics struct {
	opsTotal    metric.Int64Counter
	opDuration  metric.Float64Histogram
	errorsTotal metric.Int64Counter
	nodes       metric.Int64UpDownCounter
}

// NewTreeMetrics creates the tree instruments from the given meter.
func NewTreeMetrics(mt metric.Meter) (*TreeMetrics, error) {
	opsTotal, err := mt.Int64Counter(metricOpsTotal,
		metric.WithDescription("Total number of tree operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpsTotal, err)
	}

	opDuration, err := mt.Float64Histogram(metricOpDuration,
		metric.WithDescription("Tree operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpDuration, err)
	}

	errorsTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of failed tree operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	nodes, err := mt.Int64UpDownCounter(metricNodes,
		metric.WithDescription("Number of live tree nodes"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricNodes, err)
	}

	return &TreeMetrics{
		opsTotal:    opsTotal,
		opDuration:  opDuration,
		errorsTotal: errorsTotal,
		nodes:       nodes,
	}, nil
}

// RecordOp records a completed operation on the named tree.
func (tm *TreeMetrics) RecordOp(ctx context.Context, tree, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrTree, tree),
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	tm.opsTotal.Add(ctx, 1, attrs)
	tm.opDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		tm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrTree, tree),
			attribute.String(attrOp, op),
		))
	}
}

// AddNodes moves the live node gauge of the named tree by delta.
func (tm *TreeMetrics) AddNodes(ctx context.Context, tree string, delta int64) {
	tm.nodes.Add(ctx, delta, metric.WithAttributes(attribute.String(attrTree, tree)))
}
