package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/bietje/RBtree/pkg/observability"
	"github.com/bietje/RBtree/pkg/rbtree"
)

// Result describes the tree once every step of a scenario passed.
type Result struct {
	Name    string
	Steps   int
	Ops     int
	InOrder []int64
	Stats   rbtree.Stats
}

// Executor runs scenarios. The zero options give a silent executor.
type Executor struct {
	tracer  trace.Tracer
	metrics *observability.TreeMetrics
	logger  *slog.Logger
	dump    io.Writer
	limit   int
}

// Option configures an Executor.
type Option func(*Executor)

// WithTracer opens one span per scenario and per step.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) { e.tracer = tracer }
}

// WithMetrics records every tree operation.
func WithMetrics(metrics *observability.TreeMetrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// WithLogger logs step progress at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithDump writes the final tree shape of each scenario to w.
func WithDump(w io.Writer) Option {
	return func(e *Executor) { e.dump = w }
}

// WithLimit caps the number of nodes a scenario may allocate.
func WithLimit(limit int) Option {
	return func(e *Executor) { e.limit = limit }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		tracer: nooptrace.NewTracerProvider().Tracer("workload"),
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run executes sc against a fresh tree. Every mutating step is followed by
// a full invariant check.
func (e *Executor) Run(ctx context.Context, sc *Scenario) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "workload.scenario",
		trace.WithAttributes(attribute.String("workload.name", sc.Name)))
	defer span.End()

	ctx = observability.WithTree(ctx, sc.Name)

	alloc := rbtree.NewAllocator[int64, int]()
	alloc.Limit = e.limit
	tree := rbtree.New[int64, int](alloc)

	defer func() {
		e.addNodes(ctx, sc.Name, -int64(tree.Teardown()))
	}()

	result := Result{Name: sc.Name, Steps: len(sc.Steps)}

	for idx, step := range sc.Steps {
		ops, err := e.runStep(ctx, sc.Name, tree, idx+1, step)
		result.Ops += ops

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return Result{}, fmt.Errorf("%s: step %d (%s): %w", sc.Name, idx+1, step.Kind(), err)
		}
	}

	if e.dump != nil {
		err := tree.Dump(e.dump)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", sc.Name, err)
		}
	}

	result.InOrder = keysOf(tree)
	result.Stats = tree.Stats()

	e.logger.InfoContext(ctx, "scenario passed",
		"scenario", sc.Name, "steps", result.Steps, "size", result.Stats.Size, "height", result.Stats.Height)

	return result, nil
}

func (e *Executor) runStep(
	ctx context.Context, name string, tree *rbtree.Tree[int64, int], number int, step Step,
) (int, error) {
	kind := step.Kind()

	ctx, span := e.tracer.Start(ctx, "workload.step", trace.WithAttributes(
		attribute.Int("workload.step", number),
		attribute.String("workload.kind", kind),
	))
	defer span.End()

	e.logger.DebugContext(ctx, "step", "scenario", name, "step", number, "kind", kind, "note", step.Note)

	if kind == KindExpect {
		return 0, e.check(tree, step.Expect)
	}

	for done, key := range step.Keys() {
		err := e.apply(ctx, name, tree, kind, key, number)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return done, err
		}
	}

	if kind == KindInsert || kind == KindDelete {
		err := e.timed(ctx, name, observability.OpValidate, tree.Validate)
		if err != nil {
			return len(step.Keys()), err
		}
	}

	return len(step.Keys()), nil
}

func (e *Executor) apply(
	ctx context.Context, name string, tree *rbtree.Tree[int64, int], kind string, key int64, number int,
) error {
	switch kind {
	case KindInsert:
		err := e.timed(ctx, name, observability.OpInsert, func() error {
			_, err := tree.Insert(key, number)

			return err
		})
		if err != nil {
			return fmt.Errorf("insert %d: %w", key, err)
		}

		e.addNodes(ctx, name, 1)
	case KindDelete:
		err := e.timed(ctx, name, observability.OpDelete, func() error {
			if !tree.DeleteKey(key) {
				return ErrKeyNotFound
			}

			return nil
		})
		if err != nil {
			return fmt.Errorf("delete %d: %w", key, err)
		}

		e.addNodes(ctx, name, -1)
	case KindSearch, KindAbsent:
		err := e.timed(ctx, name, observability.OpSearch, func() error {
			if _, found := tree.Search(key); !found {
				return ErrKeyNotFound
			}

			return nil
		})

		switch {
		case kind == KindSearch && err != nil:
			return fmt.Errorf("search %d: %w", key, err)
		case kind == KindAbsent && err == nil:
			return fmt.Errorf("%w: key %d is present", ErrExpectation, key)
		}
	}

	return nil
}

// timed runs op and records its duration and outcome.
func (e *Executor) timed(ctx context.Context, name, op string, fn func() error) error {
	start := time.Now()
	err := fn()

	if e.metrics != nil {
		status := observability.StatusOK

		switch {
		case errors.Is(err, ErrKeyNotFound):
			status = observability.StatusMiss
		case err != nil:
			status = observability.StatusError
		}

		e.metrics.RecordOp(ctx, name, op, status, time.Since(start))
	}

	return err
}

func (e *Executor) addNodes(ctx context.Context, name string, delta int64) {
	if e.metrics != nil && delta != 0 {
		e.metrics.AddNodes(ctx, name, delta)
	}
}

func (e *Executor) check(tree *rbtree.Tree[int64, int], want *Expectation) error {
	if want.Size != nil && *want.Size != tree.Len() {
		return fmt.Errorf("%w: size %d, want %d", ErrExpectation, tree.Len(), *want.Size)
	}

	if want.Root != nil {
		root, found := tree.Root()
		if !found {
			return fmt.Errorf("%w: tree is empty, want root %d", ErrExpectation, *want.Root)
		}

		if root.Key() != *want.Root {
			return fmt.Errorf("%w: root %d, want %d", ErrExpectation, root.Key(), *want.Root)
		}
	}

	if want.InOrder != nil {
		got := keysOf(tree)
		if !slices.Equal(got, want.InOrder) {
			return fmt.Errorf("%w: in-order keys differ (-want +got):\n%s",
				ErrExpectation, LineDiff(formatKeys(want.InOrder), formatKeys(got)))
		}
	}

	return nil
}

func keysOf(tree *rbtree.Tree[int64, int]) []int64 {
	keys := make([]int64, 0, tree.Len())
	for key := range tree.All() {
		keys = append(keys, key)
	}

	return keys
}

func formatKeys(keys []int64) string {
	buf := make([]byte, 0, len(keys)*4)
	for _, key := range keys {
		buf = strconv.AppendInt(buf, key, 10)
		buf = append(buf, '\n')
	}

	return string(buf)
}
