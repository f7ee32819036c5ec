package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bietje/RBtree/pkg/observability"
	"github.com/bietje/RBtree/pkg/rbtree"
)

// ErrBenchConfig is returned for unusable bench settings.
var ErrBenchConfig = errors.New("invalid bench configuration")

// cancelCheckInterval is how many operations run between context checks.
const cancelCheckInterval = 1024

// BenchConfig drives a randomized insert/delete workload.
type BenchConfig struct {
	Ops         int
	KeySpace    int
	Seed        int64
	DeleteRatio float64
	// Trees is the number of trees; each is placed on the shard chosen by its name.
	Trees  int
	Shards int
	// CheckEvery validates the touched tree every N operations. Zero disables it.
	CheckEvery int
	// Rounds splits the operations; every round but the last ends with a
	// hibernate and boot cycle of all shards.
	Rounds               int
	HibernationThreshold int
	Limit                int
	// SampleEvery records the tree shape every N operations. Zero picks Ops/100.
	SampleEvery int
}

// Sample is the shape of the largest tree at some point of a bench.
type Sample struct {
	Ops         int
	Size        int
	Height      int
	BlackHeight int
}

// TreeSummary describes one tree at the end of a bench.
type TreeSummary struct {
	Name  string
	Stats rbtree.Stats
}

// BenchResult aggregates a finished bench.
type BenchResult struct {
	Ops     int
	Inserts int
	Deletes int
	Misses  int
	// Rejected counts inserts refused by the allocator limit.
	Rejected int
	Checks   int
	Rounds   int
	Elapsed  time.Duration
	Trees    []TreeSummary
	Samples  []Sample
	Capacity int
	// CompressedBytes is the size of all shards while hibernated, after the last cycle.
	CompressedBytes int
}

// Bench runs the randomized workload. Options shared with Executor apply.
type Bench struct {
	cfg     BenchConfig
	tracer  trace.Tracer
	metrics *observability.TreeMetrics
	logger  *slog.Logger
}

type benchTree struct {
	name string
	tree *rbtree.Tree[int64, int]
}

// NewBench validates cfg and creates a Bench.
func NewBench(cfg BenchConfig, opts ...Option) (*Bench, error) {
	switch {
	case cfg.Ops <= 0:
		return nil, fmt.Errorf("%w: ops %d", ErrBenchConfig, cfg.Ops)
	case cfg.KeySpace <= 0:
		return nil, fmt.Errorf("%w: key space %d", ErrBenchConfig, cfg.KeySpace)
	case cfg.DeleteRatio < 0 || cfg.DeleteRatio >= 1:
		return nil, fmt.Errorf("%w: delete ratio %g", ErrBenchConfig, cfg.DeleteRatio)
	}

	cfg.Trees = max(cfg.Trees, 1)
	cfg.Shards = max(cfg.Shards, 1)
	cfg.Rounds = max(cfg.Rounds, 1)

	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = max(cfg.Ops/100, 1)
	}

	// Bench reuses the executor options.
	holder := NewExecutor(opts...)

	return &Bench{
		cfg:     cfg,
		tracer:  holder.tracer,
		metrics: holder.metrics,
		logger:  holder.logger,
	}, nil
}

// Run executes the workload.
func (b *Bench) Run(ctx context.Context) (BenchResult, error) {
	ctx, span := b.tracer.Start(ctx, "workload.bench", trace.WithAttributes(
		attribute.Int("bench.ops", b.cfg.Ops),
		attribute.Int("bench.trees", b.cfg.Trees),
		attribute.Int("bench.shards", b.cfg.Shards),
	))
	defer span.End()

	sharded := rbtree.NewShardedAllocator[int64, int](b.cfg.Shards, b.cfg.HibernationThreshold, b.cfg.Limit)

	trees := make([]benchTree, b.cfg.Trees)
	for idx := range trees {
		name := fmt.Sprintf("tree-%d", idx)
		trees[idx] = benchTree{name: name, tree: rbtree.New[int64, int](sharded.GetShard(name))}
	}

	rng := rand.New(rand.NewSource(b.cfg.Seed)) //nolint:gosec // reproducible workload, not security.
	result := BenchResult{Rounds: b.cfg.Rounds}
	perRound := (b.cfg.Ops + b.cfg.Rounds - 1) / b.cfg.Rounds
	start := time.Now()

	for round := range b.cfg.Rounds {
		roundCtx, roundSpan := b.tracer.Start(ctx, "workload.bench.round",
			trace.WithAttributes(attribute.Int("bench.round", round)))

		err := b.runRound(roundCtx, rng, trees, &result, min(perRound, b.cfg.Ops-result.Ops))
		if err == nil {
			err = b.checkAll(roundCtx, trees, &result)
		}

		if err == nil && round < b.cfg.Rounds-1 {
			err = b.cycle(roundCtx, sharded, &result)
		}

		roundSpan.End()

		if err != nil {
			return BenchResult{}, fmt.Errorf("round %d: %w", round, err)
		}

		b.logger.DebugContext(ctx, "bench round done", "round", round, "ops", result.Ops)
	}

	result.Elapsed = time.Since(start)

	for _, shard := range sharded.Shards() {
		result.Capacity += shard.Size()
	}

	for _, bt := range trees {
		result.Trees = append(result.Trees, TreeSummary{Name: bt.name, Stats: bt.tree.Stats()})
	}

	b.logger.InfoContext(ctx, "bench finished",
		"ops", result.Ops, "inserts", result.Inserts, "deletes", result.Deletes, "elapsed", result.Elapsed)

	return result, nil
}

func (b *Bench) runRound(
	ctx context.Context, rng *rand.Rand, trees []benchTree, result *BenchResult, ops int,
) error {
	for range ops {
		if result.Ops%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("bench interrupted: %w", err)
			}
		}

		bt := trees[rng.Intn(len(trees))]
		key := rng.Int63n(int64(b.cfg.KeySpace))

		if rng.Float64() < b.cfg.DeleteRatio {
			b.deleteKey(ctx, bt, key, result)
		} else if err := b.insertKey(ctx, bt, key, result); err != nil {
			return err
		}

		result.Ops++

		if b.cfg.CheckEvery > 0 && result.Ops%b.cfg.CheckEvery == 0 {
			if err := b.validate(ctx, bt, result); err != nil {
				return err
			}
		}

		if result.Ops%b.cfg.SampleEvery == 0 {
			result.Samples = append(result.Samples, largest(trees, result.Ops))
		}
	}

	return nil
}

func (b *Bench) insertKey(ctx context.Context, bt benchTree, key int64, result *BenchResult) error {
	start := time.Now()
	_, err := bt.tree.Insert(key, result.Ops)

	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}

	b.record(ctx, bt.name, observability.OpInsert, status, start)

	switch {
	case errors.Is(err, rbtree.ErrAllocatorExhausted):
		result.Rejected++

		return nil
	case err != nil:
		return fmt.Errorf("insert %d into %s: %w", key, bt.name, err)
	}

	result.Inserts++

	if b.metrics != nil {
		b.metrics.AddNodes(ctx, bt.name, 1)
	}

	return nil
}

func (b *Bench) deleteKey(ctx context.Context, bt benchTree, key int64, result *BenchResult) {
	start := time.Now()

	if !bt.tree.DeleteKey(key) {
		result.Misses++
		b.record(ctx, bt.name, observability.OpDelete, observability.StatusMiss, start)

		return
	}

	result.Deletes++
	b.record(ctx, bt.name, observability.OpDelete, observability.StatusOK, start)

	if b.metrics != nil {
		b.metrics.AddNodes(ctx, bt.name, -1)
	}
}

func (b *Bench) validate(ctx context.Context, bt benchTree, result *BenchResult) error {
	ctx = observability.WithTree(ctx, bt.name)
	start := time.Now()
	err := bt.tree.Validate()

	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}

	b.record(ctx, bt.name, observability.OpValidate, status, start)
	result.Checks++

	if err != nil {
		b.logger.ErrorContext(ctx, "invariant violated", "ops", result.Ops, "error", err)

		return fmt.Errorf("%s after %d ops: %w", bt.name, result.Ops, err)
	}

	return nil
}

func (b *Bench) checkAll(ctx context.Context, trees []benchTree, result *BenchResult) error {
	for _, bt := range trees {
		if err := b.validate(ctx, bt, result); err != nil {
			return err
		}
	}

	return nil
}

// cycle hibernates and boots every shard.
func (b *Bench) cycle(ctx context.Context, sharded *rbtree.ShardedAllocator[int64, int], result *BenchResult) error {
	start := time.Now()
	err := sharded.Hibernate()
	b.recordResult(ctx, observability.OpHibernate, err, start)

	if err != nil {
		return fmt.Errorf("hibernate: %w", err)
	}

	result.CompressedBytes = 0
	for _, shard := range sharded.Shards() {
		result.CompressedBytes += shard.CompressedSize()
	}

	start = time.Now()
	err = sharded.Boot()
	b.recordResult(ctx, observability.OpBoot, err, start)

	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	return nil
}

func (b *Bench) recordResult(ctx context.Context, op string, err error, start time.Time) {
	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}

	b.record(ctx, "all", op, status, start)
}

func (b *Bench) record(ctx context.Context, tree, op, status string, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordOp(ctx, tree, op, status, time.Since(start))
	}
}

func largest(trees []benchTree, ops int) Sample {
	sample := Sample{Ops: ops}

	for _, bt := range trees {
		if bt.tree.Len() < sample.Size {
			continue
		}

		stats := bt.tree.Stats()
		sample.Size = stats.Size
		sample.Height = stats.Height
		sample.BlackHeight = stats.BlackHeight
	}

	return sample
}
