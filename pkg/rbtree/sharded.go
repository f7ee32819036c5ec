package rbtree

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
)

// minHibernationThreshold is the minimal reasonable default if division results in 0.
const minHibernationThreshold = 1000

// ShardedAllocator spreads trees over several Allocators selected by name,
// so that each shard can be hibernated and booted independently.
type ShardedAllocator[K, V any] struct {
	shards []*Allocator[K, V]
}

// NewShardedAllocator creates a new ShardedAllocator with n shards. The
// hibernation threshold and the node limit are split evenly between them.
func NewShardedAllocator[K, V any](shardCount, hibernationThreshold, limit int) *ShardedAllocator[K, V] {
	if shardCount <= 0 {
		shardCount = 1
	}

	shards := make([]*Allocator[K, V], shardCount)

	for idx := range shardCount {
		shards[idx] = NewAllocator[K, V]()

		if hibernationThreshold > 0 {
			shards[idx].HibernationThreshold = hibernationThreshold / shardCount
			if shards[idx].HibernationThreshold == 0 {
				shards[idx].HibernationThreshold = minHibernationThreshold
			}
		}

		if limit > 0 {
			shards[idx].Limit = max(limit/shardCount, 1)
		}
	}

	return &ShardedAllocator[K, V]{shards: shards}
}

// GetShard returns the allocator shard for the given name.
func (sa *ShardedAllocator[K, V]) GetShard(name string) *Allocator[K, V] {
	hasher := fnv.New32a()
	hasher.Write([]byte(name))

	return sa.shards[hasher.Sum32()%uint32(len(sa.shards))]
}

// Shards returns all underlying allocators.
func (sa *ShardedAllocator[K, V]) Shards() []*Allocator[K, V] {
	return sa.shards
}

// Hibernate hibernates all shards in parallel, regardless of their thresholds.
func (sa *ShardedAllocator[K, V]) Hibernate() error {
	return sa.each(func(alloc *Allocator[K, V]) error {
		if alloc.Hibernated() {
			return nil
		}

		// Force hibernation even if below threshold by temporarily setting threshold to 0.
		originalThreshold := alloc.HibernationThreshold
		alloc.HibernationThreshold = 0
		err := alloc.Hibernate()
		alloc.HibernationThreshold = originalThreshold

		return err
	})
}

// Boot boots all shards in parallel.
func (sa *ShardedAllocator[K, V]) Boot() error {
	return sa.each(func(alloc *Allocator[K, V]) error {
		return alloc.Boot()
	})
}

func (sa *ShardedAllocator[K, V]) each(fn func(alloc *Allocator[K, V]) error) error {
	errs := make([]error, len(sa.shards))

	wg := sync.WaitGroup{}
	wg.Add(len(sa.shards))

	for idx, shard := range sa.shards {
		go func(shardIdx int, alloc *Allocator[K, V]) {
			defer wg.Done()

			err := fn(alloc)
			if err != nil {
				errs[shardIdx] = fmt.Errorf("shard %d: %w", shardIdx, err)
			}
		}(idx, shard)
	}

	wg.Wait()

	return errors.Join(errs...)
}
