package rbtree_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bietje/RBtree/pkg/rbtree"
)

func TestNewShardedAllocator(t *testing.T) {
	t.Parallel()

	sharded := rbtree.NewShardedAllocator[int, int](4, 20000, 100)
	require.Len(t, sharded.Shards(), 4)

	for _, shard := range sharded.Shards() {
		assert.Equal(t, 5000, shard.HibernationThreshold)
		assert.Equal(t, 25, shard.Limit)
	}

	small := rbtree.NewShardedAllocator[int, int](8, 4, 3)
	for _, shard := range small.Shards() {
		assert.Equal(t, 1000, shard.HibernationThreshold)
		assert.Equal(t, 1, shard.Limit)
	}

	unbounded := rbtree.NewShardedAllocator[int, int](0, 0, 0)
	require.Len(t, unbounded.Shards(), 1)
	assert.Zero(t, unbounded.Shards()[0].HibernationThreshold)
	assert.Zero(t, unbounded.Shards()[0].Limit)
}

func TestShardedGetShardIsStable(t *testing.T) {
	t.Parallel()

	sharded := rbtree.NewShardedAllocator[string, int](8, 0, 0)
	seen := map[*rbtree.Allocator[string, int]]bool{}

	for idx := range 64 {
		name := fmt.Sprintf("tree-%d", idx)
		shard := sharded.GetShard(name)
		assert.Same(t, shard, sharded.GetShard(name))

		seen[shard] = true
	}

	assert.Greater(t, len(seen), 1)
}

func TestShardedHibernateBoot(t *testing.T) {
	t.Parallel()

	sharded := rbtree.NewShardedAllocator[int, string](3, 1_000_000, 0)
	trees := map[string]*rbtree.Tree[int, string]{}

	for idx := range 6 {
		name := fmt.Sprintf("tree-%d", idx)
		tree := rbtree.New[int, string](sharded.GetShard(name))

		for key := range 200 {
			_, err := tree.Insert(key*idx, name)
			require.NoError(t, err)
		}

		trees[name] = tree
	}

	// Below the per-shard threshold, yet forced.
	require.NoError(t, sharded.Hibernate())

	for _, shard := range sharded.Shards() {
		assert.True(t, shard.Hibernated())
	}

	require.NoError(t, sharded.Hibernate())
	require.NoError(t, sharded.Boot())

	for name, tree := range trees {
		assert.False(t, tree.Allocator().Hibernated())
		require.NoError(t, tree.Validate(), name)
		assert.Equal(t, 200, tree.Len())

		for _, payload := range tree.All() {
			assert.Equal(t, name, payload)
		}
	}
}
