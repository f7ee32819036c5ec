// Package rbtree provides a red-black tree whose nodes live in an arena
// allocator and link to each other by index, plus the allocator itself
// with LZ4-compressed hibernation and sharding.
//
// Trees are not safe for concurrent use; callers serialize access.
package rbtree

import (
	"cmp"
	"errors"
	"iter"
)

// ErrInvalidNode is returned when a node handle does not refer to a live node of the tree.
var ErrInvalidNode = errors.New("node does not belong to the tree")

// Color is the color of a tree node.
type Color bool

// Node colors. The zero value is Red, which is what a freshly allocated node gets.
const (
	Red   Color = false
	Black Color = true
)

// String returns RED or BLACK.
func (c Color) String() string {
	if c == Black {
		return "BLACK"
	}

	return "RED"
}

type entry[K, V any] struct {
	key     K
	payload V
}

type node[K, V any] struct {
	entry               entry[K, V]
	parent, left, right uint32
	color               Color
	gen                 uint32
}

// Tree is a red-black binary search tree.
//
// Equal keys are kept: an inserted key that compares equal to an existing
// one is routed to the left, so the in-order sequence of duplicates follows
// reverse insertion order.
type Tree[K, V any] struct {
	// Nodes allocator.
	allocator *Allocator[K, V]
	compare   func(a, b K) int

	// Root of the tree.
	root uint32

	// Number of nodes under root, including the root.
	count int
}

// New creates an empty tree ordered by the natural order of K.
func New[K cmp.Ordered, V any](allocator *Allocator[K, V]) *Tree[K, V] {
	return NewWithCompare(allocator, cmp.Compare[K])
}

// NewWithCompare creates an empty tree ordered by compare, which returns a
// negative number, zero or a positive number when a < b, a == b, a > b.
func NewWithCompare[K, V any](allocator *Allocator[K, V], compare func(a, b K) int) *Tree[K, V] {
	return &Tree[K, V]{allocator: allocator, compare: compare}
}

func (tree *Tree[K, V]) storage() []node[K, V] {
	if tree.allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	return tree.allocator.storage
}

// Allocator returns the bound nodes allocator.
func (tree *Tree[K, V]) Allocator() *Allocator[K, V] {
	return tree.allocator
}

// Len returns the number of elements in the tree.
func (tree *Tree[K, V]) Len() int {
	return tree.count
}

// Node is a handle to a tree node.
//
// A handle stays valid until its entry is deleted. Deleting a node with two
// children moves the entry of its in-order successor, so handles to that
// successor go stale as well and must be looked up again.
// The zero Node refers to nothing.
type Node[K, V any] struct {
	tree *Tree[K, V]
	idx  uint32
	gen  uint32
}

// IsZero reports whether the handle refers to nothing.
func (n Node[K, V]) IsZero() bool {
	return n.tree == nil || n.idx == 0
}

// Key returns the key of the node.
func (n Node[K, V]) Key() K {
	return n.deref().entry.key
}

// Payload returns the payload of the node.
func (n Node[K, V]) Payload() V {
	return n.deref().entry.payload
}

// SetPayload replaces the payload of the node.
func (n Node[K, V]) SetPayload(payload V) {
	n.deref().entry.payload = payload
}

// Color returns the current color of the node.
func (n Node[K, V]) Color() Color {
	return n.deref().color
}

func (n Node[K, V]) deref() *node[K, V] {
	if n.IsZero() || !n.tree.live(n.idx, n.gen) {
		panic("stale or empty rbtree node handle")
	}

	return &n.tree.storage()[n.idx]
}

func (tree *Tree[K, V]) handle(idx uint32) Node[K, V] {
	return Node[K, V]{tree: tree, idx: idx, gen: tree.storage()[idx].gen}
}

func (tree *Tree[K, V]) live(idx, gen uint32) bool {
	alloc := tree.storage()

	if idx == 0 || int(idx) >= len(alloc) || tree.allocator.gaps[idx] {
		return false
	}

	return alloc[idx].gen == gen
}

// owns reports whether n is a live node of this tree.
func (tree *Tree[K, V]) owns(n Node[K, V]) bool {
	return !n.IsZero() && n.tree == tree && tree.live(n.idx, n.gen)
}

// Search returns a node whose key equals key.
func (tree *Tree[K, V]) Search(key K) (Node[K, V], bool) {
	alloc := tree.storage()
	nodeIdx := tree.root

	for nodeIdx != 0 {
		comp := tree.compare(key, alloc[nodeIdx].entry.key)

		switch {
		case comp == 0:
			return tree.handle(nodeIdx), true
		case comp < 0:
			nodeIdx = alloc[nodeIdx].left
		default:
			nodeIdx = alloc[nodeIdx].right
		}
	}

	return Node[K, V]{}, false
}

// Root returns the root node.
func (tree *Tree[K, V]) Root() (Node[K, V], bool) {
	if tree.root == 0 {
		return Node[K, V]{}, false
	}

	return tree.handle(tree.root), true
}

// Minimum returns the node with the smallest key.
func (tree *Tree[K, V]) Minimum() (Node[K, V], bool) {
	if tree.root == 0 {
		return Node[K, V]{}, false
	}

	return tree.handle(leftmost(tree.root, tree.storage())), true
}

// Maximum returns the node with the largest key.
func (tree *Tree[K, V]) Maximum() (Node[K, V], bool) {
	if tree.root == 0 {
		return Node[K, V]{}, false
	}

	return tree.handle(rightmost(tree.root, tree.storage())), true
}

// Successor returns the node that follows n in key order.
func (tree *Tree[K, V]) Successor(n Node[K, V]) (Node[K, V], bool) {
	if !tree.owns(n) {
		return Node[K, V]{}, false
	}

	next := doNext(n.idx, tree.storage())
	if next == 0 {
		return Node[K, V]{}, false
	}

	return tree.handle(next), true
}

// Predecessor returns the node that precedes n in key order.
func (tree *Tree[K, V]) Predecessor(n Node[K, V]) (Node[K, V], bool) {
	if !tree.owns(n) {
		return Node[K, V]{}, false
	}

	prev := doPrev(n.idx, tree.storage())
	if prev == 0 {
		return Node[K, V]{}, false
	}

	return tree.handle(prev), true
}

// All iterates over the entries in ascending key order.
// The tree must not be modified during the iteration.
func (tree *Tree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if tree.root == 0 {
			return
		}

		alloc := tree.storage()

		for cursor := leftmost(tree.root, alloc); cursor != 0; cursor = doNext(cursor, alloc) {
			if !yield(alloc[cursor].entry.key, alloc[cursor].entry.payload) {
				return
			}
		}
	}
}

// Backward iterates over the entries in descending key order.
// The tree must not be modified during the iteration.
func (tree *Tree[K, V]) Backward() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if tree.root == 0 {
			return
		}

		alloc := tree.storage()

		for cursor := rightmost(tree.root, alloc); cursor != 0; cursor = doPrev(cursor, alloc) {
			if !yield(alloc[cursor].entry.key, alloc[cursor].entry.payload) {
				return
			}
		}
	}
}

// Insert adds a new node holding key and payload and returns its handle.
//
// When the allocator cannot supply a node the tree is left untouched and the
// error wraps ErrAllocatorExhausted or ErrHibernated.
func (tree *Tree[K, V]) Insert(key K, payload V) (Node[K, V], error) {
	nodeIdx, err := tree.allocator.malloc()
	if err != nil {
		return Node[K, V]{}, err
	}

	// malloc may have grown the storage.
	alloc := tree.storage()
	alloc[nodeIdx].entry = entry[K, V]{key: key, payload: payload}
	alloc[nodeIdx].color = Red
	tree.count++

	if tree.root == 0 {
		tree.root = nodeIdx
		alloc[nodeIdx].color = Black

		return tree.handle(nodeIdx), nil
	}

	parent := tree.root

	for {
		if tree.compare(key, alloc[parent].entry.key) <= 0 {
			if alloc[parent].left == 0 {
				alloc[parent].left = nodeIdx

				break
			}

			parent = alloc[parent].left
		} else {
			if alloc[parent].right == 0 {
				alloc[parent].right = nodeIdx

				break
			}

			parent = alloc[parent].right
		}
	}

	alloc[nodeIdx].parent = parent
	tree.rebalanceAfterInsert(nodeIdx)

	return tree.handle(nodeIdx), nil
}

func (tree *Tree[K, V]) rebalanceAfterInsert(nodeIdx uint32) {
	alloc := tree.storage()

	for nodeIdx != tree.root && alloc[alloc[nodeIdx].parent].color == Red {
		parent := alloc[nodeIdx].parent
		// A red parent is never the root, so the grandparent exists.
		grandparent := alloc[parent].parent
		parentIsLeft := parent == alloc[grandparent].left

		uncle := alloc[grandparent].left
		if parentIsLeft {
			uncle = alloc[grandparent].right
		}

		// Red uncle: push the blackness down from the grandparent.
		if getColor(uncle, alloc) == Red {
			alloc[parent].color = Black
			alloc[uncle].color = Black
			alloc[grandparent].color = Red
			nodeIdx = grandparent

			continue
		}

		// Black uncle, inner grandchild: straighten the line first.
		if parentIsLeft && nodeIdx == alloc[parent].right {
			tree.rotateLeft(parent)
			parent = nodeIdx
		} else if !parentIsLeft && nodeIdx == alloc[parent].left {
			tree.rotateRight(parent)
			parent = nodeIdx
		}

		// Black uncle, outer grandchild.
		if parentIsLeft {
			tree.rotateRight(grandparent)
		} else {
			tree.rotateLeft(grandparent)
		}

		alloc[parent].color = Black
		alloc[grandparent].color = Red

		break
	}

	alloc[tree.root].color = Black
}

func doAssert(condition bool) {
	if !condition {
		panic("rbtree internal assertion failed")
	}
}

// Internal node attribute accessors.
func getColor[K, V any](nodeIdx uint32, alloc []node[K, V]) Color {
	if nodeIdx == 0 {
		return Black
	}

	return alloc[nodeIdx].color
}

func isLeftChild[K, V any](nodeIdx uint32, alloc []node[K, V]) bool {
	return nodeIdx == alloc[alloc[nodeIdx].parent].left
}

func isRightChild[K, V any](nodeIdx uint32, alloc []node[K, V]) bool {
	return nodeIdx == alloc[alloc[nodeIdx].parent].right
}

func leftmost[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	for alloc[nodeIdx].left != 0 {
		nodeIdx = alloc[nodeIdx].left
	}

	return nodeIdx
}

func rightmost[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	for alloc[nodeIdx].right != 0 {
		nodeIdx = alloc[nodeIdx].right
	}

	return nodeIdx
}

// Return the minimum node that's larger than N. Return 0 if no such
// node is found.
func doNext[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	if alloc[nodeIdx].right != 0 {
		return leftmost(alloc[nodeIdx].right, alloc)
	}

	for alloc[nodeIdx].parent != 0 {
		if isLeftChild(nodeIdx, alloc) {
			return alloc[nodeIdx].parent
		}

		nodeIdx = alloc[nodeIdx].parent
	}

	return 0
}

// Return the maximum node that's smaller than N. Return 0 if no
// such node is found.
func doPrev[K, V any](nodeIdx uint32, alloc []node[K, V]) uint32 {
	if alloc[nodeIdx].left != 0 {
		return rightmost(alloc[nodeIdx].left, alloc)
	}

	for alloc[nodeIdx].parent != 0 {
		if isRightChild(nodeIdx, alloc) {
			return alloc[nodeIdx].parent
		}

		nodeIdx = alloc[nodeIdx].parent
	}

	return 0
}
