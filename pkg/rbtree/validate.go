package rbtree

import (
	"errors"
	"fmt"
)

// ErrInvariant is wrapped by every error reported by Validate.
var ErrInvariant = errors.New("red-black invariant violated")

// Stats describes the shape of a tree.
type Stats struct {
	// Size is the number of nodes.
	Size int
	// Height is the number of nodes on the longest root-to-leaf path.
	Height int
	// BlackHeight is the number of black nodes on any root-to-leaf path.
	BlackHeight int
}

// Stats measures the tree.
func (tree *Tree[K, V]) Stats() Stats {
	stats := Stats{Size: tree.count}
	if tree.root == 0 {
		return stats
	}

	alloc := tree.storage()

	for cursor := tree.root; cursor != 0; cursor = alloc[cursor].left {
		if alloc[cursor].color == Black {
			stats.BlackHeight++
		}
	}

	type frame struct {
		idx   uint32
		depth int
	}

	stack := []frame{{idx: tree.root, depth: 1}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stats.Height = max(stats.Height, top.depth)

		if left := alloc[top.idx].left; left != 0 {
			stack = append(stack, frame{idx: left, depth: top.depth + 1})
		}

		if right := alloc[top.idx].right; right != 0 {
			stack = append(stack, frame{idx: right, depth: top.depth + 1})
		}
	}

	return stats
}

// Validate checks the red-black and binary search tree invariants together
// with the consistency of the parent links and of the element count.
func (tree *Tree[K, V]) Validate() error {
	if tree.root == 0 {
		if tree.count != 0 {
			return fmt.Errorf("%w: empty tree reports %d elements", ErrInvariant, tree.count)
		}

		return nil
	}

	alloc := tree.storage()

	if alloc[tree.root].parent != 0 {
		return fmt.Errorf("%w: root has a parent", ErrInvariant)
	}

	if alloc[tree.root].color != Black {
		return fmt.Errorf("%w: root is red", ErrInvariant)
	}

	expectedBlack := -1
	visited := 0

	type frame struct {
		idx   uint32
		black int
	}

	stack := []frame{{idx: tree.root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		if visited > tree.count {
			return fmt.Errorf("%w: more than %d nodes reachable", ErrInvariant, tree.count)
		}

		nd := alloc[top.idx]

		black := top.black
		if nd.color == Black {
			black++
		} else if getColor(nd.parent, alloc) == Red {
			return fmt.Errorf("%w: red node %v has a red parent", ErrInvariant, nd.entry.key)
		}

		for _, child := range [2]uint32{nd.left, nd.right} {
			if child == 0 {
				if expectedBlack < 0 {
					expectedBlack = black
				} else if black != expectedBlack {
					return fmt.Errorf("%w: black height %d below %v, expected %d",
						ErrInvariant, black, nd.entry.key, expectedBlack)
				}

				continue
			}

			if alloc[child].parent != top.idx {
				return fmt.Errorf("%w: child %v of %v links to another parent",
					ErrInvariant, alloc[child].entry.key, nd.entry.key)
			}

			stack = append(stack, frame{idx: child, black: black})
		}
	}

	if visited != tree.count {
		return fmt.Errorf("%w: reached %d nodes, tree reports %d", ErrInvariant, visited, tree.count)
	}

	return tree.validateOrder(alloc)
}

// validateOrder checks that the in-order sequence never decreases.
func (tree *Tree[K, V]) validateOrder(alloc []node[K, V]) error {
	prev := leftmost(tree.root, alloc)

	for cursor := doNext(prev, alloc); cursor != 0; cursor = doNext(cursor, alloc) {
		if tree.compare(alloc[prev].entry.key, alloc[cursor].entry.key) > 0 {
			return fmt.Errorf("%w: key %v precedes %v", ErrInvariant,
				alloc[prev].entry.key, alloc[cursor].entry.key)
		}

		prev = cursor
	}

	return nil
}
