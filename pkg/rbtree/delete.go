package rbtree

import "fmt"

// Delete removes n from the tree.
//
// A handle that is zero, stale or obtained from another tree is rejected with
// ErrInvalidNode and the tree is left untouched.
func (tree *Tree[K, V]) Delete(n Node[K, V]) error {
	if tree.allocator.Hibernated() {
		return fmt.Errorf("delete: %w", ErrHibernated)
	}

	if !tree.owns(n) {
		return fmt.Errorf("delete: %w", ErrInvalidNode)
	}

	tree.doDelete(n.idx)

	return nil
}

// DeleteKey removes one node whose key equals key. Returns true iff such a
// node was found and removed; a hibernated allocator always yields false.
func (tree *Tree[K, V]) DeleteKey(key K) bool {
	if tree.allocator.Hibernated() {
		return false
	}

	n, found := tree.Search(key)
	if !found {
		return false
	}

	tree.doDelete(n.idx)

	return true
}

// Delete N from the tree.
func (tree *Tree[K, V]) doDelete(nodeIdx uint32) {
	alloc := tree.storage()

	// Two children: the in-order successor's entry takes over this slot and
	// the successor, which has no left child, is unlinked instead.
	if alloc[nodeIdx].left != 0 && alloc[nodeIdx].right != 0 {
		succ := leftmost(alloc[nodeIdx].right, alloc)
		alloc[nodeIdx].entry = alloc[succ].entry
		alloc[nodeIdx].gen++
		nodeIdx = succ
	}

	doAssert(alloc[nodeIdx].left == 0 || alloc[nodeIdx].right == 0)

	child := alloc[nodeIdx].right
	if child == 0 {
		child = alloc[nodeIdx].left
	}

	switch {
	case child != 0:
		// A single child under a black node is a red leaf.
		doAssert(alloc[nodeIdx].color == Black && alloc[child].color == Red)
		tree.replaceNode(nodeIdx, child)
		alloc[child].color = Black
	case alloc[nodeIdx].color == Red:
		tree.replaceNode(nodeIdx, 0)
	default:
		parent := alloc[nodeIdx].parent
		deficientLeft := parent != 0 && isLeftChild(nodeIdx, alloc)
		tree.replaceNode(nodeIdx, 0)
		tree.rebalanceAfterDelete(parent, deficientLeft)
	}

	tree.allocator.free(nodeIdx)
	tree.count--

	if tree.root != 0 {
		alloc[tree.root].color = Black
	}
}

// rebalanceAfterDelete restores the black height after a black leaf was
// unlinked. The deficient position is the left or right child slot of parent,
// which may be empty, so it is tracked as (parent, side) rather than as a node.
func (tree *Tree[K, V]) rebalanceAfterDelete(parent uint32, deficientLeft bool) {
	alloc := tree.storage()

	for parent != 0 {
		sibling, near, far := tree.deleteRelatives(parent, deficientLeft)

		// Case 1: red sibling. Rotate it above the parent so that the new
		// sibling is black, then look again at the same level.
		if alloc[sibling].color == Red {
			alloc[sibling].color = Black
			alloc[parent].color = Red
			tree.rotateToward(parent, deficientLeft)

			sibling, near, far = tree.deleteRelatives(parent, deficientLeft)
		}

		// Case 2: black sibling with black children. Paint it red, which
		// moves the deficiency to the parent; a red parent absorbs it.
		if getColor(near, alloc) == Black && getColor(far, alloc) == Black {
			alloc[sibling].color = Red

			if alloc[parent].color == Red {
				alloc[parent].color = Black

				return
			}

			deficient := parent
			parent = alloc[deficient].parent

			if parent != 0 {
				deficientLeft = isLeftChild(deficient, alloc)
			}

			continue
		}

		// Case 3: black sibling with a black far nephew and a red near one.
		// Rotate at the sibling so that the red nephew ends up far.
		if getColor(far, alloc) == Black {
			alloc[near].color = Black
			alloc[sibling].color = Red
			tree.rotateToward(sibling, !deficientLeft)

			far = sibling
			sibling = near
		}

		// Case 4: red far nephew. One rotation at the parent resolves it.
		alloc[sibling].color = alloc[parent].color
		alloc[parent].color = Black
		alloc[far].color = Black
		tree.rotateToward(parent, deficientLeft)

		return
	}
}

// deleteRelatives returns the sibling of the deficient slot of parent along
// with the sibling's children nearest to and farthest from that slot.
func (tree *Tree[K, V]) deleteRelatives(parent uint32, deficientLeft bool) (sibling, near, far uint32) {
	alloc := tree.storage()

	if deficientLeft {
		sibling = alloc[parent].right
		doAssert(sibling != 0)

		return sibling, alloc[sibling].left, alloc[sibling].right
	}

	sibling = alloc[parent].left
	doAssert(sibling != 0)

	return sibling, alloc[sibling].right, alloc[sibling].left
}

// rotateToward rotates at nodeIdx so that it descends to the given side.
func (tree *Tree[K, V]) rotateToward(nodeIdx uint32, left bool) {
	if left {
		tree.rotateLeft(nodeIdx)
	} else {
		tree.rotateRight(nodeIdx)
	}
}

func (tree *Tree[K, V]) replaceNode(oldn, newn uint32) {
	alloc := tree.storage()

	switch {
	case alloc[oldn].parent == 0:
		tree.root = newn
	case oldn == alloc[alloc[oldn].parent].left:
		alloc[alloc[oldn].parent].left = newn
	default:
		alloc[alloc[oldn].parent].right = newn
	}

	if newn != 0 {
		alloc[newn].parent = alloc[oldn].parent
	}
}

// Teardown frees every node of the tree, which is empty afterwards and can
// be reused. Nodes are released in post-order with an explicit stack.
// Returns the number of nodes freed.
func (tree *Tree[K, V]) Teardown() int {
	if tree.root == 0 {
		return 0
	}

	alloc := tree.storage()
	stack := make([]uint32, 0, tree.stackHint())
	stack = append(stack, tree.root)

	var (
		last  uint32
		freed int
	)

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		left, right := alloc[top].left, alloc[top].right

		switch {
		// last is 0 before the first free, which an absent right link
		// also holds, so it only marks the right subtree done when set.
		case left != 0 && last != left && (right == 0 || last != right):
			stack = append(stack, left)
		case right != 0 && last != right:
			stack = append(stack, right)
		default:
			stack = stack[:len(stack)-1]
			tree.allocator.free(top)
			last = top
			freed++
		}
	}

	tree.root = 0
	tree.count = 0

	return freed
}

// stackHint bounds the depth of the tree: 2*log2(n+1).
func (tree *Tree[K, V]) stackHint() int {
	depth := 1

	for n := tree.count + 1; n > 1; n >>= 1 {
		depth += 2
	}

	return depth
}
