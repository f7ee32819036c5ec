package rbtree

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Allocation errors.
var (
	// ErrAllocatorExhausted is returned when no further node can be allocated.
	ErrAllocatorExhausted = errors.New("node allocator exhausted")
	// ErrHibernated is returned when a mutating operation hits a hibernated allocator.
	ErrHibernated = errors.New("allocator is hibernated")
)

// growCapacityNumerator and growCapacityDenominator define the 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// maxNodeIndex is the largest index the allocator hands out.
const maxNodeIndex = math.MaxUint32 - 1

// Hibernated columns, in storage order.
const (
	columnParent = iota
	columnLeft
	columnRight
	columnColor
	columnGen
	columnCount
)

// Allocator owns the storage of the nodes of one or more trees.
//
// Index 0 is reserved and stands for the absent node in every link, so the
// zero value of a link is always "no child" or "no parent".
type Allocator[K, V any] struct {
	storage []node[K, V]
	gaps    map[uint32]bool

	hibernatedData       [columnCount][]byte
	hibernatedGaps       []byte
	parked               []entry[K, V]
	hibernatedStorageLen int
	hibernatedGapsLen    int

	// HibernationThreshold is the minimal storage size which Hibernate compresses.
	HibernationThreshold int

	// Limit caps the number of live nodes. Zero means the uint32 index space.
	Limit int
}

// NewAllocator creates a new allocator for tree nodes.
func NewAllocator[K, V any]() *Allocator[K, V] {
	return &Allocator[K, V]{
		storage: []node[K, V]{},
		gaps:    map[uint32]bool{},
	}
}

// Size returns the currently allocated size, the reserved node included.
func (allocator *Allocator[K, V]) Size() int {
	return len(allocator.storage)
}

// Used returns the number of nodes contained in the allocator, the reserved node included.
func (allocator *Allocator[K, V]) Used() int {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	return len(allocator.storage) - len(allocator.gaps)
}

// Hibernated reports whether the storage is currently compressed.
func (allocator *Allocator[K, V]) Hibernated() bool {
	return allocator.storage == nil
}

// CompressedSize returns the number of bytes held by the compressed columns
// of a hibernated allocator, zero otherwise. Parked keys and payloads are not counted.
func (allocator *Allocator[K, V]) CompressedSize() int {
	size := len(allocator.hibernatedGaps)
	for _, column := range allocator.hibernatedData {
		size += len(column)
	}

	return size
}

// live returns the number of nodes handed out and not freed yet.
func (allocator *Allocator[K, V]) live() int {
	if len(allocator.storage) == 0 {
		return 0
	}

	return len(allocator.storage) - len(allocator.gaps) - 1
}

func (allocator *Allocator[K, V]) malloc() (uint32, error) {
	if allocator.storage == nil {
		return 0, ErrHibernated
	}

	if allocator.Limit > 0 && allocator.live() >= allocator.Limit {
		return 0, fmt.Errorf("%w: limit of %d nodes reached", ErrAllocatorExhausted, allocator.Limit)
	}

	if len(allocator.gaps) > 0 {
		var idx uint32

		for idx = range allocator.gaps {
			break
		}

		delete(allocator.gaps, idx)

		return idx, nil
	}

	nodeLen := len(allocator.storage)
	if nodeLen == 0 {
		// Zero is reserved.
		allocator.storage = append(allocator.storage, node[K, V]{})
		nodeLen = 1
	}

	if uint64(nodeLen) > maxNodeIndex {
		return 0, fmt.Errorf("%w: uint32 index space is full", ErrAllocatorExhausted)
	}

	allocator.storage = append(allocator.storage, node[K, V]{})

	return uint32(nodeLen), nil
}

func (allocator *Allocator[K, V]) free(idx uint32) {
	if allocator.storage == nil {
		panic("hibernated allocators cannot be used")
	}

	if idx == 0 {
		panic("node #0 is special and cannot be deallocated")
	}

	_, exists := allocator.gaps[idx]
	doAssert(!exists)

	gen := allocator.storage[idx].gen + 1
	allocator.storage[idx] = node[K, V]{gen: gen}
	allocator.gaps[idx] = true
}

// Hibernate compresses the allocated memory.
//
// The link, color and generation columns are deinterleaved and compressed
// with LZ4 in parallel; keys and payloads are parked as they are.
func (allocator *Allocator[K, V]) Hibernate() error {
	if allocator.hibernatedStorageLen > 0 {
		panic("cannot hibernate an already hibernated Allocator")
	}

	if allocator.storage == nil || len(allocator.storage) < allocator.HibernationThreshold {
		return nil
	}

	allocator.hibernatedStorageLen = len(allocator.storage)
	if allocator.hibernatedStorageLen == 0 {
		allocator.storage = nil

		return nil
	}

	buffers := [columnCount][]uint32{}

	for idx := range buffers {
		buffers[idx] = make([]uint32, len(allocator.storage))
	}

	allocator.parked = make([]entry[K, V], len(allocator.storage))

	// We deinterleave to achieve a better compression ratio.
	for idx, nd := range allocator.storage {
		allocator.parked[idx] = nd.entry
		buffers[columnParent][idx] = nd.parent
		buffers[columnLeft][idx] = nd.left
		buffers[columnRight][idx] = nd.right
		buffers[columnGen][idx] = nd.gen

		if nd.color == Black {
			buffers[columnColor][idx] = 1
		}
	}

	gaps := make([]uint32, 0, len(allocator.gaps))
	for idx := range allocator.gaps {
		gaps = append(gaps, idx)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(len(buffers) + 1)

	for idx, buffer := range buffers {
		go func(colIdx int, col []uint32) {
			defer wg.Done()

			packed, err := CompressUInt32Slice(col)
			if err != nil {
				record(fmt.Errorf("column %d: %w", colIdx, err))

				return
			}

			allocator.hibernatedData[colIdx] = packed
		}(idx, buffer)
	}

	// Gaps compress far better once sorted and delta-encoded.
	go func() {
		defer wg.Done()

		if len(gaps) == 0 {
			return
		}

		slices.Sort(gaps)
		DeltaEncodeUInt32Slice(gaps)

		packed, err := CompressUInt32Slice(gaps)
		if err != nil {
			record(fmt.Errorf("gaps: %w", err))

			return
		}

		allocator.hibernatedGaps = packed
	}()

	wg.Wait()

	if len(errs) > 0 {
		allocator.hibernatedStorageLen = 0
		allocator.hibernatedData = [columnCount][]byte{}
		allocator.hibernatedGaps = nil
		allocator.parked = nil

		return fmt.Errorf("hibernate: %w", errors.Join(errs...))
	}

	allocator.hibernatedGapsLen = len(gaps)
	allocator.storage = nil
	allocator.gaps = nil

	return nil
}

// Boot performs the opposite of Hibernate() - decompresses and restores the allocated memory.
func (allocator *Allocator[K, V]) Boot() error {
	if allocator.storage == nil && allocator.hibernatedStorageLen == 0 {
		allocator.storage = []node[K, V]{}
		allocator.gaps = map[uint32]bool{}

		return nil
	}

	if allocator.hibernatedStorageLen == 0 {
		// Not hibernated.
		return nil
	}

	buffers := [columnCount][]uint32{}
	gaps := make([]uint32, allocator.hibernatedGapsLen)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	wg.Add(len(buffers) + 1)

	for idx := range buffers {
		go func(colIdx int) {
			defer wg.Done()

			buffers[colIdx] = make([]uint32, allocator.hibernatedStorageLen)

			err := DecompressUInt32Slice(allocator.hibernatedData[colIdx], buffers[colIdx])
			if err != nil {
				record(fmt.Errorf("column %d: %w", colIdx, err))
			}
		}(idx)
	}

	go func() {
		defer wg.Done()

		if len(gaps) == 0 {
			return
		}

		err := DecompressUInt32Slice(allocator.hibernatedGaps, gaps)
		if err != nil {
			record(fmt.Errorf("gaps: %w", err))

			return
		}

		DeltaDecodeUInt32Slice(gaps)
	}()

	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("boot: %w", errors.Join(errs...))
	}

	capSize := (allocator.hibernatedStorageLen * growCapacityNumerator) / growCapacityDenominator
	storage := make([]node[K, V], allocator.hibernatedStorageLen, capSize)

	for idx := range storage {
		nd := &storage[idx]
		nd.entry = allocator.parked[idx]
		nd.parent = buffers[columnParent][idx]
		nd.left = buffers[columnLeft][idx]
		nd.right = buffers[columnRight][idx]
		nd.gen = buffers[columnGen][idx]

		if buffers[columnColor][idx] > 0 {
			nd.color = Black
		}
	}

	allocator.gaps = make(map[uint32]bool, len(gaps))
	for _, idx := range gaps {
		allocator.gaps[idx] = true
	}

	allocator.storage = storage
	allocator.parked = nil
	allocator.hibernatedData = [columnCount][]byte{}
	allocator.hibernatedGaps = nil
	allocator.hibernatedStorageLen = 0
	allocator.hibernatedGapsLen = 0

	return nil
}
