package rbtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// ErrCompress is returned when a column cannot be compressed.
var ErrCompress = errors.New("lz4 compression failed")

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// CompressUInt32Slice compresses a slice of uint32-s with LZ4.
func CompressUInt32Slice(data []uint32) ([]byte, error) {
	buf := new(bytes.Buffer)

	err := binary.Write(buf, binary.LittleEndian, data)
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}

	compressed := make([]byte, lz4.CompressBlockBound(buf.Len()))

	written, err := lz4.CompressBlock(buf.Bytes(), compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompress, err)
	}

	// Incompressible columns are kept raw; a block exactly as long as the
	// encoded column is therefore always raw.
	if written == 0 || written >= buf.Len() {
		return buf.Bytes(), nil
	}

	return compressed[:written], nil
}

// DecompressUInt32Slice decompresses a slice of uint32-s previously compressed
// with CompressUInt32Slice. `result` must be preallocated.
func DecompressUInt32Slice(data []byte, result []uint32) error {
	raw := make([]byte, len(result)*uint32ByteSize)

	if len(data) == len(raw) {
		copy(raw, data)
	} else {
		_, err := lz4.UncompressBlock(data, raw)
		if err != nil {
			return fmt.Errorf("lz4 decompress: %w", err)
		}
	}

	err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, result)
	if err != nil {
		return fmt.Errorf("decode column: %w", err)
	}

	return nil
}

// DeltaEncodeUInt32Slice replaces each element with the difference from its
// predecessor, in place. The first element is left unchanged.
func DeltaEncodeUInt32Slice(data []uint32) {
	for i := len(data) - 1; i > 0; i-- {
		data[i] -= data[i-1]
	}
}

// DeltaDecodeUInt32Slice restores the values produced by DeltaEncodeUInt32Slice.
func DeltaDecodeUInt32Slice(data []uint32) {
	for i := 1; i < len(data); i++ {
		data[i] += data[i-1]
	}
}
