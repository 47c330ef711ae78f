// Package skiplist implements the on-disk posting list format: sorted
// 64-bit keys stored in fixed-size blocks with forward pointers for
// logarithmic skipping, plus an optional parallel stream of fixed-size
// value records addressed by ordinal.
//
// Block layout (little endian):
//
//	[0:2]   number of keys
//	[2]     flags (FlagEndOfBlock, FlagCompact)
//	[3]     number of forward pointers
//	[4:8]   value record size in words
//	[8:16]  value ordinal of the first key
//	[16:..] forward pointers, one word each, holding the highest key of
//	        the target block
//	[..]    keys, one word each
//
// Forward pointer i of a block targets the block 4^i positions further
// down the list. A list of more than one block starts on a block boundary
// and occupies whole blocks; a single-block list is written in place and
// never straddles a block boundary.
package skiplist

import "errors"

const (
	// BlockSize is the size of a docs block and of a value block.
	BlockSize = 4096
	// HeaderSize is the fixed header at the start of every block.
	HeaderSize = 16
	// MaxRootPointers bounds the forward pointers of a list's first block.
	MaxRootPointers = 12
	// MaxNonRootPointers bounds the forward pointers of every other block.
	MaxNonRootPointers = 4

	wordSize      = 8
	wordsPerBlock = BlockSize / wordSize
	headerWords   = HeaderSize / wordSize

	rootCapacity    = wordsPerBlock - headerWords - MaxRootPointers
	nonRootCapacity = wordsPerBlock - headerWords - MaxNonRootPointers
)

const (
	// FlagEndOfBlock marks the last block of a list.
	FlagEndOfBlock uint8 = 1 << iota
	// FlagCompact marks a list without value records.
	FlagCompact
)

// ErrCorrupt is returned when a block header or pointer does not describe
// a valid region of the file.
var ErrCorrupt = errors.New("skiplist: corrupt block")

func stride(i int) int {
	return 1 << (2 * i)
}

// numBlocks is the number of blocks a list of n keys occupies.
func numBlocks(n int) int {
	if n <= rootCapacity {
		return 1
	}
	return 1 + (n-rootCapacity+nonRootCapacity-1)/nonRootCapacity
}

// pointerCount is the number of forward pointers of block b in a list of
// total blocks. The root grows with the list length up to MaxRootPointers;
// other blocks carry pointer i only when b is aligned to stride(i).
func pointerCount(b, total int) int {
	limit := MaxNonRootPointers
	if b == 0 {
		limit = MaxRootPointers
	}
	n := 0
	for n < limit && b%stride(n) == 0 && b+stride(n) < total {
		n++
	}
	return n
}

// blockRange is the half-open key index range stored in block b of a list
// of n keys.
func blockRange(b, n int) (int, int) {
	if b == 0 {
		return 0, min(n, rootCapacity)
	}
	start := rootCapacity + (b-1)*nonRootCapacity
	return start, min(n, start+nonRootCapacity)
}

func recordsPerValueBlock(recordSize int) int {
	if recordSize <= 0 {
		return 0
	}
	return wordsPerBlock / recordSize
}

// valueOffset is the byte position of record ordinal in the value stream.
func valueOffset(ordinal uint64, recordSize int) int64 {
	rpb := uint64(recordsPerValueBlock(recordSize))
	return int64(ordinal/rpb)*BlockSize + int64(ordinal%rpb)*int64(recordSize*wordSize)
}
