package skiplist

import (
	"encoding/binary"
	"fmt"
	"io"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

var zeroBlock [BlockSize]byte

func (c *countingWriter) pad(n int64) error {
	for n > 0 {
		chunk := min(n, BlockSize)
		if _, err := c.Write(zeroBlock[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Writer appends posting lists to a docs stream and, when recordSize is
// non-zero, their value records to a parallel value stream. Offsets are
// relative to the start of the streams, so a Writer must be the only
// producer of both.
type Writer struct {
	docs       *countingWriter
	values     *countingWriter
	recordSize int
	ordinal    uint64
	scratch    []byte
}

// NewWriter creates a writer. values may be nil when recordSize is zero.
func NewWriter(docs io.Writer, values io.Writer, recordSize int) (*Writer, error) {
	if recordSize < 0 || recordSize > wordsPerBlock {
		return nil, fmt.Errorf("skiplist: invalid record size %d", recordSize)
	}
	if recordSize > 0 && values == nil {
		return nil, fmt.Errorf("skiplist: record size %d requires a value stream", recordSize)
	}
	w := &Writer{
		docs:       &countingWriter{w: docs},
		recordSize: recordSize,
		scratch:    make([]byte, BlockSize),
	}
	if values != nil {
		w.values = &countingWriter{w: values}
	}
	return w, nil
}

// Offset is the docs stream position the next list will start at, before
// any alignment.
func (w *Writer) Offset() int64 {
	return w.docs.n
}

// RecordSize is the number of value words stored per key.
func (w *Writer) RecordSize() int {
	return w.recordSize
}

// Pad aligns the docs stream to the next block boundary.
func (w *Writer) Pad() error {
	if rem := w.docs.n % BlockSize; rem != 0 {
		return w.docs.pad(BlockSize - rem)
	}
	return nil
}

// WriteData writes keys[offset:offset+length] as one list and returns the
// docs stream offset of its root block. values holds recordSize words per
// key, parallel to keys. Keys must be strictly increasing.
func (w *Writer) WriteData(keys []uint64, values []uint64, offset, length int) (int64, error) {
	if offset < 0 || length < 0 || offset+length > len(keys) {
		return 0, fmt.Errorf("skiplist: range [%d, %d) out of bounds for %d keys", offset, offset+length, len(keys))
	}
	if w.recordSize > 0 && len(values) < (offset+length)*w.recordSize {
		return 0, fmt.Errorf("skiplist: %d value words for %d keys of record size %d", len(values), offset+length, w.recordSize)
	}
	keys = keys[offset : offset+length]
	if w.recordSize > 0 {
		values = values[offset*w.recordSize : (offset+length)*w.recordSize]
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return 0, fmt.Errorf("skiplist: keys not strictly increasing at %d (%d <= %d)", i, keys[i], keys[i-1])
		}
	}

	total := numBlocks(len(keys))
	if total == 1 {
		size := int64(HeaderSize + len(keys)*wordSize)
		if rem := w.docs.n % BlockSize; rem+size > BlockSize {
			if err := w.Pad(); err != nil {
				return 0, err
			}
		}
	} else if err := w.Pad(); err != nil {
		return 0, err
	}

	root := w.docs.n
	for b := 0; b < total; b++ {
		if err := w.writeBlock(keys, values, b, total); err != nil {
			return 0, err
		}
	}
	return root, nil
}

func (w *Writer) writeBlock(keys, values []uint64, b, total int) error {
	start, end := blockRange(b, len(keys))
	np := pointerCount(b, total)

	buf := w.scratch
	clear(buf)
	binary.LittleEndian.PutUint16(buf[0:], uint16(end-start))
	var flags uint8
	if b == total-1 {
		flags |= FlagEndOfBlock
	}
	if w.recordSize == 0 {
		flags |= FlagCompact
	}
	buf[2] = flags
	buf[3] = uint8(np)
	binary.LittleEndian.PutUint32(buf[4:], uint32(w.recordSize))
	binary.LittleEndian.PutUint64(buf[8:], w.ordinal)

	pos := HeaderSize
	for i := 0; i < np; i++ {
		_, tEnd := blockRange(b+stride(i), len(keys))
		binary.LittleEndian.PutUint64(buf[pos:], keys[tEnd-1])
		pos += wordSize
	}
	for _, k := range keys[start:end] {
		binary.LittleEndian.PutUint64(buf[pos:], k)
		pos += wordSize
	}

	// Multi-block lists occupy whole blocks so pointer targets are computable.
	size := pos
	if total > 1 {
		size = BlockSize
	}
	if _, err := w.docs.Write(buf[:size]); err != nil {
		return fmt.Errorf("writing block %d: %w", b, err)
	}
	if w.recordSize > 0 {
		if err := w.writeValues(values[start*w.recordSize : end*w.recordSize]); err != nil {
			return fmt.Errorf("writing values of block %d: %w", b, err)
		}
	} else {
		w.ordinal += uint64(end - start)
	}
	return nil
}

func (w *Writer) writeValues(values []uint64) error {
	rpb := uint64(recordsPerValueBlock(w.recordSize))
	slack := int64(BlockSize - int(rpb)*w.recordSize*wordSize)
	rec := w.scratch[:w.recordSize*wordSize]
	for i := 0; i < len(values); i += w.recordSize {
		for j := 0; j < w.recordSize; j++ {
			binary.LittleEndian.PutUint64(rec[j*wordSize:], values[i+j])
		}
		if _, err := w.values.Write(rec); err != nil {
			return err
		}
		w.ordinal++
		if w.ordinal%rpb == 0 && slack > 0 {
			if err := w.values.pad(slack); err != nil {
				return err
			}
		}
	}
	return nil
}
