package skiplist

import (
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
)

// File reads posting lists out of a docs region and its value region. Both
// are typically memory mapped; File never copies them.
type File struct {
	docs       []byte
	values     []byte
	recordSize int
}

// NewFile wraps the regions written by a Writer with the same record size.
func NewFile(docs, values []byte, recordSize int) *File {
	return &File{docs: docs, values: values, recordSize: recordSize}
}

// RecordSize is the number of value words stored per key.
func (f *File) RecordSize() int {
	return f.recordSize
}

// List returns a reader for the list rooted at root. Lists are cheap and
// hold the cursors of a single query; they must not be shared.
func (f *File) List(root int64) *List {
	return &List{file: f, root: root, cursor: root, scan: root}
}

type header struct {
	off          int64
	numKeys      int
	flags        uint8
	numPointers  int
	recordSize   int
	valueOrdinal uint64
}

func (f *File) header(off int64) (header, error) {
	if off < 0 || off+HeaderSize > int64(len(f.docs)) {
		return header{}, fmt.Errorf("%w: header at %d outside %d bytes", ErrCorrupt, off, len(f.docs))
	}
	d := f.docs[off:]
	h := header{
		off:          off,
		numKeys:      int(binary.LittleEndian.Uint16(d[0:])),
		flags:        d[2],
		numPointers:  int(d[3]),
		recordSize:   int(binary.LittleEndian.Uint32(d[4:])),
		valueOrdinal: binary.LittleEndian.Uint64(d[8:]),
	}
	end := off + int64(HeaderSize+(h.numPointers+h.numKeys)*wordSize)
	if end > int64(len(f.docs)) || end-off > BlockSize {
		return header{}, fmt.Errorf("%w: block at %d with %d keys and %d pointers", ErrCorrupt, off, h.numKeys, h.numPointers)
	}
	return h, nil
}

func (f *File) key(h header, i int) uint64 {
	return binary.LittleEndian.Uint64(f.docs[h.off+int64(HeaderSize+(h.numPointers+i)*wordSize):])
}

func (f *File) pointer(h header, i int) uint64 {
	return binary.LittleEndian.Uint64(f.docs[h.off+int64(HeaderSize+i*wordSize):])
}

func (h header) last() bool         { return h.flags&FlagEndOfBlock != 0 }
func (h header) compact() bool      { return h.flags&FlagCompact != 0 }
func (h header) target(i int) int64 { return h.off + int64(stride(i))*BlockSize }
func (h header) next() int64        { return h.off + BlockSize }

// search returns the first index in [from, numKeys) whose key is >= v.
func (f *File) search(h header, from int, v uint64) int {
	return from + sort.Search(h.numKeys-from, func(i int) bool {
		return f.key(h, from+i) >= v
	})
}

// List is a per-query reader over one posting list. Sequential scans and
// set filtering keep independent cursors.
type List struct {
	file   *File
	root   int64
	cursor int64

	scan     int64
	scanPos  int
	scanDone bool

	valueBlockReads int
}

// Root is the offset of the list's first block.
func (l *List) Root() int64 { return l.root }

// HasMore reports whether GetKeys has keys left to emit.
func (l *List) HasMore() bool { return !l.scanDone }

// ValueBlockReads counts value blocks touched by GetAllValues.
func (l *List) ValueBlockReads() int { return l.valueBlockReads }

// GetKeys appends keys to buf until it is full or the list is exhausted,
// continuing where the previous call stopped.
func (l *List) GetKeys(buf *query.Buffer) error {
	for !l.scanDone && !buf.IsFull() {
		h, err := l.file.header(l.scan)
		if err != nil {
			l.scanDone = true
			return err
		}
		free := buf.Free()
		n := min(len(free), h.numKeys-l.scanPos)
		for i := 0; i < n; i++ {
			free[i] = l.file.key(h, l.scanPos+i)
		}
		buf.Commit(n)
		l.scanPos += n
		if l.scanPos < h.numKeys {
			continue
		}
		if h.last() {
			l.scanDone = true
		} else {
			l.scan = h.next()
			l.scanPos = 0
		}
	}
	return nil
}

// RetainData keeps the ids of buf that are present in the list.
func (l *List) RetainData(buf *query.Buffer) error {
	return l.filter(buf, true)
}

// RejectData keeps the ids of buf that are absent from the list.
func (l *List) RejectData(buf *query.Buffer) error {
	return l.filter(buf, false)
}

// filter walks the list once for a sorted buffer. The block cursor is kept
// across calls so successive batches of ascending ids resume where the
// last one ended; a batch that starts below the cursor block restarts at
// the root.
func (l *List) filter(buf *query.Buffer, retain bool) error {
	buf.StartFiltering()
	defer buf.FinalizeFiltering()
	if !buf.HasMore() {
		return nil
	}

	h, err := l.file.header(l.cursor)
	if err != nil {
		return err
	}
	if h.numKeys == 0 || buf.CurrentValue() < l.file.key(h, 0) {
		if l.cursor != l.root {
			l.cursor = l.root
			if h, err = l.file.header(l.root); err != nil {
				return err
			}
		}
	}

	keep, drop := (*query.Buffer).RetainAndAdvance, (*query.Buffer).RejectAndAdvance
	if !retain {
		keep, drop = drop, keep
	}

	for buf.HasMore() {
		if h.numKeys == 0 {
			break
		}
		v := buf.CurrentValue()
		if maxKey := l.file.key(h, h.numKeys-1); maxKey < v {
			if h.last() {
				break
			}
			nextOff := h.next()
			for i := h.numPointers - 1; i >= 0; i-- {
				if l.file.pointer(h, i) < v {
					nextOff = h.target(i)
					break
				}
			}
			if h, err = l.file.header(nextOff); err != nil {
				return err
			}
			l.cursor = nextOff
			continue
		}

		pos := 0
		maxKey := l.file.key(h, h.numKeys-1)
		for buf.HasMore() {
			v = buf.CurrentValue()
			if v > maxKey {
				break
			}
			pos = l.file.search(h, pos, v)
			if l.file.key(h, pos) == v {
				keep(buf)
			} else {
				drop(buf)
			}
		}
	}

	// The list is exhausted; what remains is absent from it.
	if retain {
		buf.RejectRemaining()
	} else {
		buf.RetainRemaining()
	}
	return nil
}

// GetAllValues looks up the value records of keys, which need not be
// sorted. out receives RecordSize words per key; absent keys get zeros.
// Each value block is read at most once per call.
func (l *List) GetAllValues(keys []uint64, out []uint64) error {
	rs := l.file.recordSize
	if len(out) < len(keys)*rs {
		return fmt.Errorf("skiplist: output of %d words for %d keys of record size %d", len(out), len(keys), rs)
	}
	clear(out[:len(keys)*rs])
	if rs == 0 || len(keys) == 0 {
		return nil
	}

	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		switch {
		case keys[a] < keys[b]:
			return -1
		case keys[a] > keys[b]:
			return 1
		}
		return 0
	})

	type hit struct {
		index   int
		ordinal uint64
	}
	hits := make([]hit, 0, len(keys))

	off := l.root
	h, err := l.file.header(off)
	if err != nil {
		return err
	}
	if h.compact() {
		return nil
	}
	pos := 0
walk:
	for _, idx := range order {
		v := keys[idx]
		for h.numKeys == 0 || l.file.key(h, h.numKeys-1) < v {
			if h.numKeys == 0 || h.last() {
				break walk
			}
			nextOff := h.next()
			for i := h.numPointers - 1; i >= 0; i-- {
				if l.file.pointer(h, i) < v {
					nextOff = h.target(i)
					break
				}
			}
			if h, err = l.file.header(nextOff); err != nil {
				return err
			}
			pos = 0
		}
		pos = l.file.search(h, pos, v)
		if l.file.key(h, pos) == v {
			hits = append(hits, hit{index: idx, ordinal: h.valueOrdinal + uint64(pos)})
		}
	}

	rpb := uint64(recordsPerValueBlock(rs))
	var block []byte
	current := ^uint64(0)
	for _, hh := range hits {
		vb := hh.ordinal / rpb
		if vb != current {
			start := int64(vb) * BlockSize
			if start >= int64(len(l.file.values)) {
				return fmt.Errorf("%w: value block %d outside %d bytes", ErrCorrupt, vb, len(l.file.values))
			}
			block = l.file.values[start:min(start+BlockSize, int64(len(l.file.values)))]
			current = vb
			l.valueBlockReads++
		}
		rec := int((hh.ordinal % rpb) * uint64(rs*wordSize))
		if rec+rs*wordSize > len(block) {
			return fmt.Errorf("%w: value record %d truncated", ErrCorrupt, hh.ordinal)
		}
		for j := 0; j < rs; j++ {
			out[hh.index*rs+j] = binary.LittleEndian.Uint64(block[rec+j*wordSize:])
		}
	}
	return nil
}

// Contains reports whether key is present in the list.
func (l *List) Contains(key uint64) (bool, error) {
	buf := query.NewBufferOf(key)
	probe := &List{file: l.file, root: l.root, cursor: l.root}
	if err := probe.RetainData(buf); err != nil {
		return false, err
	}
	return buf.Size() == 1, nil
}
