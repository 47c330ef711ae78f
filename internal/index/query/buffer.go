// Package query holds the per-query building blocks shared by the index
// readers and the execution engine: the candidate buffer that filter steps
// narrow down in place, filter steps themselves, query heads and the
// time budget.
package query

// Buffer is a reusable array of sorted document ids that filter steps
// narrow in place. Filtering walks a read cursor over the data and copies
// retained ids down to a write cursor, so no allocation happens per step.
type Buffer struct {
	data  []uint64
	end   int
	read  int
	write int
}

// NewBuffer allocates a buffer holding at most capacity ids.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]uint64, capacity)}
}

// NewBufferOf returns a buffer preloaded with ids. The ids must be sorted.
func NewBufferOf(ids ...uint64) *Buffer {
	b := &Buffer{data: make([]uint64, len(ids))}
	copy(b.data, ids)
	b.end = len(ids)
	return b
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.end = 0
	b.read = 0
	b.write = 0
}

// Capacity is the maximum number of ids the buffer holds.
func (b *Buffer) Capacity() int { return len(b.data) }

// Size is the number of ids currently held.
func (b *Buffer) Size() int { return b.end }

// IsEmpty reports whether the buffer holds no ids.
func (b *Buffer) IsEmpty() bool { return b.end == 0 }

// IsFull reports whether no more ids can be appended.
func (b *Buffer) IsFull() bool { return b.end >= len(b.data) }

// Data returns the held ids. The slice aliases the buffer.
func (b *Buffer) Data() []uint64 { return b.data[:b.end] }

// Copy returns the held ids in a fresh slice.
func (b *Buffer) Copy() []uint64 {
	out := make([]uint64, b.end)
	copy(out, b.data[:b.end])
	return out
}

// Free returns the unused tail for a producer to fill; Commit records how
// many ids were written into it.
func (b *Buffer) Free() []uint64 { return b.data[b.end:] }

// Commit extends the held range by n ids previously written into Free().
func (b *Buffer) Commit(n int) {
	b.end += n
	if b.end > len(b.data) {
		b.end = len(b.data)
	}
}

// Append adds id at the end; it reports false when the buffer is full.
func (b *Buffer) Append(id uint64) bool {
	if b.end >= len(b.data) {
		return false
	}
	b.data[b.end] = id
	b.end++
	return true
}

// StartFiltering rewinds the filter cursors.
func (b *Buffer) StartFiltering() {
	b.read = 0
	b.write = 0
}

// HasMore reports whether the read cursor has ids left to examine.
func (b *Buffer) HasMore() bool { return b.read < b.end }

// CurrentValue is the id under the read cursor.
func (b *Buffer) CurrentValue() uint64 { return b.data[b.read] }

// RetainAndAdvance keeps the current id and moves on. It reports whether
// more ids remain.
func (b *Buffer) RetainAndAdvance() bool {
	if b.read != b.write {
		b.data[b.write] = b.data[b.read]
	}
	b.write++
	b.read++
	return b.read < b.end
}

// RejectAndAdvance drops the current id and moves on. It reports whether
// more ids remain.
func (b *Buffer) RejectAndAdvance() bool {
	b.read++
	return b.read < b.end
}

// RetainRemaining keeps every id not yet examined.
func (b *Buffer) RetainRemaining() {
	for b.HasMore() {
		b.RetainAndAdvance()
	}
}

// RejectRemaining drops every id not yet examined.
func (b *Buffer) RejectRemaining() {
	b.read = b.end
}

// FinalizeFiltering truncates the buffer to the retained ids and rewinds
// the cursors. Ids the read cursor never reached are kept.
func (b *Buffer) FinalizeFiltering() {
	b.RetainRemaining()
	b.end = b.write
	b.read = 0
	b.write = 0
}
