package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when accessing a mapping whose last reference was released.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidOffset is returned for negative offsets.
	ErrInvalidOffset = errors.New("mmap: invalid offset")
)

// AccessPattern is a hint to the kernel about how a mapping will be read.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	AccessSequential
	AccessRandom
	AccessWillNeed
)

// Mapping is a reference-counted, read-only memory map of a file.
type Mapping struct {
	path  string
	data  []byte
	refs  atomic.Int64
	unmap func([]byte) error
}

// Open maps the file at path. Empty files produce a valid, empty mapping.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	m := &Mapping{path: path}
	m.refs.Store(1)
	if fi.Size() == 0 {
		return m, nil
	}
	data, unmap, err := osMap(f, int(fi.Size()))
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	m.data = data
	m.unmap = unmap
	return m, nil
}

// Path returns the file the mapping was created from.
func (m *Mapping) Path() string {
	return m.path
}

// Bytes returns the mapped region. The slice is valid while the caller
// holds a reference.
func (m *Mapping) Bytes() []byte {
	if m.refs.Load() <= 0 {
		return nil
	}
	return m.data
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int {
	return len(m.data)
}

// Loaded reports whether the mapping still has live references.
func (m *Mapping) Loaded() bool {
	return m.refs.Load() > 0
}

// Acquire takes an additional reference. It fails once the mapping has
// been fully released.
func (m *Mapping) Acquire() bool {
	for {
		refs := m.refs.Load()
		if refs <= 0 {
			return false
		}
		if m.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// Release drops one reference and unmaps the region when none remain.
func (m *Mapping) Release() error {
	refs := m.refs.Add(-1)
	if refs > 0 {
		return nil
	}
	if refs < 0 {
		m.refs.Store(0)
		return nil
	}
	if m.unmap != nil && m.data != nil {
		return m.unmap(m.data)
	}
	return nil
}

// Close releases the opener's reference. It is the same as Release and
// exists so a Mapping satisfies io.Closer.
func (m *Mapping) Close() error {
	return m.Release()
}

// Advise passes an access-pattern hint to the kernel.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if !m.Loaded() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if !m.Loaded() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
