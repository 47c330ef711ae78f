package forward

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/mmap"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

// Reader answers metadata lookups by combined document id. Lookups are
// lock-free; the owner guarantees the mappings outlive every query that
// uses them.
type Reader struct {
	ids   *mmap.Mapping
	meta  *mmap.Mapping
	spans *mmap.Mapping
	count int
}

// Open maps the forward index files in dir.
func Open(dir string) (*Reader, error) {
	var maps []*mmap.Mapping
	release := func() {
		for _, m := range maps {
			m.Close()
		}
	}
	for _, name := range Files() {
		m, err := mmap.Open(filepath.Join(dir, name))
		if err != nil {
			release()
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingFile, name)
			}
			return nil, err
		}
		maps = append(maps, m)
	}
	r := &Reader{ids: maps[0], meta: maps[1], spans: maps[2]}
	if r.ids.Size()%8 != 0 || r.meta.Size() != r.ids.Size()/8*MetaRecordSize {
		release()
		return nil, fmt.Errorf("%w: forward index sizes ids=%d meta=%d", apperrors.ErrCorruptIndex, r.ids.Size(), r.meta.Size())
	}
	r.count = r.ids.Size() / 8
	_ = r.ids.Advise(mmap.AccessRandom)
	_ = r.meta.Advise(mmap.AccessRandom)
	return r, nil
}

// IsLoaded reports whether the backing files are still mapped.
func (r *Reader) IsLoaded() bool {
	return r.ids.Loaded() && r.meta.Loaded() && r.spans.Loaded()
}

// TotalDocCount is the number of documents in the index.
func (r *Reader) TotalDocCount() int {
	return r.count
}

// slot finds the array position of id, ignoring any rank bias.
func (r *Reader) slot(id uint64) (int, bool) {
	id = ids.RemoveRank(id)
	data := r.ids.Bytes()
	if data == nil {
		return 0, false
	}
	i := sort.Search(r.count, func(i int) bool {
		return binary.LittleEndian.Uint64(data[i*8:]) >= id
	})
	if i < r.count && binary.LittleEndian.Uint64(data[i*8:]) == id {
		return i, true
	}
	return 0, false
}

func (r *Reader) record(id uint64) []byte {
	slot, ok := r.slot(id)
	if !ok {
		return nil
	}
	data := r.meta.Bytes()
	if data == nil {
		return nil
	}
	return data[slot*MetaRecordSize : (slot+1)*MetaRecordSize]
}

// Contains reports whether id has a metadata record.
func (r *Reader) Contains(id uint64) bool {
	_, ok := r.slot(id)
	return ok
}

// GetDocMeta returns the metadata word of id, or zero if it is unknown.
func (r *Reader) GetDocMeta(id uint64) ids.DocMeta {
	rec := r.record(id)
	if rec == nil {
		return 0
	}
	return ids.DocMeta(binary.LittleEndian.Uint64(rec[0:]))
}

// GetHTMLFeatures returns the feature mask of id.
func (r *Reader) GetHTMLFeatures(id uint64) ids.HTMLFeature {
	rec := r.record(id)
	if rec == nil {
		return 0
	}
	return ids.HTMLFeature(binary.LittleEndian.Uint32(rec[8:]))
}

// GetDocumentSize returns the token count of id.
func (r *Reader) GetDocumentSize(id uint64) int {
	rec := r.record(id)
	if rec == nil {
		return 0
	}
	return int(binary.LittleEndian.Uint32(rec[12:]))
}

// GetDocumentSpans returns the spans of each id. All spans share one
// backing array so a batch costs two allocations.
func (r *Reader) GetDocumentSpans(docIDs []uint64) ([][]journal.Span, error) {
	out := make([][]journal.Span, len(docIDs))
	data := r.spans.Bytes()
	offsets := make([]uint64, len(docIDs))
	counts := make([]int, len(docIDs))
	total := 0
	for i, id := range docIDs {
		rec := r.record(id)
		if rec == nil {
			counts[i] = -1
			continue
		}
		off := binary.LittleEndian.Uint64(rec[16:])
		if off+4 > uint64(len(data)) {
			return nil, fmt.Errorf("%w: spans offset %d outside %d bytes", apperrors.ErrCorruptIndex, off, len(data))
		}
		n := int(binary.LittleEndian.Uint32(data[off:]))
		if off+4+uint64(n*spanRecordSize) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %d spans at %d overrun %d bytes", apperrors.ErrCorruptIndex, n, off, len(data))
		}
		offsets[i], counts[i] = off, n
		total += n
	}

	arena := make([]journal.Span, total)
	pos := 0
	for i := range docIDs {
		n := counts[i]
		if n < 0 {
			continue
		}
		spans := arena[pos : pos+n : pos+n]
		base := offsets[i] + 4
		for j := range spans {
			rec := data[base+uint64(j*spanRecordSize):]
			spans[j] = journal.Span{
				Code:  rec[0],
				Start: binary.LittleEndian.Uint32(rec[4:]),
				End:   binary.LittleEndian.Uint32(rec[8:]),
			}
		}
		out[i] = spans
		pos += n
	}
	return out, nil
}

// Close releases the mappings.
func (r *Reader) Close() error {
	return errors.Join(r.ids.Close(), r.meta.Close(), r.spans.Close())
}
