package reverse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/mmap"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/skiplist"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

// DefaultLexiconCacheSize bounds cached lexicon lookups per reader.
const DefaultLexiconCacheSize = 4096

type cacheKey struct {
	lang string
	term uint64
}

type cacheValue struct {
	entry lexiconEntry
	found bool
}

// Reader serves posting lists of one reverse index. It is safe for
// concurrent use; the Lists it hands out are not.
type Reader struct {
	kind     Kind
	docs     *mmap.Mapping
	values   *mmap.Mapping
	pos      *mmap.Mapping
	lexicons map[string]*mmap.Mapping
	file     *skiplist.File
	cache    *lru.Cache[cacheKey, cacheValue]
}

// Open maps the kind index in dir.
func Open(dir string, kind Kind, cacheSize int) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultLexiconCacheSize
	}
	r := &Reader{kind: kind, lexicons: make(map[string]*mmap.Mapping)}
	opened := false
	defer func() {
		if !opened {
			r.Close()
		}
	}()

	var err error
	if r.docs, err = openMapping(dir, kind.docsFile()); err != nil {
		return nil, err
	}
	var values []byte
	if kind.RecordSize() > 0 {
		if r.values, err = openMapping(dir, kind.valuesFile()); err != nil {
			return nil, err
		}
		if r.pos, err = openMapping(dir, kind.positionsFile()); err != nil {
			return nil, err
		}
		values = r.values.Bytes()
	}

	paths, err := filepath.Glob(kind.LexiconGlob(dir))
	if err != nil {
		return nil, fmt.Errorf("listing %s lexicons: %w", kind, err)
	}
	for _, p := range paths {
		m, err := mmap.Open(p)
		if err != nil {
			return nil, err
		}
		lang := kind.languageOf(p)
		r.lexicons[lang] = m
		if m.Size()%lexiconEntrySize != 0 {
			return nil, fmt.Errorf("%w: lexicon %s has %d bytes", apperrors.ErrCorruptIndex, filepath.Base(p), m.Size())
		}
	}

	r.file = skiplist.NewFile(r.docs.Bytes(), values, kind.RecordSize())
	if r.cache, err = lru.New[cacheKey, cacheValue](cacheSize); err != nil {
		return nil, fmt.Errorf("creating lexicon cache: %w", err)
	}
	_ = r.docs.Advise(mmap.AccessRandom)
	opened = true
	return r, nil
}

func openMapping(dir, name string) (*mmap.Mapping, error) {
	m, err := mmap.Open(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingFile, name)
		}
		return nil, err
	}
	return m, nil
}

// Kind reports which index the reader serves.
func (r *Reader) Kind() Kind { return r.kind }

// Languages lists the languages with a lexicon.
func (r *Reader) Languages() []string {
	langs := make([]string, 0, len(r.lexicons))
	for l := range r.lexicons {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

// IsLoaded reports whether the posting file is still mapped.
func (r *Reader) IsLoaded() bool {
	return r.docs != nil && r.docs.Loaded()
}

func (r *Reader) lookup(lang string, term uint64) (lexiconEntry, bool) {
	key := cacheKey{lang: lang, term: term}
	if v, ok := r.cache.Get(key); ok {
		return v.entry, v.found
	}
	entry, found := r.search(lang, term)
	r.cache.Add(key, cacheValue{entry: entry, found: found})
	return entry, found
}

func (r *Reader) search(lang string, term uint64) (lexiconEntry, bool) {
	m, ok := r.lexicons[lang]
	if !ok {
		return lexiconEntry{}, false
	}
	data := m.Bytes()
	n := len(data) / lexiconEntrySize
	i := sort.Search(n, func(i int) bool {
		return binary.LittleEndian.Uint64(data[i*lexiconEntrySize:]) >= term
	})
	if i >= n || binary.LittleEndian.Uint64(data[i*lexiconEntrySize:]) != term {
		return lexiconEntry{}, false
	}
	rec := data[i*lexiconEntrySize:]
	return lexiconEntry{
		offset: int64(binary.LittleEndian.Uint64(rec[8:])),
		count:  int(binary.LittleEndian.Uint64(rec[16:])),
	}, true
}

// NumDocuments is the cardinality of term's posting list, zero if absent.
func (r *Reader) NumDocuments(lang string, term uint64) int {
	e, ok := r.lookup(lang, term)
	if !ok {
		return 0
	}
	return e.count
}

// Documents returns a fresh reader over term's posting list, or nil when
// the term is absent.
func (r *Reader) Documents(lang string, term uint64) *skiplist.List {
	e, ok := r.lookup(lang, term)
	if !ok {
		return nil
	}
	return r.file.List(e.offset)
}

// Also is a filter step keeping documents that contain term.
func (r *Reader) Also(lang string, term uint64) query.FilterStep {
	label := fmt.Sprintf("%s:%d", r.kind, term)
	if l := r.Documents(lang, term); l != nil {
		return query.Retain(term, l, float64(r.NumDocuments(lang, term)), label)
	}
	return query.Retain(term, emptyList{}, 0, label)
}

// Not is a filter step keeping documents that lack term.
func (r *Reader) Not(lang string, term uint64) query.FilterStep {
	label := fmt.Sprintf("%s:%d", r.kind, term)
	if l := r.Documents(lang, term); l != nil {
		return query.Reject(term, l, float64(r.NumDocuments(lang, term)), label)
	}
	return query.Reject(term, emptyList{}, 0, label)
}

// TermHit is the per-document data of one term.
type TermHit struct {
	Present   bool
	Flags     ids.TermFlag
	Positions []uint32
}

// GetTermData returns term's flags and positions for each document. Only
// the full index stores them; for the priority index every present
// document is reported without flags.
func (r *Reader) GetTermData(lang string, term uint64, docIDs []uint64) ([]TermHit, error) {
	hits := make([]TermHit, len(docIDs))
	l := r.Documents(lang, term)
	if l == nil {
		return hits, nil
	}
	rs := r.kind.RecordSize()
	if rs == 0 {
		for i, id := range docIDs {
			ok, err := l.Contains(id)
			if err != nil {
				return nil, err
			}
			hits[i].Present = ok
		}
		return hits, nil
	}

	words := make([]uint64, rs*len(docIDs))
	if err := l.GetAllValues(docIDs, words); err != nil {
		return nil, fmt.Errorf("reading %s values of term %d: %w", r.kind, term, err)
	}
	for i := range docIDs {
		ptr := words[i*rs+1]
		if ptr == 0 {
			continue
		}
		positions, err := r.positions(ptr)
		if err != nil {
			return nil, err
		}
		hits[i] = TermHit{Present: true, Flags: ids.TermFlag(words[i*rs]), Positions: positions}
	}
	return hits, nil
}

func (r *Reader) positions(ptr uint64) ([]uint32, error) {
	data := r.pos.Bytes()
	if ptr >= uint64(len(data)) {
		return nil, fmt.Errorf("%w: positions pointer %d outside %d bytes", apperrors.ErrCorruptIndex, ptr, len(data))
	}
	b := data[ptr:]
	n, k := binary.Uvarint(b)
	if k <= 0 || n > uint64(len(b)) {
		return nil, fmt.Errorf("%w: positions header at %d", apperrors.ErrCorruptIndex, ptr)
	}
	b = b[k:]
	out := make([]uint32, n)
	var prev uint32
	for i := range out {
		d, k := binary.Uvarint(b)
		if k <= 0 {
			return nil, fmt.Errorf("%w: positions entry at %d", apperrors.ErrCorruptIndex, ptr)
		}
		b = b[k:]
		prev += uint32(d)
		out[i] = prev
	}
	return out, nil
}

// Reset drops cached lexicon lookups.
func (r *Reader) Reset() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// Close releases every mapping.
func (r *Reader) Close() error {
	var errs []error
	for _, m := range []*mmap.Mapping{r.docs, r.values, r.pos} {
		if m != nil {
			errs = append(errs, m.Close())
		}
	}
	for _, m := range r.lexicons {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}

type emptyList struct{}

func (emptyList) RetainData(buf *query.Buffer) error {
	buf.Reset()
	return nil
}

func (emptyList) RejectData(*query.Buffer) error {
	return nil
}
