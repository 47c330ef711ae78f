package reverse

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/skiplist"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

// Posting is one document entry of a term's list.
type Posting struct {
	ID        uint64
	Flags     ids.TermFlag
	Positions []uint32
}

type lexiconRow struct {
	term   uint64
	offset int64
	count  int
}

type output struct {
	file *os.File
	buf  *bufio.Writer
}

func createOutput(path string) (*output, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	return &output{file: f, buf: bufio.NewWriterSize(f, 1<<20)}, nil
}

func (o *output) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *output) commit() error {
	if err := o.buf.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", o.file.Name(), err)
	}
	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", o.file.Name(), err)
	}
	return o.file.Close()
}

// Writer builds one reverse index. Add each (language, term) list once;
// Close writes the lexicons and syncs every file.
type Writer struct {
	dir      string
	kind     Kind
	docs     *output
	values   *output
	pos      *output
	posOff   uint64
	lists    *skiplist.Writer
	lexicons map[string][]lexiconRow
	keys     []uint64
	vals     []uint64
	scratch  []byte
	closed   bool
}

// NewWriter creates the files of a kind index in dir.
func NewWriter(dir string, kind Kind) (*Writer, error) {
	w := &Writer{dir: dir, kind: kind, lexicons: make(map[string][]lexiconRow)}
	var err error
	if w.docs, err = createOutput(filepath.Join(dir, kind.docsFile())); err != nil {
		return nil, err
	}
	if kind.RecordSize() > 0 {
		if w.values, err = createOutput(filepath.Join(dir, kind.valuesFile())); err != nil {
			w.Abort()
			return nil, err
		}
		if w.pos, err = createOutput(filepath.Join(dir, kind.positionsFile())); err != nil {
			w.Abort()
			return nil, err
		}
		// Offset 0 is reserved so a zero value word means "no posting".
		if _, err := w.pos.Write([]byte{0}); err != nil {
			w.Abort()
			return nil, fmt.Errorf("writing positions header: %w", err)
		}
		w.posOff = 1
		w.lists, err = skiplist.NewWriter(w.docs, w.values, kind.RecordSize())
	} else {
		w.lists, err = skiplist.NewWriter(w.docs, nil, 0)
	}
	if err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

// Add writes the posting list of term in lang. Postings must be sorted by
// id without duplicates.
func (w *Writer) Add(lang string, term uint64, postings []Posting) error {
	if lang == "" {
		return fmt.Errorf("%w: posting list without language", apperrors.ErrInvalidInput)
	}
	w.keys = w.keys[:0]
	w.vals = w.vals[:0]
	for _, p := range postings {
		w.keys = append(w.keys, p.ID)
		if w.pos == nil {
			continue
		}
		w.vals = append(w.vals, uint64(p.Flags), w.posOff)
		if err := w.writePositions(p.Positions); err != nil {
			return err
		}
	}
	root, err := w.lists.WriteData(w.keys, w.vals, 0, len(w.keys))
	if err != nil {
		return fmt.Errorf("writing %s list for term %d: %w", w.kind, term, err)
	}
	w.lexicons[lang] = append(w.lexicons[lang], lexiconRow{term: term, offset: root, count: len(postings)})
	return nil
}

func (w *Writer) writePositions(positions []uint32) error {
	b := binary.AppendUvarint(w.scratch[:0], uint64(len(positions)))
	var prev uint32
	for _, p := range positions {
		b = binary.AppendUvarint(b, uint64(p-prev))
		prev = p
	}
	w.scratch = b
	if _, err := w.pos.Write(b); err != nil {
		return fmt.Errorf("writing positions: %w", err)
	}
	w.posOff += uint64(len(b))
	return nil
}

// Close writes the lexicons and commits every file.
func (w *Writer) Close() error {
	w.closed = true
	for _, o := range []*output{w.docs, w.values, w.pos} {
		if o == nil {
			continue
		}
		if err := o.commit(); err != nil {
			return err
		}
	}
	for lang, rows := range w.lexicons {
		if err := w.writeLexicon(lang, rows); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeLexicon(lang string, rows []lexiconRow) error {
	slices.SortFunc(rows, func(a, b lexiconRow) int {
		switch {
		case a.term < b.term:
			return -1
		case a.term > b.term:
			return 1
		}
		return 0
	})
	for i := 1; i < len(rows); i++ {
		if rows[i].term == rows[i-1].term {
			return fmt.Errorf("%w: term %d added twice for %s", apperrors.ErrInvalidInput, rows[i].term, lang)
		}
	}
	out, err := createOutput(filepath.Join(w.dir, w.kind.lexiconFile(lang)))
	if err != nil {
		return err
	}
	var rec [lexiconEntrySize]byte
	for _, r := range rows {
		binary.LittleEndian.PutUint64(rec[0:], r.term)
		binary.LittleEndian.PutUint64(rec[8:], uint64(r.offset))
		binary.LittleEndian.PutUint64(rec[16:], uint64(r.count))
		if _, err := out.Write(rec[:]); err != nil {
			out.file.Close()
			return fmt.Errorf("writing lexicon %s: %w", lang, err)
		}
	}
	return out.commit()
}

// Abort closes the files without committing. The caller removes the
// directory.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	for _, o := range []*output{w.docs, w.values, w.pos} {
		if o != nil {
			o.file.Close()
		}
	}
}
