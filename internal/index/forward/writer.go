// Package forward stores per-document metadata: a sorted id table, a
// dense array of fixed-size metadata records parallel to it, and a spans
// payload addressed through the records.
package forward

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

const (
	IDsFile   = "fwd-ids.dat"
	MetaFile  = "fwd-meta.dat"
	SpansFile = "fwd-spans.dat"

	// MetaRecordSize is the size of one metadata record: the DocMeta word,
	// the feature mask and document size, and the spans offset.
	MetaRecordSize = 24
	spanRecordSize = 12
)

// Entry is one document to be written.
type Entry struct {
	ID       uint64
	Meta     ids.DocMeta
	Features ids.HTMLFeature
	Size     uint32
	Spans    []journal.Span
}

// Files lists the file names a forward index consists of.
func Files() []string {
	return []string{IDsFile, MetaFile, SpansFile}
}

// WriteFiles writes the forward index for entries into dir. Ids are
// stripped of rank bias and must be unique.
func WriteFiles(dir string, entries []Entry) error {
	sorted := make([]Entry, len(entries))
	for i, e := range entries {
		e.ID = ids.RemoveRank(e.ID)
		sorted[i] = e
	}
	slices.SortFunc(sorted, func(a, b Entry) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ID == sorted[i-1].ID {
			return fmt.Errorf("%w: duplicate document id %d", apperrors.ErrInvalidInput, sorted[i].ID)
		}
	}

	idsOut, err := newFileWriter(filepath.Join(dir, IDsFile))
	if err != nil {
		return err
	}
	defer idsOut.abort()
	metaOut, err := newFileWriter(filepath.Join(dir, MetaFile))
	if err != nil {
		return err
	}
	defer metaOut.abort()
	spansOut, err := newFileWriter(filepath.Join(dir, SpansFile))
	if err != nil {
		return err
	}
	defer spansOut.abort()

	var word [8]byte
	var rec [MetaRecordSize]byte
	var span [spanRecordSize]byte
	var spansOffset uint64
	for _, e := range sorted {
		binary.LittleEndian.PutUint64(word[:], e.ID)
		if _, err := idsOut.buf.Write(word[:]); err != nil {
			return fmt.Errorf("writing forward ids: %w", err)
		}

		binary.LittleEndian.PutUint64(rec[0:], uint64(e.Meta))
		binary.LittleEndian.PutUint32(rec[8:], uint32(e.Features))
		binary.LittleEndian.PutUint32(rec[12:], e.Size)
		binary.LittleEndian.PutUint64(rec[16:], spansOffset)
		if _, err := metaOut.buf.Write(rec[:]); err != nil {
			return fmt.Errorf("writing forward metadata: %w", err)
		}

		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(e.Spans)))
		if _, err := spansOut.buf.Write(count[:]); err != nil {
			return fmt.Errorf("writing forward spans: %w", err)
		}
		for _, s := range e.Spans {
			clear(span[:])
			span[0] = s.Code
			binary.LittleEndian.PutUint32(span[4:], s.Start)
			binary.LittleEndian.PutUint32(span[8:], s.End)
			if _, err := spansOut.buf.Write(span[:]); err != nil {
				return fmt.Errorf("writing forward spans: %w", err)
			}
		}
		spansOffset += uint64(4 + spanRecordSize*len(e.Spans))
	}

	for _, w := range []*fileWriter{idsOut, metaOut, spansOut} {
		if err := w.commit(); err != nil {
			return err
		}
	}
	return nil
}

type fileWriter struct {
	file *os.File
	buf  *bufio.Writer
	done bool
}

func newFileWriter(path string) (*fileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	return &fileWriter{file: f, buf: bufio.NewWriterSize(f, 1<<16)}, nil
}

func (w *fileWriter) commit() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", w.file.Name(), err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", w.file.Name(), err)
	}
	w.done = true
	return w.file.Close()
}

func (w *fileWriter) abort() {
	if !w.done {
		w.file.Close()
	}
}
