// Package journal reads and writes the write-ahead journal that index
// construction consumes: a zstd-compressed stream of length-prefixed,
// checksummed document records behind a small uncompressed header.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x534a524e
	FormatVersion uint32 = 1
	HeaderSize    int    = 8

	maxRecordSize = 64 << 20
)

// Writer appends documents to a journal.
type Writer struct {
	file    *os.File
	buf     *bufio.Writer
	enc     *zstd.Encoder
	scratch []byte
	count   int
}

// Create starts a new journal at path, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter writes a journal to an arbitrary stream. Close flushes it but
// does not close dst.
func NewWriter(dst io.Writer) (*Writer, error) {
	buf := bufio.NewWriter(dst)
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	if _, err := buf.Write(header); err != nil {
		return nil, fmt.Errorf("writing journal header: %w", err)
	}
	enc, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating journal compressor: %w", err)
	}
	return &Writer{buf: buf, enc: enc}, nil
}

// Append validates and writes one document.
func (w *Writer) Append(doc Document) error {
	if err := doc.validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	payload := doc.appendTo(w.scratch[:0])
	w.scratch = payload

	var frame [binary.MaxVarintLen64 + 4]byte
	n := binary.PutUvarint(frame[:], uint64(len(payload)))
	binary.LittleEndian.PutUint32(frame[n:], crc32.ChecksumIEEE(payload))
	if _, err := w.enc.Write(frame[:n+4]); err != nil {
		return fmt.Errorf("writing journal frame: %w", err)
	}
	if _, err := w.enc.Write(payload); err != nil {
		return fmt.Errorf("writing journal record: %w", err)
	}
	w.count++
	return nil
}

// Count is the number of documents appended so far.
func (w *Writer) Count() int {
	return w.count
}

// Close finishes the compressed stream and, for file journals, syncs and
// closes the file.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("closing journal compressor: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("syncing journal: %w", err)
	}
	return w.file.Close()
}

// Reader iterates the documents of a journal.
type Reader struct {
	file *os.File
	dec  *zstd.Decoder
	src  *bufio.Reader
	buf  []byte
}

// Open opens the journal at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrMissingFile, path)
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads a journal from src.
func NewReader(src io.Reader) (*Reader, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", apperrors.ErrTruncatedJournal, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad journal magic %#x", apperrors.ErrCorruptIndex, magic)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported journal version %d", apperrors.ErrCorruptIndex, v)
	}
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("creating journal decompressor: %w", err)
	}
	return &Reader{dec: dec, src: bufio.NewReader(dec)}, nil
}

// Next returns the next document, or io.EOF after the last one. A record
// cut short yields ErrTruncatedJournal.
func (r *Reader) Next() (Document, error) {
	size, err := binary.ReadUvarint(r.src)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, io.EOF
		}
		return Document{}, r.truncated(err)
	}
	if size > maxRecordSize {
		return Document{}, fmt.Errorf("%w: record of %d bytes", apperrors.ErrCorruptIndex, size)
	}
	var sum [4]byte
	if _, err := io.ReadFull(r.src, sum[:]); err != nil {
		return Document{}, r.truncated(err)
	}
	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	payload := r.buf[:size]
	if _, err := io.ReadFull(r.src, payload); err != nil {
		return Document{}, r.truncated(err)
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(sum[:]) {
		return Document{}, fmt.Errorf("%w: journal record checksum mismatch", apperrors.ErrCorruptIndex)
	}
	doc, err := decodeDocument(payload)
	if err != nil {
		return Document{}, fmt.Errorf("%w: decoding journal record: %v", apperrors.ErrCorruptIndex, err)
	}
	return doc, nil
}

// truncated classifies a failure inside a record. The compressed stream
// reports a cut-off tail either as an unexpected EOF or as a frame error,
// and both mean the journal ends mid-record.
func (r *Reader) truncated(err error) error {
	return fmt.Errorf("%w: %v", apperrors.ErrTruncatedJournal, err)
}

// ForEach calls fn for every document until the journal ends or fn fails.
func (r *Reader) ForEach(fn func(Document) error) error {
	for {
		doc, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
}

// Close releases the decoder and the underlying file.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadFile loads every document of the journal at path.
func ReadFile(path string) ([]Document, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var docs []Document
	err = r.ForEach(func(d Document) error {
		docs = append(docs, d)
		return nil
	})
	return docs, err
}
