package journal

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

func sampleDocs() []Document {
	return []Document{
		{
			DomainID: 7, Ordinal: 1, Language: "en",
			Meta:     ids.NewDocMeta(0, 1999, 2, 3, ids.DocFlagPlainText),
			Features: ids.FeatureJS,
			Size:     120,
			Spans:    []Span{{Code: SpanTitle, Start: 0, End: 5}},
			Keywords: []Keyword{
				{TermID: ids.TermID("hello"), Flags: ids.TermFlagTitle, Positions: []uint32{1, 4, 90}},
				{TermID: ids.TermID("world"), Flags: 0, Positions: []uint32{2}},
			},
		},
		{DomainID: 8, Ordinal: 2, Language: "sv"},
	}
}

func TestJournal_RoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.zst")
	w, err := Create(path)
	require.NoError(t, err)
	for _, d := range sampleDocs() {
		require.NoError(t, w.Append(d))
	}
	assert.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleDocs(), got)
}

func TestJournal_RejectsInvalidDocuments(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{})
	require.NoError(t, err)
	assert.ErrorIs(t, w.Append(Document{DomainID: 1, Ordinal: 1}), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, w.Append(Document{DomainID: 1, Ordinal: ids.MaxOrdinal + 1, Language: "en"}), apperrors.ErrInvalidInput)
	bad := Document{DomainID: 1, Language: "en", Keywords: []Keyword{{TermID: 1, Positions: []uint32{3, 3}}}}
	assert.ErrorIs(t, w.Append(bad), apperrors.ErrInvalidInput)
}

func TestJournal_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		d := sampleDocs()[0]
		d.Ordinal = uint32(i)
		require.NoError(t, w.Append(d))
	}
	require.NoError(t, w.Close())

	data := buf.Bytes()
	r, err := NewReader(bytes.NewReader(data[:len(data)-40]))
	require.NoError(t, err)
	defer r.Close()
	err = r.ForEach(func(Document) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrTruncatedJournal)

	_, err = NewReader(bytes.NewReader(data[:3]))
	assert.ErrorIs(t, err, apperrors.ErrTruncatedJournal)
}

func TestJournal_BadMagic(t *testing.T) {
	_, err := NewReader(bytes.NewReader(make([]byte, 32)))
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestJournal_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, apperrors.ErrMissingFile)
}
