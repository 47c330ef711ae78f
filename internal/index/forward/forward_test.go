package forward

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

func TestForwardIndex_Lookups(t *testing.T) {
	dir := t.TempDir()
	a := ids.MustEncodeID(3, 10)
	b := ids.MustEncodeID(1, 5)
	c := ids.MustEncodeID(3, 2)
	entries := []Entry{
		{ID: a, Meta: ids.NewDocMeta(4, 1999, 1, 5, ids.DocFlagJavascript), Features: ids.FeatureAds, Size: 300,
			Spans: []journal.Span{{Code: journal.SpanTitle, Start: 0, End: 4}, {Code: journal.SpanHeading, Start: 10, End: 20}}},
		{ID: ids.AddRank(b, 9), Meta: ids.NewDocMeta(0, 2001, 2, 0, 0), Size: 12},
		{ID: c, Meta: ids.NewDocMeta(1, 2000, 3, -1, 0), Size: 7, Spans: []journal.Span{{Code: journal.SpanCode, Start: 1, End: 2}}},
	}
	require.NoError(t, WriteFiles(dir, entries))

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.IsLoaded())
	assert.Equal(t, 3, r.TotalDocCount())
	assert.Equal(t, 1999, r.GetDocMeta(a).Year())
	assert.Equal(t, 2001, r.GetDocMeta(ids.AddRank(b, 50)).Year())
	assert.Equal(t, ids.FeatureAds, r.GetHTMLFeatures(a))
	assert.Equal(t, 300, r.GetDocumentSize(a))
	assert.Equal(t, 7, r.GetDocumentSize(c))
	assert.True(t, r.Contains(b))

	missing := ids.MustEncodeID(9, 9)
	assert.False(t, r.Contains(missing))
	assert.Zero(t, r.GetDocMeta(missing))
	assert.Zero(t, r.GetDocumentSize(missing))

	spans, err := r.GetDocumentSpans([]uint64{c, missing, a, b})
	require.NoError(t, err)
	require.Len(t, spans, 4)
	assert.Equal(t, []journal.Span{{Code: journal.SpanCode, Start: 1, End: 2}}, spans[0])
	assert.Nil(t, spans[1])
	assert.Equal(t, entries[0].Spans, spans[2])
	assert.Empty(t, spans[3])

	require.NoError(t, r.Close())
	assert.False(t, r.IsLoaded())
	assert.Zero(t, r.GetDocMeta(a))
}

func TestForwardIndex_RejectsDuplicates(t *testing.T) {
	id := ids.MustEncodeID(1, 1)
	err := WriteFiles(t.TempDir(), []Entry{{ID: id}, {ID: ids.AddRank(id, 3)}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestForwardIndex_MissingAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	assert.ErrorIs(t, err, apperrors.ErrMissingFile)

	require.NoError(t, WriteFiles(dir, []Entry{{ID: 1}, {ID: 2}}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaFile), make([]byte, MetaRecordSize), 0o644))
	_, err = Open(dir)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestForwardIndex_Empty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteFiles(dir, nil))
	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 0, r.TotalDocCount())
	assert.False(t, r.Contains(1))
}
