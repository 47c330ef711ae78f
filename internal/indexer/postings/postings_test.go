package postings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
)

func doc(lang string, kws ...journal.Keyword) journal.Document {
	return journal.Document{Language: lang, Keywords: kws}
}

func TestSnapshotOrdering(t *testing.T) {
	acc := New()
	acc.AddDocument(30, doc("en", journal.Keyword{TermID: 2}, journal.Keyword{TermID: 1}))
	acc.AddDocument(10, doc("en", journal.Keyword{TermID: 1, Positions: []uint32{4}}))
	acc.AddDocument(20, doc("de", journal.Keyword{TermID: 1}))

	entries := acc.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "de", entries[0].Language)
	assert.Equal(t, "en", entries[1].Language)
	assert.Equal(t, uint64(1), entries[1].Term)
	require.Len(t, entries[1].Postings, 2)
	assert.Equal(t, uint64(10), entries[1].Postings[0].ID)
	assert.Equal(t, []uint32{4}, entries[1].Postings[0].Positions)
	assert.Equal(t, uint64(30), entries[1].Postings[1].ID)
	assert.Equal(t, uint64(2), entries[2].Term)
	assert.Equal(t, 3, acc.DocCount())
}

func TestSnapshotDropsDuplicateIDs(t *testing.T) {
	acc := New()
	acc.AddDocument(5, doc("en", journal.Keyword{TermID: 1, Flags: ids.TermFlagTitle}))
	acc.AddDocument(5, doc("en", journal.Keyword{TermID: 1}))
	entries := acc.Snapshot()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Postings, 1)
	assert.Equal(t, ids.TermFlagTitle, entries[0].Postings[0].Flags)
}

func TestFilteredAccumulator(t *testing.T) {
	acc := NewFiltered(func(f ids.TermFlag) bool { return f.Any(ids.PriorityMask) })
	acc.AddDocument(1, doc("en", journal.Keyword{TermID: 1, Flags: ids.TermFlagTitle}, journal.Keyword{TermID: 2}))
	acc.AddDocument(2, doc("en", journal.Keyword{TermID: 2}))
	entries := acc.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Term)
	assert.Equal(t, 1, acc.DocCount())

	acc.Reset()
	assert.Empty(t, acc.Snapshot())
	assert.Zero(t, acc.Size())
}
