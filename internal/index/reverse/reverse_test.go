package reverse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

var (
	hello   = ids.TermID("hello")
	world   = ids.TermID("world")
	goodbye = ids.TermID("goodbye")
)

func buildIndex(t *testing.T, kind Kind) string {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(dir, kind)
	require.NoError(t, err)

	var helloList, worldList []Posting
	for i := uint32(1); i <= 1500; i++ {
		id := ids.MustEncodeID(1, i)
		helloList = append(helloList, Posting{ID: id, Flags: ids.TermFlagTitle, Positions: []uint32{i, i + 10}})
		if i%3 == 0 {
			worldList = append(worldList, Posting{ID: id, Positions: []uint32{i + 1}})
		}
	}
	require.NoError(t, w.Add("en", hello, helloList))
	require.NoError(t, w.Add("en", world, worldList))
	require.NoError(t, w.Add("sv", goodbye, []Posting{{ID: ids.MustEncodeID(2, 1), Positions: []uint32{0}}}))
	require.NoError(t, w.Close())
	return dir
}

func TestReader_Lookups(t *testing.T) {
	dir := buildIndex(t, KindFull)
	r, err := Open(dir, KindFull, 16)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.IsLoaded())
	assert.Equal(t, []string{"en", "sv"}, r.Languages())
	assert.Equal(t, 1500, r.NumDocuments("en", hello))
	assert.Equal(t, 500, r.NumDocuments("en", world))
	assert.Equal(t, 0, r.NumDocuments("en", goodbye))
	assert.Equal(t, 1, r.NumDocuments("sv", goodbye))
	assert.Nil(t, r.Documents("de", hello))

	buf := query.NewBuffer(2000)
	l := r.Documents("en", world)
	require.NotNil(t, l)
	require.NoError(t, l.GetKeys(buf))
	assert.Equal(t, 500, buf.Size())
}

func TestReader_AlsoNot(t *testing.T) {
	dir := buildIndex(t, KindFull)
	r, err := Open(dir, KindFull, 0)
	require.NoError(t, err)
	defer r.Close()

	candidates := []uint64{ids.MustEncodeID(1, 2), ids.MustEncodeID(1, 3), ids.MustEncodeID(1, 9), ids.MustEncodeID(1, 10)}

	buf := query.NewBufferOf(candidates...)
	require.NoError(t, r.Also("en", world).Apply(buf))
	assert.Equal(t, []uint64{candidates[1], candidates[2]}, buf.Copy())

	buf = query.NewBufferOf(candidates...)
	require.NoError(t, r.Not("en", world).Apply(buf))
	assert.Equal(t, []uint64{candidates[0], candidates[3]}, buf.Copy())

	buf = query.NewBufferOf(candidates...)
	require.NoError(t, r.Also("en", goodbye).Apply(buf))
	assert.True(t, buf.IsEmpty())

	buf = query.NewBufferOf(candidates...)
	require.NoError(t, r.Not("en", goodbye).Apply(buf))
	assert.Equal(t, candidates, buf.Copy())
}

func TestReader_GetTermData(t *testing.T) {
	dir := buildIndex(t, KindFull)
	r, err := Open(dir, KindFull, 0)
	require.NoError(t, err)
	defer r.Close()

	docs := []uint64{ids.MustEncodeID(1, 6), ids.MustEncodeID(1, 7), ids.MustEncodeID(1, 1200)}
	hits, err := r.GetTermData("en", world, docs)
	require.NoError(t, err)
	assert.Equal(t, TermHit{Present: true, Positions: []uint32{7}}, hits[0])
	assert.False(t, hits[1].Present)
	assert.Equal(t, []uint32{1201}, hits[2].Positions)

	hits, err = r.GetTermData("en", hello, docs)
	require.NoError(t, err)
	for i, h := range hits {
		assert.True(t, h.Present)
		assert.True(t, h.Flags.Has(ids.TermFlagTitle))
		assert.Equal(t, []uint32{ids.Ordinal(docs[i]), ids.Ordinal(docs[i]) + 10}, h.Positions)
	}
}

func TestReader_PriorityIndexIsCompact(t *testing.T) {
	dir := buildIndex(t, KindPriority)
	r, err := Open(dir, KindPriority, 0)
	require.NoError(t, err)
	defer r.Close()

	hits, err := r.GetTermData("en", world, []uint64{ids.MustEncodeID(1, 3), ids.MustEncodeID(1, 4)})
	require.NoError(t, err)
	assert.True(t, hits[0].Present)
	assert.Zero(t, hits[0].Flags)
	assert.False(t, hits[1].Present)
}

func TestReader_ResetIsIdempotent(t *testing.T) {
	dir := buildIndex(t, KindFull)
	r, err := Open(dir, KindFull, 4)
	require.NoError(t, err)
	defer r.Close()

	run := func() []uint64 {
		buf := query.NewBuffer(2000)
		l := r.Documents("en", hello)
		require.NoError(t, l.GetKeys(buf))
		require.NoError(t, r.Also("en", world).Apply(buf))
		return buf.Copy()
	}
	first := run()
	r.Reset()
	r.Reset()
	assert.Equal(t, first, run())
	assert.Len(t, first, 500)
}

func TestOpen_MissingFiles(t *testing.T) {
	_, err := Open(t.TempDir(), KindFull, 0)
	assert.ErrorIs(t, err, apperrors.ErrMissingFile)
}

func TestWriter_RejectsDuplicateTerms(t *testing.T) {
	w, err := NewWriter(t.TempDir(), KindPriority)
	require.NoError(t, err)
	require.NoError(t, w.Add("en", hello, []Posting{{ID: 1}}))
	require.NoError(t, w.Add("en", hello, []Posting{{ID: 2}}))
	assert.ErrorIs(t, w.Close(), apperrors.ErrInvalidInput)
}
