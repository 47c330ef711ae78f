package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/indextest"
)

func term(s string) uint64 { return ids.TermID(s) }

func ranked(ts ...string) []Term {
	out := make([]Term, len(ts))
	for i, t := range ts {
		out[i] = Term{ID: term(t), Ranked: true}
	}
	return out
}

func byID(rs []Result) map[uint64]Result {
	out := make(map[uint64]Result, len(rs))
	for _, r := range rs {
		out[r.ID] = r
	}
	return out
}

func TestTitleOccurrenceScoresHigher(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{
		indextest.Doc(1, 1, "hello", "world"),
		indextest.Doc(1, 2, "", "hello world"),
		indextest.Doc(1, 3, "", "other words here"),
	})
	r := New(gen, indextest.Language, []Subquery{{Terms: ranked("hello")}})

	a, b := ids.MustEncodeID(1, 1), ids.MustEncodeID(1, 2)
	got, err := r.Rank([]uint64{a, b})
	require.NoError(t, err)
	require.Len(t, got, 2)

	res := byID(got)
	assert.Greater(t, res[a].Score, res[b].Score)
	assert.Equal(t, uint32(1), res[a].Domain)
	assert.Equal(t, uint32(1), res[a].Ordinal)
	assert.Equal(t, indextest.DefaultYear, res[a].Year)
}

func TestDocumentsMissingATermAreDropped(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{
		indextest.Doc(1, 1, "", "hello world"),
		indextest.Doc(1, 2, "", "hello"),
	})
	r := New(gen, indextest.Language, []Subquery{{Terms: ranked("hello", "world")}})

	got, err := r.Rank([]uint64{ids.MustEncodeID(1, 1), ids.MustEncodeID(1, 2)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids.MustEncodeID(1, 1), got[0].ID)
}

func TestCoherenceRequiresAdjacentPositions(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{
		indextest.Doc(1, 1, "", "big world"),
		indextest.Doc(1, 2, "", "world big"),
		indextest.Doc(1, 3, "", "big wide world"),
	})
	r := New(gen, indextest.Language, []Subquery{{
		Terms:      ranked("big", "world"),
		Coherences: [][]uint64{{term("big"), term("world")}},
	}})

	got, err := r.Rank([]uint64{ids.MustEncodeID(1, 1), ids.MustEncodeID(1, 2), ids.MustEncodeID(1, 3)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ids.MustEncodeID(1, 1), got[0].ID)
}

func TestUnrankedTermsAddNoScore(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{
		indextest.Doc(1, 1, "hello", ""),
		indextest.Doc(1, 2, "", "world"),
	})
	r := New(gen, indextest.Language, []Subquery{{Terms: []Term{{ID: term("hello")}}}})

	got, err := r.Rank([]uint64{ids.MustEncodeID(1, 1)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
}

func TestPriorityTermsBoost(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{
		indextest.Doc(1, 1, "", "hello fresh"),
		indextest.Doc(1, 2, "", "hello stale"),
	})
	r := New(gen, indextest.Language, []Subquery{{
		Terms:    ranked("hello"),
		Priority: []uint64{term("fresh")},
	}})

	a, b := ids.MustEncodeID(1, 1), ids.MustEncodeID(1, 2)
	got, err := r.Rank([]uint64{a, b})
	require.NoError(t, err)
	res := byID(got)
	require.Len(t, res, 2)
	assert.Greater(t, res[a].Score, res[b].Score)
}

func TestBestSubqueryWins(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{
		indextest.Doc(1, 1, "", "hello"),
		indextest.Doc(1, 2, "", "world"),
		indextest.Doc(1, 3, "", "neither"),
	})
	r := New(gen, indextest.Language, []Subquery{
		{Terms: ranked("hello")},
		{Terms: ranked("world")},
	})

	got, err := r.Rank([]uint64{ids.MustEncodeID(1, 1), ids.MustEncodeID(1, 2), ids.MustEncodeID(1, 3)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRankedIDsAreReportedWithoutBias(t *testing.T) {
	gen := indextest.Generation(t, []journal.Document{indextest.Doc(4, 9, "", "hello")})
	r := New(gen, indextest.Language, []Subquery{{Terms: ranked("hello")}})

	got, err := r.Rank([]uint64{ids.MustEncodeID(4, 9)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(4), got[0].Domain)
	assert.Equal(t, uint32(9), got[0].Ordinal)

	none, err := r.Rank(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(Result{ID: 2, Score: 2}, Result{ID: 1, Score: 1}))
	assert.Negative(t, Compare(Result{ID: 1, Score: 1}, Result{ID: 2, Score: 1}))
	assert.Zero(t, Compare(Result{ID: 1, Score: 1}, Result{ID: 1, Score: 1}))
}
