package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The Quick foxes, and 2 cats!")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
		assert.Equal(t, i, tok.Position)
	}
	assert.Equal(t, []string{"quick", "fox", "2", "cat"}, terms)
}

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{"Hello": "hello", "world": "world", "5": "5", "511": "511", "running": "runn"} {
		got, ok := Normalize(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := Normalize("the")
	assert.False(t, ok)
	_, ok = Normalize("x")
	assert.False(t, ok)
}

func TestKeywords(t *testing.T) {
	kws := Keywords("Hello world", "hello again")
	byTerm := map[uint64][]uint32{}
	flags := map[uint64]ids.TermFlag{}
	for _, kw := range kws {
		byTerm[kw.TermID] = kw.Positions
		flags[kw.TermID] = kw.Flags
	}
	assert.Equal(t, []uint32{0, 2}, byTerm[ids.TermID("hello")])
	assert.Equal(t, []uint32{1}, byTerm[ids.TermID("world")])
	assert.True(t, flags[ids.TermID("hello")].Has(ids.TermFlagTitle))
	assert.Zero(t, flags[ids.TermID("again")])
}

func TestTokenizeKeepsUnicodeWords(t *testing.T) {
	tokens := Tokenize("Zürich/Café 42km")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"zürich", "café", "42km"}, terms)
	assert.Empty(t, Tokenize("  ,,, the a "))
}
