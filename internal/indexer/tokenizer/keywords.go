package tokenizer

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
)

// Keywords extracts journal keywords from a title and body. Title tokens
// come first in position order and carry TermFlagTitle; body positions
// continue after them.
func Keywords(title, body string) []journal.Keyword {
	type acc struct {
		flags     ids.TermFlag
		positions []uint32
	}
	terms := make(map[string]*acc)
	add := func(tokens []Token, offset int, flag ids.TermFlag) {
		for _, tok := range tokens {
			a, ok := terms[tok.Term]
			if !ok {
				a = &acc{}
				terms[tok.Term] = a
			}
			a.flags |= flag
			a.positions = append(a.positions, uint32(offset+tok.Position))
		}
	}
	titleTokens := Tokenize(title)
	add(titleTokens, 0, ids.TermFlagTitle)
	add(Tokenize(body), len(titleTokens), 0)

	out := make([]journal.Keyword, 0, len(terms))
	for term, a := range terms {
		out = append(out, journal.Keyword{TermID: ids.TermID(term), Flags: a.flags, Positions: a.positions})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TermID < out[j].TermID })
	return out
}
