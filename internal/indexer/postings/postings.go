// Package postings accumulates reverse-index lists in memory while a
// generation is being constructed.
package postings

import (
	"slices"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/reverse"
)

// TermEntry is one (language, term) posting list ready to be written.
type TermEntry struct {
	Language string
	Term     uint64
	Postings []reverse.Posting
}

// Accumulator collects postings per language and term. It is safe for
// concurrent use.
type Accumulator struct {
	mu       sync.Mutex
	filter   func(ids.TermFlag) bool
	lists    map[string]map[uint64][]reverse.Posting
	docCount int
	size     int64
}

// New returns an accumulator that keeps every keyword.
func New() *Accumulator {
	return NewFiltered(nil)
}

// NewFiltered returns an accumulator that only keeps keywords whose flags
// pass keep. A nil keep accepts everything.
func NewFiltered(keep func(ids.TermFlag) bool) *Accumulator {
	return &Accumulator{
		filter: keep,
		lists:  make(map[string]map[uint64][]reverse.Posting),
	}
}

// AddDocument records every keyword of doc under the document id. The id
// carries the rank bias so lists order better documents first.
func (a *Accumulator) AddDocument(id uint64, doc journal.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()

	terms, ok := a.lists[doc.Language]
	if !ok {
		terms = make(map[uint64][]reverse.Posting)
		a.lists[doc.Language] = terms
	}
	added := false
	for _, kw := range doc.Keywords {
		if a.filter != nil && !a.filter(kw.Flags) {
			continue
		}
		terms[kw.TermID] = append(terms[kw.TermID], reverse.Posting{
			ID:        id,
			Flags:     kw.Flags,
			Positions: kw.Positions,
		})
		a.size += int64(len(kw.Positions)*4 + 32)
		added = true
	}
	if added {
		a.docCount++
	}
}

// Snapshot returns every list sorted by language and term, with postings
// sorted by id. Duplicate ids keep the first posting.
func (a *Accumulator) Snapshot() []TermEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var entries []TermEntry
	for lang, terms := range a.lists {
		for term, postings := range terms {
			sorted := slices.Clone(postings)
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
			sorted = slices.CompactFunc(sorted, func(x, y reverse.Posting) bool { return x.ID == y.ID })
			entries = append(entries, TermEntry{Language: lang, Term: term, Postings: sorted})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Language != entries[j].Language {
			return entries[i].Language < entries[j].Language
		}
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Size is a rough estimate of the retained bytes.
func (a *Accumulator) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// DocCount is the number of documents that contributed at least one posting.
func (a *Accumulator) DocCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.docCount
}

// Reset drops everything accumulated so far.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lists = make(map[string]map[uint64][]reverse.Posting)
	a.docCount = 0
	a.size = 0
}
