// Package ranker scores candidate batches produced by query heads.
package ranker

import (
	"cmp"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/reverse"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
)

const (
	k1 = 1.2
	b  = 0.75

	titleBonus    = 2.0
	headingBonus  = 1.0
	urlBonus      = 1.5
	priorityBonus = 1.0
)

// Term is one required term of a subquery. Unranked terms must be
// present but add nothing to the score.
type Term struct {
	ID     uint64
	Ranked bool
}

// Subquery is the ranking view of one subquery.
type Subquery struct {
	Terms      []Term
	Priority   []uint64
	Coherences [][]uint64
}

// Result is one scored document.
type Result struct {
	ID      uint64  `json:"id"`
	Domain  uint32  `json:"domain"`
	Ordinal uint32  `json:"ordinal"`
	Score   float64 `json:"score"`
	Year    int     `json:"year,omitempty"`
	Quality int     `json:"quality"`
	Size    int     `json:"size"`
}

// Compare orders results best first: higher score, then lower id.
func Compare(x, y Result) int {
	if c := cmp.Compare(y.Score, x.Score); c != 0 {
		return c
	}
	return cmp.Compare(x.ID, y.ID)
}

// Ranker scores batches against one generation. It is safe for
// concurrent use; the readers it touches are read-only.
type Ranker struct {
	gen        *indexer.Generation
	lang       string
	subqueries []Subquery
	terms      []uint64
	idf        map[uint64]float64
	avgSize    float64
}

// New prepares the ranking context shared by every batch of one query.
func New(gen *indexer.Generation, lang string, subqueries []Subquery) *Ranker {
	r := &Ranker{
		gen:        gen,
		lang:       lang,
		subqueries: subqueries,
		idf:        make(map[uint64]float64),
		avgSize:    gen.Manifest.AvgDocumentSize,
	}
	total := gen.Forward.TotalDocCount()
	add := func(t uint64) {
		if _, ok := r.idf[t]; ok {
			return
		}
		r.terms = append(r.terms, t)
		r.idf[t] = computeIDF(int64(total), int64(gen.Full.NumDocuments(lang, t)))
	}
	for _, sq := range subqueries {
		for _, t := range sq.Terms {
			add(t.ID)
		}
		for _, t := range sq.Priority {
			add(t)
		}
		for _, group := range sq.Coherences {
			for _, t := range group {
				add(t)
			}
		}
	}
	return r
}

// Rank scores batch, a set of ranked document ids. A document is kept
// when it satisfies at least one subquery, and scored by the best one.
func (r *Ranker) Rank(batch []uint64) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	hits := make(map[uint64][]reverse.TermHit, len(r.terms))
	for _, t := range r.terms {
		h, err := r.gen.Full.GetTermData(r.lang, t, batch)
		if err != nil {
			return nil, fmt.Errorf("reading term data: %w", err)
		}
		hits[t] = h
	}

	out := make([]Result, 0, len(batch))
	for i, id := range batch {
		best, ok := math.Inf(-1), false
		for _, sq := range r.subqueries {
			score, matched := r.score(sq, hits, i, id)
			if matched && score > best {
				best, ok = score, true
			}
		}
		if !ok {
			continue
		}
		meta := r.gen.Forward.GetDocMeta(id)
		out = append(out, Result{
			ID:      ids.RemoveRank(id),
			Domain:  ids.DomainID(id),
			Ordinal: ids.Ordinal(id),
			Score:   math.Round(best*10000) / 10000,
			Year:    meta.Year(),
			Quality: meta.Quality(),
			Size:    meta.SizeBucket(),
		})
	}
	return out, nil
}

func (r *Ranker) score(sq Subquery, hits map[uint64][]reverse.TermHit, i int, id uint64) (float64, bool) {
	docSize := float64(r.gen.Forward.GetDocumentSize(id))
	var score float64
	for _, t := range sq.Terms {
		h := hits[t.ID][i]
		if !h.Present {
			return 0, false
		}
		if !t.Ranked {
			continue
		}
		tf := float64(len(h.Positions))
		if tf == 0 {
			tf = 1
		}
		score += r.idf[t.ID]*computeTFNorm(tf, docSize, r.avgSize) + flagBonus(h.Flags)
	}
	for _, group := range sq.Coherences {
		if !coherent(group, hits, i) {
			return 0, false
		}
	}
	for _, t := range sq.Priority {
		if h := hits[t][i]; h.Present {
			score += priorityBonus * (1 + flagBonus(h.Flags))
		}
	}
	return score, true
}

func flagBonus(f ids.TermFlag) float64 {
	var bonus float64
	if f.Has(ids.TermFlagTitle) {
		bonus += titleBonus
	}
	if f.Has(ids.TermFlagHeading) {
		bonus += headingBonus
	}
	if f.Any(ids.TermFlagURLDomain | ids.TermFlagURLPath) {
		bonus += urlBonus
	}
	return bonus
}

// coherent reports whether the terms of group occur at consecutive
// positions somewhere in document i.
func coherent(group []uint64, hits map[uint64][]reverse.TermHit, i int) bool {
	if len(group) < 2 {
		return true
	}
	sets := make([]map[uint32]struct{}, len(group))
	for k, t := range group {
		h := hits[t][i]
		if !h.Present {
			return false
		}
		if k == 0 {
			continue
		}
		sets[k] = make(map[uint32]struct{}, len(h.Positions))
		for _, p := range h.Positions {
			sets[k][p] = struct{}{}
		}
	}
next:
	for _, p := range hits[group[0]][i].Positions {
		for k := 1; k < len(group); k++ {
			if _, ok := sets[k][p+uint32(k)]; !ok {
				continue next
			}
		}
		return true
	}
	return false
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
