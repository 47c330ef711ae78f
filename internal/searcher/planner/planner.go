// Package planner turns a query spec into executable query heads over one
// index generation.
//
// Each viable subquery becomes a head on the full index, driven by its
// rarest term with the remaining terms layered on as inclusion steps,
// followed by exclusions and finally the metadata predicate. A subquery
// naming a term the index lacks can never match and is dropped. When few
// subqueries survive, each also gets a head driven from the priority
// index.
package planner

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/spec"
)

// DefaultPriorityThreshold is the path count below which priority heads
// are added.
const DefaultPriorityThreshold = 4

// metadataCost ranks the metadata predicate after every postings step.
const metadataCost = 1e12

// Plan is the executable form of a spec.
type Plan struct {
	Heads   []*query.Head
	Ranking []ranker.Subquery
	// Dropped counts subqueries that cannot match and heads that were
	// no-ops.
	Dropped int
}

// IsEmpty reports whether nothing needs scanning.
func (p Plan) IsEmpty() bool { return len(p.Heads) == 0 }

// Planner builds plans. It holds no per-query state.
type Planner struct {
	threshold int
	sets      *SearchSets
	logger    *slog.Logger
}

// New returns a planner. sets may be nil.
func New(priorityThreshold int, sets *SearchSets) *Planner {
	if sets == nil {
		sets = NewSearchSets(nil)
	}
	return &Planner{
		threshold: priorityThreshold,
		sets:      sets,
		logger:    slog.Default().With("component", "planner"),
	}
}

type path struct {
	terms    []uint64
	counts   []int
	excludes []uint64
}

// Plan builds the heads for s against gen.
func (p *Planner) Plan(gen *indexer.Generation, s spec.Spec) Plan {
	lang := s.Language
	var plan Plan
	var paths []path
	for _, sq := range s.Subqueries {
		pa, ok := p.path(gen, lang, sq)
		if !ok {
			plan.Dropped++
			continue
		}
		paths = append(paths, pa)
		plan.Ranking = append(plan.Ranking, rankingView(sq))
	}
	if len(paths) == 0 {
		return plan
	}

	filter, hasFilter := p.metadataFilter(gen, s)
	build := func(h *query.Head, pa path) {
		for _, t := range pa.terms[1:] {
			h.AddStep(gen.Full.Also(lang, t))
		}
		for _, t := range pa.excludes {
			if gen.Full.NumDocuments(lang, t) > 0 {
				h.AddStep(gen.Full.Not(lang, t))
			}
		}
		if hasFilter {
			h.AddStep(filter)
		}
		if h.IsNoOp() {
			plan.Dropped++
			return
		}
		plan.Heads = append(plan.Heads, h)
	}

	for _, pa := range paths {
		driver := pa.terms[0]
		var src query.Source
		if l := gen.Full.Documents(lang, driver); l != nil {
			src = l
		}
		build(query.NewHead("full", driver, src, pa.counts[0]), pa)
	}
	if len(paths) < p.threshold {
		for _, pa := range paths {
			driver := pa.terms[0]
			var src query.Source
			if l := gen.Priority.Documents(lang, driver); l != nil {
				src = l
			}
			build(query.NewHead("priority", driver, src, gen.Priority.NumDocuments(lang, driver)), pa)
		}
	}

	if p.logger.Enabled(context.Background(), slog.LevelDebug) {
		for _, h := range plan.Heads {
			p.logger.Debug("query head", "head", h.String())
		}
	}
	return plan
}

// path orders the subquery's required terms rarest first. It reports
// false when any of them is absent from the index.
func (p *Planner) path(gen *indexer.Generation, lang string, sq spec.Subquery) (path, bool) {
	terms := termIDs(sq.SearchTerms())
	if len(terms) == 0 {
		return path{}, false
	}
	counts := make(map[uint64]int, len(terms))
	for _, t := range terms {
		n := gen.Full.NumDocuments(lang, t)
		if n == 0 {
			return path{}, false
		}
		counts[t] = n
	}
	slices.SortFunc(terms, func(a, b uint64) int {
		if c := cmp.Compare(counts[a], counts[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	pa := path{terms: terms, counts: make([]int, len(terms)), excludes: termIDs(sq.Exclude)}
	for i, t := range terms {
		pa.counts[i] = counts[t]
	}
	return pa, true
}

func rankingView(sq spec.Subquery) ranker.Subquery {
	ranked := make(map[uint64]bool, len(sq.Include))
	for _, t := range sq.Include {
		ranked[ids.TermID(t)] = true
	}
	var rs ranker.Subquery
	for _, t := range termIDs(sq.SearchTerms()) {
		rs.Terms = append(rs.Terms, ranker.Term{ID: t, Ranked: ranked[t]})
	}
	rs.Priority = termIDs(sq.Priority)
	for _, group := range sq.Coherences {
		g := make([]uint64, len(group))
		for i, t := range group {
			g[i] = ids.TermID(t)
		}
		rs.Coherences = append(rs.Coherences, g)
	}
	return rs
}

// termIDs hashes terms, dropping repeated ids.
func termIDs(terms []string) []uint64 {
	out := make([]uint64, 0, len(terms))
	for _, t := range terms {
		id := ids.TermID(t)
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// metadataFilter builds the predicate applying the domain allow-list and
// the metadata limits. It reports false when s constrains neither.
func (p *Planner) metadataFilter(gen *indexer.Generation, s spec.Spec) (query.FilterStep, bool) {
	var domains *roaring.Bitmap
	if len(s.Domains) > 0 {
		domains = roaring.BitmapOf(s.Domains...)
	}
	if s.SearchSet != "" {
		set, ok := p.sets.Lookup(s.SearchSet)
		switch {
		case !ok:
			p.logger.Warn("unknown search set, not restricting domains", "search_set", s.SearchSet)
		case domains == nil:
			domains = set
		default:
			domains = roaring.And(domains, set)
		}
	}
	hasMeta := s.HasMetadataLimits()
	if domains == nil && !hasMeta {
		return query.FilterStep{}, false
	}

	fwd := gen.Forward
	test := func(id uint64) bool {
		if domains != nil && !domains.Contains(ids.DomainID(id)) {
			return false
		}
		if !hasMeta {
			return true
		}
		meta := fwd.GetDocMeta(id)
		if !s.Year.IsNone() {
			y := meta.Year()
			if y == 0 || !s.Year.Test(y) {
				return false
			}
		}
		return s.Quality.Test(meta.Quality()) &&
			s.Size.Test(meta.SizeBucket()) &&
			s.Rank.Test(meta.Rank())
	}
	return query.Predicate(test, metadataCost, describeFilter(domains, s)), true
}

func describeFilter(domains *roaring.Bitmap, s spec.Spec) string {
	label := fmt.Sprintf("year%s quality%s size%s rank%s", s.Year, s.Quality, s.Size, s.Rank)
	if domains != nil {
		label = fmt.Sprintf("domains(%d) %s", domains.GetCardinality(), label)
	}
	return label
}
