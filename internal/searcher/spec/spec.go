// Package spec is the query request model: subqueries of include,
// exclude, advice and priority terms with coherence groups, plus the
// domain and metadata constraints and result limits shared by all of them.
package spec

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/proto"
)

// DefaultLanguage is used when a request names none.
const DefaultLanguage = "en"

// Subquery is one alternative way for a document to match.
type Subquery struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	// Advice terms must be present but do not contribute to the score.
	Advice []string `json:"advice,omitempty"`
	// Priority terms are optional and raise the score when present.
	Priority []string `json:"priority,omitempty"`
	// Coherences are phrases: every term of a group must appear at
	// consecutive positions.
	Coherences [][]string `json:"coherences,omitempty"`
}

// SearchTerms are the terms a document must contain. Advice terms are
// folded in with the includes.
func (sq Subquery) SearchTerms() []string {
	out := make([]string, 0, len(sq.Include)+len(sq.Advice))
	out = append(out, sq.Include...)
	for _, t := range sq.Advice {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Limits bounds the result set and the time spent producing it.
type Limits struct {
	Total     int           `json:"total"`
	PerDomain int           `json:"per_domain,omitempty"`
	Timeout   time.Duration `json:"-"`
}

// Spec is a complete query.
type Spec struct {
	Subqueries []Subquery  `json:"subqueries"`
	Language   string      `json:"language"`
	Domains    []uint32    `json:"domains,omitempty"`
	SearchSet  string      `json:"search_set,omitempty"`
	Year       query.Limit `json:"year"`
	Quality    query.Limit `json:"quality"`
	Size       query.Limit `json:"size"`
	Rank       query.Limit `json:"rank"`
	Limits     Limits      `json:"limits"`
}

// HasMetadataLimits reports whether any range constraint is set.
func (s Spec) HasMetadataLimits() bool {
	return !s.Year.IsNone() || !s.Quality.IsNone() || !s.Size.IsNone() || !s.Rank.IsNone()
}

// FromRequest converts a wire request. Terms are normalized the way the
// indexer normalizes keywords.
func FromRequest(req proto.QueryRequest) (Spec, error) {
	s := Spec{
		Language:  req.Language,
		Domains:   req.Domains,
		SearchSet: req.SearchSet,
		Limits: Limits{
			Total:     req.Limit,
			PerDomain: req.PerDomainLimit,
			Timeout:   time.Duration(req.TimeoutMs) * time.Millisecond,
		},
	}
	for _, sq := range req.Subqueries {
		s.Subqueries = append(s.Subqueries, Subquery{
			Include:    sq.Include,
			Exclude:    sq.Exclude,
			Advice:     sq.Advice,
			Priority:   sq.Priority,
			Coherences: sq.Coherences,
		})
	}
	limits := []struct {
		name string
		raw  string
		dst  *query.Limit
	}{
		{"year", req.Year, &s.Year},
		{"quality", req.Quality, &s.Quality},
		{"size", req.Size, &s.Size},
		{"rank", req.Rank, &s.Rank},
	}
	for _, l := range limits {
		parsed, err := query.ParseLimit(l.raw)
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %s limit: %v", apperrors.ErrInvalidInput, l.name, err)
		}
		*l.dst = parsed
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Normalize returns a copy with normalized, de-duplicated terms, sorted
// domains and the default language filled in. Terms that are never
// indexed are dropped; so are coherence groups left with fewer than two
// terms.
func (s Spec) Normalize() Spec {
	out := s
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	out.Language = strings.ToLower(out.Language)
	out.Subqueries = make([]Subquery, 0, len(s.Subqueries))
	for _, sq := range s.Subqueries {
		n := Subquery{
			Include:  normalizeTerms(sq.Include),
			Exclude:  normalizeTerms(sq.Exclude),
			Advice:   normalizeTerms(sq.Advice),
			Priority: normalizeTerms(sq.Priority),
		}
		for _, group := range sq.Coherences {
			var terms []string
			for _, t := range group {
				if norm, ok := tokenizer.Normalize(t); ok {
					terms = append(terms, norm)
				}
			}
			if len(terms) >= 2 {
				n.Coherences = append(n.Coherences, terms)
			}
		}
		out.Subqueries = append(out.Subqueries, n)
	}
	if len(s.Domains) > 0 {
		out.Domains = slices.Clone(s.Domains)
		slices.Sort(out.Domains)
		out.Domains = slices.Compact(out.Domains)
	}
	return out
}

func normalizeTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		norm, ok := tokenizer.Normalize(strings.TrimSpace(t))
		if ok && !slices.Contains(out, norm) {
			out = append(out, norm)
		}
	}
	return out
}

// Validate checks that at least one subquery has terms to scan, and that
// the limits are sane.
func (s Spec) Validate() error {
	if s.Limits.Total < 0 || s.Limits.PerDomain < 0 || s.Limits.Timeout < 0 {
		return fmt.Errorf("%w: negative limit", apperrors.ErrInvalidInput)
	}
	for _, sq := range s.Subqueries {
		if len(sq.SearchTerms()) > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: query has no searchable terms", apperrors.ErrInvalidInput)
}

// Key is a canonical encoding of everything that affects results, for
// use in cache keys. Term order within a subquery does not matter. The
// spec is expected to be normalized already.
func (s Spec) Key() string {
	c := s
	c.Subqueries = make([]Subquery, len(s.Subqueries))
	for i, sq := range s.Subqueries {
		c.Subqueries[i] = Subquery{
			Include:    sorted(sq.Include),
			Exclude:    sorted(sq.Exclude),
			Advice:     sorted(sq.Advice),
			Priority:   sorted(sq.Priority),
			Coherences: sq.Coherences,
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		// Every field is a plain value; this cannot fail.
		panic(err)
	}
	return string(data)
}

func sorted(terms []string) []string {
	out := slices.Clone(terms)
	slices.Sort(out)
	return out
}
