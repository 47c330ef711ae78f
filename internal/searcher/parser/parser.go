// Package parser turns a free-text query into a spec.Spec.
//
// Syntax, whitespace separated:
//
//	word          include
//	-word, NOT w  exclude
//	?word         advice (required, unranked)
//	~word         priority (optional, boosts)
//	"a b c"       phrase: includes plus a coherence group
//	OR            starts another subquery
//	year<2000     metadata limit; also quality, size, rank with <, <=, >, >=, =
//	site:N        restrict to domain id N (repeatable)
//	set:NAME      restrict to a named search set
//	lang:xx       query language
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/spec"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

type termKind int

const (
	kindInclude termKind = iota
	kindExclude
	kindAdvice
	kindPriority
)

// Parse reads q. Limits and timeouts are left for the caller to fill in.
func Parse(q string) (spec.Spec, error) {
	var s spec.Spec
	current := spec.Subquery{}
	flush := func() {
		if len(current.Include)+len(current.Exclude)+len(current.Advice)+len(current.Priority) > 0 {
			s.Subqueries = append(s.Subqueries, current)
		}
		current = spec.Subquery{}
	}

	fields := splitFields(q)
	excludeNext := false
	for _, f := range fields {
		if f.phrase {
			words := words(f.text)
			current.Include = append(current.Include, words...)
			if len(words) > 1 {
				current.Coherences = append(current.Coherences, words)
			}
			continue
		}
		switch strings.ToUpper(f.text) {
		case "AND":
			continue
		case "OR":
			flush()
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		handled, err := parseOperator(&s, f.text)
		if err != nil {
			return spec.Spec{}, err
		}
		if handled {
			continue
		}

		kind, text := kindInclude, f.text
		switch text[0] {
		case '-':
			kind, text = kindExclude, text[1:]
		case '?':
			kind, text = kindAdvice, text[1:]
		case '~':
			kind, text = kindPriority, text[1:]
		}
		if excludeNext {
			kind, excludeNext = kindExclude, false
		}
		for _, w := range words(text) {
			switch kind {
			case kindExclude:
				current.Exclude = append(current.Exclude, w)
			case kindAdvice:
				current.Advice = append(current.Advice, w)
			case kindPriority:
				current.Priority = append(current.Priority, w)
			default:
				current.Include = append(current.Include, w)
			}
		}
	}
	flush()
	return s.Normalize(), nil
}

type field struct {
	text   string
	phrase bool
}

// splitFields splits on whitespace, keeping double-quoted phrases whole.
func splitFields(q string) []field {
	var out []field
	for {
		q = strings.TrimSpace(q)
		if q == "" {
			return out
		}
		if q[0] == '"' {
			end := strings.IndexByte(q[1:], '"')
			if end < 0 {
				out = append(out, field{text: q[1:], phrase: true})
				return out
			}
			out = append(out, field{text: q[1 : end+1], phrase: true})
			q = q[end+2:]
			continue
		}
		end := strings.IndexFunc(q, unicode.IsSpace)
		if end < 0 {
			end = len(q)
		}
		out = append(out, field{text: q[:end]})
		q = q[end:]
	}
}

// words splits raw text the same way the tokenizer does, without
// normalizing.
func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var limitFields = []string{"year", "quality", "size", "rank"}

func parseOperator(s *spec.Spec, text string) (bool, error) {
	lower := strings.ToLower(text)
	for _, name := range limitFields {
		if !strings.HasPrefix(lower, name) || len(lower) == len(name) {
			continue
		}
		rest := lower[len(name):]
		if !strings.ContainsAny(rest[:1], "<>=") {
			continue
		}
		limit, err := query.ParseLimit(rest)
		if err != nil {
			return false, fmt.Errorf("%w: %s limit: %v", apperrors.ErrInvalidInput, name, err)
		}
		switch name {
		case "year":
			s.Year = limit
		case "quality":
			s.Quality = limit
		case "size":
			s.Size = limit
		case "rank":
			s.Rank = limit
		}
		return true, nil
	}

	key, value, ok := strings.Cut(lower, ":")
	if !ok || value == "" {
		return false, nil
	}
	switch key {
	case "site", "domain":
		id, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return false, fmt.Errorf("%w: domain id %q", apperrors.ErrInvalidInput, value)
		}
		s.Domains = append(s.Domains, uint32(id))
	case "set":
		s.SearchSet = value
	case "lang":
		s.Language = value
	default:
		return false, nil
	}
	return true, nil
}
