// Package tokenizer turns document and query text into index terms.
// Words are maximal runs of letters and digits, lower-cased; stop-words
// and single letters are dropped and the rest lose common English
// suffixes. Digit runs are kept verbatim at any length, so "5" and "511"
// stay distinct terms.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const stopList = `
	a an and are as at be but by can do each for from had has have he if
	in is it its no not of on or so that the their they this to was were
	what when where which who will with`

var stopWords = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(stopList) {
		m[w] = struct{}{}
	}
	return m
}()

// Token is an index term and its ordinal among the kept words of a text.
type Token struct {
	Term     string
	Position int
}

// Tokenize returns the terms of text in order. Positions count kept words
// only, so a dropped stop-word does not leave a gap.
func Tokenize(text string) []Token {
	var tokens []Token
	words(text, func(w string) {
		if term, ok := Normalize(w); ok {
			tokens = append(tokens, Token{Term: term, Position: len(tokens)})
		}
	})
	return tokens
}

func words(text string, fn func(string)) {
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			fn(text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		fn(text[start:])
	}
}

// Normalize maps one word to its term. It reports false for words that
// are never indexed.
func Normalize(word string) (string, bool) {
	word = strings.ToLower(word)
	switch {
	case word == "":
		return "", false
	case strings.IndexFunc(word, func(r rune) bool { return !unicode.IsDigit(r) }) < 0:
		return word, true
	case utf8.RuneCountInString(word) < 2:
		return "", false
	}
	if _, stop := stopWords[word]; stop {
		return "", false
	}
	return stem(word), true
}

// suffixRules are tried in order; the first suffix present rewrites the
// word if what is left is at least keep bytes long.
var suffixRules = [...]struct {
	suffix, with string
	keep         int
}{
	{"ational", "ate", 2}, {"tional", "tion", 2}, {"encies", "ence", 2},
	{"ances", "ance", 2}, {"ments", "ment", 2}, {"izing", "ize", 2},
	{"ating", "ate", 2}, {"iness", "y", 2}, {"ously", "ous", 2},
	{"ively", "ive", 2}, {"eness", "ene", 2},
	{"tion", "t", 3}, {"sion", "s", 3}, {"ying", "y", 2}, {"ling", "l", 3},
	{"ies", "y", 2}, {"ing", "", 3}, {"ers", "er", 2}, {"est", "", 3},
	{"ful", "", 3}, {"ous", "", 3}, {"ess", "", 3}, {"ble", "", 3},
	{"ed", "", 3}, {"er", "", 3}, {"ly", "", 3}, {"es", "", 3},
	{"ss", "ss", 2}, {"s", "", 3},
}

func stem(word string) string {
	for _, r := range suffixRules {
		base, ok := strings.CutSuffix(word, r.suffix)
		if !ok {
			continue
		}
		if out := base + r.with; len(out) >= r.keep {
			return out
		}
	}
	return word
}
