// Package reverse implements the full and priority reverse indexes: per
// language lexicons mapping term ids to skip-list posting lists, with the
// full index also carrying term flags and token positions per posting.
package reverse

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind names one of the two reverse indexes.
type Kind string

const (
	KindFull     Kind = "full"
	KindPriority Kind = "prio"
)

// RecordSize is the number of value words per posting.
func (k Kind) RecordSize() int {
	if k == KindFull {
		return 2
	}
	return 0
}

func (k Kind) docsFile() string      { return fmt.Sprintf("rev-%s.dat", k) }
func (k Kind) valuesFile() string    { return fmt.Sprintf("rev-%s.val", k) }
func (k Kind) positionsFile() string { return fmt.Sprintf("rev-%s.pos", k) }

func (k Kind) lexiconFile(lang string) string {
	return fmt.Sprintf("rev-%s-%s.lex", k, lang)
}

// Files lists the fixed files of an index of kind k. Lexicons are per
// language and discovered by LexiconGlob.
func (k Kind) Files() []string {
	files := []string{k.docsFile()}
	if k.RecordSize() > 0 {
		files = append(files, k.valuesFile(), k.positionsFile())
	}
	return files
}

// LexiconGlob matches the lexicon files of kind k in dir.
func (k Kind) LexiconGlob(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("rev-%s-*.lex", k))
}

func (k Kind) languageOf(path string) string {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, fmt.Sprintf("rev-%s-", k))
	return strings.TrimSuffix(base, ".lex")
}

const lexiconEntrySize = 24

type lexiconEntry struct {
	offset int64
	count  int
}
