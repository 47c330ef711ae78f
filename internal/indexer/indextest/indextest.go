// Package indextest builds small on-disk index generations for tests
// through the real journal and construction path.
package indextest

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/construct"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
)

// Language of every fixture document.
const Language = "en"

// DefaultYear is the publication year of fixture documents.
const DefaultYear = 2010

// Doc builds a document from title and body text.
func Doc(domain, ordinal uint32, title, body string) journal.Document {
	return journal.Document{
		DomainID: domain,
		Ordinal:  ordinal,
		Language: Language,
		Meta:     ids.NewDocMeta(0, DefaultYear, 1, 0, 0),
		Size:     uint32(len(tokenizer.Tokenize(title)) + len(tokenizer.Tokenize(body))),
		Keywords: tokenizer.Keywords(title, body),
	}
}

// WithMeta replaces the metadata word of doc.
func WithMeta(doc journal.Document, rank, year, size, quality int) journal.Document {
	doc.Meta = ids.NewDocMeta(rank, year, size, quality, 0)
	return doc
}

// DivisorDocs returns documents 1..n of domain 1, document i carrying every
// divisor of i as a keyword.
func DivisorDocs(n int) []journal.Document {
	docs := make([]journal.Document, 0, n)
	for i := 1; i <= n; i++ {
		var divisors []string
		for d := 1; d <= i; d++ {
			if i%d == 0 {
				divisors = append(divisors, strconv.Itoa(d))
			}
		}
		docs = append(docs, Doc(1, uint32(i), "", strings.Join(divisors, " ")))
	}
	return docs
}

// Stage converts docs into a staged generation under dir.
func Stage(t testing.TB, dir string, docs []journal.Document) indexer.Manifest {
	t.Helper()
	m, err := construct.ConvertDocuments(context.Background(), construct.Options{DataDir: dir}, docs)
	require.NoError(t, err)
	return m
}

// Generation builds docs and opens the result directly, without a
// container. It is closed when the test ends.
func Generation(t testing.TB, docs []journal.Document) *indexer.Generation {
	t.Helper()
	dir := t.TempDir()
	Stage(t, dir, docs)
	gen, err := indexer.OpenGeneration(filepath.Join(dir, indexer.NextDir), 0)
	require.NoError(t, err)
	t.Cleanup(func() { gen.Close() })
	return gen
}

// Index builds docs and loads them into a container. It is closed when
// the test ends.
func Index(t testing.TB, docs []journal.Document) *indexer.Index {
	t.Helper()
	dir := t.TempDir()
	Stage(t, dir, docs)
	x := Empty(t, dir)
	require.NoError(t, x.Init(context.Background()))
	require.True(t, x.IsLoaded())
	return x
}

// Empty returns a container over dir without loading anything.
func Empty(t testing.TB, dir string) *indexer.Index {
	t.Helper()
	x, err := indexer.NewIndex(config.IndexConfig{
		DataDir:          dir,
		LoadTimeout:      time.Second,
		LoadPollInterval: time.Millisecond,
	}, metrics.NewUnregistered())
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}
