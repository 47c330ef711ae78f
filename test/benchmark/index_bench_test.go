// Package benchmark contains Go benchmarks for journal writing, generation
// construction and query execution, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/construct"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/indextest"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/postings"
)

var vocabulary = []string{
	"distributed", "search", "engine", "index", "query", "ranking",
	"posting", "generation", "journal", "forward", "reverse", "lexicon",
	"priority", "domain", "ordinal", "budget", "merge", "cache",
}

// corpus returns n documents spread over domains, each mixing a rotating
// window of the vocabulary.
func corpus(n int) []journal.Document {
	docs := make([]journal.Document, 0, n)
	for i := 0; i < n; i++ {
		title := vocabulary[i%len(vocabulary)] + " " + vocabulary[(i+3)%len(vocabulary)]
		body := ""
		for j := 0; j < 12; j++ {
			body += vocabulary[(i*7+j)%len(vocabulary)] + " "
		}
		doc := indextest.Doc(uint32(i%50+1), uint32(i/50+1), title, body)
		docs = append(docs, indextest.WithMeta(doc, 0, 2000+i%25, 1, i%10))
	}
	return docs
}

// BenchmarkJournalAppend measures encoding and framing journal records.
func BenchmarkJournalAppend(b *testing.B) {
	docs := corpus(1000)
	w, err := journal.NewWriter(io.Discard)
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := w.Append(docs[i%len(docs)]); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAccumulatorAdd measures per-document insert throughput into the
// construction-time posting accumulator.
func BenchmarkAccumulatorAdd(b *testing.B) {
	docs := corpus(1000)
	acc := postings.New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doc := docs[i%len(docs)]
		acc.AddDocument(ids.MustEncodeID(doc.DomainID, uint32(i+1)), doc)
	}
}

// BenchmarkConvert measures building a whole generation at various corpus
// sizes.
func BenchmarkConvert(b *testing.B) {
	for _, n := range []int{100, 1000, 5000} {
		docs := corpus(n)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				dir := b.TempDir()
				if _, err := construct.ConvertDocuments(context.Background(), construct.Options{DataDir: dir}, docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
