// Package construct converts write-ahead journals into a complete index
// generation and stages it as <dataDir>/next for the container to pick up.
package construct

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/forward"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/reverse"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/postings"
)

// Stage names reported to a Heartbeat.
const (
	StageRead     = "read"
	StageForward  = "forward"
	StageFull     = "full"
	StagePriority = "priority"
	StageStage    = "stage"
)

// Heartbeat receives progress while a conversion runs. Calls are
// serialized.
type Heartbeat func(stage string, done, total int)

// Options configures a conversion.
type Options struct {
	DataDir   string
	Ranks     DomainRanks
	Heartbeat Heartbeat
}

type converter struct {
	opts     Options
	logger   *slog.Logger
	ranks    map[uint32]int
	entries  []forward.Entry
	full     *postings.Accumulator
	priority *postings.Accumulator
	langs    map[string]struct{}

	totalSize uint64
}

// Convert reads every journal and stages the resulting generation at
// <DataDir>/next, replacing any staged generation already there. Nothing
// is staged when any step fails.
func Convert(ctx context.Context, opts Options, journals []string) (indexer.Manifest, error) {
	start := time.Now()
	c := &converter{
		opts:     opts,
		logger:   slog.Default().With("component", "construct"),
		full:     postings.New(),
		priority: postings.NewFiltered(func(f ids.TermFlag) bool { return f.Any(ids.PriorityMask) }),
		langs:    make(map[string]struct{}),
	}
	if opts.Heartbeat == nil {
		c.opts.Heartbeat = func(string, int, int) {}
	} else {
		var mu sync.Mutex
		c.opts.Heartbeat = func(stage string, done, total int) {
			mu.Lock()
			defer mu.Unlock()
			opts.Heartbeat(stage, done, total)
		}
	}
	if opts.Ranks != nil {
		ranks, err := opts.Ranks.Ranks(ctx)
		if err != nil {
			return indexer.Manifest{}, fmt.Errorf("loading domain ranks: %w", err)
		}
		c.ranks = ranks
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return indexer.Manifest{}, fmt.Errorf("creating data dir: %w", err)
	}

	for i, path := range journals {
		if err := c.readJournal(ctx, path); err != nil {
			return indexer.Manifest{}, err
		}
		c.opts.Heartbeat(StageRead, i+1, len(journals))
	}

	tmp, err := os.MkdirTemp(opts.DataDir, ".construct-")
	if err != nil {
		return indexer.Manifest{}, fmt.Errorf("creating construction dir: %w", err)
	}
	staged := false
	defer func() {
		if !staged {
			os.RemoveAll(tmp)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := forward.WriteFiles(tmp, c.entries); err != nil {
			return fmt.Errorf("writing forward index: %w", err)
		}
		c.opts.Heartbeat(StageForward, 1, 1)
		return nil
	})
	g.Go(func() error { return c.writeReverse(gctx, tmp, reverse.KindFull, c.full, StageFull) })
	g.Go(func() error { return c.writeReverse(gctx, tmp, reverse.KindPriority, c.priority, StagePriority) })
	if err := g.Wait(); err != nil {
		return indexer.Manifest{}, err
	}

	manifest := indexer.Manifest{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Documents: len(c.entries),
		Languages: c.languages(),
		Journals:  baseNames(journals),
	}
	if len(c.entries) > 0 {
		manifest.AvgDocumentSize = float64(c.totalSize) / float64(len(c.entries))
	}
	if manifest.Files, err = listFiles(tmp); err != nil {
		return indexer.Manifest{}, err
	}
	if err := indexer.WriteManifest(tmp, manifest); err != nil {
		return indexer.Manifest{}, err
	}
	if err := indexer.MarkReady(tmp); err != nil {
		return indexer.Manifest{}, err
	}

	next := filepath.Join(opts.DataDir, indexer.NextDir)
	if err := os.RemoveAll(next); err != nil {
		return indexer.Manifest{}, fmt.Errorf("removing previous staged generation: %w", err)
	}
	if err := os.Rename(tmp, next); err != nil {
		return indexer.Manifest{}, fmt.Errorf("staging generation: %w", err)
	}
	staged = true
	c.opts.Heartbeat(StageStage, 1, 1)
	c.logger.Info("generation staged",
		"generation", manifest.ID,
		"documents", manifest.Documents,
		"languages", manifest.Languages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return manifest, nil
}

func (c *converter) readJournal(ctx context.Context, path string) error {
	r, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("opening journal %s: %w", filepath.Base(path), err)
	}
	defer r.Close()
	n := 0
	err = r.ForEach(func(doc journal.Document) error {
		if n++; n%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		return c.add(doc)
	})
	if err != nil {
		return fmt.Errorf("reading journal %s: %w", filepath.Base(path), err)
	}
	c.logger.Debug("journal read", "journal", filepath.Base(path), "documents", n)
	return nil
}

func (c *converter) add(doc journal.Document) error {
	id, err := doc.ID()
	if err != nil {
		return err
	}
	if rank, ok := c.ranks[doc.DomainID]; ok {
		id = ids.AddRank(id, rank)
	}
	c.entries = append(c.entries, forward.Entry{
		ID:       id,
		Meta:     doc.Meta,
		Features: doc.Features,
		Size:     doc.Size,
		Spans:    doc.Spans,
	})
	c.full.AddDocument(id, doc)
	c.priority.AddDocument(id, doc)
	c.langs[doc.Language] = struct{}{}
	c.totalSize += uint64(doc.Size)
	return nil
}

func (c *converter) writeReverse(ctx context.Context, dir string, kind reverse.Kind, acc *postings.Accumulator, stage string) error {
	w, err := reverse.NewWriter(dir, kind)
	if err != nil {
		return fmt.Errorf("creating %s index: %w", kind, err)
	}
	entries := acc.Snapshot()
	for i, e := range entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				w.Abort()
				return err
			}
		}
		if err := w.Add(e.Language, e.Term, e.Postings); err != nil {
			w.Abort()
			return fmt.Errorf("writing %s index: %w", kind, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s index: %w", kind, err)
	}
	c.opts.Heartbeat(stage, len(entries), len(entries))
	return nil
}

func (c *converter) languages() []string {
	langs := make([]string, 0, len(c.langs))
	for l := range c.langs {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing generation files: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	return files, nil
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
