package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/mmap"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/resilience"
)

// Index owns the serving generation. Readers take a Handle, which pins a
// generation until released; SwitchIndex promotes the staged generation
// under <dataDir>/next without blocking readers.
type Index struct {
	cfg     config.IndexConfig
	current atomic.Pointer[Generation]
	swapMu  sync.Mutex
	closer  *mmap.DeferredCloser
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	listenersMu sync.RWMutex
	listeners   []func(*Generation)
}

// NewIndex creates an empty container. Call Init to load the first
// generation.
func NewIndex(cfg config.IndexConfig, m *metrics.Metrics) (*Index, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	return &Index{
		cfg:     cfg,
		closer:  mmap.NewDeferredCloser(),
		metrics: m,
		logger:  slog.Default().With("component", "index"),
	}, nil
}

// OnSwitch registers fn to run after every successful generation switch.
func (x *Index) OnSwitch(fn func(*Generation)) {
	x.listenersMu.Lock()
	defer x.listenersMu.Unlock()
	x.listeners = append(x.listeners, fn)
}

// Init loads the first generation if none is loaded. It is idempotent.
// With no generation on disk the index stays unloaded and Init succeeds.
func (x *Index) Init(ctx context.Context) error {
	if x.current.Load() != nil {
		return nil
	}
	x.swapMu.Lock()
	if x.current.Load() != nil {
		x.swapMu.Unlock()
		return nil
	}
	currentDir := filepath.Join(x.cfg.DataDir, CurrentDir)
	if _, err := os.Stat(filepath.Join(currentDir, ManifestFile)); err == nil {
		defer x.swapMu.Unlock()
		gen, err := x.load(ctx, currentDir)
		if err != nil {
			x.logger.Error("loading current generation failed", "dir", currentDir, "error", err)
			return err
		}
		x.publish(gen)
		return nil
	}
	x.swapMu.Unlock()

	if IsReady(filepath.Join(x.cfg.DataDir, NextDir)) {
		return x.SwitchIndex(ctx)
	}
	x.logger.Warn("no index generation available", "data_dir", x.cfg.DataDir)
	return nil
}

// SwitchIndex promotes the staged generation to current. Concurrent calls
// share one switch. On failure the previous generation keeps serving.
func (x *Index) SwitchIndex(ctx context.Context) error {
	_, err, _ := x.group.Do("switch", func() (any, error) {
		return nil, x.switchIndex(ctx)
	})
	return err
}

func (x *Index) switchIndex(ctx context.Context) error {
	x.swapMu.Lock()
	defer x.swapMu.Unlock()

	start := time.Now()
	err := x.promote(ctx)
	status := "ok"
	if err != nil {
		status = "failed"
		x.logger.Error("index switch failed, previous generation keeps serving", "error", err)
		err = fmt.Errorf("%w: %w", apperrors.ErrSwapFailed, err)
	}
	if x.metrics != nil {
		x.metrics.IndexSwitchesTotal.WithLabelValues(status).Inc()
		x.metrics.IndexSwitchDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (x *Index) promote(ctx context.Context) error {
	nextDir := filepath.Join(x.cfg.DataDir, NextDir)
	currentDir := filepath.Join(x.cfg.DataDir, CurrentDir)
	if !IsReady(nextDir) {
		return fmt.Errorf("%w: no staged generation in %s", apperrors.ErrMissingFile, nextDir)
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	oldDir := filepath.Join(x.cfg.DataDir, oldPrefix+stamp)
	hadCurrent := false
	if _, err := os.Stat(currentDir); err == nil {
		if err := os.Rename(currentDir, oldDir); err != nil {
			return fmt.Errorf("retiring current generation directory: %w", err)
		}
		hadCurrent = true
	}
	if err := os.Rename(nextDir, currentDir); err != nil {
		x.rollback(currentDir, oldDir, hadCurrent, "")
		return fmt.Errorf("promoting staged generation: %w", err)
	}

	gen, err := x.load(ctx, currentDir)
	if err != nil {
		x.rollback(currentDir, oldDir, hadCurrent, filepath.Join(x.cfg.DataDir, failedPrefix+stamp))
		return err
	}

	prev := x.publish(gen)
	prevID := ""
	if prev != nil {
		// prev.Dir was renamed to oldDir; its mappings stay valid.
		prevID = prev.ID()
	}
	x.logger.Info("index generation switched",
		"generation", gen.ID(),
		"previous", prevID,
		"documents", gen.Manifest.Documents,
	)
	x.pruneOld()
	return nil
}

// load opens dir and waits until every reader reports itself loaded.
func (x *Index) load(ctx context.Context, dir string) (*Generation, error) {
	gen, err := OpenGeneration(dir, x.cfg.LexiconCacheSize)
	if err != nil {
		return nil, err
	}
	if err := resilience.WaitUntil(ctx, x.cfg.LoadTimeout, x.cfg.LoadPollInterval, "index-load", gen.IsLoaded); err != nil {
		gen.Close()
		return nil, fmt.Errorf("waiting for generation %s to load: %w", gen.ID(), err)
	}
	return gen, nil
}

// rollback restores the directory layout after a failed promotion. The
// staged generation is parked under failedDir, or moved back to next when
// failedDir is empty.
func (x *Index) rollback(currentDir, oldDir string, hadCurrent bool, failedDir string) {
	if _, err := os.Stat(currentDir); err == nil {
		target := failedDir
		if target == "" {
			target = filepath.Join(x.cfg.DataDir, NextDir)
		}
		if err := os.Rename(currentDir, target); err != nil {
			x.logger.Error("rollback: moving staged generation aside failed", "error", err)
			return
		}
	}
	if hadCurrent {
		if err := os.Rename(oldDir, currentDir); err != nil {
			x.logger.Error("rollback: restoring current generation directory failed", "error", err)
		}
	}
}

// publish makes gen current and retires the previous generation, whose
// readers are closed after the last handle is released and the grace
// period has passed.
func (x *Index) publish(gen *Generation) *Generation {
	retire := x.retire
	gen.retired.Store(&retire)
	prev := x.current.Swap(gen)
	if x.metrics != nil {
		x.metrics.IndexGeneration.Set(float64(gen.Manifest.CreatedAt.Unix()))
		x.metrics.IndexDocuments.Set(float64(gen.Manifest.Documents))
	}
	if prev != nil {
		prev.decRef()
	}

	x.listenersMu.RLock()
	listeners := append([]func(*Generation){}, x.listeners...)
	x.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(gen)
	}
	return prev
}

func (x *Index) retire(g *Generation) {
	x.closer.Schedule(g, x.cfg.CloseGracePeriod)
	if x.metrics != nil {
		x.metrics.PendingCloses.Set(float64(x.closer.Pending()))
	}
	x.logger.Info("index generation retired", "generation", g.ID(), "grace_period", x.cfg.CloseGracePeriod)
}

// pruneOld removes retired generation directories beyond the configured
// number to keep.
func (x *Index) pruneOld() {
	entries, err := os.ReadDir(x.cfg.DataDir)
	if err != nil {
		x.logger.Warn("listing data directory failed", "error", err)
		return
	}
	var old []string
	for _, e := range entries {
		if e.IsDir() && (strings.HasPrefix(e.Name(), oldPrefix) || strings.HasPrefix(e.Name(), failedPrefix)) {
			old = append(old, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(old)))
	keep := max(x.cfg.KeepOldGenerations, 0)
	kept := 0
	for _, name := range old {
		if strings.HasPrefix(name, oldPrefix) && kept < keep {
			kept++
			continue
		}
		if err := os.RemoveAll(filepath.Join(x.cfg.DataDir, name)); err != nil {
			x.logger.Warn("removing retired generation failed", "dir", name, "error", err)
		}
	}
}

// Get pins the current generation. The handle is unavailable when no
// generation has loaded; it must be released either way.
func (x *Index) Get() *Handle {
	for {
		gen := x.current.Load()
		if gen == nil {
			return &Handle{}
		}
		if gen.tryIncRef() {
			return &Handle{gen: gen}
		}
		// Lost a race with a switch that retired gen; the new one is
		// already published.
		runtime.Gosched()
	}
}

// IsLoaded reports whether a generation is serving.
func (x *Index) IsLoaded() bool {
	gen := x.current.Load()
	return gen != nil && gen.IsLoaded()
}

// GenerationID is the id of the serving generation, or "" when none has
// loaded. A switch may publish another generation right after it returns.
func (x *Index) GenerationID() string {
	if gen := x.current.Load(); gen != nil {
		return gen.ID()
	}
	return ""
}

// Status summarises the serving generation.
type Status struct {
	Loaded        bool      `json:"loaded"`
	Generation    string    `json:"generation,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	Documents     int       `json:"documents"`
	Languages     []string  `json:"languages,omitempty"`
	PendingCloses int       `json:"pending_closes"`
	StagedReady   bool      `json:"staged_ready"`
}

// Status reports the serving generation and staged state.
func (x *Index) Status() Status {
	st := Status{
		PendingCloses: x.closer.Pending(),
		StagedReady:   IsReady(filepath.Join(x.cfg.DataDir, NextDir)),
	}
	h := x.Get()
	defer h.Release()
	if !h.Available() {
		return st
	}
	g := h.Generation()
	st.Loaded = g.IsLoaded()
	st.Generation = g.ID()
	st.CreatedAt = g.Manifest.CreatedAt
	st.Documents = g.Manifest.Documents
	st.Languages = g.Full.Languages()
	return st
}

// Close unpublishes the current generation and closes every generation,
// including those still in their grace period. It is meant for shutdown,
// after queries have drained.
func (x *Index) Close() error {
	x.swapMu.Lock()
	defer x.swapMu.Unlock()
	var errs []error
	if gen := x.current.Swap(nil); gen != nil {
		gen.retired.Store(nil)
		errs = append(errs, gen.Close())
	}
	errs = append(errs, x.closer.Close())
	return errors.Join(errs...)
}

// Handle pins one generation for the duration of a query.
type Handle struct {
	gen      *Generation
	released atomic.Bool
}

// Available reports whether the handle refers to a generation.
func (h *Handle) Available() bool {
	return h.gen != nil
}

// Generation returns the pinned generation, or nil.
func (h *Handle) Generation() *Generation {
	return h.gen
}

// Release unpins the generation. It is safe to call more than once.
func (h *Handle) Release() {
	if h.gen == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.gen.decRef()
}
