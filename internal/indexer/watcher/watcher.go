// Package watcher switches the index when a staged generation appears in
// the data directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
)

// DefaultDebounce collapses the burst of events a rename or marker write
// produces.
const DefaultDebounce = 100 * time.Millisecond

// Switcher promotes a staged generation.
type Switcher interface {
	SwitchIndex(ctx context.Context) error
}

// Watcher watches <dataDir> and <dataDir>/next for the READY marker.
type Watcher struct {
	dataDir  string
	switcher Switcher
	debounce time.Duration
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	switches int
	wg       sync.WaitGroup
}

// New creates a watcher on dataDir. A zero debounce uses DefaultDebounce.
func New(dataDir string, switcher Switcher, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}
	if err := fsw.Add(dataDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dataDir, err)
	}
	return &Watcher{
		dataDir:  dataDir,
		switcher: switcher,
		debounce: debounce,
		fsw:      fsw,
		logger:   slog.Default().With("component", "generation-watcher"),
	}, nil
}

// Run handles events until ctx is done. A generation already staged when
// Run starts is switched to right away.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.fsw.Close()

	next := filepath.Join(w.dataDir, indexer.NextDir)
	w.watchNext(next)
	if indexer.IsReady(next) {
		w.schedule(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.stopTimer()
			w.mu.Unlock()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev, next)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, next string) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	switch filepath.Clean(ev.Name) {
	case next:
		w.watchNext(next)
	case filepath.Join(next, indexer.ReadyMarker):
	default:
		return
	}
	if indexer.IsReady(next) {
		w.schedule(ctx)
	}
}

// watchNext adds the staged directory itself so a marker written after
// the directory appeared is seen.
func (w *Watcher) watchNext(next string) {
	if err := w.fsw.Add(next); err != nil {
		w.logger.Debug("staged directory not watchable yet", "error", err)
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopTimer()
	w.wg.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		if ctx.Err() != nil || !indexer.IsReady(filepath.Join(w.dataDir, indexer.NextDir)) {
			return
		}
		w.logger.Info("staged generation detected, switching")
		if err := w.switcher.SwitchIndex(ctx); err != nil {
			w.logger.Error("automatic index switch failed", "error", err)
			return
		}
		w.mu.Lock()
		w.switches++
		w.mu.Unlock()
	})
}

// stopTimer cancels a pending switch. Callers hold mu.
func (w *Watcher) stopTimer() {
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
}

// Switches is the number of successful switches the watcher triggered.
func (w *Watcher) Switches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.switches
}
