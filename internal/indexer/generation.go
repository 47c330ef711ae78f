package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/forward"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/reverse"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/errors"
)

// Directory layout under the data dir.
const (
	CurrentDir   = "current"
	NextDir      = "next"
	ReadyMarker  = "READY"
	ManifestFile = "generation.json"
	oldPrefix    = "old-"
	failedPrefix = "failed-"
)

// Manifest describes a generation on disk. Construction writes it last,
// before the READY marker.
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Documents int       `json:"documents"`
	Languages []string  `json:"languages"`
	Journals  []string  `json:"journals,omitempty"`
	Files     []string  `json:"files"`

	// AvgDocumentSize is the mean token count, the length norm for scoring.
	AvgDocumentSize float64 `json:"avg_document_size"`
}

// ReadManifest loads the manifest of the generation in dir.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s in %s", apperrors.ErrMissingFile, ManifestFile, dir)
		}
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: parsing manifest: %v", apperrors.ErrCorruptIndex, err)
	}
	return m, nil
}

// WriteManifest writes m into dir and syncs it.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return writeSynced(filepath.Join(dir, ManifestFile), data)
}

// MarkReady writes the READY marker that makes a staged generation
// eligible for switching.
func MarkReady(dir string) error {
	return writeSynced(filepath.Join(dir, ReadyMarker), []byte(time.Now().UTC().Format(time.RFC3339)))
}

// IsReady reports whether dir holds a staged generation with its marker.
func IsReady(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ReadyMarker))
	return err == nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Generation is one loaded, immutable set of forward and reverse readers.
// It is reference counted: the container holds one reference while the
// generation is current, and every Handle holds one more.
type Generation struct {
	Manifest Manifest
	Dir      string
	Forward  *forward.Reader
	Full     *reverse.Reader
	Priority *reverse.Reader

	refs atomic.Int64

	// retired runs when the last reference is dropped. Close clears it
	// while handles may still be releasing.
	retired atomic.Pointer[func(*Generation)]
}

// OpenGeneration maps every file of the generation in dir.
func OpenGeneration(dir string, lexiconCacheSize int) (*Generation, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	fwd, err := forward.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening forward index: %w", err)
	}
	full, err := reverse.Open(dir, reverse.KindFull, lexiconCacheSize)
	if err != nil {
		fwd.Close()
		return nil, fmt.Errorf("opening full index: %w", err)
	}
	prio, err := reverse.Open(dir, reverse.KindPriority, lexiconCacheSize)
	if err != nil {
		fwd.Close()
		full.Close()
		return nil, fmt.Errorf("opening priority index: %w", err)
	}
	if fwd.TotalDocCount() != manifest.Documents {
		fwd.Close()
		full.Close()
		prio.Close()
		return nil, fmt.Errorf("%w: manifest lists %d documents, forward index has %d",
			apperrors.ErrCorruptIndex, manifest.Documents, fwd.TotalDocCount())
	}
	g := &Generation{Manifest: manifest, Dir: dir, Forward: fwd, Full: full, Priority: prio}
	g.refs.Store(1)
	return g, nil
}

// ID is the generation id from the manifest.
func (g *Generation) ID() string { return g.Manifest.ID }

// IsLoaded reports whether every reader has its files mapped.
func (g *Generation) IsLoaded() bool {
	return g.Forward.IsLoaded() && g.Full.IsLoaded() && g.Priority.IsLoaded()
}

func (g *Generation) tryIncRef() bool {
	for {
		refs := g.refs.Load()
		if refs <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

func (g *Generation) decRef() {
	if g.refs.Add(-1) != 0 {
		return
	}
	if fn := g.retired.Load(); fn != nil {
		(*fn)(g)
	}
}

// Close unmaps every reader.
func (g *Generation) Close() error {
	return errors.Join(g.Forward.Close(), g.Full.Close(), g.Priority.Close())
}
