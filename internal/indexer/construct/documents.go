package construct

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
)

// JournalDir is where ConvertDocuments keeps the journals it writes.
const JournalDir = "journals"

// WriteJournal writes docs to a new journal under <dataDir>/journals and
// returns its path.
func WriteJournal(dataDir string, docs []journal.Document) (string, error) {
	dir := filepath.Join(dataDir, JournalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating journal dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("journal-%s.wal", uuid.NewString()))
	w, err := journal.Create(path)
	if err != nil {
		return "", err
	}
	for _, doc := range docs {
		if err := w.Append(doc); err != nil {
			w.Close()
			os.Remove(path)
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ConvertDocuments journals docs and converts the journal in one step.
func ConvertDocuments(ctx context.Context, opts Options, docs []journal.Document) (indexer.Manifest, error) {
	path, err := WriteJournal(opts.DataDir, docs)
	if err != nil {
		return indexer.Manifest{}, err
	}
	return Convert(ctx, opts, []string{path})
}
