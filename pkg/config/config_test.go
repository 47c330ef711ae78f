package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Query.QueueCapacity)
	assert.Equal(t, 4, cfg.Query.PriorityPathThreshold)
	assert.Equal(t, 60*time.Second, cfg.Index.CloseGracePeriod)
	assert.Positive(t, cfg.Query.RankingWorkers)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
index:
  dataDir: /srv/index
query:
  priorityPathThreshold: 2
  searchSets:
    news: [1, 2, 3]
`), 0o644))
	t.Setenv("SP_QUERY_DEFAULT_TIMEOUT", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/index", cfg.Index.DataDir)
	assert.Equal(t, 2, cfg.Query.PriorityPathThreshold)
	assert.Equal(t, []uint32{1, 2, 3}, cfg.Query.SearchSets["news"])
	assert.Equal(t, 250*time.Millisecond, cfg.Query.DefaultTimeout)
	assert.Equal(t, 8, cfg.Query.QueueCapacity)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("query:\n  queueCapacity: 0\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
