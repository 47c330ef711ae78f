// Package e2e contains end-to-end tests against a running searcher: health,
// search, caching and the stage-then-switch generation lifecycle.
//
// Prerequisites:
//   - a searcher listening on E2E_SEARCHER_URL with its RPC listener enabled
//   - for the switch test, E2E_DATA_DIR pointing at the searcher's index
//     data directory
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/journal"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/construct"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/proto"
)

type e2eConfig struct {
	SearcherURL string
	RPCAddr     string
	DataDir     string
	Attempts    int
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		SearcherURL: envOrDefault("E2E_SEARCHER_URL", "http://localhost:8080"),
		RPCAddr:     envOrDefault("E2E_RPC_ADDR", "localhost:9091"),
		DataDir:     os.Getenv("E2E_DATA_DIR"),
		Attempts:    envOrDefaultInt("E2E_ATTEMPTS", 30),
	}
}

// TestSearcherHealth verifies the liveness and readiness probes respond.
func TestSearcherHealth(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			resp, err := client.Get(cfg.SearcherURL + path)
			if err != nil {
				t.Skipf("searcher unavailable: %v", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		})
	}
}

// TestSearchAnswersAndCaches issues a fresh query twice and expects the
// second answer from the result cache when the generation did not change.
func TestSearchAnswersAndCaches(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	q := fmt.Sprintf("search engine cachecheck%d", time.Now().UnixNano())
	first, err := search(client, cfg, q)
	if err != nil {
		t.Skipf("searcher unavailable: %v", err)
	}
	if first.Generation == "" {
		t.Skip("searcher has no generation loaded")
	}
	assert.False(t, first.Cached)

	var second proto.QueryResponse
	for attempt := 0; attempt < 20; attempt++ {
		time.Sleep(100 * time.Millisecond)
		second, err = search(client, cfg, q)
		require.NoError(t, err)
		if second.Cached || second.Generation != first.Generation {
			break
		}
	}
	if second.Generation != first.Generation {
		t.Skip("generation switched between the two queries")
	}
	if !second.Cached {
		t.Skip("result cache appears disabled")
	}
	assert.Equal(t, len(first.Results), len(second.Results))
}

// TestStageAndSwitch stages a generation with a unique word, switches the
// searcher to it over RPC and expects the word to become searchable.
func TestStageAndSwitch(t *testing.T) {
	cfg := loadE2EConfig()
	if cfg.DataDir == "" {
		t.Skip("E2E_DATA_DIR not set")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	rpc, err := grpc.Dial(cfg.RPCAddr)
	if err != nil {
		t.Skipf("searcher rpc unavailable: %v", err)
	}
	defer rpc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var before proto.StatusResponse
	require.NoError(t, rpc.Call(ctx, handler.MethodStatus, nil, &before))

	unique := fmt.Sprintf("e2etest%d", time.Now().UnixNano())
	doc := journal.Document{
		DomainID: 1,
		Ordinal:  1,
		Language: "en",
		Meta:     ids.NewDocMeta(0, 2020, 1, 0, 0),
		Size:     6,
		Keywords: tokenizer.Keywords(unique+" document", "an end-to-end test document"),
	}
	path, err := construct.WriteJournal(cfg.DataDir, []journal.Document{doc})
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })
	_, err = construct.Convert(ctx, construct.Options{DataDir: cfg.DataDir}, []string{path})
	require.NoError(t, err)

	var sw proto.SwitchResponse
	require.NoError(t, rpc.Call(ctx, handler.MethodSwitch, nil, &sw))
	require.True(t, sw.Success, sw.Message)
	assert.NotEqual(t, before.Generation, sw.Generation)

	var found bool
	for attempt := 0; attempt < cfg.Attempts && !found; attempt++ {
		resp, err := search(client, cfg, unique)
		if err != nil {
			t.Logf("attempt %d: search failed: %v", attempt, err)
			time.Sleep(time.Second)
			continue
		}
		found = len(resp.Results) == 1 && resp.Generation == sw.Generation
		if !found {
			time.Sleep(time.Second)
		}
	}
	assert.True(t, found, "staged document not served after switch to %s", sw.Generation)
}

func search(client *http.Client, cfg e2eConfig, q string) (proto.QueryResponse, error) {
	var out proto.QueryResponse
	resp, err := client.Get(cfg.SearcherURL + "/api/v1/search?q=" + url.QueryEscape(q) + "&limit=10")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return out, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
