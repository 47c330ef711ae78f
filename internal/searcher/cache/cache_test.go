package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/spec"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ops  int
	fail error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return nil, m.fail
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops++
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = value
	return nil
}

func (m *memStore) PurgeExcept(_ context.Context, prefix, keep string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k := range m.data {
		if strings.HasPrefix(k, prefix) && !strings.HasPrefix(k, keep) {
			delete(m.data, k)
			removed++
		}
	}
	return removed, nil
}

func newCache(t *testing.T, shared Store) *QueryCache {
	t.Helper()
	c, err := New(config.CacheConfig{Enabled: true, LocalEntries: 100}, shared, metrics.NewUnregistered())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func helloSpec() spec.Spec {
	return spec.Spec{Language: "en", Subqueries: []spec.Subquery{{Include: []string{"hello"}}}}
}

func counting(gen string, partial bool, calls *int) func() (*executor.Response, error) {
	return func() (*executor.Response, error) {
		*calls++
		outcome := executor.OutcomeOK
		if partial {
			outcome = executor.OutcomePartial
		}
		return &executor.Response{
			Generation: gen,
			Results:    []ranker.Result{{ID: 7, Domain: 1, Ordinal: 7, Score: 1.5}},
			Partial:    partial,
			Outcome:    outcome,
		}, nil
	}
}

func TestCompleteResponsesAreCached(t *testing.T) {
	c := newCache(t, nil)
	ctx := context.Background()
	calls := 0

	resp, hit, err := c.GetOrCompute(ctx, "g1", helloSpec(), counting("g1", false, &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	c.local.Wait()

	again, hit, err := c.GetOrCompute(ctx, "g1", helloSpec(), counting("g1", false, &calls))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, resp.Results, again.Results)
	assert.Equal(t, 1, calls)
}

func TestPartialResponsesAreNotCached(t *testing.T) {
	store := newMemStore()
	c := newCache(t, store)
	calls := 0
	for i := 0; i < 2; i++ {
		_, hit, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g1", true, &calls))
		require.NoError(t, err)
		assert.False(t, hit)
		c.local.Wait()
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestResponsesOfAnotherGenerationAreNotCached(t *testing.T) {
	c := newCache(t, nil)
	calls := 0
	// A switch happened between reading the generation id and executing.
	_, _, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g2", false, &calls))
	require.NoError(t, err)
	c.local.Wait()
	_, hit, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g2", false, &calls))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestKeyDependsOnGenerationAndSpec(t *testing.T) {
	c := newCache(t, nil)
	s := helloSpec()
	k := c.Key("g1", s)
	assert.True(t, strings.HasPrefix(k, "search:g1:"))
	assert.Equal(t, k, c.Key("g1", helloSpec()))
	assert.NotEqual(t, k, c.Key("g2", s))

	s.Limits.Total = 5
	assert.NotEqual(t, k, c.Key("g1", s))
}

func TestSharedTierServesOtherInstances(t *testing.T) {
	store := newMemStore()
	first, second := newCache(t, store), newCache(t, store)
	calls := 0

	want, _, err := first.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g1", false, &calls))
	require.NoError(t, err)
	require.Len(t, store.data, 1)

	got, hit, err := second.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g1", false, &calls))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want.Results, got.Results)
	assert.Equal(t, 1, calls)
}

func TestPurgeSharedKeepsCurrentGeneration(t *testing.T) {
	store := newMemStore()
	c := newCache(t, store)
	for _, gen := range []string{"g1", "g2"} {
		calls := 0
		_, _, err := c.GetOrCompute(context.Background(), gen, helloSpec(), counting(gen, false, &calls))
		require.NoError(t, err)
	}
	store.data["other:g1:x"] = []byte("foreign")
	require.Len(t, store.data, 3)

	removed, err := c.PurgeShared(context.Background(), "g2")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Contains(t, store.data, c.Key("g2", helloSpec()))
	assert.Contains(t, store.data, "other:g1:x")

	removed, err = newCache(t, nil).PurgeShared(context.Background(), "g2")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSharedFailuresOpenTheBreaker(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("connection refused")
	c := newCache(t, store)

	for i := 0; i < 6; i++ {
		gen := fmt.Sprintf("g%d", i)
		calls := 0
		resp, hit, err := c.GetOrCompute(context.Background(), gen, helloSpec(), counting(gen, false, &calls))
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Len(t, resp.Results, 1)
	}
	assert.Equal(t, resilience.StateOpen, c.breaker.State())
	assert.Equal(t, 5, store.ops)
}

func TestDisabledCacheAlwaysComputes(t *testing.T) {
	c, err := New(config.CacheConfig{}, nil, nil)
	require.NoError(t, err)
	defer c.Close()
	calls := 0
	for i := 0; i < 2; i++ {
		_, hit, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g1", false, &calls))
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, calls)
}

func TestComputeErrorsPropagate(t *testing.T) {
	c := newCache(t, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), func() (*executor.Response, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

// joinInFlight starts a run whose compute blocks until the returned
// release is called, and reports its outcome on the returned channel.
func joinInFlight(c *QueryCache, leader func() (*executor.Response, error)) (release func(), done <-chan error) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), func() (*executor.Response, error) {
			close(started)
			<-unblock
			return leader()
		})
		errs <- err
	}()
	<-started
	return func() { close(unblock) }, errs
}

func TestJoinerRecomputesPartialResult(t *testing.T) {
	c := newCache(t, nil)
	leaderCalls, ownCalls := 0, 0
	release, done := joinInFlight(c, counting("g1", true, &leaderCalls))
	time.AfterFunc(20*time.Millisecond, release)

	resp, hit, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g1", false, &ownCalls))
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.False(t, hit)
	assert.Equal(t, 1, ownCalls)
	assert.False(t, resp.Partial)
	assert.Equal(t, executor.OutcomeOK, resp.Outcome)
}

func TestJoinerRecomputesAfterRunnerFailure(t *testing.T) {
	c := newCache(t, nil)
	release, done := joinInFlight(c, func() (*executor.Response, error) {
		return nil, context.Canceled
	})
	time.AfterFunc(20*time.Millisecond, release)

	ownCalls := 0
	resp, _, err := c.GetOrCompute(context.Background(), "g1", helloSpec(), counting("g1", false, &ownCalls))
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, ownCalls)
	assert.Equal(t, executor.OutcomeOK, resp.Outcome)
}

func TestCodec(t *testing.T) {
	resp := &executor.Response{Generation: "g1", Outcome: executor.OutcomeOK}
	for i := 0; i < 50; i++ {
		resp.Results = append(resp.Results, ranker.Result{ID: uint64(i), Domain: 1, Ordinal: uint32(i), Score: 1})
	}
	data, err := encode(resp)
	require.NoError(t, err)
	assert.NotZero(t, data[4], "repetitive payload should compress")

	got, err := decode(data)
	require.NoError(t, err)
	assert.Equal(t, resp.Results, got.Results)

	_, err = decode(data[:len(data)-1])
	assert.Error(t, err)
	_, err = decode([]byte{1, 2})
	assert.Error(t, err)
}
