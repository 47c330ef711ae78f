// Package executor runs planned queries concurrently against the serving
// index generation.
//
// Lookup tasks, one per query head, run on a shared worker pool. Each
// pulls bounded batches of candidate ids from its head and offers them on
// a small per-query queue. A fixed number of ranking workers drain that
// queue, score each batch and merge the survivors into the query's best
// results. Every blocking step is bounded by the query deadline; once it
// passes, lookups stop scanning and the query returns what it has.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/planner"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/spec"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
)

// Query outcomes, as recorded in metrics and logs.
const (
	OutcomeOK         = "ok"
	OutcomePartial    = "partial"
	OutcomeZeroResult = "zero_result"
	OutcomeNotLoaded  = "not_loaded"
	OutcomeRejected   = "rejected"
)

// Index is the container queries pin generations from.
type Index interface {
	Get() *indexer.Handle
}

// Response is the outcome of one query. Queries that cannot be served
// produce an empty response rather than an error.
type Response struct {
	Generation string
	Results    []ranker.Result
	// Candidates is the number of distinct documents that reached ranking.
	Candidates int
	Heads      int
	Partial    bool
	Outcome    string
	Latency    time.Duration
}

// Executor runs queries. It is safe for concurrent use.
type Executor struct {
	index   Index
	planner *planner.Planner
	pool    *WorkerPool
	sem     *semaphore.Weighted
	// ranking bounds batches being ranked at once across all queries.
	ranking *semaphore.Weighted
	cfg     config.QueryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an executor. Zero config values take their defaults. m may
// be nil.
func New(index Index, p *planner.Planner, cfg config.QueryConfig, m *metrics.Metrics) *Executor {
	cfg = withDefaults(cfg)
	return &Executor{
		index:   index,
		planner: p,
		pool:    NewWorkerPool(cfg.LookupWorkers),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries)),
		ranking: semaphore.NewWeighted(int64(cfg.RankingWorkers)),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func withDefaults(cfg config.QueryConfig) config.QueryConfig {
	procs := runtime.GOMAXPROCS(0)
	if cfg.RankingWorkers <= 0 {
		cfg.RankingWorkers = procs
	}
	if cfg.LookupWorkers <= 0 {
		cfg.LookupWorkers = procs * 2
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 512
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 150 * time.Millisecond
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 5 * time.Second
	}
	if cfg.MaxConcurrentQueries <= 0 {
		cfg.MaxConcurrentQueries = 64
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxResultCapacity <= 0 {
		cfg.MaxResultCapacity = 1000
	}
	return cfg
}

// Close stops the lookup pool. In-flight queries finish first.
func (e *Executor) Close() {
	e.pool.Close()
}

// Timeout is the budget a query with spec timeout t gets.
func (e *Executor) Timeout(t time.Duration) time.Duration {
	if t <= 0 {
		t = e.cfg.DefaultTimeout
	}
	return min(t, e.cfg.MaxTimeout)
}

// Execute runs s against the serving generation.
func (e *Executor) Execute(ctx context.Context, s spec.Spec) (*Response, error) {
	budget := query.NewBudget(e.Timeout(s.Limits.Timeout))
	ctx, cancel := context.WithDeadline(ctx, budget.Deadline())
	defer cancel()

	resp := &Response{Results: []ranker.Result{}}
	defer func() {
		resp.Latency = budget.Elapsed()
		e.record(resp)
	}()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		resp.Outcome = OutcomeRejected
		resp.Partial = true
		return resp, nil
	}
	defer e.sem.Release(1)
	if e.metrics != nil {
		e.metrics.QueriesInFlight.Inc()
		defer e.metrics.QueriesInFlight.Dec()
	}

	h := e.index.Get()
	defer h.Release()
	if !h.Available() {
		resp.Outcome = OutcomeNotLoaded
		return resp, nil
	}
	gen := h.Generation()
	resp.Generation = gen.ID()

	plan := e.planner.Plan(gen, s)
	resp.Heads = len(plan.Heads)
	if plan.IsEmpty() {
		resp.Outcome = OutcomeZeroResult
		return resp, nil
	}

	total := s.Limits.Total
	if total <= 0 {
		total = e.cfg.DefaultLimit
	}
	total = min(total, e.cfg.MaxResultCapacity)
	capacity := total
	if s.Limits.PerDomain > 0 {
		capacity = e.cfg.MaxResultCapacity
	}

	best := merger.New(capacity)
	partial := e.run(ctx, budget, plan, ranker.New(gen, s.Language, plan.Ranking), best)

	resp.Results = best.Results(total, s.Limits.PerDomain)
	resp.Candidates = best.Seen()
	resp.Partial = partial
	switch {
	case partial:
		resp.Outcome = OutcomePartial
	case len(resp.Results) == 0:
		resp.Outcome = OutcomeZeroResult
	default:
		resp.Outcome = OutcomeOK
	}
	return resp, nil
}

// run scans every head and ranks what they produce. It returns once every
// lookup task and every ranking worker has finished, and reports whether
// any of them stopped early.
func (e *Executor) run(ctx context.Context, budget query.Budget, plan planner.Plan, rk *ranker.Ranker, best *merger.Collection) bool {
	queue := make(chan []uint64, e.cfg.QueueCapacity)
	var partial atomic.Bool

	var ranking errgroup.Group
	for i := 0; i < e.cfg.RankingWorkers; i++ {
		ranking.Go(func() error {
			return e.rank(ctx, budget, queue, rk, best, &partial)
		})
	}

	var lookups sync.WaitGroup
	for _, head := range plan.Heads {
		lookups.Add(1)
		err := e.pool.Submit(ctx, func() {
			defer lookups.Done()
			e.lookup(ctx, budget, head, queue, &partial)
		})
		if err != nil {
			lookups.Done()
			partial.Store(true)
			if errors.Is(err, ErrPoolClosed) {
				e.logger.Warn("lookup not scheduled", "head", head.String(), "error", err)
			}
		}
	}
	lookupsDone := make(chan struct{})
	go func() {
		lookups.Wait()
		close(queue)
		close(lookupsDone)
	}()

	rankErr := ranking.Wait()
	<-lookupsDone
	if rankErr != nil {
		e.logger.Error("ranking failed", "error", rankErr)
		partial.Store(true)
	}
	return partial.Load()
}

func (e *Executor) lookup(ctx context.Context, budget query.Budget, head *query.Head, queue chan<- []uint64, partial *atomic.Bool) {
	buf := query.NewBuffer(e.cfg.BatchSize)
	for head.HasMore() {
		if !budget.HasTimeLeft() || ctx.Err() != nil {
			partial.Store(true)
			return
		}
		if err := head.GetMoreResults(buf); err != nil {
			e.logger.Error("scanning query head failed", "head", head.String(), "error", err)
			partial.Store(true)
			return
		}
		if buf.IsEmpty() {
			continue
		}
		select {
		case queue <- buf.Copy():
			if e.metrics != nil {
				e.metrics.LookupBatchesTotal.Inc()
			}
		case <-ctx.Done():
			if e.metrics != nil {
				e.metrics.QueueOfferTimeouts.Inc()
			}
			partial.Store(true)
			return
		}
	}
}

func (e *Executor) rank(ctx context.Context, budget query.Budget, queue <-chan []uint64, rk *ranker.Ranker, best *merger.Collection, partial *atomic.Bool) error {
	for {
		select {
		case batch, ok := <-queue:
			if !ok {
				return nil
			}
			if !budget.HasTimeLeft() {
				partial.Store(true)
				continue
			}
			if err := e.ranking.Acquire(ctx, 1); err != nil {
				partial.Store(true)
				continue
			}
			results, err := rk.Rank(batch)
			e.ranking.Release(1)
			if err != nil {
				return fmt.Errorf("ranking batch of %d: %w", len(batch), err)
			}
			best.Merge(results)
		case <-ctx.Done():
			partial.Store(true)
			return nil
		}
	}
}

func (e *Executor) record(resp *Response) {
	if resp.Outcome != OutcomeRejected && resp.Outcome != OutcomeNotLoaded {
		e.logger.Info("query executed",
			"generation", resp.Generation,
			"heads", resp.Heads,
			"candidates", resp.Candidates,
			"results", len(resp.Results),
			"outcome", resp.Outcome,
			"latency_ms", resp.Latency.Milliseconds(),
		)
	}
	if e.metrics == nil {
		return
	}
	e.metrics.QueriesTotal.WithLabelValues(resp.Outcome).Inc()
	e.metrics.QueryLatency.WithLabelValues("miss").Observe(resp.Latency.Seconds())
	e.metrics.QueryResultsCount.Observe(float64(len(resp.Results)))
	e.metrics.QueryHeads.Observe(float64(resp.Heads))
	if resp.Partial {
		e.metrics.BudgetExhaustedTotal.Inc()
	}
}
