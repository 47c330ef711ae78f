// Command loadtest drives the query service with concurrent searches over
// HTTP or the RPC port and reports throughput, latency percentiles, cache
// hits, partial answers and the generations that answered.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/proto"
)

var defaultQueries = []string{
	"distributed search",
	"\"inverted index\"",
	"ranking -spam",
	"query processing year>=2010",
	"cache optimization quality>=3",
	"posting list",
	"skip list",
	"document ranking year<2005",
	"full text search",
	"index generation",
}

type options struct {
	baseURL     string
	rpcAddr     string
	concurrency int
	duration    time.Duration
	rate        float64
	limit       int
	perDomain   int
	queries     []string
}

// searcher runs one query. Each worker owns one.
type searcher interface {
	search(ctx context.Context, query string) (proto.QueryResponse, int, error)
	close()
}

type httpSearcher struct {
	client *http.Client
	opts   options
}

func (h httpSearcher) search(ctx context.Context, query string) (proto.QueryResponse, int, error) {
	v := url.Values{"q": {query}, "limit": {fmt.Sprint(h.opts.limit)}}
	if h.opts.perDomain > 0 {
		v.Set("per_domain", fmt.Sprint(h.opts.perDomain))
	}
	var answer proto.QueryResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.baseURL+"/api/v1/search?"+v.Encode(), nil)
	if err != nil {
		return answer, 0, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return answer, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return answer, resp.StatusCode, nil
	}
	err = json.NewDecoder(resp.Body).Decode(&answer)
	return answer, resp.StatusCode, err
}

func (httpSearcher) close() {}

// rpcSearcher sends every word of the query as a required term.
type rpcSearcher struct {
	client *grpc.Client
	opts   options
}

func (r rpcSearcher) search(ctx context.Context, query string) (proto.QueryResponse, int, error) {
	var answer proto.QueryResponse
	err := r.client.Call(ctx, handler.MethodQuery, proto.QueryRequest{
		Subqueries:     []proto.Subquery{{Include: strings.Fields(query)}},
		Limit:          r.opts.limit,
		PerDomainLimit: r.opts.perDomain,
	}, &answer)
	if errors.Is(err, grpc.ErrRemote) {
		return answer, http.StatusBadRequest, nil
	}
	if err != nil {
		return answer, 0, err
	}
	return answer, http.StatusOK, nil
}

func (r rpcSearcher) close() { r.client.Close() }

// tally is one worker's results; workers never share one.
type tally struct {
	latencies   []time.Duration
	statuses    map[int]int
	failures    int
	cached      int
	partial     int
	empty       int
	generations map[string]int
}

func newTally() *tally {
	return &tally{statuses: make(map[int]int), generations: make(map[string]int)}
}

func (t *tally) record(took time.Duration, resp proto.QueryResponse, status int, err error) {
	if err != nil {
		t.failures++
		return
	}
	t.latencies = append(t.latencies, took)
	t.statuses[status]++
	if status != http.StatusOK {
		return
	}
	if resp.Cached {
		t.cached++
	}
	if resp.Partial {
		t.partial++
	}
	if len(resp.Results) == 0 {
		t.empty++
	}
	t.generations[resp.Generation]++
}

func (t *tally) merge(o *tally) {
	t.latencies = append(t.latencies, o.latencies...)
	t.failures += o.failures
	t.cached += o.cached
	t.partial += o.partial
	t.empty += o.empty
	for k, v := range o.statuses {
		t.statuses[k] += v
	}
	for k, v := range o.generations {
		t.generations[k] += v
	}
}

func run(opts options, newSearcher func() (searcher, error)) (*tally, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rate), opts.concurrency)
	}
	tallies := make([]*tally, opts.concurrency)
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := range tallies {
		s, err := newSearcher()
		if err != nil {
			return nil, 0, err
		}
		t := newTally()
		tallies[w] = t
		g.Go(func() error {
			defer s.close()
			for i := w; limiter.Wait(ctx) == nil; i++ {
				begin := time.Now()
				resp, status, err := s.search(ctx, opts.queries[i%len(opts.queries)])
				if ctx.Err() != nil {
					return nil
				}
				t.record(time.Since(begin), resp, status, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	elapsed := time.Since(start)
	total := newTally()
	for _, t := range tallies {
		total.merge(t)
	}
	return total, elapsed, nil
}

func report(w io.Writer, t *tally, elapsed time.Duration) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	answered := len(t.latencies)
	ok := t.statuses[http.StatusOK]
	fmt.Fprintf(tw, "requests\t%d\n", answered+t.failures)
	fmt.Fprintf(tw, "transport failures\t%d\n", t.failures)
	fmt.Fprintf(tw, "throughput\t%.1f req/s\n", float64(answered)/elapsed.Seconds())
	if ok > 0 {
		fmt.Fprintf(tw, "cache hits\t%d (%.1f%%)\n", t.cached, 100*float64(t.cached)/float64(ok))
		fmt.Fprintf(tw, "partial\t%d\n", t.partial)
		fmt.Fprintf(tw, "empty\t%d\n", t.empty)
	}
	if answered > 0 {
		slices.Sort(t.latencies)
		for _, p := range []float64{50, 90, 99, 100} {
			fmt.Fprintf(tw, "p%g\t%s\n", p, percentile(t.latencies, p))
		}
	}
	codes := make([]int, 0, len(t.statuses))
	for code := range t.statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(tw, "status %d\t%d\n", code, t.statuses[code])
	}
	gens := make([]string, 0, len(t.generations))
	for g := range t.generations {
		gens = append(gens, g)
	}
	slices.Sort(gens)
	for _, g := range gens {
		name := g
		if name == "" {
			name = "(none loaded)"
		}
		fmt.Fprintf(tw, "generation %s\t%d\n", name, t.generations[g])
	}
}

// percentile expects sorted input and uses the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p/100*float64(len(sorted))+0.999999) - 1
	return sorted[min(max(rank, 0), len(sorted)-1)]
}

// loadQueries reads one query per line, skipping blanks and # comments.
func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s holds no queries", path)
	}
	return out, nil
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.StringVar(&opts.rpcAddr, "rpc", "", "query over the RPC port at this address instead of HTTP")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&opts.rate, "rps", 0, "total request rate across workers (0 means unpaced)")
	flag.IntVar(&opts.limit, "limit", 10, "results per query")
	flag.IntVar(&opts.perDomain, "per-domain", 0, "results per domain (0 uses the server default)")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	opts.queries = defaultQueries
	if *queryFile != "" {
		var err error
		if opts.queries, err = loadQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
	}

	transport := &http.Transport{MaxIdleConnsPerHost: opts.concurrency}
	newSearcher := func() (searcher, error) {
		return httpSearcher{client: &http.Client{Timeout: 10 * time.Second, Transport: transport}, opts: opts}, nil
	}
	target := opts.baseURL
	if opts.rpcAddr != "" {
		target = "rpc://" + opts.rpcAddr
		newSearcher = func() (searcher, error) {
			c, err := grpc.Dial(opts.rpcAddr)
			if err != nil {
				return nil, err
			}
			return rpcSearcher{client: c, opts: opts}, nil
		}
	}

	fmt.Printf("load test: %s, %d workers, %s", target, opts.concurrency, opts.duration)
	if opts.rate > 0 {
		fmt.Printf(", %.0f req/s", opts.rate)
	}
	fmt.Println()

	t, elapsed, err := run(opts, newSearcher)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	report(os.Stdout, t, elapsed)
	if len(t.latencies) == 0 {
		fmt.Fprintln(os.Stderr, "no request was answered; is the service running?")
		os.Exit(1)
	}
}
