// Package merger keeps the best results seen so far by a query.
package merger

import (
	"container/heap"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/ranker"
)

// Collection is a bounded, de-duplicating best-results set shared by the
// ranking workers of one query.
type Collection struct {
	mu       sync.Mutex
	capacity int
	heap     resultHeap
	seen     map[uint64]struct{}
}

// New returns a collection holding at most capacity results.
func New(capacity int) *Collection {
	if capacity <= 0 {
		capacity = 10
	}
	return &Collection{
		capacity: capacity,
		seen:     make(map[uint64]struct{}),
	}
}

// Merge adds batch. A document id already seen is ignored, even when its
// earlier entry has since been truncated away.
func (c *Collection) Merge(batch []ranker.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range batch {
		if _, dup := c.seen[r.ID]; dup {
			continue
		}
		c.seen[r.ID] = struct{}{}
		if c.heap.Len() < c.capacity {
			heap.Push(&c.heap, r)
			continue
		}
		if ranker.Compare(r, c.heap[0]) < 0 {
			c.heap[0] = r
			heap.Fix(&c.heap, 0)
		}
	}
}

// Len is the number of retained results.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heap.Len()
}

// Seen is the number of distinct documents offered.
func (c *Collection) Seen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Results returns up to total results best first, with at most perDomain
// from any one domain when perDomain is positive.
func (c *Collection) Results(total, perDomain int) []ranker.Result {
	c.mu.Lock()
	all := slices.Clone(c.heap)
	c.mu.Unlock()

	slices.SortFunc(all, ranker.Compare)
	if total <= 0 || total > len(all) {
		total = len(all)
	}
	if perDomain <= 0 {
		return all[:total]
	}
	out := make([]ranker.Result, 0, total)
	counts := make(map[uint32]int)
	for _, r := range all {
		if len(out) == total {
			break
		}
		if counts[r.Domain] >= perDomain {
			continue
		}
		counts[r.Domain]++
		out = append(out, r)
	}
	return out
}

// resultHeap keeps the worst retained result on top.
type resultHeap []ranker.Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return ranker.Compare(h[i], h[j]) > 0 }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(ranker.Result))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
