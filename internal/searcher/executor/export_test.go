package executor

// HoldRanking takes every ranking slot, as busy concurrent queries would,
// until release is called.
func (e *Executor) HoldRanking() (release func()) {
	n := int64(e.cfg.RankingWorkers)
	if !e.ranking.TryAcquire(n) {
		panic("ranking slots already held")
	}
	return func() { e.ranking.Release(n) }
}
