package decision

import (
	"sync"
)

const cacheKeyPrefix = "decision:"

// BatchPerSymbol runs PerSymbol over every request under bounded
// concurrency (e.concurrency, default 3 per spec.md §4.8),
// caching each result for cacheTTL keyed by (symbol, snapshot hash) so
// an unchanged market snapshot within the TTL window skips
// re-evaluation.
// Grounded on the teacher's fetchMetrics (internal/selector/selector.go):
// same semaphore-gated goroutine-per-item fan-out over a results channel.
func (e *Engine) BatchPerSymbol(reqs []Request) []Result {
	sem := make(chan struct{}, e.concurrency)
	results := make(chan Result, len(reqs))
	var wg sync.WaitGroup

	for _, req := range reqs {
		req := req
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- e.perSymbolCached(req)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Result, 0, len(reqs))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (e *Engine) perSymbolCached(req Request) Result {
	key := cacheKeyPrefix + req.Snapshot.Symbol + ":" + snapshotHash(req)

	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if result, ok := cached.(Result); ok {
				return result
			}
		}
	}

	result := e.PerSymbol(req)
	if e.cache != nil {
		e.cache.Set(key, result, e.cacheTTL)
	}
	return result
}
