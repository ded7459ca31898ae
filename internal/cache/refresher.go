package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FetchFunc retrieves the latest value for a symbol within a class.
type FetchFunc func(ctx context.Context, symbol string) (any, error)

// Subscriber receives the refreshed value each time a fetch succeeds.
type Subscriber func(value any)

// Refresher periodically re-fetches every subscribed symbol for a single
// class and fans the result out to that symbol's subscribers. A failing
// fetch leaves the previous cached value in place and is logged; a
// panicking subscriber callback is recovered so it never stalls the
// refresh loop or affects other subscribers.
type Refresher struct {
	store    *Store
	class    Class
	ttl      time.Duration
	interval time.Duration
	fetch    FetchFunc
	log      zerolog.Logger

	mu          sync.Mutex
	symbols     map[string]struct{}
	subscribers map[string][]Subscriber

	stop chan struct{}
	done chan struct{}
}

// NewRefresher builds a refresher for class, polling fetch every interval
// and caching results with ttl.
func NewRefresher(store *Store, class Class, interval, ttl time.Duration, fetch FetchFunc, log zerolog.Logger) *Refresher {
	return &Refresher{
		store:       store,
		class:       class,
		ttl:         ttl,
		interval:    interval,
		fetch:       fetch,
		log:         log.With().Str("cache_class", string(class)).Logger(),
		symbols:     make(map[string]struct{}),
		subscribers: make(map[string][]Subscriber),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe registers cb to be invoked with every successful refresh of
// symbol, and ensures symbol is included in future refresh passes.
func (r *Refresher) Subscribe(symbol string, cb Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[symbol] = struct{}{}
	r.subscribers[symbol] = append(r.subscribers[symbol], cb)
}

// Key returns the cache key this refresher uses for a symbol.
func (r *Refresher) Key(symbol string) string {
	return string(r.class) + ":" + symbol
}

// Run blocks, refreshing subscribed symbols every interval, until Stop is
// called or ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

// Stop halts the refresh loop and waits for the in-flight pass, if any, to
// finish.
func (r *Refresher) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Refresher) refreshAll(ctx context.Context) {
	r.mu.Lock()
	symbols := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		symbols = append(symbols, s)
	}
	r.mu.Unlock()

	for _, symbol := range symbols {
		r.refreshOne(ctx, symbol)
	}
}

func (r *Refresher) refreshOne(ctx context.Context, symbol string) {
	value, err := r.fetch(ctx, symbol)
	if err != nil {
		r.log.Warn().Err(err).Str("symbol", symbol).Msg("refresh failed, keeping previous value")
		return
	}

	r.store.Set(r.Key(symbol), value, r.ttl)

	r.mu.Lock()
	subs := append([]Subscriber(nil), r.subscribers[symbol]...)
	r.mu.Unlock()

	for _, cb := range subs {
		r.notify(cb, value, symbol)
	}
}

func (r *Refresher) notify(cb Subscriber, value any, symbol string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("symbol", symbol).Msg("cache subscriber panicked, isolated")
		}
	}()
	cb(value)
}
