package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/rs/zerolog"
)

// DataCache is the shared read-mostly service each worker consults instead
// of calling the exchange directly: one Store plus one background
// Refresher per class, all backed by the same exchange.Client.
type DataCache struct {
	store *Store

	tickers   *Refresher
	klines    *Refresher
	positions *Refresher
	balances  *Refresher

	venue domain.Venue
	log   zerolog.Logger
}

// TTLs overrides the default per-class TTLs; zero fields fall back to
// DefaultTTLs.
type TTLs struct {
	Ticker   time.Duration
	Kline    time.Duration
	Position time.Duration
	Balance  time.Duration
}

func (t TTLs) resolve() TTLs {
	if t.Ticker == 0 {
		t.Ticker = DefaultTTLs[ClassTicker]
	}
	if t.Kline == 0 {
		t.Kline = DefaultTTLs[ClassKline]
	}
	if t.Position == 0 {
		t.Position = DefaultTTLs[ClassPosition]
	}
	if t.Balance == 0 {
		t.Balance = DefaultTTLs[ClassBalance]
	}
	return t
}

// NewDataCache builds a DataCache backed by client for venue. Each class refreshes
// at refreshInterval and caches results for its resolved TTL.
func NewDataCache(client exchange.Client, venue domain.Venue, refreshInterval time.Duration, ttls TTLs, log zerolog.Logger) *DataCache {
	ttls = ttls.resolve()
	store := New()

	klineInterval := "1h"

	dc := &DataCache{store: store, venue: venue, log: log}

	dc.tickers = NewRefresher(store, ClassTicker, refreshInterval, ttls.Ticker, func(ctx context.Context, symbol string) (any, error) {
		return client.Ticker(ctx, symbol, venue)
	}, log)

	dc.klines = NewRefresher(store, ClassKline, refreshInterval, ttls.Kline, func(ctx context.Context, symbol string) (any, error) {
		return client.Klines(ctx, symbol, klineInterval, 200, venue)
	}, log)

	dc.positions = NewRefresher(store, ClassPosition, refreshInterval, ttls.Position, func(ctx context.Context, symbol string) (any, error) {
		return client.Positions(ctx, symbol, venue)
	}, log)

	dc.balances = NewRefresher(store, ClassBalance, refreshInterval, ttls.Balance, func(ctx context.Context, _ string) (any, error) {
		return client.Balance(ctx, venue)
	}, log)

	return dc
}

// Run starts all four class refreshers and blocks until ctx is cancelled.
func (dc *DataCache) Run(ctx context.Context) {
	done := make(chan struct{}, 4)
	for _, r := range []*Refresher{dc.tickers, dc.klines, dc.positions, dc.balances} {
		r := r
		go func() {
			r.Run(ctx)
			done <- struct{}{}
		}()
	}
	<-ctx.Done()
	for i := 0; i < 4; i++ {
		<-done
	}
}

// Subscribe registers symbol for all four classes and wires cb to fire on
// ticker refresh — the class most callers care about for liveness. Use
// SubscribeKlines/SubscribePositions/SubscribeBalances for the others.
func (dc *DataCache) Subscribe(symbol string, cb Subscriber) {
	dc.tickers.Subscribe(symbol, cb)
	dc.klines.Subscribe(symbol, func(any) {})
	dc.positions.Subscribe(symbol, func(any) {})
	dc.balances.Subscribe(symbol, func(any) {})
}

// SubscribeKlines registers a callback fired whenever symbol's klines
// refresh.
func (dc *DataCache) SubscribeKlines(symbol string, cb Subscriber) {
	dc.klines.Subscribe(symbol, cb)
}

// Ticker returns the cached ticker for symbol, fetching synchronously on a
// cold cache miss.
func (dc *DataCache) Ticker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if v, ok := dc.store.Get(dc.tickers.Key(symbol)); ok {
		return v.(domain.Ticker), nil
	}
	v, err := dc.tickers.fetch(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("ticker cache miss for %s: %w", symbol, err)
	}
	dc.store.Set(dc.tickers.Key(symbol), v, dc.tickers.ttl)
	return v.(domain.Ticker), nil
}

// Klines returns the cached klines for symbol at the cache's configured
// interval, fetching synchronously on a cold cache miss.
func (dc *DataCache) Klines(ctx context.Context, symbol string) ([]domain.Kline, error) {
	if v, ok := dc.store.Get(dc.klines.Key(symbol)); ok {
		return v.([]domain.Kline), nil
	}
	v, err := dc.klines.fetch(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("kline cache miss for %s: %w", symbol, err)
	}
	dc.store.Set(dc.klines.Key(symbol), v, dc.klines.ttl)
	return v.([]domain.Kline), nil
}

// Positions returns the cached positions for symbol, fetching
// synchronously on a cold cache miss.
func (dc *DataCache) Positions(ctx context.Context, symbol string) ([]domain.Position, error) {
	if v, ok := dc.store.Get(dc.positions.Key(symbol)); ok {
		return v.([]domain.Position), nil
	}
	v, err := dc.positions.fetch(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("position cache miss for %s: %w", symbol, err)
	}
	dc.store.Set(dc.positions.Key(symbol), v, dc.positions.ttl)
	return v.([]domain.Position), nil
}

// Balances returns the cached balance snapshot, fetching synchronously on
// a cold cache miss. Balances are venue-scoped, not symbol-scoped, so any
// subscribed symbol's key works as the shared slot.
func (dc *DataCache) Balances(ctx context.Context, anchorSymbol string) ([]domain.BalanceEntry, error) {
	if v, ok := dc.store.Get(dc.balances.Key(anchorSymbol)); ok {
		return v.([]domain.BalanceEntry), nil
	}
	v, err := dc.balances.fetch(ctx, anchorSymbol)
	if err != nil {
		return nil, fmt.Errorf("balance cache miss: %w", err)
	}
	dc.store.Set(dc.balances.Key(anchorSymbol), v, dc.balances.ttl)
	return v.([]domain.BalanceEntry), nil
}

// Cleanup reaps expired entries across all classes.
func (dc *DataCache) Cleanup() int {
	return dc.store.Cleanup()
}
