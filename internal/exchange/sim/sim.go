// Package sim provides a shadow/sandbox exchange adapter: it implements
// exchange.Client entirely in memory, simulating a slow random walk in
// price and filling resting limit orders that the walk crosses. It never
// moves real funds — this is the adapter operation_mode=shadow is wired to.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/google/uuid"
)

// Adapter is an in-memory exchange.Client implementation for shadow mode.
type Adapter struct {
	mu sync.Mutex

	rng *rand.Rand

	symbols map[string]domain.SymbolInfo
	prices  map[string]float64
	orders  map[string]domain.OpenOrder // keyed by order ID
	balances map[domain.Venue]domain.BalanceEntry

	streamCh chan exchange.TradeStreamEvent
}

// Config seeds the sandbox with symbol metadata and a starting price per
// symbol.
type Config struct {
	Symbols       []domain.SymbolInfo
	StartingPrice map[string]float64
	SeedBalance   float64
}

// New builds a shadow Adapter from Config. SeedBalance is split evenly
// across spot and derivatives.
func New(cfg Config) *Adapter {
	a := &Adapter{
		rng:      rand.New(rand.NewSource(1)),
		symbols:  make(map[string]domain.SymbolInfo),
		prices:   make(map[string]float64),
		orders:   make(map[string]domain.OpenOrder),
		balances: make(map[domain.Venue]domain.BalanceEntry),
		streamCh: make(chan exchange.TradeStreamEvent, 256),
	}
	for _, s := range cfg.Symbols {
		a.symbols[s.Symbol] = s
		if p, ok := cfg.StartingPrice[s.Symbol]; ok {
			a.prices[s.Symbol] = p
		} else {
			a.prices[s.Symbol] = 100
		}
	}
	half := cfg.SeedBalance / 2
	a.balances[domain.VenueSpot] = domain.BalanceEntry{Venue: domain.VenueSpot, Free: half, Equity: half}
	a.balances[domain.VenueDerivatives] = domain.BalanceEntry{Venue: domain.VenueDerivatives, Free: half, Equity: half}
	return a
}

// Capabilities reports that the shadow adapter supports a trade stream.
func (a *Adapter) Capabilities() exchange.Capabilities {
	return exchange.Capabilities{TradeStream: true}
}

// ExchangeInfo returns the seeded symbol metadata for venue.
func (a *Adapter) ExchangeInfo(ctx context.Context, venue domain.Venue) ([]domain.SymbolInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	infos := make([]domain.SymbolInfo, 0, len(a.symbols))
	for _, s := range a.symbols {
		if s.Venue == venue {
			infos = append(infos, s)
		}
	}
	return infos, nil
}

// Balance returns the in-memory balance for venue.
func (a *Adapter) Balance(ctx context.Context, venue domain.Venue) ([]domain.BalanceEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.balances[venue]
	if !ok {
		return nil, exchange.WrapPermanent("balance", fmt.Errorf("unknown venue %q", venue))
	}
	return []domain.BalanceEntry{entry}, nil
}

// Account returns a synthetic account summary with an always-healthy
// margin ratio — the shadow adapter never forces a margin call.
func (a *Adapter) Account(ctx context.Context, venue domain.Venue) (domain.AccountSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.balances[venue]
	return domain.AccountSummary{Venue: venue, MarginRatio: 1.0, AvailableMargin: entry.Free}, nil
}

// Ticker advances the simulated random walk one step and returns a ticker
// built from the new price.
func (a *Adapter) Ticker(ctx context.Context, symbol string, venue domain.Venue) (domain.Ticker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	price, ok := a.prices[symbol]
	if !ok {
		return domain.Ticker{}, exchange.WrapPermanent("ticker", fmt.Errorf("unknown symbol %q", symbol))
	}

	newPrice := a.step(symbol, price)
	a.fillCrossedOrders(symbol, price, newPrice)

	spread := newPrice * 0.0005
	return domain.Ticker{
		Symbol:         symbol,
		LastPrice:      newPrice,
		BidPrice:       newPrice - spread/2,
		AskPrice:       newPrice + spread/2,
		QuoteVolume24h: 1_000_000,
		PriceChangePct: (newPrice - price) / price * 100,
		HighPrice24h:   math.Max(price, newPrice) * 1.01,
		LowPrice24h:    math.Min(price, newPrice) * 0.99,
		FetchedAt:      time.Now(),
	}, nil
}

// step advances the symbol's price by a small random walk and stores the
// new value. Caller must hold a.mu.
func (a *Adapter) step(symbol string, price float64) float64 {
	pct := a.rng.NormFloat64() * 0.002
	newPrice := price * (1 + pct)
	if newPrice <= 0 {
		newPrice = price
	}
	a.prices[symbol] = newPrice
	return newPrice
}

// Klines synthesizes a flat OHLCV history around the current price — the
// shadow adapter trades off historical fidelity for determinism.
func (a *Adapter) Klines(ctx context.Context, symbol string, interval string, limit int, venue domain.Venue) ([]domain.Kline, error) {
	a.mu.Lock()
	price, ok := a.prices[symbol]
	a.mu.Unlock()
	if !ok {
		return nil, exchange.WrapPermanent("klines", fmt.Errorf("unknown symbol %q", symbol))
	}

	klines := make([]domain.Kline, 0, limit)
	now := time.Now()
	for i := limit - 1; i >= 0; i-- {
		jitter := price * 0.001 * a.rng.NormFloat64()
		klines = append(klines, domain.Kline{
			OpenTime: now.Add(-time.Duration(i) * time.Minute),
			Open:     price + jitter,
			High:     price + math.Abs(jitter) + price*0.0005,
			Low:      price - math.Abs(jitter) - price*0.0005,
			Close:    price + jitter,
			Volume:   1000 + a.rng.Float64()*500,
		})
	}
	return klines, nil
}

// Positions is a stub: the shadow adapter tracks position state in the
// grid engine itself, not the adapter.
func (a *Adapter) Positions(ctx context.Context, symbol string, venue domain.Venue) ([]domain.Position, error) {
	return nil, nil
}

// Place records a resting order and returns an ack. Market orders fill
// immediately at the current price.
func (a *Adapter) Place(ctx context.Context, spec domain.OrderSpec, venue domain.Venue) (domain.OrderAck, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, ok := a.symbols[spec.Symbol]
	if !ok {
		return domain.OrderAck{}, exchange.WrapPermanent("place", fmt.Errorf("unknown symbol %q", spec.Symbol))
	}
	notional := spec.Quantity * a.priceOf(spec)
	if notional < info.MinNotional {
		return domain.OrderAck{}, exchange.WrapPermanent("place", fmt.Errorf("order notional %.2f below min_notional %.2f", notional, info.MinNotional))
	}

	orderID := uuid.NewString()
	price := a.priceOf(spec)

	if spec.Type == domain.OrderTypeMarket {
		a.applyFill(spec.Symbol, orderID, spec.Side, price, spec.Quantity)
		return domain.OrderAck{OrderID: orderID, Symbol: spec.Symbol, Side: spec.Side, Price: price, Quantity: spec.Quantity, Status: "filled", CreatedAt: time.Now()}, nil
	}

	a.orders[orderID] = domain.OpenOrder{OrderID: orderID, Symbol: spec.Symbol, Side: spec.Side, Price: price, Quantity: spec.Quantity}
	return domain.OrderAck{OrderID: orderID, Symbol: spec.Symbol, Side: spec.Side, Price: price, Quantity: spec.Quantity, Status: "open", CreatedAt: time.Now()}, nil
}

func (a *Adapter) priceOf(spec domain.OrderSpec) float64 {
	if spec.Price != nil {
		return *spec.Price
	}
	return a.prices[spec.Symbol]
}

// Cancel removes a resting order.
func (a *Adapter) Cancel(ctx context.Context, symbol, orderID string, venue domain.Venue) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.orders[orderID]; !ok {
		return exchange.WrapPermanent("cancel", fmt.Errorf("order %s not found", orderID))
	}
	delete(a.orders, orderID)
	return nil
}

// OpenOrders lists resting orders for symbol.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string, venue domain.Venue) ([]domain.OpenOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	open := make([]domain.OpenOrder, 0)
	for _, o := range a.orders {
		if o.Symbol == symbol {
			open = append(open, o)
		}
	}
	return open, nil
}

// Transfer moves simulated balance between venues.
func (a *Adapter) Transfer(ctx context.Context, asset string, amount float64, direction exchange.TransferDirection) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var from, to domain.Venue
	switch direction {
	case exchange.TransferSpotToDerivatives:
		from, to = domain.VenueSpot, domain.VenueDerivatives
	case exchange.TransferDerivativesToSpot:
		from, to = domain.VenueDerivatives, domain.VenueSpot
	default:
		return exchange.WrapPermanent("transfer", fmt.Errorf("unknown direction %q", direction))
	}

	fromEntry := a.balances[from]
	if fromEntry.Free < amount {
		return exchange.WrapPermanent("transfer", fmt.Errorf("insufficient free balance on %s: have %.2f, need %.2f", from, fromEntry.Free, amount))
	}

	fromEntry.Free -= amount
	fromEntry.Equity -= amount
	a.balances[from] = fromEntry

	toEntry := a.balances[to]
	toEntry.Free += amount
	toEntry.Equity += amount
	a.balances[to] = toEntry

	return nil
}

// TradeStream returns the adapter's internal fill channel, filtered is not
// performed here — workers filter by symbol themselves.
func (a *Adapter) TradeStream(ctx context.Context, symbols []string) (<-chan exchange.TradeStreamEvent, error) {
	return a.streamCh, nil
}

// fillCrossedOrders fills any resting order whose price lies between the
// old and new simulated price. Caller must hold a.mu.
func (a *Adapter) fillCrossedOrders(symbol string, oldPrice, newPrice float64) {
	lo, hi := oldPrice, newPrice
	if lo > hi {
		lo, hi = hi, lo
	}

	for id, o := range a.orders {
		if o.Symbol != symbol {
			continue
		}
		if o.Price >= lo && o.Price <= hi {
			delete(a.orders, id)
			a.applyFill(symbol, id, o.Side, o.Price, o.Quantity)
		}
	}
}

// applyFill publishes a fill on the trade stream. Caller must hold a.mu.
func (a *Adapter) applyFill(symbol, orderID string, side domain.OrderSide, price, qty float64) {
	event := exchange.TradeStreamEvent{
		Symbol:   symbol,
		OrderID:  orderID,
		Side:     side,
		Price:    price,
		Quantity: qty,
		FilledAt: time.Now(),
	}
	select {
	case a.streamCh <- event:
	default:
		// Stream buffer full: drop rather than block the price-stepping
		// goroutine. Workers falling back to snapshot diffing still see
		// the fill via OpenOrders no longer listing the order.
	}
}
