// Package coordinator drives one full decision cycle (spec.md §4.9): ask
// the selector for the active symbol set and market overview, turn it into
// per-symbol allocations through the capital manager, reconcile the
// supervisor's worker set against that target, derive an overall strategy
// label and per-symbol tuning actions through the decision engine, push
// those actions into each worker's mailbox, and poll the risk monitor for
// breaches that force a venue's workers into a flatten.
package coordinator

import (
	"context"
	"fmt"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/cache"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/capital"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/decision"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/indicators"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/risk"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/selector"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/supervisor"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/utils"
	"github.com/rs/zerolog"
)

// indicator lookback periods. Grounded on the selector's own ADX(14); the
// rest follow the same widely-used defaults (RSI-14, MACD 12/26/9,
// Bollinger 20/2) the teacher's planning module assumes downstream.
const (
	klineLimit       = 100
	rsiPeriod        = 14
	atrPeriod        = 14
	adxPeriod        = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	bollingerPeriod  = 20
	bollingerStdDevs = 2.0
)

// spot/derivatives taker fee rates feeding ChooseVenue's fee-preference
// term. The exchange adapter has no fee-schedule endpoint in this
// interface, so these are the commonly quoted default tiers rather than
// a per-account fetched rate.
const (
	spotTakerFeeRate        = 0.001
	derivativesTakerFeeRate = 0.0004
)

// Coordinator owns one cycle's worth of plumbing between the selector,
// capital manager, decision engine, supervisor, and risk monitor.
type Coordinator struct {
	client     exchange.Client
	dataCache  *cache.DataCache
	selector   *selector.Selector
	capitalMgr *capital.Manager
	decision   *decision.Engine
	risk       *risk.Monitor
	sup        *supervisor.Supervisor
	cfg        *config.Config
	log        zerolog.Logger

	// returnHistory tracks each symbol's recent per-cycle unrealized-PnL
	// fraction, feeding the risk monitor's VaR/Sharpe/drawdown math. The
	// exchange adapters expose live position state, not a return series,
	// so the coordinator accumulates one itself across cycles.
	returnHistory map[string][]float64

	// lastAllocations/lastSymbolInfo cache the most recent Reconcile
	// inputs per symbol, since grid.Engine/worker.Worker expose no
	// accessor for the allocation or symbol metadata they were built
	// with — the decision pass needs both to size a suggested action.
	lastAllocations map[string]domain.Allocation
	lastSymbolInfo  map[string]domain.SymbolInfo
}

// New builds a Coordinator.
func New(
	client exchange.Client,
	dataCache *cache.DataCache,
	sel *selector.Selector,
	capitalMgr *capital.Manager,
	decisionEngine *decision.Engine,
	riskMonitor *risk.Monitor,
	sup *supervisor.Supervisor,
	cfg *config.Config,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		client:        client,
		dataCache:     dataCache,
		selector:      sel,
		capitalMgr:    capitalMgr,
		decision:      decisionEngine,
		risk:          riskMonitor,
		sup:           sup,
		cfg:             cfg,
		log:             log.With().Str("component", "coordinator").Logger(),
		returnHistory:   make(map[string][]float64),
		lastAllocations: make(map[string]domain.Allocation),
		lastSymbolInfo:  make(map[string]domain.SymbolInfo),
	}
}

// RunCycle executes one full coordinator pass. Failures in any one stage
// are logged and the cycle continues with whatever it already has — a
// selector or balance-fetch error should not stop risk checks or mailbox
// dispatch for symbols already running.
func (c *Coordinator) RunCycle(ctx context.Context) {
	defer utils.OperationTimer("coordinator_cycle", c.log)()

	result, err := c.selector.Select(ctx, c.cfg.MaxConcurrentPairs)
	if err != nil {
		c.log.Error().Err(err).Msg("coordinator: selection failed, skipping reconcile this cycle")
	} else {
		c.reconcile(ctx, result)
	}

	strategy, confidence := c.decision.Overview(ctx, result.Overview)
	c.log.Debug().Str("strategy", string(strategy)).Float64("confidence", confidence).Msg("coordinator: overview derived")

	c.dispatchTuning(ctx, strategy)
	c.checkRisk(ctx)

	if active := c.sup.ActiveSymbols(); len(active) > 0 {
		c.sup.CheckRetrain(ctx, active[0])
	}
}

// reconcile turns a selection result into per-symbol allocations and
// brings the supervisor's worker set in line with them.
func (c *Coordinator) reconcile(ctx context.Context, result selector.Result) {
	venues := result.Venues()
	symbols := result.Symbols()
	if len(symbols) == 0 {
		c.log.Warn().Msg("coordinator: no symbols selected, reconciling to an empty worker set")
		c.sup.Reconcile(ctx, map[string]domain.Allocation{}, map[string]domain.SymbolInfo{})
		return
	}

	balances, err := c.buildBalanceSnapshot(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("coordinator: balance snapshot failed, skipping reconcile this cycle")
		return
	}

	candidates := c.buildCandidates(ctx, symbols, venues)
	allocations, err := c.capitalMgr.Allocate(ctx, balances, candidates)
	if err != nil {
		c.log.Error().Err(err).Msg("coordinator: capital allocation failed, skipping reconcile this cycle")
		return
	}
	if len(allocations) == 0 {
		c.log.Warn().Int("candidates", len(candidates)).Msg("coordinator: capital manager returned no allocations, no workers will run this cycle")
	}

	target := make(map[string]domain.Allocation, len(allocations))
	symbolInfo := make(map[string]domain.SymbolInfo, len(allocations))
	for _, alloc := range allocations {
		target[alloc.Symbol] = alloc
		info, err := c.resolveSymbolInfo(ctx, alloc.Symbol, alloc.Venue)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", alloc.Symbol).Msg("coordinator: symbol info unavailable, cannot start")
			continue
		}
		symbolInfo[alloc.Symbol] = info
	}

	c.sup.Reconcile(ctx, target, symbolInfo)
	c.lastAllocations = target
	c.lastSymbolInfo = symbolInfo
}

// buildCandidates fetches the per-venue ticker metrics Allocate's venue
// choice needs for every selected symbol. A venue the symbol isn't
// listed on (a Ticker error) is simply marked unlisted rather than
// failing the whole cycle.
func (c *Coordinator) buildCandidates(ctx context.Context, symbols []string, venues map[string]domain.Venue) []capital.Candidate {
	candidates := make([]capital.Candidate, 0, len(symbols))
	for _, symbol := range symbols {
		spot := c.venueMetrics(ctx, symbol, domain.VenueSpot, spotTakerFeeRate)
		derivs := c.venueMetrics(ctx, symbol, domain.VenueDerivatives, derivativesTakerFeeRate)

		manualVenue := venues[symbol]
		candidates = append(candidates, capital.Candidate{
			Symbol:      symbol,
			ManualVenue: &manualVenue,
			Spot:        spot,
			Derivatives: derivs,
			Volatility:  c.atrFraction(ctx, symbol, manualVenue),
		})
	}
	return candidates
}

func (c *Coordinator) venueMetrics(ctx context.Context, symbol string, venue domain.Venue, feeRate float64) capital.VenueMetrics {
	ticker, err := c.client.Ticker(ctx, symbol, venue)
	if err != nil {
		return capital.VenueMetrics{Venue: venue, Listed: false, TakerFeeRate: feeRate}
	}

	available := 0.0
	if balances, err := c.client.Balance(ctx, venue); err == nil {
		for _, b := range balances {
			available += b.Free
		}
	}

	return capital.VenueMetrics{
		Venue:        venue,
		Listed:       true,
		Volume24h:    ticker.QuoteVolume24h,
		AvailableUSD: available,
		TakerFeeRate: feeRate,
	}
}

func (c *Coordinator) atrFraction(ctx context.Context, symbol string, venue domain.Venue) float64 {
	klines, err := c.dataCache.Klines(ctx, symbol)
	if err != nil || len(klines) == 0 {
		return 0
	}
	frame := framesFromKlines(klines)
	atr, ready := indicators.ATR(frame, atrPeriod)
	if !ready || frame.Close[len(frame.Close)-1] == 0 {
		return 0
	}
	return atr / frame.Close[len(frame.Close)-1]
}

// resolveSymbolInfo looks up symbol's exchange metadata on venue.
func (c *Coordinator) resolveSymbolInfo(ctx context.Context, symbol string, venue domain.Venue) (domain.SymbolInfo, error) {
	infos, err := c.client.ExchangeInfo(ctx, venue)
	if err != nil {
		return domain.SymbolInfo{}, fmt.Errorf("exchange info for %s: %w", venue, err)
	}
	for _, info := range infos {
		if info.Symbol == symbol {
			return info, nil
		}
	}
	return domain.SymbolInfo{}, fmt.Errorf("%s not listed on %s", symbol, venue)
}

// dispatchTuning runs the per-symbol decision pass over every active
// worker and pushes any non-no-op action into that worker's mailbox.
func (c *Coordinator) dispatchTuning(ctx context.Context, strategy domain.StrategyLabel) {
	active := c.sup.ActiveSymbols()
	if len(active) == 0 {
		return
	}

	reqs := make([]decision.Request, 0, len(active))
	for _, symbol := range active {
		engine := c.sup.Engine(symbol)
		if engine == nil {
			continue
		}
		snapshot, ok := c.buildSnapshot(ctx, symbol)
		if !ok {
			continue
		}
		reqs = append(reqs, decision.Request{
			Snapshot:   snapshot,
			Allocation: c.lastAllocations[symbol],
			Strategy:   strategy,
			Symbol:     c.lastSymbolInfo[symbol],
		})
	}

	results := c.decision.BatchPerSymbol(reqs)
	for _, res := range results {
		if res.Action == 0 {
			continue
		}
		mailbox := c.sup.Mailbox(res.Symbol)
		if mailbox == nil {
			continue
		}
		mailbox.Push(res.Action)
	}
}

func (c *Coordinator) buildSnapshot(ctx context.Context, symbol string) (decision.Snapshot, bool) {
	ticker, err := c.dataCache.Ticker(ctx, symbol)
	if err != nil {
		return decision.Snapshot{}, false
	}
	klines, err := c.dataCache.Klines(ctx, symbol)
	if err != nil || len(klines) == 0 {
		return decision.Snapshot{}, false
	}

	frame := framesFromKlines(klines)
	rsi, rsiReady := indicators.RSI(frame, rsiPeriod)
	atr, atrReady := indicators.ATR(frame, atrPeriod)
	adx, adxReady := indicators.ADX(frame, adxPeriod)
	macd, macdReady := indicators.MACD(frame, macdFast, macdSlow, macdSignal)
	bb, bbReady := indicators.BollingerPercentB(frame, bollingerPeriod, bollingerStdDevs)

	volatility := 0.0
	if atrReady && ticker.LastPrice != 0 {
		volatility = atr / ticker.LastPrice
	}

	return decision.Snapshot{
		Symbol:         symbol,
		Price:          ticker.LastPrice,
		RSI:            rsi,
		RSIReady:       rsiReady,
		ATR:            atr,
		ATRReady:       atrReady,
		ADX:            adx,
		ADXReady:       adxReady,
		MACDHistogram:  macd.Histogram,
		MACDReady:      macdReady,
		BollingerB:     bb,
		BollingerReady: bbReady,
		Volume24h:      ticker.QuoteVolume24h,
		Volatility:     volatility,
	}, true
}

// checkRisk runs the risk monitor over every active position and
// account, and forces a flatten on any venue whose account check comes
// back critical.
func (c *Coordinator) checkRisk(ctx context.Context) {
	active := c.sup.ActiveSymbols()
	positions := make([]risk.PositionSnapshot, 0, len(active))

	totalEquity := 0.0
	if balances, err := c.buildBalanceSnapshot(ctx); err == nil {
		totalEquity = balances.TotalEquity()
	}

	for _, symbol := range active {
		engine := c.sup.Engine(symbol)
		if engine == nil {
			continue
		}
		position := engine.Position()
		equityShare := position.Size * position.EntryPrice
		c.recordReturn(symbol, position, equityShare, totalEquity)

		positions = append(positions, risk.PositionSnapshot{
			Symbol:        symbol,
			Position:      position,
			EquityShare:   equityShare,
			TotalEquity:   totalEquity,
			Returns:       append([]float64(nil), c.returnHistory[symbol]...),
			CumulativePnL: cumulative(c.returnHistory[symbol]),
		})
	}

	accounts := make([]risk.AccountReportInput, 0, 2)
	for _, venue := range []domain.Venue{domain.VenueSpot, domain.VenueDerivatives} {
		summary, err := c.client.Account(ctx, venue)
		if err != nil {
			continue
		}
		accounts = append(accounts, risk.AccountReportInput{Venue: venue, Summary: summary})
	}

	report := c.risk.Check(ctx, positions, accounts)

	for _, acc := range report.Accounts {
		if !acc.Critical {
			continue
		}
		for _, symbol := range c.sup.WorkersOnVenue(acc.Venue) {
			c.log.Warn().Str("symbol", symbol).Str("venue", string(acc.Venue)).Msg("coordinator: forcing flatten on critical account risk")
			c.sup.RequestFlatten(symbol, true)
		}
	}
}

const returnHistoryLimit = 50

func (c *Coordinator) recordReturn(symbol string, position domain.Position, equityShare, totalEquity float64) {
	if totalEquity <= 0 {
		return
	}
	ret := position.UnrealizedPnL / totalEquity
	hist := append(c.returnHistory[symbol], ret)
	if len(hist) > returnHistoryLimit {
		hist = hist[len(hist)-returnHistoryLimit:]
	}
	c.returnHistory[symbol] = hist
}

func cumulative(returns []float64) []float64 {
	out := make([]float64, len(returns))
	sum := 0.0
	for i, r := range returns {
		sum += r
		out[i] = sum
	}
	return out
}

// buildBalanceSnapshot aggregates each venue's balance entries into the
// single-entry-per-venue shape the capital manager and risk monitor
// consume.
func (c *Coordinator) buildBalanceSnapshot(ctx context.Context) (domain.BalanceSnapshot, error) {
	snap := domain.BalanceSnapshot{ByVenue: make(map[domain.Venue]domain.BalanceEntry, 2)}
	for _, venue := range []domain.Venue{domain.VenueSpot, domain.VenueDerivatives} {
		entries, err := c.client.Balance(ctx, venue)
		if err != nil {
			return domain.BalanceSnapshot{}, fmt.Errorf("balance for %s: %w", venue, err)
		}
		var agg domain.BalanceEntry
		agg.Venue = venue
		for _, e := range entries {
			agg.Free += e.Free
			agg.Locked += e.Locked
			agg.Equity += e.Equity
			agg.UnrealizedPnL += e.UnrealizedPnL
		}
		snap.ByVenue[venue] = agg
	}
	return snap, nil
}

func framesFromKlines(klines []domain.Kline) indicators.Frame {
	f := indicators.Frame{}
	for _, k := range klines {
		f.Open = append(f.Open, k.Open)
		f.High = append(f.High, k.High)
		f.Low = append(f.Low, k.Low)
		f.Close = append(f.Close, k.Close)
		f.Volume = append(f.Volume, k.Volume)
	}
	return f
}
