// Package grid implements the per-symbol grid engine: the critical
// subsystem that builds a ladder of resting orders around a center price,
// reconciles it against live exchange state every cycle, detects fills,
// manages TP/SL, and applies the coordinator's tuning actions.
package grid

import (
	"context"
	"fmt"
	"math"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/indicators"
	"github.com/rs/zerolog"
)

// State is one of the grid engine's active lifecycle states.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning       State = "running"
	StateRecentering   State = "recentering"
	StateFlattening    State = "flattening"
	StateHalted        State = "halted"
)

// Engine runs one symbol's grid: ladder construction, reconciliation,
// fill detection, TP/SL, and tuning-action application.
type Engine struct {
	symbol string
	venue  domain.Venue

	client exchange.Client
	sink   *alerts.Sink
	cfg    config.GridConfig
	log    zerolog.Logger

	allocation domain.Allocation
	ladder     domain.Ladder
	position   domain.Position
	trades     []domain.Trade

	state         State
	haltReason    string
	directionBias int

	prevOpenOrders      map[string]domain.OpenOrder
	consecutiveFailures int

	tradeStream <-chan exchange.TradeStreamEvent
	useStream   bool

	trailing trailingStopState
}

// New builds an Engine for symbol, in its Initializing state.
func New(symbol string, venue domain.Venue, client exchange.Client, sink *alerts.Sink, cfg config.GridConfig, log zerolog.Logger) *Engine {
	return &Engine{
		symbol:         symbol,
		venue:          venue,
		client:         client,
		sink:           sink,
		cfg:            cfg,
		log:            log.With().Str("symbol", symbol).Logger(),
		state:          StateInitializing,
		prevOpenOrders: make(map[string]domain.OpenOrder),
	}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// HaltReason reports why the engine halted, if it did.
func (e *Engine) HaltReason() string { return e.haltReason }

// Position reports the engine's current logical position.
func (e *Engine) Position() domain.Position { return e.position }

// Ladder reports the engine's current working ladder, for persistence on
// shutdown and for status reporting.
func (e *Engine) Ladder() domain.Ladder { return e.ladder }

// TradeCount reports the total number of fills recorded so far, for the
// supervisor's retrain-trigger trade counter.
func (e *Engine) TradeCount() int { return len(e.trades) }

// Initialize fetches the latest price (and, with dynamic spacing, kline
// history for ATR), builds the initial ladder from allocation and the given
// symbolInfo, and transitions to Running (or Halted if the ladder can't be
// sized).
func (e *Engine) Initialize(ctx context.Context, allocation domain.Allocation, symbolInfo domain.SymbolInfo) error {
	e.allocation = allocation

	ticker, err := e.client.Ticker(ctx, e.symbol, e.venue)
	if err != nil {
		return fmt.Errorf("initialize %s: %w", e.symbol, err)
	}

	spacing := allocation.SpacingFraction
	if e.cfg.UseDynamicSpacing {
		if dynamic, ok := e.dynamicSpacing(ctx, ticker.LastPrice); ok {
			spacing = dynamic
		}
	}

	ladder, ok := BuildLadder(LadderInput{
		Center:          ticker.LastPrice,
		SpacingFraction: spacing,
		Levels:          allocation.GridLevels,
		DirectionBias:   e.directionBias,
		Symbol:          symbolInfo,
		Allocation:      allocation,
		Cfg:             e.cfg,
	})
	if !ok {
		e.halt("unable to size a valid ladder with >= min_levels at initialization")
		return nil
	}

	e.ladder = ladder
	e.state = StateRunning

	if e.client.Capabilities().TradeStream {
		stream, err := e.client.TradeStream(ctx, []string{e.symbol})
		if err == nil {
			e.tradeStream = stream
			e.useStream = true
		}
	}

	return nil
}

func (e *Engine) dynamicSpacing(ctx context.Context, price float64) (float64, bool) {
	if price <= 0 {
		return 0, false
	}
	klines, err := e.client.Klines(ctx, e.symbol, "1m", e.cfg.ATRPeriod+5, e.venue)
	if err != nil {
		return 0, false
	}
	frame := indicators.Frame{}
	for _, k := range klines {
		frame.High = append(frame.High, k.High)
		frame.Low = append(frame.Low, k.Low)
		frame.Close = append(frame.Close, k.Close)
	}
	atr, ready := indicators.ATR(frame, e.cfg.ATRPeriod)
	if !ready {
		return 0, false
	}
	spacing := e.cfg.ATRMultiplier * atr / price
	if spacing < e.cfg.MinSpacingFraction {
		spacing = e.cfg.MinSpacingFraction
	}
	return spacing, true
}

// RunCycle executes one Running-state cycle: refresh the price, check for a
// required recenter, reconcile live orders, apply the coordinator's tuning
// action, and check TP/SL.
func (e *Engine) RunCycle(ctx context.Context, symbolInfo domain.SymbolInfo, action Action) error {
	if e.state != StateRunning {
		return nil
	}

	ticker, err := e.client.Ticker(ctx, e.symbol, e.venue)
	if err != nil {
		return e.recordFailure(err)
	}
	e.consecutiveFailures = 0

	if e.needsRecenter(ticker.LastPrice) {
		e.state = StateRecentering
		if err := e.recenter(ctx, ticker.LastPrice, symbolInfo); err != nil {
			return err
		}
		e.state = StateRunning
	}

	if err := e.reconcile(ctx, symbolInfo); err != nil {
		return e.recordFailure(err)
	}

	if action != ActionNone {
		e.applyTuning(ctx, action, ticker.LastPrice, symbolInfo)
	}

	e.checkTPSL(ctx, ticker.LastPrice)

	return nil
}

// needsRecenter reports whether the mid price has drifted beyond
// cfg.RecenterThresholdLevels worth of spacing from the current center.
func (e *Engine) needsRecenter(markPrice float64) bool {
	if e.ladder.CenterPrice == 0 || e.ladder.SpacingFraction == 0 {
		return false
	}
	drift := math.Abs(markPrice-e.ladder.CenterPrice) / (e.ladder.CenterPrice * e.ladder.SpacingFraction)
	return drift > e.cfg.RecenterThresholdLevels
}

func (e *Engine) recenter(ctx context.Context, newCenter float64, symbolInfo domain.SymbolInfo) error {
	if err := e.cancelAll(ctx); err != nil {
		return err
	}

	spacing := e.ladder.SpacingFraction
	ladder, ok := BuildLadder(LadderInput{
		Center:          newCenter,
		SpacingFraction: spacing,
		Levels:          len(e.ladder.Levels),
		DirectionBias:   e.directionBias,
		Symbol:          symbolInfo,
		Allocation:      e.allocation,
		Cfg:             e.cfg,
	})
	if !ok {
		e.halt("unable to size a valid ladder while recentering")
		return nil
	}
	e.ladder = ladder
	e.log.Info().Float64("new_center", newCenter).Msg("grid: recentered")
	return nil
}

func (e *Engine) applyTuning(ctx context.Context, action Action, markPrice float64, symbolInfo domain.SymbolInfo) {
	p := e.applyAction(action)
	e.directionBias = p.directionBias

	allocation := e.allocation
	allocation.AllocatedUSD *= p.notionalBoost

	center := e.ladder.CenterPrice
	if action == ActionBiasBullish {
		center *= 1 + e.ladder.SpacingFraction/2
	} else if action == ActionBiasBearish {
		center *= 1 - e.ladder.SpacingFraction/2
	}
	if action == ActionResetAndRecenter {
		center = markPrice
	}

	ladder, ok := BuildLadder(LadderInput{
		Center:          center,
		SpacingFraction: p.spacingFraction,
		Levels:          p.levels,
		DirectionBias:   p.directionBias,
		Symbol:          symbolInfo,
		Allocation:      allocation,
		Cfg:             e.cfg,
	})
	if !ok {
		e.log.Warn().Int("action", int(action)).Msg("grid: tuning action produced an unsizeable ladder, ignored")
		return
	}
	e.ladder = ladder
}

// reconcile fetches live open orders, diffs against the intended ladder,
// issues cancels then places bounded by the per-cycle budget, and detects
// fills, scheduling mirror levels for each.
func (e *Engine) reconcile(ctx context.Context, symbolInfo domain.SymbolInfo) error {
	live, err := e.client.OpenOrders(ctx, e.symbol, e.venue)
	if err != nil {
		return err
	}

	liveByKey := make(map[string]domain.OpenOrder, len(live))
	for _, o := range live {
		liveByKey[levelKey(o.Price, o.Side)] = o
	}

	var toCancel []domain.OpenOrder
	matched := make(map[string]bool)
	for _, o := range live {
		matched[levelKey(o.Price, o.Side)] = false
	}

	var toPlace []domain.Level
	for i, lvl := range e.ladder.Levels {
		key := levelKey(lvl.Price, lvl.Side)
		if o, ok := liveByKey[key]; ok {
			e.ladder.Levels[i].LiveOrderID = o.OrderID
			matched[key] = true
			continue
		}
		toPlace = append(toPlace, lvl)
	}
	for _, o := range live {
		if !matched[levelKey(o.Price, o.Side)] {
			toCancel = append(toCancel, o)
		}
	}

	canceledIDs := make(map[string]bool)
	budget := e.cfg.CancelBudgetPerCycle
	for i, o := range toCancel {
		if budget > 0 && i >= budget {
			break
		}
		if err := e.client.Cancel(ctx, e.symbol, o.OrderID, e.venue); err != nil {
			e.log.Warn().Err(err).Str("order_id", o.OrderID).Msg("grid: cancel failed")
			continue
		}
		canceledIDs[o.OrderID] = true
	}

	placeBudget := e.cfg.PlaceBudgetPerCycle
	for i, lvl := range toPlace {
		if placeBudget > 0 && i >= placeBudget {
			break
		}
		price := lvl.Price
		ack, err := e.client.Place(ctx, domain.OrderSpec{
			Symbol:      e.symbol,
			Side:        lvl.Side,
			Type:        domain.OrderTypeLimit,
			Quantity:    lvl.IntendedQty,
			Price:       &price,
			TimeInForce: domain.TIFGoodTilCancel,
		}, e.venue)
		if err != nil {
			e.log.Warn().Err(err).Str("side", string(lvl.Side)).Float64("price", price).Msg("grid: place failed")
			continue
		}
		for j := range e.ladder.Levels {
			if e.ladder.Levels[j].Price == lvl.Price && e.ladder.Levels[j].Side == lvl.Side {
				e.ladder.Levels[j].LiveOrderID = ack.OrderID
			}
		}
	}

	e.detectAndApplyFills(ctx, symbolInfo, live, canceledIDs)

	return nil
}

func (e *Engine) detectAndApplyFills(ctx context.Context, symbolInfo domain.SymbolInfo, liveBefore []domain.OpenOrder, canceledIDs map[string]bool) {
	var trades []domain.Trade
	if e.useStream {
		trades = e.detectFillsFromStream()
	} else {
		trades = detectFillsFromSnapshot(e.prevOpenOrders, liveBefore, canceledIDs)
	}

	for _, t := range trades {
		wasFlat := e.position.IsFlat()
		e.position = applyFill(e.position, t)
		if wasFlat && !e.position.IsFlat() {
			e.trailing = trailingStopState{}
		}
		if e.position.IsFlat() {
			e.trailing = trailingStopState{}
		}
		e.trades = append(e.trades, t)
		e.log.Info().Str("side", string(t.Side)).Float64("price", t.Price).Float64("qty", t.Quantity).Msg("grid: fill detected")

		if filled, ok := e.findLevel(t.Price, t.Side); ok {
			e.scheduleMirror(filled, symbolInfo)
		}
	}

	e.prevOpenOrders = make(map[string]domain.OpenOrder, len(liveBefore))
	for _, o := range liveBefore {
		e.prevOpenOrders[o.OrderID] = o
	}
}

// findLevel looks up the ladder level a fill's price and side correspond
// to, needed to compute the fill's mirror.
func (e *Engine) findLevel(price float64, side domain.OrderSide) (domain.Level, bool) {
	for _, lvl := range e.ladder.Levels {
		if lvl.Side == side && levelKey(lvl.Price, lvl.Side) == levelKey(price, side) {
			return lvl, true
		}
	}
	return domain.Level{}, false
}

// scheduleMirror appends the filled level's mirror to the working ladder,
// skipping it if a level already rests at that price and side, so the next
// reconcile cycle places it.
func (e *Engine) scheduleMirror(filled domain.Level, symbolInfo domain.SymbolInfo) {
	mirror := mirrorLevel(filled, e.ladder, symbolInfo.TickSize)
	key := levelKey(mirror.Price, mirror.Side)
	for _, lvl := range e.ladder.Levels {
		if levelKey(lvl.Price, lvl.Side) == key {
			return
		}
	}
	e.ladder.Levels = append(e.ladder.Levels, mirror)
	e.log.Info().Str("side", string(mirror.Side)).Float64("price", mirror.Price).Msg("grid: mirror level scheduled")
}

func levelKey(price float64, side domain.OrderSide) string {
	return fmt.Sprintf("%s:%.8f", side, price)
}

// checkTPSL computes TP/SL prices off the current position's entry and
// closes the position with a market order if markPrice crosses either,
// transitioning briefly through Flattening.
func (e *Engine) checkTPSL(ctx context.Context, markPrice float64) {
	if e.position.IsFlat() {
		return
	}

	sideSign := 1.0
	if e.position.Side == domain.PositionShort {
		sideSign = -1.0
	}

	tp := e.position.EntryPrice * (1 + e.cfg.TPFraction*sideSign)
	sl := e.position.EntryPrice * (1 - e.cfg.SLFraction*sideSign)

	tpCrossed := (sideSign > 0 && markPrice >= tp) || (sideSign < 0 && markPrice <= tp)
	slCrossed := (sideSign > 0 && markPrice <= sl) || (sideSign < 0 && markPrice >= sl)

	if e.cfg.TrailingStopEnabled {
		e.trailing.update(e.position.Side, e.position.EntryPrice, markPrice, defaultTrailingParams())
		slCrossed = slCrossed || e.trailing.triggered(e.position.Side, markPrice)
	}

	crossed := tpCrossed || slCrossed
	if !crossed {
		return
	}

	e.state = StateFlattening
	closeSide := domain.SideSell
	if e.position.Side == domain.PositionShort {
		closeSide = domain.SideBuy
	}
	if _, err := e.client.Place(ctx, domain.OrderSpec{
		Symbol:     e.symbol,
		Side:       closeSide,
		Type:       domain.OrderTypeMarket,
		Quantity:   e.position.Size,
		ReduceOnly: true,
	}, e.venue); err != nil {
		e.log.Warn().Err(err).Msg("grid: TP/SL close order failed")
	} else {
		e.position = domain.Position{Side: domain.PositionFlat}
		e.trailing = trailingStopState{}
	}
	e.state = StateRunning
}

// Flatten cancels all open orders and, if requested, closes the open
// position with a market order, then transitions to Halted.
func (e *Engine) Flatten(ctx context.Context, closePosition bool) error {
	e.state = StateFlattening
	if err := e.cancelAll(ctx); err != nil {
		e.log.Warn().Err(err).Msg("grid: flatten cancel-all failed")
	}

	if closePosition && !e.position.IsFlat() {
		closeSide := domain.SideSell
		if e.position.Side == domain.PositionShort {
			closeSide = domain.SideBuy
		}
		if _, err := e.client.Place(ctx, domain.OrderSpec{
			Symbol:     e.symbol,
			Side:       closeSide,
			Type:       domain.OrderTypeMarket,
			Quantity:   e.position.Size,
			ReduceOnly: true,
		}, e.venue); err != nil {
			e.log.Warn().Err(err).Msg("grid: flatten position-close failed")
		} else {
			e.position = domain.Position{Side: domain.PositionFlat}
			e.trailing = trailingStopState{}
		}
	}

	e.state = StateHalted
	e.haltReason = "flattened on request"
	return nil
}

func (e *Engine) cancelAll(ctx context.Context) error {
	live, err := e.client.OpenOrders(ctx, e.symbol, e.venue)
	if err != nil {
		return err
	}
	for _, o := range live {
		if err := e.client.Cancel(ctx, e.symbol, o.OrderID, e.venue); err != nil {
			e.log.Warn().Err(err).Str("order_id", o.OrderID).Msg("grid: cancel-all entry failed")
		}
	}
	return nil
}

func (e *Engine) recordFailure(err error) error {
	e.consecutiveFailures++
	if e.cfg.MaxConsecutiveFailures > 0 && e.consecutiveFailures >= e.cfg.MaxConsecutiveFailures {
		e.halt(fmt.Sprintf("exceeded %d consecutive cycle failures: %v", e.cfg.MaxConsecutiveFailures, err))
	}
	return err
}

func (e *Engine) halt(reason string) {
	e.state = StateHalted
	e.haltReason = reason
	if e.sink != nil {
		e.sink.Send("grid_halted_"+e.symbol, alerts.SeverityCritical, e.symbol+" grid engine halted: "+reason, nil)
	}
	e.log.Error().Str("reason", reason).Msg("grid: halted")
}
