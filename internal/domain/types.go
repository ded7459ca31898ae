// Package domain provides the core types shared across the grid-trading
// engine: symbol metadata, balances, allocations, ladders, positions, trades,
// sentiment, and the market overview. These types have no behavior of their
// own beyond small invariant-checking helpers — the logic that produces and
// consumes them lives in the package that owns each concern.
package domain

import "time"

// Venue identifies which market a symbol trades on.
type Venue string

const (
	VenueSpot        Venue = "spot"
	VenueDerivatives Venue = "derivatives"
)

// OrderSide is the direction of an order or fill.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType mirrors the exchange adapter's recognized order types.
type OrderType string

const (
	OrderTypeLimit       OrderType = "limit"
	OrderTypeMarket      OrderType = "market"
	OrderTypeStop        OrderType = "stop"
	OrderTypeStopMarket  OrderType = "stop_market"
)

// TimeInForce mirrors the exchange adapter's recognized TIF values.
type TimeInForce string

const (
	TIFGoodTilCancel   TimeInForce = "gtc"
	TIFImmediateOrCancel TimeInForce = "ioc"
	TIFFillOrKill      TimeInForce = "fok"
)

// TradeSource identifies what caused a fill.
type TradeSource string

const (
	TradeSourceGrid   TradeSource = "grid"
	TradeSourceTP     TradeSource = "tp"
	TradeSourceSL     TradeSource = "sl"
	TradeSourceManual TradeSource = "manual"
)

// PositionSide is the net direction of a worker's logical position.
type PositionSide string

const (
	PositionFlat  PositionSide = "flat"
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// TrendLabel summarizes the market overview's aggregate trend.
type TrendLabel string

const (
	TrendBullish TrendLabel = "bullish"
	TrendBearish TrendLabel = "bearish"
	TrendNeutral TrendLabel = "neutral"
)

// StrategyLabel is the decision engine's overview-mode output.
type StrategyLabel string

const (
	StrategyAggressive   StrategyLabel = "aggressive"
	StrategyConservative StrategyLabel = "conservative"
	StrategyBalanced     StrategyLabel = "balanced"
)

// SymbolInfo is immutable metadata cached from the exchange for one symbol.
//
// Invariant: every quoted price must be a multiple of TickSize; every
// quantity a multiple of StepSize; every order notional >= MinNotional.
type SymbolInfo struct {
	Symbol           string  `json:"symbol"`
	Venue            Venue   `json:"venue"`
	TickSize         float64 `json:"tick_size"`
	StepSize         float64 `json:"step_size"`
	MinNotional      float64 `json:"min_notional"`
	QuantityPrecision int    `json:"quantity_precision"`
	PricePrecision   int     `json:"price_precision"`
	MaxLeverage      float64 `json:"max_leverage"`
}

// BalanceEntry is one venue's slice of the account balance snapshot.
type BalanceEntry struct {
	Venue        Venue   `json:"venue"`
	Free         float64 `json:"free"`
	Locked       float64 `json:"locked"`
	Equity       float64 `json:"equity"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// BalanceSnapshot is the data cache's refreshed view of account balances.
type BalanceSnapshot struct {
	ByVenue   map[Venue]BalanceEntry `json:"by_venue"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// TotalEquity sums equity across every venue in the snapshot.
func (b BalanceSnapshot) TotalEquity() float64 {
	total := 0.0
	for _, entry := range b.ByVenue {
		total += entry.Equity
	}
	return total
}

// Allocation is issued by the capital manager and consumed by the grid
// engine.
//
// Invariants: AllocatedUSD >= the configured min-per-pair; GridLevels in
// [min, max]; SpacingFraction > 0; AllocatedUSD <= max_single_asset_weight *
// total_equity (enforced by the capital manager, not here).
type Allocation struct {
	Symbol          string  `json:"symbol"`
	Venue           Venue   `json:"venue"`
	AllocatedUSD    float64 `json:"allocated_usd"`
	MaxPositionUSD  float64 `json:"max_position_usd"`
	GridLevels      int     `json:"grid_levels"`
	SpacingFraction float64 `json:"spacing_fraction"`
	Leverage        float64 `json:"leverage"`
}

// Level is one rung of a grid ladder.
type Level struct {
	Price       float64 `json:"price"`
	Side        OrderSide `json:"side"`
	IntendedQty float64 `json:"intended_qty"`
	LiveOrderID string  `json:"live_order_id,omitempty"`
	Index       int     `json:"index"` // signed offset from center, negative = buy side
}

// Ladder is an ordered, symmetric sequence of levels around a center price.
//
// Invariant: prices strictly monotonic across the full sequence; two
// consecutive levels differ by at least one tick; for every level,
// price == center * (1 + index*spacing) rounded to tick size.
type Ladder struct {
	CenterPrice     float64 `json:"center_price"`
	SpacingFraction float64 `json:"spacing_fraction"`
	Levels          []Level `json:"levels"`
}

// Position is a grid worker's single logical position (possibly flat).
type Position struct {
	Side         PositionSide `json:"side"`
	Size         float64      `json:"size"`
	EntryPrice   float64      `json:"entry_price"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	TPPrice      *float64     `json:"tp_price,omitempty"`
	SLPrice      *float64     `json:"sl_price,omitempty"`
}

// IsFlat reports whether the position carries no size.
func (p Position) IsFlat() bool { return p.Side == PositionFlat || p.Size == 0 }

// Trade is one append-only record of an executed fill.
type Trade struct {
	Timestamp   time.Time   `json:"timestamp"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	RealizedPnL float64     `json:"realized_pnl"`
	Source      TradeSource `json:"source"`
}

// SentimentScore is the aggregator's smoothed output, plus a per-source
// breakdown for observability.
type SentimentScore struct {
	Smoothed  float64            `json:"smoothed"`
	Raw       float64            `json:"raw"`
	BySource  map[string]float64 `json:"by_source"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// MarketOverview is produced once per coordinator cycle by the pair
// selector, aggregated over the full filtered candidate set (not just the
// selected top K).
type MarketOverview struct {
	TotalPairs      int        `json:"total_pairs"`
	AvgVolume       float64    `json:"avg_volume"`
	AvgVolatility   float64    `json:"avg_volatility"`
	TrendLabel      TrendLabel `json:"trend_label"`
	HotSymbols      []string   `json:"hot_symbols"`
	ConditionsLabel string     `json:"conditions_label"`
}

// OrderSpec is the shape an order request takes when handed to the exchange
// adapter's Place method.
type OrderSpec struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Quantity    float64
	Price       *float64
	StopPrice   *float64
	TimeInForce TimeInForce
	ReduceOnly  bool
}

// OrderAck is the exchange adapter's response to a successful Place call.
type OrderAck struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Price     float64
	Quantity  float64
	Status    string
	CreatedAt time.Time
}

// OpenOrder is one resting order as reported by the exchange.
type OpenOrder struct {
	OrderID  string
	Symbol   string
	Side     OrderSide
	Price    float64
	Quantity float64
}

// Ticker is a 24h market summary for one symbol.
type Ticker struct {
	Symbol        string
	LastPrice     float64
	BidPrice      float64
	AskPrice      float64
	QuoteVolume24h float64
	PriceChangePct float64
	HighPrice24h  float64
	LowPrice24h   float64
	FetchedAt     time.Time
}

// SpreadFraction returns (ask-bid)/lastPrice, the relative bid-ask spread
// used by the pair selector's max-spread filter. Zero if LastPrice is
// zero.
func (t Ticker) SpreadFraction() float64 {
	if t.LastPrice == 0 {
		return 0
	}
	return (t.AskPrice - t.BidPrice) / t.LastPrice
}

// Kline is a single OHLCV bar.
type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// AccountSummary is venue-scoped account state beyond plain balances.
type AccountSummary struct {
	Venue           Venue
	MarginRatio     float64
	AvailableMargin float64
}
