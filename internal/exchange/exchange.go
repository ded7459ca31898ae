// Package exchange defines the operation surface the core trading engine
// consumes from a centralized-exchange client, independent of any concrete
// venue's signing, rate-limiting, and response parsing. Concrete adapters
// (a live REST/WebSocket client, or the shadow/sandbox adapter in
// internal/exchange/sim) implement Client.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
)

// ErrTransient wraps exchange errors that are expected to succeed on retry:
// rate limiting, timeouts, 5xx responses. Callers in this module do not
// retry them: the grid engine counts each as a cycle failure and halts
// after MaxConsecutiveFailures in a row.
var ErrTransient = errors.New("transient exchange error")

// ErrPermanent wraps exchange errors that will not succeed on retry: bad
// arguments, insufficient funds, min-notional breaches. Callers drop the
// offending action and adapt (skip the symbol, shrink the grid) rather than
// retry.
var ErrPermanent = errors.New("permanent exchange error")

// WrapTransient annotates err as transient with context.
func WrapTransient(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrTransient, err)
}

// WrapPermanent annotates err as permanent with context.
func WrapPermanent(context string, err error) error {
	return fmt.Errorf("%s: %w: %w", context, ErrPermanent, err)
}

// IsTransient reports whether err (or something it wraps) is a transient
// exchange error.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsPermanent reports whether err (or something it wraps) is a permanent
// exchange error.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// TransferDirection identifies an inter-venue capital move.
type TransferDirection string

const (
	TransferSpotToDerivatives TransferDirection = "spot_to_derivatives"
	TransferDerivativesToSpot TransferDirection = "derivatives_to_spot"
)

// Capabilities describes optional features an adapter may advertise. The
// grid engine adapts its fill-detection strategy based on TradeStream (see
// internal/grid/fills.go).
type Capabilities struct {
	TradeStream bool
}

// TradeStreamEvent is a single fill reported by a user-trade stream.
type TradeStreamEvent struct {
	Symbol    string
	OrderID   string
	Side      domain.OrderSide
	Price     float64
	Quantity  float64
	FilledAt  time.Time
}

// Client is the full operation surface the trading engine consumes. Every
// method may fail with an error wrapping ErrTransient or ErrPermanent;
// adapters are responsible for that classification.
type Client interface {
	Capabilities() Capabilities

	ExchangeInfo(ctx context.Context, venue domain.Venue) ([]domain.SymbolInfo, error)
	Balance(ctx context.Context, venue domain.Venue) ([]domain.BalanceEntry, error)
	Account(ctx context.Context, venue domain.Venue) (domain.AccountSummary, error)

	Ticker(ctx context.Context, symbol string, venue domain.Venue) (domain.Ticker, error)
	Klines(ctx context.Context, symbol string, interval string, limit int, venue domain.Venue) ([]domain.Kline, error)
	Positions(ctx context.Context, symbol string, venue domain.Venue) ([]domain.Position, error)

	Place(ctx context.Context, spec domain.OrderSpec, venue domain.Venue) (domain.OrderAck, error)
	Cancel(ctx context.Context, symbol, orderID string, venue domain.Venue) error
	OpenOrders(ctx context.Context, symbol string, venue domain.Venue) ([]domain.OpenOrder, error)

	Transfer(ctx context.Context, asset string, amount float64, direction TransferDirection) error

	// TradeStream delivers fills as they happen. Only meaningful when
	// Capabilities().TradeStream is true; otherwise it returns
	// ErrPermanent immediately.
	TradeStream(ctx context.Context, symbols []string) (<-chan TradeStreamEvent, error)
}
