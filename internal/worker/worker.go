// Package worker runs one symbol's grid engine as an independent
// goroutine: cooperative refresh -> reconcile -> tune -> check TP/SL ->
// sleep-until-deadline cycle (spec.md §5), observing a stop signal
// between suspension points and picking up coordinator actions from a
// single-slot Mailbox at the top of each cycle.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/grid"
	"github.com/rs/zerolog"
)

// StatePersister saves a worker's state on graceful stop, so a restart
// can resume instead of rebuilding from scratch. Implemented by
// internal/store; nil is a valid no-op configuration.
type StatePersister interface {
	PersistState(ctx context.Context, symbol string, venue domain.Venue, position domain.Position, ladder domain.Ladder) error
}

// Worker owns one symbol's grid.Engine and drives its cycle on a fixed
// interval until stopped.
type Worker struct {
	symbol     string
	venue      domain.Venue
	engine     *grid.Engine
	symbolInfo domain.SymbolInfo
	interval   time.Duration

	mailbox      *Mailbox
	tradeCounter *int64 // shared with the supervisor's retrain trigger

	flattenRequested chan bool // single-slot: true = close position, false = cancel-only

	persister StatePersister

	stop    chan struct{}
	stopped chan struct{}

	log zerolog.Logger
}

// New builds a Worker. tradeCounter, if non-nil, is incremented
// atomically by the number of new fills detected each cycle. persister
// may be nil.
func New(symbol string, venue domain.Venue, engine *grid.Engine, symbolInfo domain.SymbolInfo, interval time.Duration, tradeCounter *int64, persister StatePersister, log zerolog.Logger) *Worker {
	return &Worker{
		symbol:           symbol,
		venue:            venue,
		engine:           engine,
		symbolInfo:       symbolInfo,
		interval:         interval,
		mailbox:          NewMailbox(),
		tradeCounter:     tradeCounter,
		flattenRequested: make(chan bool, 1),
		persister:        persister,
		stop:             make(chan struct{}),
		stopped:          make(chan struct{}),
		log:              log.With().Str("component", "worker").Str("symbol", symbol).Logger(),
	}
}

// RequestFlatten asks the worker to cancel its ladder (and, if
// closePosition, market-close its position) on its next cycle, run on
// its own goroutine rather than the caller's — the grid engine has no
// internal locking, so only the worker's single driving goroutine may
// touch it. A repeated request before the worker picks it up overwrites
// the pending one, same single-slot semantics as Mailbox.
func (w *Worker) RequestFlatten(closePosition bool) {
	for {
		select {
		case w.flattenRequested <- closePosition:
			return
		default:
			select {
			case <-w.flattenRequested:
			default:
			}
		}
	}
}

// Mailbox returns the worker's single-slot action inbox, for the
// coordinator to push into.
func (w *Worker) Mailbox() *Mailbox { return w.mailbox }

// Engine exposes the underlying grid engine for non-blocking snapshot
// reads by the coordinator (state, position).
func (w *Worker) Engine() *grid.Engine { return w.engine }

// Run blocks, driving the cycle loop until ctx is canceled or Stop is
// called. On exit it cancels all open orders and, if a persister is
// configured, saves the worker's state — the "never leave orphan
// orders" exit-path guarantee of spec.md §4.10.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	defer w.shutdown(context.Background())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	if w.engine.State() == grid.StateHalted {
		return
	}

	select {
	case closePosition := <-w.flattenRequested:
		if err := w.engine.Flatten(ctx, closePosition); err != nil {
			w.log.Warn().Err(err).Msg("worker: requested flatten failed")
		}
		return
	default:
	}

	action, _ := w.mailbox.TryTake()

	before := w.engine.TradeCount()
	if err := w.engine.RunCycle(ctx, w.symbolInfo, action); err != nil {
		w.log.Warn().Err(err).Msg("worker: cycle error")
	}

	if w.tradeCounter != nil {
		if delta := w.engine.TradeCount() - before; delta > 0 {
			atomic.AddInt64(w.tradeCounter, int64(delta))
		}
	}
}

// Stop signals the run loop to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.stopped
}

func (w *Worker) shutdown(ctx context.Context) {
	if err := w.engine.Flatten(ctx, false); err != nil {
		w.log.Warn().Err(err).Msg("worker: cancel-all on shutdown failed")
	}
	if w.persister != nil {
		if err := w.persister.PersistState(ctx, w.symbol, w.venue, w.engine.Position(), w.engine.Ladder()); err != nil {
			w.log.Warn().Err(err).Msg("worker: state persistence failed on shutdown")
		}
	}
	w.log.Info().Msg("worker: stopped, orders canceled")
}
