// Package supervisor owns the symbol->worker map: it starts a worker per
// newly selected symbol, gracefully stops workers for symbols dropped
// from the selection, restarts workers that exit unexpectedly with
// bounded backoff, and drives the retrain trigger off a single shared
// atomic trade counter. Grounded on spec.md §4.10 and the teacher's
// severity-threshold pattern in internal/reliability/maintenance.go.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/events"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/grid"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/store"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/worker"
	"github.com/rs/zerolog"
)

// Retrainer starts and observes an external model/parameter retraining
// job. The supervisor only starts/stops it (spec.md §1's C1 boundary) —
// the retraining logic itself is out of scope.
type Retrainer interface {
	// Start launches a retrain run if one isn't already in flight. It
	// returns immediately; Running reports whether it's still active.
	Start(ctx context.Context, symbol string, tradeCount int)
	Running() bool
}

// managedWorker tracks one active worker's lifecycle bookkeeping.
type managedWorker struct {
	symbol       string
	allocation   domain.Allocation
	symbolInfo   domain.SymbolInfo
	worker       *worker.Worker
	cancel       context.CancelFunc
	done         chan struct{}
	restarts     int
	firstFailure time.Time
	halted       bool
}

// Supervisor is the parent of every per-symbol worker goroutine.
type Supervisor struct {
	mu      sync.Mutex
	workers map[string]*managedWorker

	client    exchange.Client
	sink      *alerts.Sink
	store     *store.Store
	events    *events.Bus
	retrainer Retrainer
	cfg       *config.Config
	log       zerolog.Logger

	tradeCounter    int64
	retrainBaseline int64
}

// New builds an empty Supervisor.
func New(client exchange.Client, sink *alerts.Sink, st *store.Store, bus *events.Bus, retrainer Retrainer, cfg *config.Config, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		workers:   make(map[string]*managedWorker),
		client:    client,
		sink:      sink,
		store:     st,
		events:    bus,
		retrainer: retrainer,
		cfg:       cfg,
		log:       log.With().Str("component", "supervisor").Logger(),
	}
}

// ActiveSymbols returns the symbols with a live worker, for the
// coordinator to address with tuning actions.
func (s *Supervisor) ActiveSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.workers))
	for symbol := range s.workers {
		out = append(out, symbol)
	}
	return out
}

// Mailbox returns the mailbox for symbol's worker, or nil if it has no
// active worker.
func (s *Supervisor) Mailbox(symbol string) *worker.Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	mw, ok := s.workers[symbol]
	if !ok {
		return nil
	}
	return mw.worker.Mailbox()
}

// Engine returns the grid engine for symbol's worker, or nil. Read-only
// snapshot access (State, Position) is safe from any goroutine; mutating
// calls are not — use RequestFlatten to affect a running worker.
func (s *Supervisor) Engine(symbol string) *grid.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	mw, ok := s.workers[symbol]
	if !ok {
		return nil
	}
	return mw.worker.Engine()
}

// RequestFlatten asks symbol's worker to cancel its ladder (and, if
// closePosition, close its position) on its own goroutine at its next
// cycle. No-op if symbol has no active worker.
func (s *Supervisor) RequestFlatten(symbol string, closePosition bool) {
	s.mu.Lock()
	mw, ok := s.workers[symbol]
	s.mu.Unlock()
	if !ok {
		return
	}
	mw.worker.RequestFlatten(closePosition)
}

// WorkersOnVenue returns the symbols of active workers trading on venue,
// for the coordinator to target a venue-wide risk-triggered flatten.
func (s *Supervisor) WorkersOnVenue(venue domain.Venue) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for symbol, mw := range s.workers {
		if mw.allocation.Venue == venue {
			out = append(out, symbol)
		}
	}
	return out
}

// Reconcile brings the active worker set in line with target: symbols
// present in target but not running are started (bounded by
// max_concurrent_pairs), symbols running but absent from target are
// gracefully stopped.
func (s *Supervisor) Reconcile(ctx context.Context, target map[string]domain.Allocation, symbolInfo map[string]domain.SymbolInfo) {
	s.mu.Lock()
	var toStop []string
	for symbol := range s.workers {
		if _, ok := target[symbol]; !ok {
			toStop = append(toStop, symbol)
		}
	}
	activeCount := len(s.workers)
	s.mu.Unlock()

	for _, symbol := range toStop {
		s.stopWorker(symbol)
	}

	for symbol, allocation := range target {
		s.mu.Lock()
		_, running := s.workers[symbol]
		s.mu.Unlock()
		if running {
			continue
		}
		if activeCount >= s.cfg.MaxConcurrentPairs {
			s.log.Warn().Str("symbol", symbol).Int("active", activeCount).Msg("supervisor: max_concurrent_pairs reached, skipping start")
			continue
		}
		info, ok := symbolInfo[symbol]
		if !ok {
			s.log.Warn().Str("symbol", symbol).Msg("supervisor: no symbol info, skipping start")
			continue
		}
		if err := s.startWorker(ctx, symbol, allocation, info, nil); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("supervisor: failed to start worker")
			continue
		}
		activeCount++
	}
}

// startWorker builds and launches a worker for symbol. When carryOver is
// non-nil (a restart, not a fresh selection), its crash bookkeeping
// (restarts, firstFailure) is preserved on the new managedWorker so the
// permanent-halt window in handleCrash spans across restarts rather than
// resetting on every successful one.
func (s *Supervisor) startWorker(ctx context.Context, symbol string, allocation domain.Allocation, info domain.SymbolInfo, carryOver *managedWorker) (err error) {
	// A panic during construction (a misbehaving exchange client, a bug in
	// ladder sizing) must not take the whole supervisor down with it —
	// convert it into the same error path as any other start failure.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic starting worker for %s: %v", symbol, r)
		}
	}()

	e := grid.New(symbol, allocation.Venue, s.client, s.sink, s.cfg.Grid, s.log)
	if err := e.Initialize(ctx, allocation, info); err != nil {
		return fmt.Errorf("initialize grid engine for %s: %w", symbol, err)
	}

	var persister worker.StatePersister
	if s.store != nil {
		persister = s.store
	}
	w := worker.New(symbol, allocation.Venue, e, info, s.cfg.Cycles.WorkerInterval, &s.tradeCounter, persister, s.log)

	workerCtx, cancel := context.WithCancel(context.Background())
	mw := &managedWorker{symbol: symbol, allocation: allocation, symbolInfo: info, worker: w, cancel: cancel, done: make(chan struct{})}
	if carryOver != nil {
		mw.restarts = carryOver.restarts
		mw.firstFailure = carryOver.firstFailure
	}

	s.mu.Lock()
	s.workers[symbol] = mw
	s.mu.Unlock()

	go s.runWorker(workerCtx, mw)

	s.log.Info().Str("symbol", symbol).Str("venue", string(allocation.Venue)).Msg("supervisor: worker started")
	return nil
}

// runWorker drives one worker's lifetime and reacts to unexpected exits
// with bounded-backoff restarts, per spec.md's S4 scenario. Worker.Run
// itself never returns on a mere cycle error (it logs and keeps ticking);
// the only way it exits besides a requested stop is a panic, which is
// this Go runtime's equivalent of the source's "process exited non-zero".
func (s *Supervisor) runWorker(ctx context.Context, mw *managedWorker) {
	defer close(mw.done)

	reason, panicked := s.runWorkerGuarded(ctx, mw)
	if !panicked {
		return
	}

	select {
	case <-ctx.Done():
		// Stop was already requested; a panic racing the shutdown signal
		// is not a crash worth restarting for.
		return
	default:
	}

	s.handleCrash(mw, reason)
}

func (s *Supervisor) runWorkerGuarded(ctx context.Context, mw *managedWorker) (reason string, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("symbol", mw.symbol).Msg("supervisor: worker panicked")
			reason = fmt.Sprintf("%v", r)
			panicked = true
		}
	}()
	mw.worker.Run(ctx)
	return "", false
}

func (s *Supervisor) handleCrash(mw *managedWorker, reason string) {
	s.mu.Lock()
	if mw.firstFailure.IsZero() {
		mw.firstFailure = time.Now()
	}
	mw.restarts++
	restarts := mw.restarts
	sinceFirst := time.Since(mw.firstFailure)
	s.mu.Unlock()

	s.events.Emit("supervisor", &events.WorkerCrashedData{Symbol: mw.symbol, Err: reason, RestartCount: restarts})
	s.sink.Send("worker_crash:"+mw.symbol, alerts.SeverityCritical, mw.symbol+" grid worker exited unexpectedly: "+reason, nil)

	halt := sinceFirst <= time.Duration(s.cfg.Supervisor.PermanentHaltWindowSeconds)*time.Second && restarts > 1
	if halt {
		s.mu.Lock()
		mw.halted = true
		s.mu.Unlock()
		s.sink.Send("worker_permanently_halted:"+mw.symbol, alerts.SeverityCritical, mw.symbol+" grid worker repeatedly crashed within the halt window, giving up", nil)
		s.log.Error().Str("symbol", mw.symbol).Msg("supervisor: worker permanently halted")
		return
	}

	backoff := time.Duration(s.cfg.Supervisor.RestartBackoffSeconds) * time.Second
	s.log.Warn().Str("symbol", mw.symbol).Dur("backoff", backoff).Msg("supervisor: scheduling worker restart")

	go func() {
		time.Sleep(backoff)
		s.restartWorker(mw)
	}()
}

func (s *Supervisor) restartWorker(mw *managedWorker) {
	s.mu.Lock()
	current, ok := s.workers[mw.symbol]
	if !ok || current != mw || mw.halted {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.startWorker(context.Background(), mw.symbol, mw.allocation, mw.symbolInfo, mw); err != nil {
		s.log.Error().Err(err).Str("symbol", mw.symbol).Msg("supervisor: restart failed")
		// A restart that fails to even come up counts as another crash
		// against the same window — otherwise a persistently broken
		// symbol (bad credentials, delisted pair) would retry forever
		// instead of tripping the permanent-halt branch.
		s.handleCrash(mw, err.Error())
		return
	}
	s.events.Emit("supervisor", &events.WorkerRestartedData{Symbol: mw.symbol, Attempt: mw.restarts})
}

func (s *Supervisor) stopWorker(symbol string) {
	s.mu.Lock()
	mw, ok := s.workers[symbol]
	if ok {
		delete(s.workers, symbol)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	mw.cancel()
	select {
	case <-mw.done:
	case <-time.After(time.Duration(s.cfg.Supervisor.ShutdownGraceSeconds) * time.Second):
		s.log.Warn().Str("symbol", symbol).Msg("supervisor: worker did not stop within grace period")
	}
	s.log.Info().Str("symbol", symbol).Msg("supervisor: worker stopped")
}

// CheckRetrain compares the shared trade counter against the configured
// threshold and starts a retrain run if due, per spec.md's S5 scenario.
func (s *Supervisor) CheckRetrain(ctx context.Context, symbol string) {
	if s.retrainer == nil {
		return
	}
	count := atomic.LoadInt64(&s.tradeCounter)
	baseline := atomic.LoadInt64(&s.retrainBaseline)
	if count-baseline < int64(s.cfg.Retrain.TradeThreshold) {
		return
	}
	if s.retrainer.Running() {
		return
	}
	atomic.StoreInt64(&s.retrainBaseline, count)
	s.retrainer.Start(ctx, symbol, int(count))
	s.events.Emit("supervisor", &events.RetrainTriggeredData{Symbol: symbol, TradeCount: int(count)})
}

// TradeCount returns the current shared fill counter, for diagnostics.
func (s *Supervisor) TradeCount() int64 { return atomic.LoadInt64(&s.tradeCounter) }

// StopAll gracefully stops every active worker, waiting up to the
// configured grace period per worker.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.workers))
	for symbol := range s.workers {
		symbols = append(symbols, symbol)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.stopWorker(symbol)
		}(symbol)
	}
	wg.Wait()
}
