package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/events"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/rs/zerolog"
)

type stubClient struct {
	exchange.Client
}

func (s *stubClient) Capabilities() exchange.Capabilities { return exchange.Capabilities{} }

func (s *stubClient) Ticker(ctx context.Context, symbol string, venue domain.Venue) (domain.Ticker, error) {
	return domain.Ticker{LastPrice: 100}, nil
}

func (s *stubClient) OpenOrders(ctx context.Context, symbol string, venue domain.Venue) ([]domain.OpenOrder, error) {
	return nil, nil
}

func (s *stubClient) Cancel(ctx context.Context, symbol, orderID string, venue domain.Venue) error {
	return nil
}

func (s *stubClient) Place(ctx context.Context, spec domain.OrderSpec, venue domain.Venue) (domain.OrderAck, error) {
	return domain.OrderAck{OrderID: "order-1"}, nil
}

// crashingClient panics on a Ticker call once armed via arm(), then clears
// itself so a single arm() fires exactly one panic. A plain error
// wouldn't exercise the crash path: Worker.Run logs a cycle error and
// keeps ticking forever, so the only way the run loop actually exits
// unexpectedly (besides a requested stop) is a panic — the Go analogue
// of the source's "process exited non-zero". armForever keeps panicking
// on every call, for the repeated-failure/permanent-halt scenario.
type crashingClient struct {
	stubClient
	armed      int32
	armForever int32
}

func (c *crashingClient) arm()       { atomic.StoreInt32(&c.armed, 1) }
func (c *crashingClient) armAlways() { atomic.StoreInt32(&c.armForever, 1) }

func (c *crashingClient) Ticker(ctx context.Context, symbol string, venue domain.Venue) (domain.Ticker, error) {
	if atomic.LoadInt32(&c.armForever) == 1 {
		panic("simulated worker crash")
	}
	if atomic.CompareAndSwapInt32(&c.armed, 1, 0) {
		panic("simulated worker crash")
	}
	return domain.Ticker{LastPrice: 100}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentPairs: 2,
		Grid: config.GridConfig{
			InitialLevels:           4,
			MinLevels:               2,
			MaxLevels:               20,
			InitialSpacingFraction:  0.01,
			MinSpacingFraction:      0.001,
			TPFraction:              0.03,
			SLFraction:              0.05,
			CancelBudgetPerCycle:    2,
			PlaceBudgetPerCycle:     2,
			MaxConsecutiveFailures:  3,
			RecenterThresholdLevels: 1000,
		},
		Cycles: config.CyclesConfig{
			WorkerInterval: 10 * time.Millisecond,
		},
		Retrain: config.RetrainConfig{
			TradeThreshold: 5,
		},
		Supervisor: config.SupervisorConfig{
			RestartBackoffSeconds:      0,
			PermanentHaltWindowSeconds: 60,
			ShutdownGraceSeconds:       1,
		},
	}
}

func testAllocation() domain.Allocation {
	return domain.Allocation{AllocatedUSD: 1000, GridLevels: 4, SpacingFraction: 0.01, Venue: domain.VenueSpot}
}

func testSymbolInfo(symbol string) domain.SymbolInfo {
	return domain.SymbolInfo{Symbol: symbol, TickSize: 0.01, StepSize: 0.0001, MinNotional: 10}
}

func newTestSupervisor(client exchange.Client, cfg *config.Config) *Supervisor {
	sink := alerts.NewSink(noopTransport{}, time.Millisecond)
	bus := events.NewBus()
	return New(client, sink, nil, bus, nil, cfg, zerolog.Nop())
}

type noopTransport struct{}

func (noopTransport) Send(a alerts.Alert) error { return nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestReconcile_StartsAndStopsWorkers(t *testing.T) {
	client := &stubClient{}
	s := newTestSupervisor(client, testConfig())

	target := map[string]domain.Allocation{"BTCUSDT": testAllocation()}
	info := map[string]domain.SymbolInfo{"BTCUSDT": testSymbolInfo("BTCUSDT")}

	s.Reconcile(context.Background(), target, info)
	if got := s.ActiveSymbols(); len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("expected BTCUSDT running, got %v", got)
	}

	s.Reconcile(context.Background(), map[string]domain.Allocation{}, info)
	if got := s.ActiveSymbols(); len(got) != 0 {
		t.Fatalf("expected no workers after dropping from target, got %v", got)
	}
}

func TestReconcile_RespectsMaxConcurrentPairs(t *testing.T) {
	client := &stubClient{}
	cfg := testConfig()
	cfg.MaxConcurrentPairs = 1
	s := newTestSupervisor(client, cfg)

	target := map[string]domain.Allocation{
		"BTCUSDT": testAllocation(),
		"ETHUSDT": testAllocation(),
	}
	info := map[string]domain.SymbolInfo{
		"BTCUSDT": testSymbolInfo("BTCUSDT"),
		"ETHUSDT": testSymbolInfo("ETHUSDT"),
	}

	s.Reconcile(context.Background(), target, info)
	if got := s.ActiveSymbols(); len(got) != 1 {
		t.Fatalf("expected exactly one worker started under max_concurrent_pairs=1, got %v", got)
	}
}

func TestReconcile_SkipsSymbolWithoutInfo(t *testing.T) {
	client := &stubClient{}
	s := newTestSupervisor(client, testConfig())

	target := map[string]domain.Allocation{"BTCUSDT": testAllocation()}
	s.Reconcile(context.Background(), target, map[string]domain.SymbolInfo{})

	if got := s.ActiveSymbols(); len(got) != 0 {
		t.Fatalf("expected no worker started without symbol info, got %v", got)
	}
}

func TestHandleCrash_RestartsWithinBackoffThenStaysActive(t *testing.T) {
	client := &crashingClient{}
	cfg := testConfig()
	s := newTestSupervisor(client, cfg)

	target := map[string]domain.Allocation{"BTCUSDT": testAllocation()}
	info := map[string]domain.SymbolInfo{"BTCUSDT": testSymbolInfo("BTCUSDT")}
	s.Reconcile(context.Background(), target, info)

	// One transient panic: the restart that follows gets a clean Ticker
	// call and comes back up for good.
	client.arm()

	waitFor(t, time.Second, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		mw, ok := s.workers["BTCUSDT"]
		return ok && mw.restarts >= 1 && !mw.halted
	})

	time.Sleep(30 * time.Millisecond)
	s.mu.Lock()
	mw, ok := s.workers["BTCUSDT"]
	halted := ok && mw.halted
	s.mu.Unlock()
	if halted {
		t.Fatalf("expected worker to stay active after a single transient crash, got halted")
	}
}

func TestHandleCrash_PermanentlyHaltsAfterRepeatedFailureWithinWindow(t *testing.T) {
	client := &crashingClient{}
	cfg := testConfig()
	cfg.Supervisor.PermanentHaltWindowSeconds = 60
	s := newTestSupervisor(client, cfg)

	target := map[string]domain.Allocation{"BTCUSDT": testAllocation()}
	info := map[string]domain.SymbolInfo{"BTCUSDT": testSymbolInfo("BTCUSDT")}
	s.Reconcile(context.Background(), target, info)

	// Every Ticker call panics from here on: the first crash's restart
	// attempt fails too, counting as a second crash within the window.
	client.armAlways()

	waitFor(t, 2*time.Second, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		mw, ok := s.workers["BTCUSDT"]
		return ok && mw.halted
	})
}

type fakeRetrainer struct {
	started bool
	running bool
}

func (f *fakeRetrainer) Start(ctx context.Context, symbol string, tradeCount int) { f.started = true }
func (f *fakeRetrainer) Running() bool                                           { return f.running }

func TestCheckRetrain_TriggersAtThresholdAndResetsBaseline(t *testing.T) {
	client := &stubClient{}
	cfg := testConfig()
	cfg.Retrain.TradeThreshold = 5
	retrainer := &fakeRetrainer{}
	sink := alerts.NewSink(noopTransport{}, time.Millisecond)
	bus := events.NewBus()
	s := New(client, sink, nil, bus, retrainer, cfg, zerolog.Nop())

	s.tradeCounter = 4
	s.CheckRetrain(context.Background(), "BTCUSDT")
	if retrainer.started {
		t.Fatalf("expected no retrain below threshold")
	}

	s.tradeCounter = 5
	s.CheckRetrain(context.Background(), "BTCUSDT")
	if !retrainer.started {
		t.Fatalf("expected retrain to start once threshold reached")
	}
	if s.retrainBaseline != 5 {
		t.Fatalf("expected baseline reset to current count, got %d", s.retrainBaseline)
	}
}

func TestCheckRetrain_SkipsWhileAlreadyRunning(t *testing.T) {
	client := &stubClient{}
	cfg := testConfig()
	cfg.Retrain.TradeThreshold = 1
	retrainer := &fakeRetrainer{running: true}
	sink := alerts.NewSink(noopTransport{}, time.Millisecond)
	bus := events.NewBus()
	s := New(client, sink, nil, bus, retrainer, cfg, zerolog.Nop())

	s.tradeCounter = 10
	s.CheckRetrain(context.Background(), "BTCUSDT")

	if retrainer.started {
		t.Fatalf("expected no retrain start while one is already running")
	}
	if s.retrainBaseline != 0 {
		t.Fatalf("expected baseline untouched while retrain already running, got %d", s.retrainBaseline)
	}
}

func TestStopAll_StopsEveryWorker(t *testing.T) {
	client := &stubClient{}
	s := newTestSupervisor(client, testConfig())

	target := map[string]domain.Allocation{
		"BTCUSDT": testAllocation(),
		"ETHUSDT": testAllocation(),
	}
	info := map[string]domain.SymbolInfo{
		"BTCUSDT": testSymbolInfo("BTCUSDT"),
		"ETHUSDT": testSymbolInfo("ETHUSDT"),
	}
	s.Reconcile(context.Background(), target, info)

	s.StopAll()

	if got := s.ActiveSymbols(); len(got) != 0 {
		t.Fatalf("expected no active workers after StopAll, got %v", got)
	}
}
