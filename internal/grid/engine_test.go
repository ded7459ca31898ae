package grid

import (
	"context"
	"testing"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/rs/zerolog"
)

type stubExchClient struct {
	exchange.Client
	openOrders []domain.OpenOrder
	placed     []domain.OrderSpec
	canceled   []string
	placeErr   error
	cancelErr  error
}

func (s *stubExchClient) OpenOrders(ctx context.Context, symbol string, venue domain.Venue) ([]domain.OpenOrder, error) {
	return s.openOrders, nil
}

func (s *stubExchClient) Cancel(ctx context.Context, symbol, orderID string, venue domain.Venue) error {
	s.canceled = append(s.canceled, orderID)
	return s.cancelErr
}

func (s *stubExchClient) Place(ctx context.Context, spec domain.OrderSpec, venue domain.Venue) (domain.OrderAck, error) {
	s.placed = append(s.placed, spec)
	if s.placeErr != nil {
		return domain.OrderAck{}, s.placeErr
	}
	return domain.OrderAck{OrderID: "new-order"}, nil
}

func testGridCfg() config.GridConfig {
	return config.GridConfig{
		InitialLevels:          4,
		MinLevels:              2,
		MaxLevels:              20,
		InitialSpacingFraction: 0.01,
		MinSpacingFraction:     0.001,
		TPFraction:             0.03,
		SLFraction:             0.05,
		CancelBudgetPerCycle:   1,
		PlaceBudgetPerCycle:    1,
		MaxConsecutiveFailures: 3,
	}
}

func TestNeedsRecenter_TrueWhenDriftExceedsThreshold(t *testing.T) {
	e := New("BTCUSDT", domain.VenueSpot, &stubExchClient{}, nil, testGridCfg(), zerolog.Nop())
	e.cfg.RecenterThresholdLevels = 2
	e.ladder = domain.Ladder{CenterPrice: 100, SpacingFraction: 0.01}
	if !e.needsRecenter(103.5) { // drift = 3.5 / (100*0.01) = 3.5 levels > 2
		t.Fatalf("expected recenter to be needed")
	}
	if e.needsRecenter(100.5) {
		t.Fatalf("expected no recenter for small drift")
	}
}

func TestReconcile_PlacesMissingLevelsAndCancelsStaleOrders(t *testing.T) {
	client := &stubExchClient{
		openOrders: []domain.OpenOrder{
			{OrderID: "stale-1", Symbol: "BTCUSDT", Side: domain.SideBuy, Price: 50, Quantity: 1},
		},
	}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())
	e.ladder = domain.Ladder{
		CenterPrice:     100,
		SpacingFraction: 0.01,
		Levels: []domain.Level{
			{Price: 99, Side: domain.SideBuy, IntendedQty: 1},
		},
	}

	if err := e.reconcile(context.Background(), domain.SymbolInfo{Symbol: "BTCUSDT", TickSize: 0.01}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.canceled) != 1 || client.canceled[0] != "stale-1" {
		t.Fatalf("expected stale order canceled, got %+v", client.canceled)
	}
	if len(client.placed) != 1 || client.placed[0].Price == nil || *client.placed[0].Price != 99 {
		t.Fatalf("expected missing level placed at 99, got %+v", client.placed)
	}
}

func TestReconcile_RespectsCancelAndPlaceBudgets(t *testing.T) {
	client := &stubExchClient{
		openOrders: []domain.OpenOrder{
			{OrderID: "stale-1", Symbol: "BTCUSDT", Side: domain.SideBuy, Price: 50, Quantity: 1},
			{OrderID: "stale-2", Symbol: "BTCUSDT", Side: domain.SideBuy, Price: 51, Quantity: 1},
		},
	}
	cfg := testGridCfg()
	cfg.CancelBudgetPerCycle = 1
	cfg.PlaceBudgetPerCycle = 1
	e := New("BTCUSDT", domain.VenueSpot, client, nil, cfg, zerolog.Nop())
	e.ladder = domain.Ladder{
		CenterPrice:     100,
		SpacingFraction: 0.01,
		Levels: []domain.Level{
			{Price: 99, Side: domain.SideBuy, IntendedQty: 1},
			{Price: 101, Side: domain.SideSell, IntendedQty: 1},
		},
	}

	if err := e.reconcile(context.Background(), domain.SymbolInfo{Symbol: "BTCUSDT", TickSize: 0.01}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.canceled) != 1 {
		t.Fatalf("expected cancel budget of 1 respected, got %d", len(client.canceled))
	}
	if len(client.placed) != 1 {
		t.Fatalf("expected place budget of 1 respected, got %d", len(client.placed))
	}
}

func TestReconcile_FillSchedulesMirrorLevel(t *testing.T) {
	// S2: center=2000, spacing=0.005, buy at 1990 fills; mirror sell
	// belongs at center, 2000.00.
	client := &stubExchClient{}
	e := New("ETHUSDT", domain.VenueDerivatives, client, nil, testGridCfg(), zerolog.Nop())
	e.ladder = domain.Ladder{
		CenterPrice:     2000,
		SpacingFraction: 0.005,
		Levels: []domain.Level{
			{Price: 1990, Side: domain.SideBuy, IntendedQty: 0.005, Index: -1, LiveOrderID: "buy-1"},
			{Price: 2010, Side: domain.SideSell, IntendedQty: 0.005, Index: 1, LiveOrderID: "sell-1"},
		},
	}
	e.prevOpenOrders = map[string]domain.OpenOrder{
		"buy-1":  {OrderID: "buy-1", Symbol: "ETHUSDT", Side: domain.SideBuy, Price: 1990, Quantity: 0.005},
		"sell-1": {OrderID: "sell-1", Symbol: "ETHUSDT", Side: domain.SideSell, Price: 2010, Quantity: 0.005},
	}
	// buy-1 is gone from the live set: it filled.
	client.openOrders = []domain.OpenOrder{
		{OrderID: "sell-1", Symbol: "ETHUSDT", Side: domain.SideSell, Price: 2010, Quantity: 0.005},
	}

	symbolInfo := domain.SymbolInfo{Symbol: "ETHUSDT", TickSize: 0.01, StepSize: 0.001, MinNotional: 5}
	if err := e.reconcile(context.Background(), symbolInfo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if e.position.Side != domain.PositionLong || e.position.Size != 0.005 {
		t.Fatalf("expected long position opened from the fill, got %+v", e.position)
	}

	var mirror *domain.Level
	for i := range e.ladder.Levels {
		lvl := e.ladder.Levels[i]
		if lvl.Side == domain.SideSell && lvl.Price == 2000.00 {
			mirror = &e.ladder.Levels[i]
		}
	}
	if mirror == nil {
		t.Fatalf("expected a mirror sell level scheduled at 2000.00, got %+v", e.ladder.Levels)
	}
}

func TestCheckTPSL_ClosesLongPositionOnTakeProfitCross(t *testing.T) {
	client := &stubExchClient{}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())
	e.position = domain.Position{Side: domain.PositionLong, Size: 1, EntryPrice: 100}

	e.checkTPSL(context.Background(), 104) // TP at 103 for 3% fraction

	if len(client.placed) != 1 {
		t.Fatalf("expected a TP close order, got %d", len(client.placed))
	}
	if !e.position.IsFlat() {
		t.Fatalf("expected position flattened after TP close")
	}
	if e.state != StateRunning {
		t.Fatalf("expected engine back to Running after close, got %v", e.state)
	}
}

func TestCheckTPSL_ClosesLongPositionOnStopLossCross(t *testing.T) {
	client := &stubExchClient{}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())
	e.position = domain.Position{Side: domain.PositionLong, Size: 1, EntryPrice: 100}

	e.checkTPSL(context.Background(), 94) // SL at 95 for 5% fraction

	if len(client.placed) != 1 {
		t.Fatalf("expected an SL close order, got %d", len(client.placed))
	}
	if !e.position.IsFlat() {
		t.Fatalf("expected position flattened after SL close")
	}
}

func TestCheckTPSL_NoActionWhenFlat(t *testing.T) {
	client := &stubExchClient{}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())
	e.checkTPSL(context.Background(), 1000)
	if len(client.placed) != 0 {
		t.Fatalf("expected no close order while flat, got %d", len(client.placed))
	}
}

func TestCheckTPSL_NoActionWithinBand(t *testing.T) {
	client := &stubExchClient{}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())
	e.position = domain.Position{Side: domain.PositionLong, Size: 1, EntryPrice: 100}
	e.checkTPSL(context.Background(), 101)
	if len(client.placed) != 0 {
		t.Fatalf("expected no close order within TP/SL band, got %d", len(client.placed))
	}
}

func TestCheckTPSL_TrailingStopTriggersEarlyClose(t *testing.T) {
	client := &stubExchClient{}
	cfg := testGridCfg()
	cfg.TrailingStopEnabled = true
	cfg.SLFraction = 0.10 // wide enough that only the trailing stop fires
	e := New("BTCUSDT", domain.VenueSpot, client, nil, cfg, zerolog.Nop())
	e.position = domain.Position{Side: domain.PositionLong, Size: 1, EntryPrice: 100}

	e.checkTPSL(context.Background(), 102) // activates trailing stop, sets best price
	e.checkTPSL(context.Background(), 100.5) // retraces below trailing stop, inside the wide SL band

	if len(client.placed) != 1 {
		t.Fatalf("expected trailing stop to close the position, got %d placed orders", len(client.placed))
	}
}

func TestFlatten_ClosesPositionAndCancelsOrdersThenHalts(t *testing.T) {
	client := &stubExchClient{
		openOrders: []domain.OpenOrder{{OrderID: "o1", Symbol: "BTCUSDT"}},
	}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())
	e.position = domain.Position{Side: domain.PositionLong, Size: 2, EntryPrice: 100}

	if err := e.Flatten(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.state != StateHalted {
		t.Fatalf("expected Halted state, got %v", e.state)
	}
	if !e.position.IsFlat() {
		t.Fatalf("expected position flattened")
	}
	if len(client.canceled) != 1 || len(client.placed) != 1 {
		t.Fatalf("expected cancel-all and one close order, got canceled=%d placed=%d", len(client.canceled), len(client.placed))
	}
}

func TestFlatten_SkipsCloseWhenAlreadyFlat(t *testing.T) {
	client := &stubExchClient{}
	e := New("BTCUSDT", domain.VenueSpot, client, nil, testGridCfg(), zerolog.Nop())

	if err := e.Flatten(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.placed) != 0 {
		t.Fatalf("expected no close order when already flat, got %d", len(client.placed))
	}
}

func TestRecordFailure_HaltsAfterMaxConsecutiveFailures(t *testing.T) {
	e := New("BTCUSDT", domain.VenueSpot, &stubExchClient{}, nil, testGridCfg(), zerolog.Nop())
	e.cfg.MaxConsecutiveFailures = 2
	_ = e.recordFailure(context.DeadlineExceeded)
	if e.state == StateHalted {
		t.Fatalf("should not halt after first failure")
	}
	_ = e.recordFailure(context.DeadlineExceeded)
	if e.state != StateHalted {
		t.Fatalf("expected halt after reaching max consecutive failures")
	}
}
