package capital

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/rs/zerolog"
)

type stubClient struct {
	exchange.Client
	transfers []float64
}

func (s *stubClient) Transfer(ctx context.Context, asset string, amount float64, direction exchange.TransferDirection) error {
	s.transfers = append(s.transfers, amount)
	return nil
}

func baseConfig() *config.Config {
	return &config.Config{
		MaxConcurrentPairs:   5,
		MinCapitalPerPairUSD: 50,
		SafetyBufferFraction: 0.1,
		MarketAllocation:     config.MarketAllocation{SpotPercentage: 70, DerivativesPercentage: 30},
		Allocation:           config.AllocationConfig{OverridePrecedence: config.ManualWins, TransferFloorUSD: 100},
		Grid: config.GridConfig{
			InitialLevels:          10,
			MinLevels:              4,
			MaxLevels:              30,
			InitialSpacingFraction: 0.005,
		},
		Risk: config.RiskConfig{MaxSingleAssetWeight: 0.5},
	}
}

func TestChooseVenue_PrefersListedVenueWhenOtherUnlisted(t *testing.T) {
	spot := VenueMetrics{Listed: false}
	deriv := VenueMetrics{Listed: true}
	got := ChooseVenue("ZZZUSDT", spot, deriv, VenueDecisionConfig{})
	if got != domain.VenueDerivatives {
		t.Fatalf("expected derivatives, got %v", got)
	}
}

func TestChooseVenue_MajorPairBiasesTowardSpot(t *testing.T) {
	spot := VenueMetrics{Listed: true, Volume24h: 1_000_000, AvailableUSD: 100}
	deriv := VenueMetrics{Listed: true, Volume24h: 1_000_000, AvailableUSD: 100}
	got := ChooseVenue("XRPUSDT", spot, deriv, VenueDecisionConfig{})
	if got != domain.VenueSpot {
		t.Fatalf("expected spot for major pair with even metrics, got %v", got)
	}
}

func TestChooseVenue_HighVolumeSkewFavorsDerivatives(t *testing.T) {
	spot := VenueMetrics{Listed: true, Volume24h: 100, AvailableUSD: 100}
	deriv := VenueMetrics{Listed: true, Volume24h: 10_000_000, AvailableUSD: 100}
	got := ChooseVenue("OBSCUREUSDT", spot, deriv, VenueDecisionConfig{})
	if got != domain.VenueDerivatives {
		t.Fatalf("expected derivatives given overwhelming volume skew, got %v", got)
	}
}

func TestManager_chooseVenueFor_ManualOverrideWinsWhenListed(t *testing.T) {
	m := &Manager{cfg: baseConfig()}
	manual := domain.VenueDerivatives
	c := Candidate{
		Symbol:      "BTCUSDT",
		ManualVenue: &manual,
		Spot:        VenueMetrics{Listed: true, Volume24h: 1_000_000},
		Derivatives: VenueMetrics{Listed: true, Volume24h: 1_000_000},
	}
	got := m.chooseVenueFor(c)
	if got != domain.VenueDerivatives {
		t.Fatalf("expected manual override to win, got %v", got)
	}
}

func TestManager_chooseVenueFor_FallsBackWhenManualVenueUnlisted(t *testing.T) {
	m := &Manager{cfg: baseConfig()}
	manual := domain.VenueDerivatives
	c := Candidate{
		Symbol:      "BTCUSDT",
		ManualVenue: &manual,
		Spot:        VenueMetrics{Listed: true, Volume24h: 1_000_000},
		Derivatives: VenueMetrics{Listed: false},
	}
	got := m.chooseVenueFor(c)
	if got != domain.VenueSpot {
		t.Fatalf("expected fallback to spot (only listed venue), got %v", got)
	}
}

func TestManager_chooseVenueFor_RebalanceWinsIgnoresManual(t *testing.T) {
	cfg := baseConfig()
	cfg.Allocation.OverridePrecedence = config.RebalanceWins
	m := &Manager{cfg: cfg}
	manual := domain.VenueDerivatives
	c := Candidate{
		Symbol:      "BTCUSDT",
		ManualVenue: &manual,
		Spot:        VenueMetrics{Listed: true, Volume24h: 1_000_000},
		Derivatives: VenueMetrics{Listed: true, Volume24h: 1_000_000},
	}
	got := m.chooseVenueFor(c)
	if got != domain.VenueSpot {
		t.Fatalf("expected scored decision (spot, major pair bias) to win, got %v", got)
	}
}

func TestManager_Allocate_CapsByMaxFeasiblePairs(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxConcurrentPairs = 10
	cfg.MinCapitalPerPairUSD = 400 // usable/400 will bound pairs below candidate count

	m := New(&stubClient{}, cfg, VenueDecisionConfig{}, zerolog.Nop())

	balances := domain.BalanceSnapshot{ByVenue: map[domain.Venue]domain.BalanceEntry{
		domain.VenueSpot:        {Venue: domain.VenueSpot, Free: 700, Equity: 700},
		domain.VenueDerivatives: {Venue: domain.VenueDerivatives, Free: 300, Equity: 300},
	}}

	candidates := []Candidate{
		{Symbol: "A", Spot: VenueMetrics{Listed: true, Volume24h: 5}, Derivatives: VenueMetrics{Listed: true}},
		{Symbol: "B", Spot: VenueMetrics{Listed: true, Volume24h: 4}, Derivatives: VenueMetrics{Listed: true}},
		{Symbol: "C", Spot: VenueMetrics{Listed: true, Volume24h: 3}, Derivatives: VenueMetrics{Listed: true}},
	}

	allocations, err := m.Allocate(context.Background(), balances, candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// total equity 1000, usable = 900, maxPairs = min(10, 900/400=2, 3) = 2
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
}

func TestManager_Allocate_ZeroEquityReturnsNoAllocations(t *testing.T) {
	m := New(&stubClient{}, baseConfig(), VenueDecisionConfig{}, zerolog.Nop())
	allocations, err := m.Allocate(context.Background(), domain.BalanceSnapshot{}, []Candidate{{Symbol: "A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 0 {
		t.Fatalf("expected no allocations, got %d", len(allocations))
	}
}

func TestManager_Allocate_ZeroEquityWarnsInsufficientCapital(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	m := New(&stubClient{}, baseConfig(), VenueDecisionConfig{}, log)

	allocations, err := m.Allocate(context.Background(), domain.BalanceSnapshot{}, []Candidate{{Symbol: "A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 0 {
		t.Fatalf("expected no allocations, got %d", len(allocations))
	}
	if !strings.Contains(buf.String(), "no usable capital") {
		t.Fatalf("expected a warning about insufficient capital, got log: %s", buf.String())
	}
}

func TestManager_Allocate_NoFeasiblePairsWarns(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	cfg := baseConfig()
	cfg.MinCapitalPerPairUSD = 1_000_000 // forces maxPairs to 0
	m := New(&stubClient{}, cfg, VenueDecisionConfig{}, log)

	balances := domain.BalanceSnapshot{ByVenue: map[domain.Venue]domain.BalanceEntry{
		domain.VenueSpot: {Venue: domain.VenueSpot, Free: 1000, Equity: 1000},
	}}

	allocations, err := m.Allocate(context.Background(), balances, []Candidate{{Symbol: "A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 0 {
		t.Fatalf("expected no allocations, got %d", len(allocations))
	}
	if !strings.Contains(buf.String(), "no feasible pair slots") {
		t.Fatalf("expected a warning about no feasible pair slots, got log: %s", buf.String())
	}
}

func TestManager_rebalance_SkipsBelowTransferFloor(t *testing.T) {
	client := &stubClient{}
	cfg := baseConfig()
	m := New(client, cfg, VenueDecisionConfig{}, zerolog.Nop())

	m.rebalance(context.Background(), 35, 15, 40, 10)

	if len(client.transfers) != 0 {
		t.Fatalf("expected no transfer below floor, got %v", client.transfers)
	}
}

func TestManager_rebalance_TransfersTowardDeficitVenue(t *testing.T) {
	client := &stubClient{}
	cfg := baseConfig()
	m := New(client, cfg, VenueDecisionConfig{}, zerolog.Nop())

	// spot target 700, free 200 (deficit 500); derivatives free 800, target 300 (surplus 500)
	m.rebalance(context.Background(), 700, 300, 200, 800)

	if len(client.transfers) != 1 {
		t.Fatalf("expected exactly one transfer, got %v", client.transfers)
	}
	if client.transfers[0] != 500 {
		t.Fatalf("expected transfer of 500, got %v", client.transfers[0])
	}
}

func TestManager_buildAllocation_RespectsGridLevelBounds(t *testing.T) {
	cfg := baseConfig()
	cfg.Grid.MinLevels = 8
	m := New(&stubClient{}, cfg, VenueDecisionConfig{}, zerolog.Nop())

	alloc := m.buildAllocation(Candidate{Symbol: "X"}, domain.VenueSpot, 50)
	if alloc.GridLevels < cfg.Grid.MinLevels {
		t.Fatalf("expected grid levels >= min %d, got %d", cfg.Grid.MinLevels, alloc.GridLevels)
	}
}

func TestManager_buildAllocation_DerivativesCapsLeverageByExchangeCeiling(t *testing.T) {
	m := New(&stubClient{}, baseConfig(), VenueDecisionConfig{}, zerolog.Nop())

	c := Candidate{Symbol: "X", Derivatives: VenueMetrics{LeverageCap: 2}}
	alloc := m.buildAllocation(c, domain.VenueDerivatives, 1000)
	if alloc.Leverage > 2 {
		t.Fatalf("expected leverage capped at 2, got %v", alloc.Leverage)
	}
}
