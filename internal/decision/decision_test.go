package decision

import (
	"context"
	"testing"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/cache"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/grid"
	"github.com/rs/zerolog"
)

type stubAdvisor struct {
	resp AdvisorResponse
	err  error
	n    int
}

func (s *stubAdvisor) Advise(ctx context.Context, req AdvisorRequest) (AdvisorResponse, error) {
	s.n++
	return s.resp, s.err
}

func baseRequest() Request {
	return Request{
		Snapshot: Snapshot{
			Symbol:   "BTCUSDT",
			Price:    100,
			RSI:      50,
			RSIReady: true,
			ADX:      15,
			ADXReady: true,
		},
		Allocation: domain.Allocation{AllocatedUSD: 1000, GridLevels: 10, SpacingFraction: 0.01},
		Strategy:   domain.StrategyBalanced,
		Symbol:     domain.SymbolInfo{Symbol: "BTCUSDT", TickSize: 0.01, StepSize: 0.0001, MinNotional: 10},
	}
}

func TestOverview_UsesAdvisorWhenConfigured(t *testing.T) {
	adv := &stubAdvisor{resp: AdvisorResponse{StrategyLabel: domain.StrategyAggressive, Confidence: 0.9}}
	e := New(adv, nil, time.Minute, 3, zerolog.Nop())
	label, confidence := e.Overview(context.Background(), domain.MarketOverview{})
	if label != domain.StrategyAggressive || confidence != 0.9 {
		t.Fatalf("expected advisor's strategy to win, got %v %v", label, confidence)
	}
	if adv.n != 1 {
		t.Fatalf("expected advisor called once, got %d", adv.n)
	}
}

func TestOverview_FallsBackToThresholdsWhenAdvisorErrors(t *testing.T) {
	adv := &stubAdvisor{err: context.DeadlineExceeded}
	e := New(adv, nil, time.Minute, 3, zerolog.Nop())
	label, _ := e.Overview(context.Background(), domain.MarketOverview{AvgVolatility: 0.05, TrendLabel: domain.TrendBullish})
	if label != domain.StrategyAggressive {
		t.Fatalf("expected fallback threshold strategy, got %v", label)
	}
}

func TestOverview_NilAdvisorUsesThresholdsDirectly(t *testing.T) {
	e := New(nil, nil, time.Minute, 3, zerolog.Nop())
	label, _ := e.Overview(context.Background(), domain.MarketOverview{AvgVolatility: 0.01, AvgVolume: 100})
	if label != domain.StrategyConservative {
		t.Fatalf("expected conservative for low volatility, got %v", label)
	}
}

func TestPerSymbol_NoActionWhenIndicatorsNotReady(t *testing.T) {
	e := New(nil, nil, time.Minute, 3, zerolog.Nop())
	req := baseRequest()
	req.Snapshot.ADXReady = false
	result := e.PerSymbol(req)
	if result.Action != grid.ActionNone {
		t.Fatalf("expected no action without indicator readiness, got %v", result.Action)
	}
}

func TestPerSymbol_BullishBiasOnOversoldTrendingMarket(t *testing.T) {
	e := New(nil, nil, time.Minute, 3, zerolog.Nop())
	req := baseRequest()
	req.Snapshot.ADX = 30
	req.Snapshot.RSI = 20
	result := e.PerSymbol(req)
	if result.Action != grid.ActionBiasBullish {
		t.Fatalf("expected bullish bias, got %v: %s", result.Action, result.Reasoning)
	}
}

func TestPerSymbol_AggressiveBullishUnderAggressiveStrategy(t *testing.T) {
	e := New(nil, nil, time.Minute, 3, zerolog.Nop())
	req := baseRequest()
	req.Snapshot.ADX = 30
	req.Snapshot.RSI = 20
	req.Strategy = domain.StrategyAggressive
	result := e.PerSymbol(req)
	if result.Action != grid.ActionAggressiveBullish {
		t.Fatalf("expected aggressive bullish, got %v", result.Action)
	}
}

func TestPerSymbol_FallsBackToNoneWhenSizerRejectsSuggestedParams(t *testing.T) {
	e := New(nil, nil, time.Minute, 3, zerolog.Nop())
	req := baseRequest()
	req.Snapshot.ADX = 30
	req.Snapshot.RSI = 20
	req.Allocation.AllocatedUSD = 0.0001 // too small to clear min notional
	req.Symbol.MinNotional = 1_000_000
	result := e.PerSymbol(req)
	if result.Action != grid.ActionNone {
		t.Fatalf("expected fallback to no action on sizer rejection, got %v", result.Action)
	}
}

func TestBatchPerSymbol_CachesRepeatedSnapshot(t *testing.T) {
	adv := &stubAdvisor{}
	store := cache.New()
	e := New(adv, store, time.Minute, 2, zerolog.Nop())
	req := baseRequest()

	first := e.BatchPerSymbol([]Request{req})
	second := e.BatchPerSymbol([]Request{req})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one result per call")
	}
	if first[0].Reasoning != second[0].Reasoning {
		t.Fatalf("expected cached result to match original")
	}
}

func TestBatchPerSymbol_ProcessesAllRequestsUnderConcurrencyBound(t *testing.T) {
	e := New(nil, nil, time.Minute, 2, zerolog.Nop())
	reqs := make([]Request, 5)
	for i := range reqs {
		r := baseRequest()
		r.Snapshot.Symbol = "SYM"
		reqs[i] = r
	}
	results := e.BatchPerSymbol(reqs)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
}
