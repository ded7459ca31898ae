package grid

import (
	"testing"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
)

func TestTrailingStopState_DoesNotActivateBelowThreshold(t *testing.T) {
	s := &trailingStopState{}
	_, moved := s.update(domain.PositionLong, 100, 100.3, defaultTrailingParams())
	if moved || s.active {
		t.Fatalf("expected no activation below threshold")
	}
}

func TestTrailingStopState_ActivatesAndTracksBestPriceLong(t *testing.T) {
	s := &trailingStopState{}
	p := defaultTrailingParams()
	stop, moved := s.update(domain.PositionLong, 100, 101, p)
	if !moved || !s.active {
		t.Fatalf("expected activation at 1%% profit, stop=%v moved=%v", stop, moved)
	}
	if stop >= 101 {
		t.Fatalf("expected stop below current price, got %v", stop)
	}
}

func TestTrailingStopState_OnlyMovesInFavorLong(t *testing.T) {
	s := &trailingStopState{}
	p := defaultTrailingParams()
	firstStop, _ := s.update(domain.PositionLong, 100, 102, p)

	// price retraces; stop must not move down
	secondStop, moved := s.update(domain.PositionLong, 100, 101.5, p)
	if moved {
		t.Fatalf("expected no movement on retrace, got new stop %v", secondStop)
	}
	if s.stopPrice != firstStop {
		t.Fatalf("expected stop to remain at %v, got %v", firstStop, s.stopPrice)
	}
}

func TestTrailingStopState_TriggeredWhenPriceCrossesStopLong(t *testing.T) {
	s := &trailingStopState{}
	p := defaultTrailingParams()
	s.update(domain.PositionLong, 100, 105, p)
	if !s.triggered(domain.PositionLong, s.stopPrice-0.01) {
		t.Fatalf("expected trigger once price drops below stop")
	}
	if s.triggered(domain.PositionLong, s.stopPrice+1) {
		t.Fatalf("expected no trigger while price is above stop")
	}
}

func TestTrailingStopState_ShortSideTracksDownwardBestPrice(t *testing.T) {
	s := &trailingStopState{}
	p := defaultTrailingParams()
	stop, moved := s.update(domain.PositionShort, 100, 98, p)
	if !moved {
		t.Fatalf("expected activation for short position with 2%% profit")
	}
	if stop <= 98 {
		t.Fatalf("expected stop above current price for short, got %v", stop)
	}
}

func TestTrailingStopState_NotTriggeredWhenInactive(t *testing.T) {
	s := &trailingStopState{}
	if s.triggered(domain.PositionLong, 1) {
		t.Fatalf("inactive trailing stop should never trigger")
	}
}

func TestProfitPercent_ComputesSignedPercentPerSide(t *testing.T) {
	if got := profitPercent(domain.PositionLong, 100, 110); got != 10 {
		t.Fatalf("expected 10%%, got %v", got)
	}
	if got := profitPercent(domain.PositionShort, 100, 90); got != 10 {
		t.Fatalf("expected 10%% for favorable short move, got %v", got)
	}
}
