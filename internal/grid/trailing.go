package grid

import "github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"

// trailingStopState tracks a single position's ratcheting stop price,
// grounded on trailing_stop.py's TrailingStopManager: the stop activates
// only after the position clears an activation profit threshold, then
// only ever moves in the position's favor, clamped to a min/max distance
// from the current price.
type trailingStopState struct {
	active          bool
	bestPrice       float64 // highest price seen (long) or lowest (short)
	stopPrice       float64
	adjustmentCount int
}

// trailingStopParams mirrors TrailingStopConfig.
type trailingStopParams struct {
	ActivationThresholdPct float64
	TrailFraction          float64
	MinTrailFraction       float64
	MaxTrailFraction       float64
}

func defaultTrailingParams() trailingStopParams {
	return trailingStopParams{
		ActivationThresholdPct: 0.5,
		TrailFraction:          0.01,
		MinTrailFraction:       0.001,
		MaxTrailFraction:       0.05,
	}
}

// update advances the trailing stop for the current price and position
// side, returning the new stop price if it moved.
func (s *trailingStopState) update(side domain.PositionSide, entryPrice, currentPrice float64, p trailingStopParams) (float64, bool) {
	if !s.active {
		profitPct := profitPercent(side, entryPrice, currentPrice)
		if profitPct < p.ActivationThresholdPct {
			return 0, false
		}
		s.active = true
	}

	improved := (side == domain.PositionLong && currentPrice > s.bestPrice) ||
		(side == domain.PositionShort && (s.bestPrice == 0 || currentPrice < s.bestPrice))
	if !improved {
		return 0, false
	}
	s.bestPrice = currentPrice

	trailDistance := currentPrice * p.TrailFraction
	minDistance := currentPrice * p.MinTrailFraction
	maxDistance := currentPrice * p.MaxTrailFraction
	if trailDistance < minDistance {
		trailDistance = minDistance
	}
	if trailDistance > maxDistance {
		trailDistance = maxDistance
	}

	var newStop float64
	if side == domain.PositionLong {
		newStop = currentPrice - trailDistance
		if newStop <= s.stopPrice {
			return 0, false
		}
	} else {
		newStop = currentPrice + trailDistance
		if s.stopPrice != 0 && newStop >= s.stopPrice {
			return 0, false
		}
	}

	s.stopPrice = newStop
	s.adjustmentCount++
	return newStop, true
}

// triggered reports whether currentPrice has crossed the trailing stop.
func (s *trailingStopState) triggered(side domain.PositionSide, currentPrice float64) bool {
	if !s.active || s.stopPrice == 0 {
		return false
	}
	if side == domain.PositionLong {
		return currentPrice <= s.stopPrice
	}
	return currentPrice >= s.stopPrice
}

func profitPercent(side domain.PositionSide, entryPrice, currentPrice float64) float64 {
	if entryPrice == 0 {
		return 0
	}
	if side == domain.PositionLong {
		return (currentPrice - entryPrice) / entryPrice * 100
	}
	return (entryPrice - currentPrice) / entryPrice * 100
}
