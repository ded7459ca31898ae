package grid

import (
	"math"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/capital"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
)

// LadderInput is everything BuildLadder needs to construct a ladder.
type LadderInput struct {
	Center        float64
	SpacingFraction float64
	Levels        int // total levels across both sides; halved per side
	DirectionBias int // -1, 0, or +1
	Symbol        domain.SymbolInfo
	Allocation    domain.Allocation
	Cfg           config.GridConfig
}

// BuildLadder implements spec.md §4.7's ladder construction: raw prices at
// center*(1±i*spacing) for i=1..N/2, tick-size rounding with collision
// dedup, dynamic-order-sizer-validated quantity per level, and a
// direction-bias qty skew. Levels that fail sizing are dropped; if fewer
// than cfg.MinLevels remain, ok is false and the caller should halt.
func BuildLadder(in LadderInput) (domain.Ladder, bool) {
	levels := in.Levels
	if levels < 2 {
		levels = 2
	}
	perSide := levels / 2

	spacing := in.SpacingFraction
	if spacing <= 0 {
		spacing = in.Cfg.InitialSpacingFraction
	}
	if in.Cfg.MinSpacingFraction > 0 && spacing < in.Cfg.MinSpacingFraction {
		spacing = in.Cfg.MinSpacingFraction
	}

	budgetPerLevel := in.Allocation.AllocatedUSD / float64(levels)

	buyQtyBoost, sellQtyBoost := directionBoost(in.DirectionBias)

	usedPrices := make(map[float64]bool)
	var result []domain.Level

	for i := 1; i <= perSide; i++ {
		buyPrice := roundToTick(in.Center*(1-float64(i)*spacing), in.Symbol.TickSize)
		buyPrice = dedupPrice(buyPrice, in.Symbol.TickSize, usedPrices, -1)
		usedPrices[buyPrice] = true

		sellPrice := roundToTick(in.Center*(1+float64(i)*spacing), in.Symbol.TickSize)
		sellPrice = dedupPrice(sellPrice, in.Symbol.TickSize, usedPrices, +1)
		usedPrices[sellPrice] = true

		if lvl, ok := sizeLevel(buyPrice, domain.SideBuy, -i, budgetPerLevel*buyQtyBoost, in.Symbol); ok {
			result = append(result, lvl)
		}
		if lvl, ok := sizeLevel(sellPrice, domain.SideSell, i, budgetPerLevel*sellQtyBoost, in.Symbol); ok {
			result = append(result, lvl)
		}
	}

	if len(result) < in.Cfg.MinLevels {
		return domain.Ladder{}, false
	}

	return domain.Ladder{CenterPrice: in.Center, SpacingFraction: spacing, Levels: result}, true
}

// directionBoost shifts which side carries larger qty: +1 biases the buy
// side by up to 50%, -1 biases the sell side, 0 is neutral.
func directionBoost(bias int) (buyBoost, sellBoost float64) {
	switch {
	case bias > 0:
		return 1.5, 1.0
	case bias < 0:
		return 1.0, 1.5
	default:
		return 1.0, 1.0
	}
}

func sizeLevel(price float64, side domain.OrderSide, index int, budget float64, sym domain.SymbolInfo) (domain.Level, bool) {
	res := capital.SizeOrder(capital.OrderSizeRequest{
		Symbol:        sym.Symbol,
		Price:         price,
		Budget:        budget,
		TargetPercent: 1.0,
		StepSize:      sym.StepSize,
		MinNotional:   sym.MinNotional,
	})
	if !res.Valid {
		return domain.Level{}, false
	}
	return domain.Level{Price: price, Side: side, IntendedQty: res.Quantity, Index: index}, true
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// dedupPrice nudges price outward by one tick (in direction dir) until it
// no longer collides with an already-used price.
func dedupPrice(price, tick float64, used map[float64]bool, dir int) float64 {
	if tick <= 0 {
		tick = price * 0.0001
	}
	for used[price] {
		price += float64(dir) * tick
	}
	return price
}
