package decision

import (
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/capital"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/grid"
)

// PerSymbol runs the per-symbol rule engine: simple, explainable rules
// over indicator values plus the overall strategy label, per spec.md
// §4.8. The suggested params are validated through the dynamic order
// sizer before being returned; on failure the engine falls back to
// action 0 with the reason, matching "Suggested params must survive
// dynamic-order-sizer validation; on failure the engine returns action
// 0 with the reason."
func (e *Engine) PerSymbol(req Request) Result {
	action, levels, spacing, confidence, reason := evaluate(req)

	if action == grid.ActionNone {
		return Result{Symbol: req.Snapshot.Symbol, Action: grid.ActionNone, Confidence: confidence, Reasoning: reason}
	}

	budgetPerLevel := req.Allocation.AllocatedUSD / float64(levels)
	res := capital.SizeOrder(capital.OrderSizeRequest{
		Symbol:        req.Snapshot.Symbol,
		Price:         req.Snapshot.Price,
		Budget:        budgetPerLevel,
		TargetPercent: 1.0,
		StepSize:      req.Symbol.StepSize,
		MinNotional:   req.Symbol.MinNotional,
	})
	if !res.Valid {
		return Result{
			Symbol:     req.Snapshot.Symbol,
			Action:     grid.ActionNone,
			Confidence: confidence,
			Reasoning:  "suggested params failed dynamic order sizer validation: " + res.Reason,
		}
	}

	return Result{
		Symbol:           req.Snapshot.Symbol,
		Action:           action,
		SuggestedLevels:  levels,
		SuggestedSpacing: spacing,
		Confidence:       confidence,
		Reasoning:        reason,
	}
}

// evaluate is the rule table itself: ADX trend strength gates whether a
// directional bias is warranted at all, RSI extremes pick the direction,
// Bollinger %B and MACD histogram corroborate, and the overall strategy
// label scales how aggressively the engine is willing to act.
func evaluate(req Request) (action grid.Action, levels int, spacing float64, confidence float64, reason string) {
	s := req.Snapshot
	levels = req.Allocation.GridLevels
	spacing = req.Allocation.SpacingFraction

	if !s.ADXReady || !s.RSIReady {
		return grid.ActionNone, levels, spacing, 0.3, "insufficient indicator history, holding current params"
	}

	trending := s.ADX > 25
	aggressive := req.Strategy == domain.StrategyAggressive

	switch {
	case trending && s.RSI < 30 && (!s.BollingerReady || s.BollingerB < 0.2):
		if aggressive {
			return grid.ActionAggressiveBullish, levels, spacing, 0.8, "strong downtrend exhaustion (RSI<30, ADX>25) under an aggressive strategy: aggressive bullish bias"
		}
		return grid.ActionBiasBullish, levels, spacing, 0.65, "oversold in a trending market: bullish bias"

	case trending && s.RSI > 70 && (!s.BollingerReady || s.BollingerB > 0.8):
		if aggressive {
			return grid.ActionAggressiveBearish, levels, spacing, 0.8, "strong uptrend exhaustion (RSI>70, ADX>25) under an aggressive strategy: aggressive bearish bias"
		}
		return grid.ActionBiasBearish, levels, spacing, 0.65, "overbought in a trending market: bearish bias"

	case !trending && s.ATRReady && req.Strategy == domain.StrategyConservative:
		return grid.ActionDecreaseSpacing, levels, spacing * 0.75, 0.55, "ranging market under a conservative strategy: tighten spacing"

	case !trending && s.MACDReady && s.MACDHistogram > 0 && req.Strategy != domain.StrategyConservative:
		return grid.ActionIncreaseLevels, levels + levels/5, spacing, 0.5, "ranging market with positive MACD momentum: add levels"

	default:
		return grid.ActionNone, levels, spacing, 0.4, "no rule condition met, holding current params"
	}
}
