package risk

import (
	"math"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"gonum.org/v1/gonum/stat"
)

// zScore95 is the one-tailed 95% z-score used for parametric VaR, matching
// risk_agent.py's normal-approximation VaR.
const zScore95 = 1.645

func (m *Monitor) checkPosition(p PositionSnapshot) PositionReport {
	pr := PositionReport{
		Symbol:      p.Symbol,
		MaxDrawdown: maxDrawdown(p.CumulativePnL),
		VaR95:       parametricVaR95(p.Returns),
		Sharpe:      sharpeRatio(p.Returns),
	}
	if p.TotalEquity > 0 {
		pr.SizeWeight = p.EquityShare / p.TotalEquity
	}

	if pr.MaxDrawdown > 0.20 {
		m.alert("risk_drawdown_"+p.Symbol, alerts.SeverityWarning,
			p.Symbol+" drawdown from peak exceeds 20%")
	}
	if pr.VaR95 > 0.10 {
		m.alert("risk_var_"+p.Symbol, alerts.SeverityWarning,
			p.Symbol+" 1-day 95% VaR exceeds 10% of its allocated capital")
	}
	if m.cfg.MaxSingleAssetWeight > 0 && pr.SizeWeight > m.cfg.MaxSingleAssetWeight {
		m.alert("risk_weight_"+p.Symbol, alerts.SeverityWarning,
			p.Symbol+" position size exceeds the configured max single-asset weight")
	}

	return pr
}

// maxDrawdown returns the largest peak-to-trough fractional decline in a
// cumulative PnL series, 0 if the series is too short or never rises.
func maxDrawdown(cumulative []float64) float64 {
	if len(cumulative) < 2 {
		return 0
	}
	peak := cumulative[0]
	maxDD := 0.0
	for _, v := range cumulative {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / math.Abs(peak)
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// parametricVaR95 estimates 1-day 95% Value-at-Risk as mean - z*stddev of
// the return series, expressed as a positive loss fraction.
func parametricVaR95(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	v := -(mean - zScore95*std)
	if v < 0 {
		return 0
	}
	return v
}

// sharpeRatio is a naive (risk-free rate = 0) Sharpe ratio over the return
// series.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std
}
