package risk

import (
	"math"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func (m *Monitor) checkPortfolio(positions []PositionSnapshot) PortfolioReport {
	report := PortfolioReport{
		Concentration:  herfindahl(positions),
		PortfolioVaR95: portfolioVaR95(positions),
	}

	maxCorr, pair := maxPairwiseCorrelation(positions)
	report.MaxCorrelation = maxCorr
	report.CorrelatedPair = pair

	if report.Concentration > 0.5 {
		m.alert("risk_concentration", alerts.SeverityWarning,
			"portfolio concentration (Herfindahl index) exceeds 0.5")
	}
	if m.cfg.MaxCorrelationExposure > 0 && maxCorr > m.cfg.MaxCorrelationExposure {
		m.alert("risk_correlation", alerts.SeverityWarning,
			pair[0]+"/"+pair[1]+" return correlation exceeds the configured max exposure")
	}
	if m.cfg.MaxPortfolioVaR > 0 && report.PortfolioVaR95 > m.cfg.MaxPortfolioVaR {
		m.alert("risk_portfolio_var", alerts.SeverityWarning,
			"portfolio 1-day 95% VaR exceeds the configured max portfolio VaR")
	}

	return report
}

// herfindahl returns the sum of squared position weights — 1/n for an
// evenly spread portfolio, 1 for a single fully concentrated position.
func herfindahl(positions []PositionSnapshot) float64 {
	total := 0.0
	for _, p := range positions {
		if p.EquityShare > 0 {
			total += p.EquityShare
		}
	}
	if len(positions) == 0 {
		return 0
	}
	if total == 0 {
		total = float64(len(positions))
	}

	sumSq := 0.0
	for _, p := range positions {
		w := p.EquityShare / total
		sumSq += w * w
	}
	return sumSq
}

// maxPairwiseCorrelation returns the highest-magnitude Pearson correlation
// across any two positions' return series, grounded on the teacher's
// getCorrelations (same pairwise-scan shape, gonum/stat instead of a
// covariance-matrix derivation since positions here aren't co-priced
// daily series but independent PnL return streams).
func maxPairwiseCorrelation(positions []PositionSnapshot) (float64, [2]string) {
	best := 0.0
	var bestPair [2]string

	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			a, b := positions[i].Returns, positions[j].Returns
			n := len(a)
			if len(b) < n {
				n = len(b)
			}
			if n < 2 {
				continue
			}
			corr := stat.Correlation(a[:n], b[:n], nil)
			if math.IsNaN(corr) {
				continue
			}
			if math.Abs(corr) > math.Abs(best) {
				best = corr
				bestPair = [2]string{positions[i].Symbol, positions[j].Symbol}
			}
		}
	}
	return best, bestPair
}

// portfolioVaR95 computes parametric 1-day 95% VaR over the whole
// portfolio: w'*Sigma*w where Sigma is the sample covariance matrix of
// position returns and w is each position's equity-share weight,
// expressed as a fraction of total equity.
func portfolioVaR95(positions []PositionSnapshot) float64 {
	n := len(positions)
	if n == 0 {
		return 0
	}

	minLen := -1
	for _, p := range positions {
		if minLen == -1 || len(p.Returns) < minLen {
			minLen = len(p.Returns)
		}
	}
	if minLen < 2 {
		return 0
	}

	weights := make([]float64, n)
	for i, p := range positions {
		if p.TotalEquity == 0 {
			return 0
		}
		weights[i] = p.EquityShare / p.TotalEquity
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(positions[i].Returns[:minLen], positions[j].Returns[:minLen], nil)
			cov.SetSym(i, j, c)
		}
	}

	w := mat.NewVecDense(n, weights)
	var sigmaW mat.VecDense
	sigmaW.MulVec(cov, w)
	variance := mat.Dot(w, &sigmaW)
	if variance <= 0 {
		return 0
	}

	return zScore95 * math.Sqrt(variance)
}
