// Package risk implements the risk monitor: per-position, portfolio, and
// account-level checks run on a cadence, raising cooldown-gated alerts
// through internal/alerts when a threshold is breached.
package risk

import (
	"context"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// PositionSnapshot is one worker's position plus the return history needed
// for VaR/Sharpe/drawdown math.
type PositionSnapshot struct {
	Symbol       string
	Position     domain.Position
	EquityShare  float64   // this position's share of total account equity (USD)
	TotalEquity  float64
	Returns      []float64 // periodic PnL returns, oldest first
	CumulativePnL []float64 // running cumulative PnL, oldest first, for drawdown
}

// PositionReport is one position's risk check results.
type PositionReport struct {
	Symbol         string
	MaxDrawdown    float64 // fraction, 0..1
	VaR95          float64 // fraction of equity share, 1-day parametric
	Sharpe         float64
	SizeWeight     float64 // EquityShare / TotalEquity
}

// PortfolioReport is the cross-position risk check results.
type PortfolioReport struct {
	Concentration    float64            // Herfindahl index over position weights, 0..1
	MaxCorrelation   float64
	CorrelatedPair   [2]string
	PortfolioVaR95   float64
}

// AccountReport is the account-level check result.
type AccountReport struct {
	Venue              domain.Venue
	AvailableMarginRatio float64
	Critical           bool
}

// Report is one risk-check cycle's full output.
type Report struct {
	Positions []PositionReport
	Portfolio PortfolioReport
	Accounts  []AccountReport
	CheckedAt time.Time
}

// Monitor runs the risk checks and raises alerts on breach.
type Monitor struct {
	cfg  config.RiskConfig
	sink *alerts.Sink
	log  zerolog.Logger
	now  func() time.Time
}

// New builds a Monitor.
func New(cfg config.RiskConfig, sink *alerts.Sink, log zerolog.Logger) *Monitor {
	return &Monitor{cfg: cfg, sink: sink, log: log, now: time.Now}
}

// Check runs every configured risk check over the given positions and
// accounts, raising alerts for any breach, and returns the full report.
func (m *Monitor) Check(ctx context.Context, positions []PositionSnapshot, accounts []AccountReportInput) Report {
	report := Report{CheckedAt: m.now()}

	for _, p := range positions {
		pr := m.checkPosition(p)
		report.Positions = append(report.Positions, pr)
	}

	report.Portfolio = m.checkPortfolio(positions)

	for _, a := range accounts {
		report.Accounts = append(report.Accounts, m.checkAccount(a))
	}

	return report
}

// AccountReportInput is the raw account state fed into checkAccount.
type AccountReportInput struct {
	Venue   domain.Venue
	Summary domain.AccountSummary
}

func (m *Monitor) checkAccount(a AccountReportInput) AccountReport {
	const criticalFloor = 0.15 // matches risk_agent's hard margin-call guard band

	critical := a.Summary.MarginRatio < criticalFloor
	if critical {
		m.alert("risk_margin_critical_"+string(a.Venue), alerts.SeverityCritical,
			"available margin ratio critically low on "+string(a.Venue))
	}

	return AccountReport{
		Venue:                a.Venue,
		AvailableMarginRatio: a.Summary.MarginRatio,
		Critical:             critical,
	}
}

func (m *Monitor) alert(key string, severity alerts.Severity, message string) {
	if m.sink == nil {
		return
	}
	m.sink.Send(key, severity, message, nil)
}
