// Package decision implements the two decision-engine modes of spec.md
// §4.8: an Overview pass that derives an overall strategy label from the
// market overview, and a per-symbol pass that turns one symbol's
// indicator snapshot and current grid parameters into a bounded tuning
// action, run under bounded concurrency with short-TTL result caching.
package decision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/cache"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/grid"
	"github.com/rs/zerolog"
)

// Snapshot is the per-symbol indicator view the per-symbol pass reasons
// over. Values are the latest-bar readings from internal/indicators;
// Ready flags mirror each indicator's own warm-up gate.
type Snapshot struct {
	Symbol         string
	Price          float64
	RSI            float64
	RSIReady       bool
	ATR            float64
	ATRReady       bool
	ADX            float64
	ADXReady       bool
	MACDHistogram  float64
	MACDReady      bool
	BollingerB     float64
	BollingerReady bool
	Volume24h      float64
	Volatility     float64
}

// Request is one per-symbol decision-engine call.
type Request struct {
	Snapshot   Snapshot
	Allocation domain.Allocation
	Strategy   domain.StrategyLabel
	Symbol     domain.SymbolInfo
}

// Result is the per-symbol decision-engine output. SuggestedLevels and
// SuggestedSpacing are only meaningful when Action != grid.ActionNone.
type Result struct {
	Symbol           string
	Action           grid.Action
	SuggestedLevels  int
	SuggestedSpacing float64
	Confidence       float64
	Reasoning        string
}

// AdvisorRequest/AdvisorResponse are the optional external-advisor wire
// shapes, grounded on the teacher's evaluation.Client request/response
// pair (internal/modules/planning/evaluation/client.go): a single batch
// call carrying a context hash, with the caller enforcing a bounded
// timeout and falling back to rule-based logic on any error.
type AdvisorRequest struct {
	Symbols     []string              `json:"symbols"`
	Overview    domain.MarketOverview `json:"overview,omitempty"`
	ContextHash string                `json:"context_hash,omitempty"`
}

// AdvisorResponse is the external advisor's opinion on overall strategy.
type AdvisorResponse struct {
	StrategyLabel domain.StrategyLabel `json:"strategy_label"`
	Confidence    float64              `json:"confidence"`
}

// Advisor is the optional external strategy advisor. When nil, Overview
// falls back to threshold-based derivation from the market overview.
type Advisor interface {
	Advise(ctx context.Context, req AdvisorRequest) (AdvisorResponse, error)
}

// Engine runs both decision-engine modes.
type Engine struct {
	advisor     Advisor
	cache       *cache.Store
	cacheTTL    time.Duration
	concurrency int
	log         zerolog.Logger
}

// New builds an Engine. advisor may be nil. concurrency bounds the
// number of simultaneous per-symbol evaluations in BatchPerSymbol;
// values <= 0 default to 3, the spec's documented example bound.
func New(advisor Advisor, store *cache.Store, cacheTTL time.Duration, concurrency int, log zerolog.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Engine{
		advisor:     advisor,
		cache:       store,
		cacheTTL:    cacheTTL,
		concurrency: concurrency,
		log:         log.With().Str("component", "decision_engine").Logger(),
	}
}

// Overview derives the overall strategy label and a confidence in [0,1]
// from the market overview. It tries the external advisor first (if
// configured) and falls back to threshold-based derivation on any
// failure — mirroring the teacher's Planner.CreatePlan fallback to
// priority-based selection when its evaluation service call fails.
func (e *Engine) Overview(ctx context.Context, overview domain.MarketOverview) (domain.StrategyLabel, float64) {
	if e.advisor != nil {
		resp, err := e.advisor.Advise(ctx, AdvisorRequest{
			Overview:    overview,
			ContextHash: overviewHash(overview),
		})
		if err == nil && resp.StrategyLabel != "" {
			return resp.StrategyLabel, clamp01(resp.Confidence)
		}
		e.log.Warn().Err(err).Msg("decision: external advisor unavailable, falling back to thresholds")
	}
	return thresholdStrategy(overview)
}

// thresholdStrategy derives a strategy label from volume and volatility
// alone, per spec.md §4.8's "when absent, derive from volume and
// volatility thresholds".
func thresholdStrategy(overview domain.MarketOverview) (domain.StrategyLabel, float64) {
	switch {
	case overview.AvgVolatility > 0.04 && overview.TrendLabel != domain.TrendNeutral:
		return domain.StrategyAggressive, 0.7
	case overview.AvgVolatility < 0.015 && overview.AvgVolume > 0:
		return domain.StrategyConservative, 0.6
	default:
		return domain.StrategyBalanced, 0.5
	}
}

func overviewHash(o domain.MarketOverview) string {
	keyData := fmt.Sprintf("%d|%.4f|%.4f|%s", o.TotalPairs, o.AvgVolume, o.AvgVolatility, o.TrendLabel)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// snapshotHash is the per-symbol cache key, rounded to stabilize the key
// against noise-level indicator changes between adjacent cycles —
// grounded on the teacher's hashRegimeAwareCovKey (internal/modules/
// optimization/risk.go), which rounds its regime score for the same
// reason.
func snapshotHash(req Request) string {
	keyData := fmt.Sprintf("%s|%.2f|%.1f|%.1f|%.4f|%.2f|%s",
		req.Snapshot.Symbol, req.Snapshot.Price, round1(req.Snapshot.RSI), round1(req.Snapshot.ADX),
		round4(req.Snapshot.MACDHistogram), round2(req.Snapshot.BollingerB), req.Strategy)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

func round1(v float64) float64 { return roundTo(v, 10) }
func round2(v float64) float64 { return roundTo(v, 100) }
func round4(v float64) float64 { return roundTo(v, 10000) }

func roundTo(v float64, scale float64) float64 {
	return float64(int64(v*scale+0.5)) / scale
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
