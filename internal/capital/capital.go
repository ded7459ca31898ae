// Package capital implements the capital manager: it turns a balance
// snapshot and a selected symbol set into per-symbol USD allocations and
// grid parameters, choosing a venue per symbol, enforcing a concentration
// cap, and rebalancing capital between spot and derivatives (with an
// inter-venue transfer fallback) when a venue runs short.
package capital

import (
	"context"
	"math"
	"sort"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/rs/zerolog"
)

// defaultHighVolatilitySymbols and defaultMajorPairs seed ChooseVenue's
// scoring when the caller supplies no override lists — grounded on
// decide_optimal_market_for_symbol's hardcoded sets, made configurable.
var (
	defaultHighVolatilitySymbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"}
	defaultMajorPairs            = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}
)

// VenueDecisionConfig parameterizes ChooseVenue's scoring.
type VenueDecisionConfig struct {
	HighVolatilitySymbols []string
	MajorPairs            []string
	FeePreference         float64 // weight given to the lower-fee venue, default 0.5
}

func (c VenueDecisionConfig) resolve() VenueDecisionConfig {
	if len(c.HighVolatilitySymbols) == 0 {
		c.HighVolatilitySymbols = defaultHighVolatilitySymbols
	}
	if len(c.MajorPairs) == 0 {
		c.MajorPairs = defaultMajorPairs
	}
	if c.FeePreference == 0 {
		c.FeePreference = 0.5
	}
	return c
}

func contains(list []string, symbol string) bool {
	for _, s := range list {
		if s == symbol {
			return true
		}
	}
	return false
}

// VenueMetrics is the per-venue input to ChooseVenue.
type VenueMetrics struct {
	Venue        domain.Venue
	Listed       bool
	Volume24h    float64
	AvailableUSD float64
	TakerFeeRate float64
	LeverageCap  float64 // exchange.SymbolInfo.MaxLeverage for this venue, 0 = unbounded
}

// ChooseVenue scores spot against derivatives for symbol and returns the
// winner, grounded on decide_optimal_market_for_symbol: a volume-skew
// factor, a high-volatility-favors-derivatives bias, a major-pair-favors-spot
// bias, and a fee-rate preference, summed into a single score and compared
// against a +/-0.5 threshold; ties fall back to whichever venue holds more
// available capital.
func ChooseVenue(symbol string, spot, derivatives VenueMetrics, cfg VenueDecisionConfig) domain.Venue {
	cfg = cfg.resolve()

	if !spot.Listed && derivatives.Listed {
		return domain.VenueDerivatives
	}
	if spot.Listed && !derivatives.Listed {
		return domain.VenueSpot
	}

	score := 0.0

	totalVolume := spot.Volume24h + derivatives.Volume24h
	if totalVolume > 0 {
		score += (derivatives.Volume24h - spot.Volume24h) / totalVolume
	}

	if contains(cfg.HighVolatilitySymbols, symbol) {
		score += 0.3
	}
	if contains(cfg.MajorPairs, symbol) {
		score -= 0.3
	}

	if spot.TakerFeeRate > 0 && derivatives.TakerFeeRate > 0 {
		if derivatives.TakerFeeRate < spot.TakerFeeRate {
			score += cfg.FeePreference * 0.2
		} else if spot.TakerFeeRate < derivatives.TakerFeeRate {
			score -= cfg.FeePreference * 0.2
		}
	}

	switch {
	case score > 0.5:
		return domain.VenueDerivatives
	case score < -0.5:
		return domain.VenueSpot
	default:
		if derivatives.AvailableUSD > spot.AvailableUSD {
			return domain.VenueDerivatives
		}
		return domain.VenueSpot
	}
}

// Candidate is one selected symbol awaiting an allocation, along with the
// per-venue metrics ChooseVenue and proportional-allocation math need.
type Candidate struct {
	Symbol       string
	ManualVenue  *domain.Venue
	Spot         VenueMetrics
	Derivatives  VenueMetrics
	Volatility   float64 // ATR fraction or similar, drives grid tier selection
}

// Manager computes capital allocations and grid parameters per cycle.
type Manager struct {
	client exchange.Client
	cfg    *config.Config
	venue  VenueDecisionConfig
	log    zerolog.Logger
}

// New builds a Manager.
func New(client exchange.Client, cfg *config.Config, venueCfg VenueDecisionConfig, log zerolog.Logger) *Manager {
	return &Manager{client: client, cfg: cfg, venue: venueCfg, log: log}
}

// Allocate runs the full 6-step algorithm: apply the safety buffer, cap by
// the max feasible pair count, choose a venue per symbol, compute per-pair
// capital under the max-single-asset-weight cap, rebalance spot/derivatives
// with a transfer fallback, and derive grid parameters per capital tier.
func (m *Manager) Allocate(ctx context.Context, balances domain.BalanceSnapshot, candidates []Candidate) ([]domain.Allocation, error) {
	usable := balances.TotalEquity() * (1 - m.cfg.SafetyBufferFraction)
	if usable <= 0 {
		m.log.Warn().
			Float64("total_equity", balances.TotalEquity()).
			Float64("safety_buffer_fraction", m.cfg.SafetyBufferFraction).
			Msg("capital: no usable capital after safety buffer, returning empty allocation")
		return nil, nil
	}

	maxPairs := m.cfg.MaxConcurrentPairs
	if byCapital := int(usable / m.cfg.MinCapitalPerPairUSD); byCapital < maxPairs {
		maxPairs = byCapital
	}
	if maxPairs > len(candidates) {
		maxPairs = len(candidates)
	}
	if maxPairs <= 0 {
		m.log.Warn().
			Float64("usable_usd", usable).
			Float64("min_capital_per_pair_usd", m.cfg.MinCapitalPerPairUSD).
			Int("candidates", len(candidates)).
			Msg("capital: no feasible pair slots, returning empty allocation")
		return nil, nil
	}

	// Rank by volume so the highest-liquidity symbols keep their slot when
	// the feasible pair count is smaller than the candidate set.
	ranked := append([]Candidate(nil), candidates...)
	sort.Slice(ranked, func(i, j int) bool {
		vi := ranked[i].Spot.Volume24h + ranked[i].Derivatives.Volume24h
		vj := ranked[j].Spot.Volume24h + ranked[j].Derivatives.Volume24h
		return vi > vj
	})
	ranked = ranked[:maxPairs]

	venues := make(map[string]domain.Venue, len(ranked))
	for _, c := range ranked {
		venues[c.Symbol] = m.chooseVenueFor(c)
	}

	perPairUSD := usable / float64(maxPairs)
	maxSingle := balances.TotalEquity() * m.cfg.Risk.MaxSingleAssetWeight
	if maxSingle > 0 && perPairUSD > maxSingle {
		perPairUSD = maxSingle
	}
	if perPairUSD < m.cfg.MinCapitalPerPairUSD {
		perPairUSD = m.cfg.MinCapitalPerPairUSD
	}

	spotTarget := balances.TotalEquity() * (m.cfg.MarketAllocation.SpotPercentage / 100)
	derivTarget := balances.TotalEquity() * (m.cfg.MarketAllocation.DerivativesPercentage / 100)

	spotFree := 0.0
	derivFree := 0.0
	if e, ok := balances.ByVenue[domain.VenueSpot]; ok {
		spotFree = e.Free
	}
	if e, ok := balances.ByVenue[domain.VenueDerivatives]; ok {
		derivFree = e.Free
	}

	m.rebalance(ctx, spotTarget, derivTarget, spotFree, derivFree)

	allocations := make([]domain.Allocation, 0, len(ranked))
	for _, c := range ranked {
		v := venues[c.Symbol]
		allocations = append(allocations, m.buildAllocation(c, v, perPairUSD))
	}
	return allocations, nil
}

// chooseVenueFor applies the manual-override precedence decided for this
// build: the automatic ChooseVenue score loses to a manual venue override
// unless that venue doesn't list the symbol, matching the Python original
// which never overrides a manual choice except on that condition. Setting
// OverridePrecedence to rebalance_wins restores the plain scored decision.
func (m *Manager) chooseVenueFor(c Candidate) domain.Venue {
	auto := ChooseVenue(c.Symbol, c.Spot, c.Derivatives, m.venue)

	if c.ManualVenue == nil || m.cfg.Allocation.OverridePrecedence == config.RebalanceWins {
		return auto
	}

	manual := *c.ManualVenue
	listed := c.Spot.Listed
	if manual == domain.VenueDerivatives {
		listed = c.Derivatives.Listed
	}
	if !listed {
		return auto
	}
	return manual
}

// rebalance attempts an inter-venue transfer when one venue's free balance
// sits below its proportional target, grounded on
// transfer_capital_for_optimal_allocation: nothing happens below the
// transfer-worthwhile floor, and the deficit venue's shortfall is capped by
// what the surplus venue can spare.
func (m *Manager) rebalance(ctx context.Context, spotTarget, derivTarget, spotFree, derivFree float64) {
	total := spotFree + derivFree
	if total < m.cfg.Allocation.TransferFloorUSD {
		return
	}

	spotDeficit := spotTarget - spotFree
	derivDeficit := derivTarget - derivFree

	switch {
	case spotDeficit > m.cfg.Allocation.TransferFloorUSD && derivFree > derivTarget:
		amount := math.Min(spotDeficit, derivFree-derivTarget)
		m.transfer(ctx, amount, exchange.TransferDerivativesToSpot)
	case derivDeficit > m.cfg.Allocation.TransferFloorUSD && spotFree > spotTarget:
		amount := math.Min(derivDeficit, spotFree-spotTarget)
		m.transfer(ctx, amount, exchange.TransferSpotToDerivatives)
	}
}

func (m *Manager) transfer(ctx context.Context, amount float64, direction exchange.TransferDirection) {
	if amount < m.cfg.Allocation.TransferFloorUSD {
		return
	}
	if err := m.client.Transfer(ctx, "USDT", amount, direction); err != nil {
		m.log.Warn().Err(err).Float64("amount", amount).Str("direction", string(direction)).Msg("capital: rebalancing transfer failed")
	}
}

// buildAllocation derives grid parameters from perPairUSD's capital tier,
// grounded on _calculate_grid_parameters: spot gets a 3-tier level/spacing
// schedule, derivatives scales both grid density and leverage with tier.
func (m *Manager) buildAllocation(c Candidate, venue domain.Venue, allocatedUSD float64) domain.Allocation {
	alloc := domain.Allocation{
		Symbol:       c.Symbol,
		Venue:        venue,
		AllocatedUSD: allocatedUSD,
	}

	if venue == domain.VenueDerivatives {
		m.deriveDerivativesParams(&alloc, c)
	} else {
		m.deriveSpotParams(&alloc, c)
	}

	if alloc.GridLevels < m.cfg.Grid.MinLevels {
		alloc.GridLevels = m.cfg.Grid.MinLevels
	}
	if alloc.GridLevels > m.cfg.Grid.MaxLevels {
		alloc.GridLevels = m.cfg.Grid.MaxLevels
	}

	return alloc
}

func (m *Manager) deriveSpotParams(alloc *domain.Allocation, c Candidate) {
	switch {
	case alloc.AllocatedUSD < 100:
		alloc.GridLevels = 6
		alloc.SpacingFraction = 0.008
	case alloc.AllocatedUSD < 500:
		alloc.GridLevels = 10
		alloc.SpacingFraction = 0.005
	default:
		alloc.GridLevels = m.cfg.Grid.InitialLevels
		alloc.SpacingFraction = m.cfg.Grid.InitialSpacingFraction
	}
	alloc.MaxPositionUSD = alloc.AllocatedUSD
	alloc.Leverage = 1
}

func (m *Manager) deriveDerivativesParams(alloc *domain.Allocation, c Candidate) {
	switch {
	case alloc.AllocatedUSD < 100:
		alloc.GridLevels = 6
		alloc.SpacingFraction = 0.01
		alloc.Leverage = 3
	case alloc.AllocatedUSD < 500:
		alloc.GridLevels = 12
		alloc.SpacingFraction = 0.006
		alloc.Leverage = 5
	default:
		alloc.GridLevels = m.cfg.Grid.InitialLevels + 5
		alloc.SpacingFraction = m.cfg.Grid.InitialSpacingFraction
		alloc.Leverage = 10
	}
	if maxLev := c.Derivatives.LeverageCap; maxLev > 0 && alloc.Leverage > maxLev {
		alloc.Leverage = maxLev
	}
	alloc.MaxPositionUSD = alloc.AllocatedUSD * alloc.Leverage
}
