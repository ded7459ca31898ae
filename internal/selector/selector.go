// Package selector implements the pair selector: it ranks a candidate
// universe of symbols by a composite score and produces both the active
// worker set and a market overview aggregated over the full filtered set.
package selector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/cache"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/exchange"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/indicators"
	"github.com/rs/zerolog"
)

// SentimentSource supplies the optional sentiment tilt; internal/sentiment.
// Aggregator satisfies this directly.
type SentimentSource interface {
	Latest(smoothed bool) float64
}

// Selector ranks candidate symbols and builds the market overview.
type Selector struct {
	client    exchange.Client
	dataCache *cache.DataCache
	sentiment SentimentSource
	venues    []domain.Venue
	cfg       config.SelectorConfig
	log       zerolog.Logger
}

// New builds a Selector. venues lists every venue whose listed symbols join
// the candidate universe alongside cfg.PreferredSymbols.
func New(client exchange.Client, dataCache *cache.DataCache, sentimentSource SentimentSource, venues []domain.Venue, cfg config.SelectorConfig, log zerolog.Logger) *Selector {
	return &Selector{
		client:    client,
		dataCache: dataCache,
		sentiment: sentimentSource,
		venues:    venues,
		cfg:       cfg,
		log:       log,
	}
}

// Result is one selection cycle's output.
type Result struct {
	Selected []candidateVenue
	Overview domain.MarketOverview
}

// Symbols returns just the chosen symbol strings, in ranked order.
func (r Result) Symbols() []string {
	out := make([]string, len(r.Selected))
	for i, c := range r.Selected {
		out[i] = c.symbol
	}
	return out
}

// Venues maps each selected symbol to the venue it was selected on, for
// callers (the coordinator) building per-symbol allocations.
func (r Result) Venues() map[string]domain.Venue {
	out := make(map[string]domain.Venue, len(r.Selected))
	for _, c := range r.Selected {
		out[c.symbol] = c.venue
	}
	return out
}

type candidateVenue struct {
	symbol string
	venue  domain.Venue
}

type candidateMetrics struct {
	candidateVenue
	ticker domain.Ticker
	adx    float64
	score  float64
}

// Select runs the full 5-step algorithm: build the candidate universe,
// filter, score, rank, and aggregate a market overview over the filtered
// set.
func (s *Selector) Select(ctx context.Context, maxConcurrentPairs int) (Result, error) {
	candidates, err := s.buildUniverse(ctx)
	if err != nil {
		return Result{}, err
	}

	metrics := s.fetchMetrics(ctx, candidates)
	filtered := s.applyFilters(metrics)
	s.score(filtered)

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].score != filtered[j].score {
			return filtered[i].score > filtered[j].score
		}
		return filtered[i].ticker.QuoteVolume24h > filtered[j].ticker.QuoteVolume24h
	})

	selected := s.applyCaps(filtered, maxConcurrentPairs)
	overview := buildOverview(filtered)

	out := make([]candidateVenue, len(selected))
	for i, c := range selected {
		out[i] = c.candidateVenue
	}

	return Result{Selected: out, Overview: overview}, nil
}

func (s *Selector) buildUniverse(ctx context.Context) ([]candidateVenue, error) {
	seen := make(map[string]bool)
	var out []candidateVenue

	for _, sym := range s.cfg.PreferredSymbols {
		if !seen[sym] {
			seen[sym] = true
			venue := domain.VenueSpot
			if len(s.venues) > 0 {
				venue = s.venues[0]
			}
			out = append(out, candidateVenue{symbol: sym, venue: venue})
		}
	}

	for _, venue := range s.venues {
		infos, err := s.client.ExchangeInfo(ctx, venue)
		if err != nil {
			return nil, exchange.WrapTransient("selector exchange info", err)
		}
		for _, info := range infos {
			if !seen[info.Symbol] {
				seen[info.Symbol] = true
				out = append(out, candidateVenue{symbol: info.Symbol, venue: venue})
			}
		}
	}

	return out, nil
}

// fetchMetrics fetches a ticker and ADX reading per candidate, concurrently
// — the Go equivalent of the spec's "single batched call" since the
// exchange interface only exposes a per-symbol ticker.
func (s *Selector) fetchMetrics(ctx context.Context, candidates []candidateVenue) []candidateMetrics {
	const maxConcurrency = 8
	sem := make(chan struct{}, maxConcurrency)
	results := make(chan candidateMetrics, len(candidates))
	var wg sync.WaitGroup

	for _, c := range candidates {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ticker, err := s.dataCache.Ticker(ctx, c.symbol)
			if err != nil {
				s.log.Warn().Err(err).Str("symbol", c.symbol).Msg("selector: ticker fetch failed, dropping candidate")
				return
			}

			adx := 0.0
			if klines, err := s.dataCache.Klines(ctx, c.symbol); err == nil {
				frame := framesFromKlines(klines)
				if v, ready := indicators.ADX(frame, 14); ready {
					adx = v
				}
			}

			results <- candidateMetrics{candidateVenue: c, ticker: ticker, adx: adx}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]candidateMetrics, 0, len(candidates))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (s *Selector) applyFilters(metrics []candidateMetrics) []candidateMetrics {
	out := make([]candidateMetrics, 0, len(metrics))
	for _, m := range metrics {
		if m.ticker.QuoteVolume24h < s.cfg.MinQuoteVolume24h {
			continue
		}
		if m.ticker.LastPrice < s.cfg.MinPrice {
			continue
		}
		if s.cfg.MaxSpreadFraction > 0 && m.ticker.SpreadFraction() > s.cfg.MaxSpreadFraction {
			continue
		}
		out = append(out, m)
	}
	return out
}

// score computes the composite score per candidate in place: volume
// percentile + |price_change| + adx percentile + optional sentiment tilt.
func (s *Selector) score(metrics []candidateMetrics) {
	volumes := make([]float64, len(metrics))
	adxs := make([]float64, len(metrics))
	for i, m := range metrics {
		volumes[i] = m.ticker.QuoteVolume24h
		adxs[i] = m.adx
	}

	sentimentTilt := 0.0
	if s.sentiment != nil {
		sentimentTilt = s.sentiment.Latest(true)
	}

	for i := range metrics {
		volumePct := percentileRank(volumes, metrics[i].ticker.QuoteVolume24h)
		adxPct := percentileRank(adxs, metrics[i].adx)
		priceChange := math.Abs(metrics[i].ticker.PriceChangePct) / 100

		score := s.cfg.WeightVolume*volumePct + s.cfg.WeightPriceChange*priceChange + s.cfg.WeightADX*adxPct
		score += s.cfg.WeightSentiment * sentimentTilt
		metrics[i].score = score
	}
}

func (s *Selector) applyCaps(ranked []candidateMetrics, maxConcurrentPairs int) []candidateMetrics {
	perVenue := make(map[domain.Venue]int)
	out := make([]candidateMetrics, 0, maxConcurrentPairs)

	for _, m := range ranked {
		if len(out) >= maxConcurrentPairs {
			break
		}
		venueCap := s.cfg.MaxPerVenue
		if venueCap > 0 && perVenue[m.venue] >= venueCap {
			continue
		}
		out = append(out, m)
		perVenue[m.venue]++
	}
	return out
}

// percentileRank returns the fraction of values less than or equal to v.
func percentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, x := range values {
		if x <= v {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func framesFromKlines(klines []domain.Kline) indicators.Frame {
	f := indicators.Frame{}
	for _, k := range klines {
		f.Open = append(f.Open, k.Open)
		f.High = append(f.High, k.High)
		f.Low = append(f.Low, k.Low)
		f.Close = append(f.Close, k.Close)
		f.Volume = append(f.Volume, k.Volume)
	}
	return f
}

// buildOverview aggregates the market overview over the full filtered
// candidate set, not just the selected top K.
func buildOverview(filtered []candidateMetrics) domain.MarketOverview {
	if len(filtered) == 0 {
		return domain.MarketOverview{TrendLabel: domain.TrendNeutral, ConditionsLabel: "no candidates"}
	}

	var sumVolume, sumAbsChange, sumChange float64
	hot := make([]string, 0, 5)
	sortedByVolume := append([]candidateMetrics(nil), filtered...)
	sort.Slice(sortedByVolume, func(i, j int) bool {
		return sortedByVolume[i].ticker.QuoteVolume24h > sortedByVolume[j].ticker.QuoteVolume24h
	})
	for i, m := range sortedByVolume {
		if i < 5 {
			hot = append(hot, m.symbol)
		}
		sumVolume += m.ticker.QuoteVolume24h
		sumAbsChange += math.Abs(m.ticker.PriceChangePct)
		sumChange += m.ticker.PriceChangePct
	}

	n := float64(len(filtered))
	avgChange := sumChange / n

	trend := domain.TrendNeutral
	switch {
	case avgChange > 1.0:
		trend = domain.TrendBullish
	case avgChange < -1.0:
		trend = domain.TrendBearish
	}

	conditions := "normal"
	avgVolatility := sumAbsChange / n
	if avgVolatility > 5.0 {
		conditions = "volatile"
	} else if avgVolatility < 0.5 {
		conditions = "quiet"
	}

	return domain.MarketOverview{
		TotalPairs:      len(filtered),
		AvgVolume:       sumVolume / n,
		AvgVolatility:   avgVolatility,
		TrendLabel:      trend,
		HotSymbols:      hot,
		ConditionsLabel: conditions,
	}
}
