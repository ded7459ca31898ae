package sentiment

import (
	"context"
	"sync"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// Thresholds configures the smoothed-score levels that raise alerts.
// Bullish must be positive, Bearish negative; a cross above Bullish fires
// a bullish alert, a cross below Bearish fires a bearish one. Each
// direction tracks its own cooldown.
type Thresholds struct {
	Bullish float64
	Bearish float64
}

// Config configures an Aggregator.
type Config struct {
	SourceWeights    map[string]float64
	SmoothingWindow  int
	AlertThresholds  Thresholds
	FetchConcurrency int
}

// Aggregator combines readings from multiple Sources into a single
// weighted, smoothed sentiment score, always returning a value (0 until
// the first cycle completes) and raising threshold-crossing alerts.
type Aggregator struct {
	mu      sync.RWMutex
	sources []Source
	cfg     Config
	sink    *alerts.Sink
	log     zerolog.Logger

	window    []float64
	writeIdx  int
	filled    bool
	latest    domain.SentimentScore
	hasPassed bool // has at least one cycle completed
}

// NewAggregator builds an aggregator over sources, raising alerts through
// sink.
func NewAggregator(sources []Source, cfg Config, sink *alerts.Sink, log zerolog.Logger) *Aggregator {
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = 10
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 3
	}
	return &Aggregator{
		sources: sources,
		cfg:     cfg,
		sink:    sink,
		log:     log,
		window:  make([]float64, 0, cfg.SmoothingWindow),
	}
}

// Run blocks, re-aggregating every interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce fetches every source (bounded concurrency), aggregates, updates
// the smoothing window, and checks for threshold crossings.
func (a *Aggregator) RunOnce(ctx context.Context) {
	readings := a.fetchAll(ctx)

	var weightedScore, totalWeight float64
	bySource := make(map[string]float64, len(readings))
	for name, r := range readings {
		weight := a.cfg.SourceWeights[name]
		weightedScore += r.Score * weight
		totalWeight += weight
		bySource[name] = r.Score
	}

	raw := 0.0
	if totalWeight > 0 {
		raw = weightedScore / totalWeight
	}

	smoothed := a.pushAndSmooth(raw)
	prevSmoothed := a.swapLatest(raw, smoothed, bySource)

	a.checkThresholds(prevSmoothed, smoothed)
}

func (a *Aggregator) fetchAll(ctx context.Context) map[string]Reading {
	type result struct {
		name string
		r    Reading
		err  error
	}

	sem := make(chan struct{}, a.cfg.FetchConcurrency)
	results := make(chan result, len(a.sources))
	var wg sync.WaitGroup

	for _, src := range a.sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r, err := src.Fetch(ctx)
			results <- result{name: src.Name(), r: r, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]Reading)
	for res := range results {
		if res.err != nil {
			a.log.Warn().Err(res.err).Str("source", res.name).Msg("sentiment source fetch failed")
			continue
		}
		out[res.name] = res.r
	}
	return out
}

// pushAndSmooth appends raw to the rolling window and returns the window's
// mean.
func (a *Aggregator) pushAndSmooth(raw float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.window) < a.cfg.SmoothingWindow {
		a.window = append(a.window, raw)
	} else {
		a.window[a.writeIdx] = raw
		a.writeIdx = (a.writeIdx + 1) % a.cfg.SmoothingWindow
		a.filled = true
	}

	sum := 0.0
	for _, v := range a.window {
		sum += v
	}
	return sum / float64(len(a.window))
}

func (a *Aggregator) swapLatest(raw, smoothed float64, bySource map[string]float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.latest.Smoothed
	a.latest = domain.SentimentScore{
		Smoothed:  smoothed,
		Raw:       raw,
		BySource:  bySource,
		UpdatedAt: time.Now(),
	}
	a.hasPassed = true
	return prev
}

func (a *Aggregator) checkThresholds(prevSmoothed, smoothed float64) {
	t := a.cfg.AlertThresholds
	if t.Bullish > 0 && prevSmoothed < t.Bullish && smoothed >= t.Bullish {
		a.sink.Send("sentiment_bullish_cross", alerts.SeverityInfo,
			"sentiment smoothed score crossed bullish threshold", nil)
	}
	if t.Bearish < 0 && prevSmoothed > t.Bearish && smoothed <= t.Bearish {
		a.sink.Send("sentiment_bearish_cross", alerts.SeverityWarning,
			"sentiment smoothed score crossed bearish threshold", nil)
	}
}

// Latest returns the current sentiment score; smoothed selects the
// smoothed or raw value. Always returns a value — 0 before the first
// cycle completes.
func (a *Aggregator) Latest(smoothed bool) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if smoothed {
		return a.latest.Smoothed
	}
	return a.latest.Raw
}

// Detailed returns the full latest score, including per-source breakdown.
func (a *Aggregator) Detailed() domain.SentimentScore {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}
