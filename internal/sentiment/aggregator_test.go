package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/alerts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	name string
	r    Reading
	err  error
}

func (f fixedSource) Name() string { return f.name }
func (f fixedSource) Fetch(ctx context.Context) (Reading, error) {
	return f.r, f.err
}

type recordingTransport struct {
	sent []alerts.Alert
}

func (r *recordingTransport) Send(a alerts.Alert) error {
	r.sent = append(r.sent, a)
	return nil
}

func TestAggregator_Latest_ZeroBeforeFirstCycle(t *testing.T) {
	sink := alerts.NewSink(&recordingTransport{}, time.Minute)
	agg := NewAggregator(nil, Config{}, sink, zerolog.Nop())

	assert.Equal(t, 0.0, agg.Latest(true))
	assert.Equal(t, 0.0, agg.Latest(false))
}

func TestAggregator_RunOnce_WeightedAverage(t *testing.T) {
	sources := []Source{
		fixedSource{name: "news", r: Reading{Score: 1.0}},
		fixedSource{name: "forum", r: Reading{Score: -1.0}},
	}
	cfg := Config{SourceWeights: map[string]float64{"news": 0.75, "forum": 0.25}}
	sink := alerts.NewSink(&recordingTransport{}, time.Minute)
	agg := NewAggregator(sources, cfg, sink, zerolog.Nop())

	agg.RunOnce(context.Background())

	assert.InDelta(t, 0.5, agg.Latest(false), 0.001) // (1*0.75 + -1*0.25)/1.0
}

func TestAggregator_FailingSourceIsSkipped(t *testing.T) {
	sources := []Source{
		fixedSource{name: "news", r: Reading{Score: 1.0}},
		fixedSource{name: "forum", err: errors.New("fetch failed")},
	}
	cfg := Config{SourceWeights: map[string]float64{"news": 1.0, "forum": 1.0}}
	sink := alerts.NewSink(&recordingTransport{}, time.Minute)
	agg := NewAggregator(sources, cfg, sink, zerolog.Nop())

	agg.RunOnce(context.Background())

	assert.InDelta(t, 1.0, agg.Latest(false), 0.001)
}

func TestAggregator_SmoothedScoreAveragesWindow(t *testing.T) {
	cfg := Config{SourceWeights: map[string]float64{"news": 1.0}, SmoothingWindow: 2}
	sink := alerts.NewSink(&alerts.LogTransport{}, time.Minute)
	agg := NewAggregator(nil, cfg, sink, zerolog.Nop())

	agg.sources = []Source{fixedSource{name: "news", r: Reading{Score: 1.0}}}
	agg.RunOnce(context.Background())
	agg.sources = []Source{fixedSource{name: "news", r: Reading{Score: -1.0}}}
	agg.RunOnce(context.Background())

	assert.InDelta(t, 0.0, agg.Latest(true), 0.001)
}

func TestAggregator_BullishCrossRaisesAlert(t *testing.T) {
	rt := &recordingTransport{}
	sink := alerts.NewSink(rt, time.Minute)
	cfg := Config{
		SourceWeights:   map[string]float64{"news": 1.0},
		SmoothingWindow: 1,
		AlertThresholds: Thresholds{Bullish: 0.5, Bearish: -0.5},
	}
	agg := NewAggregator([]Source{fixedSource{name: "news", r: Reading{Score: 0.9}}}, cfg, sink, zerolog.Nop())

	agg.RunOnce(context.Background())

	require.Len(t, rt.sent, 1)
	assert.Equal(t, "sentiment_bullish_cross", rt.sent[0].Key)
}
