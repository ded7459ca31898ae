// Package sentiment aggregates scored text from configured sources into a
// single always-available smoothed score, and raises threshold-crossing
// alerts through internal/alerts.
package sentiment

import "context"

// Source produces a sentiment reading for one channel (forum, news,
// social). Implementations own their own fetch/scoring pipeline; the
// aggregator only consumes the result.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Reading, error)
}

// Reading is one source's output for a single aggregation cycle.
type Reading struct {
	Score     float64            // in [-1, 1]
	Count     int                // number of texts scored
	Breakdown map[string]float64 // e.g. positive/neutral/negative share
}
