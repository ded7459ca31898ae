package sentiment

import "strings"

var positiveKeywords = []string{
	"bullish", "pump", "moon", "buy", "long", "breakout", "surge",
	"rally", "gains", "profit", "bull", "green", "rise",
}

var negativeKeywords = []string{
	"bearish", "dump", "crash", "sell", "short", "breakdown", "drop",
	"fall", "loss", "bear", "red", "decline", "dip",
}

// ScoreText scores one text -1..1 by counting positive and negative
// keyword hits. A text with no keyword hits scores 0.
func ScoreText(text string) float64 {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveKeywords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeKeywords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return 0
	}
	score := float64(pos-neg) / float64(total)
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score
}

// ScoreTexts scores a batch of texts and returns the mean score plus a
// positive/neutral/negative share breakdown.
func ScoreTexts(texts []string) Reading {
	if len(texts) == 0 {
		return Reading{Breakdown: map[string]float64{}}
	}

	var sum float64
	var positive, neutral, negative int
	for _, t := range texts {
		s := ScoreText(t)
		sum += s
		switch {
		case s > 0.1:
			positive++
		case s < -0.1:
			negative++
		default:
			neutral++
		}
	}

	n := float64(len(texts))
	return Reading{
		Score: sum / n,
		Count: len(texts),
		Breakdown: map[string]float64{
			"positive": float64(positive) / n,
			"neutral":  float64(neutral) / n,
			"negative": float64(negative) / n,
		},
	}
}
